package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/optimly/catalog-optimizer/internal/catalog"
	"github.com/optimly/catalog-optimizer/internal/config"
	"github.com/optimly/catalog-optimizer/internal/generator"
	"github.com/optimly/catalog-optimizer/internal/optimizer"
	optstorage "github.com/optimly/catalog-optimizer/internal/optimizer/storage"
	"github.com/optimly/catalog-optimizer/internal/worker"
	"github.com/optimly/catalog-optimizer/shared/logger"
	"github.com/optimly/catalog-optimizer/shared/postgresql"
	"github.com/optimly/catalog-optimizer/shared/rabbitmq"
	"github.com/optimly/catalog-optimizer/shared/redisdb"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		QueueName:          cfg.RabbitMQ.Queue.Name,
		QueueDurable:       cfg.RabbitMQ.Queue.Durable,
		QueueAutoDelete:    cfg.RabbitMQ.Queue.AutoDelete,
		QueueExclusive:     cfg.RabbitMQ.Queue.Exclusive,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	redisClient, err := redisdb.NewClient(&redisdb.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, appLogger.Logger)
	if err != nil {
		// The quota guard fails open; a missing counter store must not
		// keep the worker from starting
		appLogger.Warn("Redis unavailable at startup, quota checks will fail open",
			slog.Any("error", err),
		)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	catalogClient := catalog.NewClient(&catalog.Config{
		BaseURL:        cfg.Catalog.BaseURL,
		AccessToken:    cfg.Catalog.AccessToken,
		PageSize:       cfg.Catalog.PageSize,
		RetryAttempts:  cfg.Catalog.RetryAttempts,
		RetryBaseDelay: cfg.Catalog.RetryBaseDelay,
		RateLimitDelay: cfg.Catalog.RateLimitDelay,
		RequestTimeout: cfg.Catalog.RequestTimeout,
	}, appLogger.Logger)

	generatorClient := generator.NewClient(&generator.Config{
		BaseURL:        cfg.Generator.BaseURL,
		APIKey:         cfg.Generator.APIKey,
		RequestTimeout: cfg.Generator.RequestTimeout,
		TitleBounds: generator.Bounds{
			MinLength: cfg.Generator.Fields.Title.MinLength,
			MaxLength: cfg.Generator.Fields.Title.MaxLength,
		},
		DescBounds: generator.Bounds{
			MinLength: cfg.Generator.Fields.Description.MinLength,
			MaxLength: cfg.Generator.Fields.Description.MaxLength,
		},
		AltTextBounds: generator.Bounds{
			MinLength: cfg.Generator.Fields.AltText.MinLength,
			MaxLength: cfg.Generator.Fields.AltText.MaxLength,
		},
	}, appLogger.Logger)

	var counterStore optimizer.CounterStore
	if redisClient != nil {
		counterStore = redisClient
	} else {
		counterStore = unreachableCounterStore{}
	}

	quota := optimizer.NewGuard(
		counterStore,
		optimizer.NewConfigLimitResolver(cfg.Quota.DefaultLimit, cfg.Quota.UnlimitedTenants),
		cfg.Quota.FailOpen,
		appLogger.Logger,
	)

	store := optstorage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	applier := optimizer.NewApplier(catalogClient, appLogger.Logger)

	orchestrator := optimizer.NewOrchestrator(&optimizer.Config{
		Store:     store,
		Catalog:   catalogClient,
		Generator: generatorClient,
		Applier:   applier,
		Quota:     quota,
		Limiter:   rate.NewLimiter(rate.Limit(cfg.Worker.MutationsPerSec), cfg.Worker.MutationBurst),
		ItemDelay: cfg.Worker.ItemDelay,
		PageDelay: cfg.Catalog.PageDelay,
		Logger:    appLogger.Logger,
	})

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		RabbitClient:  rabbitClient,
		Orchestrator:  orchestrator,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// unreachableCounterStore stands in when Redis is down at startup; every
// call errors so the quota guard's fail-open policy decides the outcome
type unreachableCounterStore struct{}

func (unreachableCounterStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return 0, fmt.Errorf("counter store unavailable")
}

func (unreachableCounterStore) HGet(ctx context.Context, key, field string) (string, error) {
	return "", fmt.Errorf("counter store unavailable")
}
