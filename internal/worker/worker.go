package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/optimly/catalog-optimizer/internal/optimizer"
	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
	"github.com/optimly/catalog-optimizer/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Orchestrator  *optimizer.Orchestrator
	Concurrency   int
	PrefetchCount int
}

// Worker drains the job queue with a bounded pool of goroutines. Each
// goroutine runs one job's full item loop to completion before taking
// the next; only different jobs run concurrently.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	orchestrator  *optimizer.Orchestrator
	concurrency   int
	prefetchCount int
	workerID      string
	jobsChan      chan *domain.JobMessage
	eventsChan    chan optimizer.JobEvent
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	hostname, _ := os.Hostname()

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	w := &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		orchestrator:  cfg.Orchestrator,
		concurrency:   cfg.Concurrency,
		prefetchCount: prefetch,
		workerID:      fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		jobsChan:      make(chan *domain.JobMessage),
		eventsChan:    make(chan optimizer.JobEvent, 64),
		stopChan:      make(chan struct{}),
	}

	w.orchestrator.Subscribe(w.eventsChan)

	return w
}

// Start begins consuming and processing jobs until the context is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.watchJobEvents(ctx)
	}()

	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker, waiting for in-flight jobs
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// watchJobEvents logs job outcomes published by the orchestrator
func (w *Worker) watchJobEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event := <-w.eventsChan:
			if event.Status == domain.JobStatusFailed {
				w.logger.Warn("Job outcome",
					slog.String("job_id", event.JobID),
					slog.String("tenant_id", event.TenantID),
					slog.String("status", event.Status),
					slog.String("reason", event.ErrorMessage),
				)
			} else {
				w.logger.Info("Job outcome",
					slog.String("job_id", event.JobID),
					slog.String("tenant_id", event.TenantID),
					slog.String("status", event.Status),
				)
			}
		}
	}
}
