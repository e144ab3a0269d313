package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterKind identifies one usage counter. Counters are a closed set so
// increments stay typed rather than dispatching on ad-hoc strings.
type CounterKind int

const (
	CounterItemsOptimized CounterKind = iota
	CounterAltTextsGenerated
	CounterSchemasGenerated
)

// String returns the counter's storage field name
func (k CounterKind) String() string {
	switch k {
	case CounterItemsOptimized:
		return "items_optimized"
	case CounterAltTextsGenerated:
		return "alt_texts_generated"
	case CounterSchemasGenerated:
		return "schemas_generated"
	}
	return "unknown"
}

// CounterStore is the usage counter backend (Redis hash per tenant+period)
type CounterStore interface {
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HGet(ctx context.Context, key, field string) (string, error)
}

// LimitResolver returns a tenant's optimization limit for the current
// billing period; nil means unlimited. Billing plans are externally
// configured, so the resolver is injected.
type LimitResolver func(tenantID string) *int

// Decision is the outcome of a quota check
type Decision struct {
	Allowed bool
	Usage   int
	Limit   *int
}

// Guard enforces per-tenant, per-billing-period optimization quotas.
// Counters only ever go up; reverts do not refund usage.
type Guard struct {
	store        CounterStore
	resolveLimit LimitResolver
	failOpen     bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewGuard creates a new quota guard. With failOpen set, an unreachable
// counter store results in the operation being allowed rather than the
// batch being blocked.
func NewGuard(store CounterStore, resolveLimit LimitResolver, failOpen bool, logger *slog.Logger) *Guard {
	return &Guard{
		store:        store,
		resolveLimit: resolveLimit,
		failOpen:     failOpen,
		logger:       logger,
		now:          time.Now,
	}
}

// NewConfigLimitResolver builds a resolver from a default limit and a list
// of unlimited-tier tenants
func NewConfigLimitResolver(defaultLimit int, unlimitedTenants []string) LimitResolver {
	unlimited := make(map[string]struct{}, len(unlimitedTenants))
	for _, t := range unlimitedTenants {
		unlimited[t] = struct{}{}
	}

	return func(tenantID string) *int {
		if _, ok := unlimited[tenantID]; ok {
			return nil
		}
		limit := defaultLimit
		return &limit
	}
}

// Allow checks whether the tenant may optimize another item this period
func (g *Guard) Allow(ctx context.Context, tenantID string) Decision {
	limit := g.resolveLimit(tenantID)
	if limit == nil {
		return Decision{Allowed: true}
	}

	usage, err := g.currentUsage(ctx, tenantID)
	if err != nil {
		g.logger.Warn("Quota store unreachable",
			slog.String("tenant_id", tenantID),
			slog.Bool("fail_open", g.failOpen),
			slog.Any("error", err),
		)
		return Decision{Allowed: g.failOpen, Limit: limit}
	}

	return Decision{
		Allowed: usage < *limit,
		Usage:   usage,
		Limit:   limit,
	}
}

// Increment bumps a usage counter. Failures are logged, never surfaced:
// losing a count is preferable to failing the batch.
func (g *Guard) Increment(ctx context.Context, tenantID string, kind CounterKind, delta int64) {
	key := g.usageKey(tenantID)
	if _, err := g.store.HIncrBy(ctx, key, kind.String(), delta); err != nil {
		g.logger.Warn("Failed to increment usage counter",
			slog.String("tenant_id", tenantID),
			slog.String("counter", kind.String()),
			slog.Int64("delta", delta),
			slog.Any("error", err),
		)
	}
}

// currentUsage reads the tenant's item counter for the current period
func (g *Guard) currentUsage(ctx context.Context, tenantID string) (int, error) {
	value, err := g.store.HGet(ctx, g.usageKey(tenantID), CounterItemsOptimized.String())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	usage, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("malformed usage counter value %q: %w", value, err)
	}

	return usage, nil
}

// usageKey returns the counter hash key for the current billing period
func (g *Guard) usageKey(tenantID string) string {
	return fmt.Sprintf("usage:%s:%s", tenantID, g.now().UTC().Format("2006-01"))
}
