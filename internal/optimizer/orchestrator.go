package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/optimly/catalog-optimizer/internal/catalog"
	"github.com/optimly/catalog-optimizer/internal/generator"
	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

// Store is the persistence layer the orchestrator drives jobs and log
// entries through
type Store interface {
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	SetJobTotals(ctx context.Context, jobID string, totalItems int) error
	IncrementProcessed(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, message string) error
	GetExclusionRules(ctx context.Context, tenantID string) (*domain.ExclusionRules, error)
	InsertLogEntry(ctx context.Context, entry *domain.LogEntry) error
	ListLoggedItemIDs(ctx context.Context, jobID string) (map[string]struct{}, error)
}

// ContentGenerator produces candidate field values for catalog items.
// An empty value means "skip this field for this item".
type ContentGenerator interface {
	GenerateTitle(ctx context.Context, item *catalog.Item, tone, instructions string) (string, error)
	GenerateDescription(ctx context.Context, item *catalog.Item, tone, instructions string) (string, error)
	GenerateAltText(ctx context.Context, item *catalog.Item, image *catalog.Image, tone, instructions string) (string, error)
}

// QuotaChecker is the quota guard as seen by the orchestrator
type QuotaChecker interface {
	Allow(ctx context.Context, tenantID string) Decision
	Increment(ctx context.Context, tenantID string, kind CounterKind, delta int64)
}

// JobEvent reports a job reaching a terminal status
type JobEvent struct {
	JobID        string
	TenantID     string
	Status       string
	ErrorMessage string
}

// Config holds orchestrator configuration
type Config struct {
	Store     Store
	Catalog   CatalogAPI
	Generator ContentGenerator
	Applier   *Applier
	Quota     QuotaChecker
	Limiter   *rate.Limiter
	ItemDelay time.Duration
	PageDelay time.Duration
	Logger    *slog.Logger
}

// Orchestrator drives one job through discovery, filtering, generation,
// mutation and logging. It is the only component that mutates jobs.
type Orchestrator struct {
	store     Store
	catalog   CatalogAPI
	generator ContentGenerator
	applier   *Applier
	quota     QuotaChecker
	limiter   *rate.Limiter
	itemDelay time.Duration
	pageDelay time.Duration
	logger    *slog.Logger
	observers []chan<- JobEvent
}

// NewOrchestrator creates a new job orchestrator
func NewOrchestrator(cfg *Config) *Orchestrator {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &Orchestrator{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		generator: cfg.Generator,
		applier:   cfg.Applier,
		quota:     cfg.Quota,
		limiter:   limiter,
		itemDelay: cfg.ItemDelay,
		pageDelay: cfg.PageDelay,
		logger:    cfg.Logger,
	}
}

// Subscribe registers a channel to receive job outcome events. Events are
// delivered best-effort; a full channel drops the event.
func (o *Orchestrator) Subscribe(ch chan<- JobEvent) {
	o.observers = append(o.observers, ch)
}

// publish sends a job outcome event to all subscribers
func (o *Orchestrator) publish(event JobEvent) {
	for _, ch := range o.observers {
		select {
		case ch <- event:
		default:
			o.logger.Warn("Dropping job event, subscriber channel full",
				slog.String("job_id", event.JobID),
			)
		}
	}
}

// Run executes one job to a terminal status. A nil return means the job
// reached COMPLETED or FAILED and its queue message can be acknowledged;
// a RetryableError means the run should be redelivered and resumed.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.store.ClaimJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyFinished) || errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job %s: %w", jobID, err))
	}

	o.logger.Info("Job processing started",
		slog.String("job_id", job.JobID),
		slog.String("tenant_id", job.TenantID),
		slog.String("job_type", job.JobType),
		slog.Int("processed_items", job.ProcessedItems),
	)

	var payload domain.JobPayload
	if job.Payload != "" {
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			o.failJob(ctx, job, fmt.Sprintf("invalid job payload: %s", err))
			return nil
		}
	}

	decision := o.quota.Allow(ctx, job.TenantID)
	if !decision.Allowed {
		limit := 0
		if decision.Limit != nil {
			limit = *decision.Limit
		}
		o.failJob(ctx, job, fmt.Sprintf("optimization quota exceeded (%d/%d used this period)", decision.Usage, limit))
		return nil
	}

	rules, err := o.store.GetExclusionRules(ctx, job.TenantID)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to load exclusion rules: %w", err))
	}

	items, err := o.discoverItems(ctx, job, &payload)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewRetryableError(err)
		}
		o.failJob(ctx, job, fmt.Sprintf("catalog discovery failed: %s", err))
		return nil
	}

	items = FilterItems(items, rules)

	// Items that already produced log entries were handled by an earlier
	// delivery of this job; skip them so redelivery stays idempotent.
	loggedItems, err := o.store.ListLoggedItemIDs(ctx, job.JobID)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to load logged item ids: %w", err))
	}

	if err := o.store.SetJobTotals(ctx, job.JobID, len(items)); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to set job totals: %w", err))
	}

	for i := range items {
		item := &items[i]

		if _, done := loggedItems[item.ID]; done {
			continue
		}

		if err := o.processItem(ctx, job, &payload, item); err != nil {
			if ctx.Err() != nil {
				return domain.NewRetryableError(err)
			}
			if errors.Is(err, catalog.ErrUnauthorized) {
				o.failJob(ctx, job, fmt.Sprintf("catalog authentication failed: %s", err))
				return nil
			}
			// Per-item failures never abort the batch
			o.logger.Warn("Item skipped after failure",
				slog.String("job_id", job.JobID),
				slog.String("item_id", item.ID),
				slog.Any("error", err),
			)
		}

		if o.itemDelay > 0 {
			if err := sleepCtx(ctx, o.itemDelay); err != nil {
				return domain.NewRetryableError(err)
			}
		}
	}

	if err := o.store.CompleteJob(ctx, job.JobID); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to complete job: %w", err))
	}

	o.logger.Info("Job completed",
		slog.String("job_id", job.JobID),
		slog.String("tenant_id", job.TenantID),
		slog.Int("total_items", len(items)),
	)

	o.publish(JobEvent{
		JobID:    job.JobID,
		TenantID: job.TenantID,
		Status:   domain.JobStatusCompleted,
	})

	return nil
}

// discoverItems resolves the batch's work items: the explicit id subset
// when the payload names one, otherwise a full cursor scan of the catalog
func (o *Orchestrator) discoverItems(ctx context.Context, job *domain.Job, payload *domain.JobPayload) ([]catalog.Item, error) {
	if len(payload.ItemIDs) > 0 {
		items := make([]catalog.Item, 0, len(payload.ItemIDs))
		for _, itemID := range payload.ItemIDs {
			item, err := o.catalog.GetItem(ctx, job.TenantID, itemID)
			if err != nil {
				if errors.Is(err, catalog.ErrItemNotFound) {
					o.logger.Warn("Requested item not found in catalog",
						slog.String("job_id", job.JobID),
						slog.String("item_id", itemID),
					)
					continue
				}
				return nil, err
			}
			items = append(items, *item)
		}
		return items, nil
	}

	var items []catalog.Item
	cursor := ""

	for {
		page, err := o.catalog.FetchPage(ctx, job.TenantID, cursor)
		if err != nil {
			return nil, err
		}

		items = append(items, page.Items...)

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor

		if o.pageDelay > 0 {
			if err := sleepCtx(ctx, o.pageDelay); err != nil {
				return nil, err
			}
		}
	}

	o.logger.Debug("Catalog discovery complete",
		slog.String("job_id", job.JobID),
		slog.Int("item_count", len(items)),
	)

	return items, nil
}

// processItem generates candidate values for the item's missing fields
// and, when at least one field produced a value, applies the merged
// mutation, logs each changed field and charges quota for one item.
func (o *Orchestrator) processItem(ctx context.Context, job *domain.Job, payload *domain.JobPayload, item *catalog.Item) error {
	changes := o.buildChanges(ctx, job, payload, item)
	if len(changes) == 0 {
		return nil
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := o.applier.Apply(ctx, job.TenantID, item, changes); err != nil {
		return err
	}

	now := time.Now().UTC()
	altTexts := int64(0)
	schemas := int64(0)

	for _, change := range changes {
		entry := &domain.LogEntry{
			JobID:     job.JobID,
			TenantID:  job.TenantID,
			ItemID:    item.ID,
			ItemTitle: item.Title,
			Field:     change.Field,
			OldValue:  change.OldValue,
			NewValue:  change.NewValue,
			CreatedAt: now,
		}
		if change.ImageID != "" {
			entry.ImageID.String = change.ImageID
			entry.ImageID.Valid = true
		}

		if err := o.store.InsertLogEntry(ctx, entry); err != nil {
			// The mutation is already applied; losing the log entry only
			// costs revertability for this field. Best-effort sequencing
			// is the documented guarantee.
			o.logger.Error("Failed to write optimization log entry",
				slog.String("job_id", job.JobID),
				slog.String("item_id", item.ID),
				slog.String("field", change.Field),
				slog.Any("error", err),
			)
		}

		switch change.Field {
		case domain.FieldAltText:
			altTexts++
		case domain.FieldSchema:
			schemas++
		}
	}

	if err := o.store.IncrementProcessed(ctx, job.JobID); err != nil {
		o.logger.Error("Failed to update job progress",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
	}

	// Quota counts items, not fields
	o.quota.Increment(ctx, job.TenantID, CounterItemsOptimized, 1)
	if altTexts > 0 {
		o.quota.Increment(ctx, job.TenantID, CounterAltTextsGenerated, altTexts)
	}
	if schemas > 0 {
		o.quota.Increment(ctx, job.TenantID, CounterSchemasGenerated, schemas)
	}

	return nil
}

// buildChanges generates candidate values for the fields the item is
// missing, according to the job type. Generation failures and empty
// results skip the field, never the batch.
func (o *Orchestrator) buildChanges(ctx context.Context, job *domain.Job, payload *domain.JobPayload, item *catalog.Item) []FieldChange {
	var changes []FieldChange

	switch job.JobType {
	case domain.JobTypeTitleDesc:
		if item.Title == "" {
			if value := o.generateField(ctx, job, item, domain.FieldTitle, payload); value != "" {
				changes = append(changes, FieldChange{
					Field:    domain.FieldTitle,
					OldValue: item.Title,
					NewValue: value,
				})
			}
		}
		if item.Description == "" {
			if value := o.generateField(ctx, job, item, domain.FieldDescription, payload); value != "" {
				changes = append(changes, FieldChange{
					Field:    domain.FieldDescription,
					OldValue: item.Description,
					NewValue: value,
				})
			}
		}

	case domain.JobTypeAltText:
		for i := range item.Images {
			image := &item.Images[i]
			if image.AltText != "" {
				continue
			}

			value, err := o.generator.GenerateAltText(ctx, item, image, payload.Tone, payload.CustomInstructions)
			if err != nil {
				o.logger.Warn("Alt text generation failed",
					slog.String("job_id", job.JobID),
					slog.String("item_id", item.ID),
					slog.String("image_id", image.ID),
					slog.Any("error", err),
				)
				continue
			}
			if value == "" {
				continue
			}

			changes = append(changes, FieldChange{
				Field:    domain.FieldAltText,
				ImageID:  image.ID,
				OldValue: image.AltText,
				NewValue: value,
			})
		}

	case domain.JobTypeSchema:
		if item.SchemaMarkup == "" {
			markup, err := generator.BuildSchemaMarkup(item)
			if err != nil {
				o.logger.Warn("Schema markup build failed",
					slog.String("job_id", job.JobID),
					slog.String("item_id", item.ID),
					slog.Any("error", err),
				)
			} else if markup != "" {
				changes = append(changes, FieldChange{
					Field:    domain.FieldSchema,
					OldValue: item.SchemaMarkup,
					NewValue: markup,
				})
			}
		}

	default:
		o.logger.Error("Unknown job type",
			slog.String("job_id", job.JobID),
			slog.String("job_type", job.JobType),
		)
	}

	return changes
}

// generateField produces one text field value, logging and swallowing
// generation failures
func (o *Orchestrator) generateField(ctx context.Context, job *domain.Job, item *catalog.Item, field string, payload *domain.JobPayload) string {
	var (
		value string
		err   error
	)

	switch field {
	case domain.FieldTitle:
		value, err = o.generator.GenerateTitle(ctx, item, payload.Tone, payload.CustomInstructions)
	case domain.FieldDescription:
		value, err = o.generator.GenerateDescription(ctx, item, payload.Tone, payload.CustomInstructions)
	}

	if err != nil {
		o.logger.Warn("Field generation failed",
			slog.String("job_id", job.JobID),
			slog.String("item_id", item.ID),
			slog.String("field", field),
			slog.Any("error", err),
		)
		return ""
	}

	return value
}

// failJob transitions the job to FAILED with the given message
func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, message string) {
	o.logger.Error("Job failed",
		slog.String("job_id", job.JobID),
		slog.String("tenant_id", job.TenantID),
		slog.String("reason", message),
	)

	if err := o.store.FailJob(ctx, job.JobID, message); err != nil {
		o.logger.Error("Failed to mark job as FAILED",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
	}

	o.publish(JobEvent{
		JobID:        job.JobID,
		TenantID:     job.TenantID,
		Status:       domain.JobStatusFailed,
		ErrorMessage: message,
	})
}

// sleepCtx sleeps for d or until the context is canceled
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
