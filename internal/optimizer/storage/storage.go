package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

// Storage handles all database operations for the optimizer core
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob moves a job into PROCESSING. A redelivered job that is already
// PROCESSING is claimed again so an interrupted run can resume; jobs in a
// terminal status are rejected.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status IN ($3, $1)
		RETURNING job_id, tenant_id, job_type, payload, status, total_items,
		          processed_items, error_message, created_at, updated_at, completed_at
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusProcessing, jobID, domain.JobStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			exists, existsErr := s.jobExists(ctx, jobID)
			if existsErr != nil {
				return nil, existsErr
			}
			if !exists {
				return nil, domain.ErrJobNotFound
			}
			return nil, domain.ErrJobAlreadyFinished
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("tenant_id", job.TenantID),
		slog.String("job_type", job.JobType),
	)

	return &job, nil
}

// jobExists reports whether a job row exists at all
func (s *Storage) jobExists(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = $1)`, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return exists, nil
}

// SetJobTotals fixes the job's total item count once discovery completes
func (s *Storage) SetJobTotals(ctx context.Context, jobID string, totalItems int) error {
	query := `
		UPDATE jobs
		SET total_items = $1,
		    updated_at = NOW()
		WHERE job_id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, totalItems, jobID); err != nil {
		return fmt.Errorf("failed to set job totals: %w", err)
	}

	return nil
}

// IncrementProcessed bumps the job's processed item counter by one
func (s *Storage) IncrementProcessed(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET processed_items = processed_items + 1,
		    updated_at = NOW()
		WHERE job_id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, jobID); err != nil {
		return fmt.Errorf("failed to increment processed items: %w", err)
	}

	return nil
}

// CompleteJob transitions a job to COMPLETED
func (s *Storage) CompleteJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", domain.JobStatusCompleted),
	)

	return nil
}

// FailJob transitions a job to FAILED with the captured message
func (s *Storage) FailJob(ctx context.Context, jobID, message string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, message, jobID); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", domain.JobStatusFailed),
	)

	return nil
}

// GetExclusionRules loads a tenant's block-lists. A tenant without a rules
// row has no exclusions.
func (s *Storage) GetExclusionRules(ctx context.Context, tenantID string) (*domain.ExclusionRules, error) {
	query := `
		SELECT tenant_id, blocked_tags, blocked_collections
		FROM exclusion_rules
		WHERE tenant_id = $1
	`

	rules := domain.ExclusionRules{TenantID: tenantID}
	var tags, collections pq.StringArray

	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&rules.TenantID, &tags, &collections)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &rules, nil
		}
		return nil, fmt.Errorf("failed to get exclusion rules: %w", err)
	}

	rules.BlockedTags = tags
	rules.BlockedCollections = collections

	return &rules, nil
}

// InsertLogEntry appends one optimization log entry
func (s *Storage) InsertLogEntry(ctx context.Context, entry *domain.LogEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.New().String()
	}

	query := `
		INSERT INTO optimization_log (
			entry_id, job_id, tenant_id, item_id, image_id, item_title,
			field, old_value, new_value, is_reverted, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, FALSE, $10
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		entry.EntryID,
		entry.JobID,
		entry.TenantID,
		entry.ItemID,
		entry.ImageID,
		entry.ItemTitle,
		entry.Field,
		entry.OldValue,
		entry.NewValue,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}

	return nil
}

// ListLoggedItemIDs returns the set of item ids that already have log
// entries for the job; used to keep redeliveries idempotent
func (s *Storage) ListLoggedItemIDs(ctx context.Context, jobID string) (map[string]struct{}, error) {
	query := `
		SELECT DISTINCT item_id
		FROM optimization_log
		WHERE job_id = $1
	`

	var itemIDs []string
	if err := s.db.SelectContext(ctx, &itemIDs, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list logged item ids: %w", err)
	}

	logged := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		logged[id] = struct{}{}
	}

	return logged, nil
}

// GetActiveEntry loads one non-reverted log entry scoped to the tenant
func (s *Storage) GetActiveEntry(ctx context.Context, entryID, tenantID string) (*domain.LogEntry, error) {
	query := `
		SELECT entry_id, job_id, tenant_id, item_id, image_id, item_title,
		       field, old_value, new_value, is_reverted, reverted_at, created_at
		FROM optimization_log
		WHERE entry_id = $1
		  AND tenant_id = $2
		  AND is_reverted = FALSE
	`

	var entry domain.LogEntry
	err := s.db.GetContext(ctx, &entry, query, entryID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntryNotFoundOrReverted
		}
		return nil, fmt.Errorf("failed to get log entry: %w", err)
	}

	return &entry, nil
}

// ListActiveEntriesForJob lists a job's non-reverted entries in insertion order
func (s *Storage) ListActiveEntriesForJob(ctx context.Context, jobID, tenantID string) ([]domain.LogEntry, error) {
	query := `
		SELECT entry_id, job_id, tenant_id, item_id, image_id, item_title,
		       field, old_value, new_value, is_reverted, reverted_at, created_at
		FROM optimization_log
		WHERE job_id = $1
		  AND tenant_id = $2
		  AND is_reverted = FALSE
		ORDER BY created_at ASC, entry_id ASC
	`

	var entries []domain.LogEntry
	if err := s.db.SelectContext(ctx, &entries, query, jobID, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}

	return entries, nil
}

// MarkReverted flips an entry's revert flag. The guard on is_reverted
// makes the transition one-shot: a second revert finds zero rows.
func (s *Storage) MarkReverted(ctx context.Context, entryID string) error {
	query := `
		UPDATE optimization_log
		SET is_reverted = TRUE,
		    reverted_at = NOW()
		WHERE entry_id = $1
		  AND is_reverted = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark entry reverted: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrEntryNotFoundOrReverted
	}

	return nil
}
