package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
	"github.com/optimly/catalog-optimizer/shared/postgresql"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index guarding one active job per tenant
const uniqueViolation = "23505"

// Storage handles database operations for the API service
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a new Storage instance
func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// HasActiveJob reports whether the tenant has a PENDING or PROCESSING job
func (s *Storage) HasActiveJob(ctx context.Context, tenantID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE tenant_id = $1
			  AND status IN ($2, $3)
		)
	`

	var exists bool
	err := s.db.GetContext(ctx, &exists, query, tenantID, domain.JobStatusPending, domain.JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to check active job: %w", err)
	}

	return exists, nil
}

// CreateJob inserts a new PENDING job. The partial unique index on active
// jobs closes the race left by the HasActiveJob pre-check.
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, tenant_id, job_type, payload, status,
			total_items, processed_items, error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			0, 0, '', $6, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.TenantID,
		job.JobType,
		job.Payload,
		job.Status,
		job.CreatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.ErrActiveJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves one job
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, tenant_id, job_type, payload, status, total_items,
		       processed_items, error_message, created_at, updated_at, completed_at
		FROM jobs
		WHERE job_id = $1
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// FailJob marks a job FAILED; used when enqueueing the queue message
// fails after the row was inserted
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

	return nil
}

// JobFilter restricts a job listing
type JobFilter struct {
	TenantID string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position of a job listing page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs lists jobs newest-first with keyset pagination. One extra row
// beyond PageSize is returned so the caller can detect further pages.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
		SELECT job_id, tenant_id, job_type, payload, status, total_items,
		       processed_items, error_message, created_at, updated_at, completed_at
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// HistoryFilter restricts an optimization history query
type HistoryFilter struct {
	TenantID        string
	JobID           string
	IncludeReverted bool
	Page            int
	Limit           int
}

// History returns one offset page of optimization log entries plus the
// total matching count
func (s *Storage) History(ctx context.Context, filter HistoryFilter) ([]domain.LogEntry, int, error) {
	where := " WHERE tenant_id = $1"
	args := []interface{}{filter.TenantID}
	argIdx := 2

	if filter.JobID != "" {
		where += fmt.Sprintf(" AND job_id = $%d", argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}

	if !filter.IncludeReverted {
		where += " AND is_reverted = FALSE"
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM optimization_log" + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count history: %w", err)
	}

	query := `
		SELECT entry_id, job_id, tenant_id, item_id, image_id, item_title,
		       field, old_value, new_value, is_reverted, reverted_at, created_at
		FROM optimization_log` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, entry_id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	var entries []domain.LogEntry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to query history: %w", err)
	}

	return entries, total, nil
}
