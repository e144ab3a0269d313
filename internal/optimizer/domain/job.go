package domain

import (
	"database/sql"
	"time"
)

// Job represents one bulk optimization batch run
type Job struct {
	JobID          string       `db:"job_id"`
	TenantID       string       `db:"tenant_id"`
	JobType        string       `db:"job_type"`
	Payload        string       `db:"payload"` // JSON-encoded JobPayload
	Status         string       `db:"status"`
	TotalItems     int          `db:"total_items"`
	ProcessedItems int          `db:"processed_items"`
	ErrorMessage   string       `db:"error_message"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
	CompletedAt    sql.NullTime `db:"completed_at"`
}

// JobPayload is the tenant-supplied batch configuration carried on the job
type JobPayload struct {
	Tone               string   `json:"tone,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
	ItemIDs            []string `json:"item_ids,omitempty"`
}

// JobMessage represents a job message from the work queue
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
