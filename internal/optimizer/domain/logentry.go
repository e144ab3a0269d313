package domain

import (
	"database/sql"
	"time"
)

// LogEntry records one applied field mutation. Entries are append-only;
// the only permitted update is the one-shot revert transition.
type LogEntry struct {
	EntryID    string         `db:"entry_id"`
	JobID      string         `db:"job_id"`
	TenantID   string         `db:"tenant_id"`
	ItemID     string         `db:"item_id"`
	ImageID    sql.NullString `db:"image_id"` // set for ALT_TEXT entries
	ItemTitle  string         `db:"item_title"`
	Field      string         `db:"field"`
	OldValue   string         `db:"old_value"`
	NewValue   string         `db:"new_value"`
	IsReverted bool           `db:"is_reverted"`
	RevertedAt sql.NullTime   `db:"reverted_at"`
	CreatedAt  time.Time      `db:"created_at"`
}

// ExclusionRules holds a tenant's block-lists. Items matching any entry
// are dropped before generation so they cost neither tokens nor quota.
type ExclusionRules struct {
	TenantID           string   `db:"tenant_id"`
	BlockedTags        []string `db:"-"`
	BlockedCollections []string `db:"-"`
}
