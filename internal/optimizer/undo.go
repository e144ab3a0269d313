package optimizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

// UndoStore is the log reader/marker used by the undo engine
type UndoStore interface {
	GetActiveEntry(ctx context.Context, entryID, tenantID string) (*domain.LogEntry, error)
	ListActiveEntriesForJob(ctx context.Context, jobID, tenantID string) ([]domain.LogEntry, error)
	MarkReverted(ctx context.Context, entryID string) error
}

// RevertError describes one failed entry inside a batch revert
type RevertError struct {
	EntryID string `json:"entry_id"`
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// RevertSummary is the result of reverting a whole job
type RevertSummary struct {
	RevertedCount int           `json:"reverted_count"`
	Total         int           `json:"total"`
	Errors        []RevertError `json:"errors"`
}

// UndoEngine reconstructs and applies compensating mutations from
// optimization log entries
type UndoEngine struct {
	store   UndoStore
	catalog CatalogAPI
	applier *Applier
	logger  *slog.Logger
}

// NewUndoEngine creates a new undo engine
func NewUndoEngine(store UndoStore, catalogAPI CatalogAPI, applier *Applier, logger *slog.Logger) *UndoEngine {
	return &UndoEngine{
		store:   store,
		catalog: catalogAPI,
		applier: applier,
		logger:  logger,
	}
}

// Revert applies the compensating mutation for one log entry and marks it
// reverted. The item's current remote state is re-read first so sibling
// fields changed since logging are carried forward, not clobbered.
// Returns the id of the reverted item.
func (u *UndoEngine) Revert(ctx context.Context, entryID, tenantID string) (string, error) {
	entry, err := u.store.GetActiveEntry(ctx, entryID, tenantID)
	if err != nil {
		return "", err
	}

	item, err := u.catalog.GetItem(ctx, tenantID, entry.ItemID)
	if err != nil {
		return "", fmt.Errorf("failed to re-read item %s: %w", entry.ItemID, err)
	}

	change := FieldChange{
		Field:    entry.Field,
		NewValue: entry.OldValue,
	}
	if entry.ImageID.Valid {
		change.ImageID = entry.ImageID.String
	}

	if err := u.applier.Apply(ctx, tenantID, item, []FieldChange{change}); err != nil {
		// The remote rejected the write; leave the entry active so the
		// revert can be retried.
		return "", fmt.Errorf("failed to apply compensating mutation: %w", err)
	}

	if err := u.store.MarkReverted(ctx, entryID); err != nil {
		return "", err
	}

	u.logger.Info("Log entry reverted",
		slog.String("entry_id", entryID),
		slog.String("tenant_id", tenantID),
		slog.String("item_id", entry.ItemID),
		slog.String("field", entry.Field),
	)

	return entry.ItemID, nil
}

// RevertJob reverts every non-reverted entry of a job, collecting
// per-entry errors rather than aborting on the first failure. It fails
// outright only when the job has no eligible entries at all.
func (u *UndoEngine) RevertJob(ctx context.Context, jobID, tenantID string) (*RevertSummary, error) {
	entries, err := u.store.ListActiveEntriesForJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, domain.ErrNoEligibleEntries
	}

	summary := &RevertSummary{Total: len(entries)}

	for _, entry := range entries {
		if _, err := u.Revert(ctx, entry.EntryID, tenantID); err != nil {
			u.logger.Warn("Failed to revert log entry",
				slog.String("entry_id", entry.EntryID),
				slog.String("item_id", entry.ItemID),
				slog.Any("error", err),
			)
			summary.Errors = append(summary.Errors, RevertError{
				EntryID: entry.EntryID,
				ItemID:  entry.ItemID,
				Message: err.Error(),
			})
			continue
		}
		summary.RevertedCount++
	}

	return summary, nil
}
