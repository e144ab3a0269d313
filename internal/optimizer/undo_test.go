package optimizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimly/catalog-optimizer/internal/catalog"
	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

// fakeUndoStore is an in-memory optimization log for revert tests
type fakeUndoStore struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*domain.LogEntry
	markErr error
}

func newFakeUndoStore(entries ...domain.LogEntry) *fakeUndoStore {
	s := &fakeUndoStore{entries: make(map[string]*domain.LogEntry)}
	for i := range entries {
		entry := entries[i]
		s.order = append(s.order, entry.EntryID)
		s.entries[entry.EntryID] = &entry
	}
	return s
}

func (s *fakeUndoStore) GetActiveEntry(ctx context.Context, entryID, tenantID string) (*domain.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok || entry.TenantID != tenantID || entry.IsReverted {
		return nil, domain.ErrEntryNotFoundOrReverted
	}
	copied := *entry
	return &copied, nil
}

func (s *fakeUndoStore) ListActiveEntriesForJob(ctx context.Context, jobID, tenantID string) ([]domain.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []domain.LogEntry
	for _, id := range s.order {
		entry := s.entries[id]
		if entry.JobID == jobID && entry.TenantID == tenantID && !entry.IsReverted {
			active = append(active, *entry)
		}
	}
	return active, nil
}

func (s *fakeUndoStore) MarkReverted(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.markErr != nil {
		return s.markErr
	}
	entry, ok := s.entries[entryID]
	if !ok || entry.IsReverted {
		return domain.ErrEntryNotFoundOrReverted
	}
	entry.IsReverted = true
	return nil
}

func (s *fakeUndoStore) reverted(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[entryID].IsReverted
}

func newTestUndoEngine(store *fakeUndoStore, cat *fakeCatalog) *UndoEngine {
	return NewUndoEngine(store, cat, NewApplier(cat, discardLogger()), discardLogger())
}

func titleEntry(entryID, itemID string) domain.LogEntry {
	return domain.LogEntry{
		EntryID:  entryID,
		JobID:    "job-1",
		TenantID: "tenant-1",
		ItemID:   itemID,
		Field:    domain.FieldTitle,
		OldValue: "Original Title",
		NewValue: "Generated Title",
	}
}

func TestRevertRestoresOldValue(t *testing.T) {
	store := newFakeUndoStore(titleEntry("entry-1", "item-1"))

	// The description changed since the entry was written; the revert must
	// carry the current value, not clobber it
	cat := newFakeCatalog(catalog.Item{
		ID:          "item-1",
		Title:       "Generated Title",
		Description: "Description edited afterwards",
	})

	itemID, err := newTestUndoEngine(store, cat).Revert(context.Background(), "entry-1", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", itemID)

	require.Len(t, cat.groupUpdates, 1)
	assert.Equal(t, "Original Title", cat.groupUpdates[0].Title)
	assert.Equal(t, "Description edited afterwards", cat.groupUpdates[0].Description)

	assert.True(t, store.reverted("entry-1"))
}

func TestRevertIsIdempotent(t *testing.T) {
	store := newFakeUndoStore(titleEntry("entry-1", "item-1"))
	cat := newFakeCatalog(catalog.Item{ID: "item-1", Title: "Generated Title"})
	engine := newTestUndoEngine(store, cat)

	_, err := engine.Revert(context.Background(), "entry-1", "tenant-1")
	require.NoError(t, err)

	_, err = engine.Revert(context.Background(), "entry-1", "tenant-1")
	assert.ErrorIs(t, err, domain.ErrEntryNotFoundOrReverted)
	assert.Len(t, cat.groupUpdates, 1, "the second revert must not write again")
}

func TestRevertWrongTenant(t *testing.T) {
	store := newFakeUndoStore(titleEntry("entry-1", "item-1"))
	cat := newFakeCatalog(catalog.Item{ID: "item-1"})

	_, err := newTestUndoEngine(store, cat).Revert(context.Background(), "entry-1", "tenant-2")
	assert.ErrorIs(t, err, domain.ErrEntryNotFoundOrReverted)
	assert.Empty(t, cat.groupUpdates)
}

func TestRevertAltTextTargetsLoggedImage(t *testing.T) {
	entry := domain.LogEntry{
		EntryID:  "entry-1",
		JobID:    "job-1",
		TenantID: "tenant-1",
		ItemID:   "item-1",
		Field:    domain.FieldAltText,
		OldValue: "",
		NewValue: "A glazed ceramic mug",
	}
	entry.ImageID.String = "img-2"
	entry.ImageID.Valid = true

	store := newFakeUndoStore(entry)
	cat := newFakeCatalog(catalog.Item{
		ID:     "item-1",
		Images: []catalog.Image{{ID: "img-1"}, {ID: "img-2", AltText: "A glazed ceramic mug"}},
	})

	_, err := newTestUndoEngine(store, cat).Revert(context.Background(), "entry-1", "tenant-1")
	require.NoError(t, err)

	require.Len(t, cat.altUpdates, 1)
	assert.Equal(t, altUpdate{ItemID: "item-1", ImageID: "img-2", AltText: ""}, cat.altUpdates[0])
}

func TestRevertApplyFailureLeavesEntryActive(t *testing.T) {
	store := newFakeUndoStore(titleEntry("entry-1", "item-1"))
	cat := newFakeCatalog(catalog.Item{ID: "item-1"})
	cat.updateErr["item-1"] = errors.New("remote rejected the write")

	_, err := newTestUndoEngine(store, cat).Revert(context.Background(), "entry-1", "tenant-1")
	assert.Error(t, err)
	assert.False(t, store.reverted("entry-1"), "a failed revert stays retryable")
}

func TestRevertJobCollectsPerEntryErrors(t *testing.T) {
	store := newFakeUndoStore(
		titleEntry("entry-1", "item-1"),
		titleEntry("entry-2", "item-2"),
		titleEntry("entry-3", "item-3"),
	)
	cat := newFakeCatalog(
		catalog.Item{ID: "item-1"},
		catalog.Item{ID: "item-2"},
		catalog.Item{ID: "item-3"},
	)
	cat.updateErr["item-2"] = errors.New("remote rejected the write")

	summary, err := newTestUndoEngine(store, cat).RevertJob(context.Background(), "job-1", "tenant-1")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.RevertedCount)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "entry-2", summary.Errors[0].EntryID)
	assert.Equal(t, "item-2", summary.Errors[0].ItemID)

	assert.True(t, store.reverted("entry-1"))
	assert.False(t, store.reverted("entry-2"))
	assert.True(t, store.reverted("entry-3"))
}

func TestRevertJobNoEligibleEntries(t *testing.T) {
	reverted := titleEntry("entry-1", "item-1")
	reverted.IsReverted = true
	store := newFakeUndoStore(reverted)

	_, err := newTestUndoEngine(store, newFakeCatalog()).RevertJob(context.Background(), "job-1", "tenant-1")
	assert.ErrorIs(t, err, domain.ErrNoEligibleEntries)
}
