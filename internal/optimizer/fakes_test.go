package optimizer

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/optimly/catalog-optimizer/internal/catalog"
	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type groupUpdate struct {
	ItemID      string
	Title       string
	Description string
}

type altUpdate struct {
	ItemID  string
	ImageID string
	AltText string
}

type schemaUpdate struct {
	ItemID string
	Markup string
}

// fakeCatalog is an in-memory catalog source recording every mutation
type fakeCatalog struct {
	mu sync.Mutex

	items map[string]*catalog.Item
	pages []*catalog.Page

	fetchedCursors []string
	groupUpdates   []groupUpdate
	altUpdates     []altUpdate
	schemaUpdates  []schemaUpdate

	fetchErr  error
	getErr    map[string]error
	updateErr map[string]error
}

func newFakeCatalog(items ...catalog.Item) *fakeCatalog {
	f := &fakeCatalog{
		items:     make(map[string]*catalog.Item),
		getErr:    make(map[string]error),
		updateErr: make(map[string]error),
	}
	for i := range items {
		item := items[i]
		f.items[item.ID] = &item
	}
	return f
}

func (f *fakeCatalog) FetchPage(ctx context.Context, tenantID, cursor string) (*catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	index := len(f.fetchedCursors)
	f.fetchedCursors = append(f.fetchedCursors, cursor)

	if index >= len(f.pages) {
		return &catalog.Page{}, nil
	}
	return f.pages[index], nil
}

func (f *fakeCatalog) GetItem(ctx context.Context, tenantID, itemID string) (*catalog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.getErr[itemID]; err != nil {
		return nil, err
	}

	item, ok := f.items[itemID]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeCatalog) UpdateTitleDescription(ctx context.Context, tenantID, itemID, title, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.updateErr[itemID]; err != nil {
		return err
	}

	f.groupUpdates = append(f.groupUpdates, groupUpdate{ItemID: itemID, Title: title, Description: description})
	if item, ok := f.items[itemID]; ok {
		item.Title = title
		item.Description = description
	}
	return nil
}

func (f *fakeCatalog) UpdateImageAltText(ctx context.Context, tenantID, itemID, imageID, altText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.updateErr[itemID]; err != nil {
		return err
	}

	f.altUpdates = append(f.altUpdates, altUpdate{ItemID: itemID, ImageID: imageID, AltText: altText})
	if item, ok := f.items[itemID]; ok {
		if img := item.ImageByID(imageID); img != nil {
			img.AltText = altText
		}
	}
	return nil
}

func (f *fakeCatalog) UpdateSchemaMarkup(ctx context.Context, tenantID, itemID, markup string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.updateErr[itemID]; err != nil {
		return err
	}

	f.schemaUpdates = append(f.schemaUpdates, schemaUpdate{ItemID: itemID, Markup: markup})
	if item, ok := f.items[itemID]; ok {
		item.SchemaMarkup = markup
	}
	return nil
}

// fakeGenerator returns canned values per field kind
type fakeGenerator struct {
	mu sync.Mutex

	title       string
	description string
	altText     string

	titleErr   error
	altTextErr error

	calls []string // field names in call order
}

func (g *fakeGenerator) GenerateTitle(ctx context.Context, item *catalog.Item, tone, instructions string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, domain.FieldTitle)
	return g.title, g.titleErr
}

func (g *fakeGenerator) GenerateDescription(ctx context.Context, item *catalog.Item, tone, instructions string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, domain.FieldDescription)
	return g.description, nil
}

func (g *fakeGenerator) GenerateAltText(ctx context.Context, item *catalog.Item, image *catalog.Image, tone, instructions string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, domain.FieldAltText)
	return g.altText, g.altTextErr
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// fakeQuota is a quota guard with a fixed decision
type fakeQuota struct {
	mu sync.Mutex

	decision   Decision
	increments map[CounterKind]int64
}

func newFakeQuota(allowed bool) *fakeQuota {
	return &fakeQuota{
		decision:   Decision{Allowed: allowed},
		increments: make(map[CounterKind]int64),
	}
}

func (q *fakeQuota) Allow(ctx context.Context, tenantID string) Decision {
	return q.decision
}

func (q *fakeQuota) Increment(ctx context.Context, tenantID string, kind CounterKind, delta int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.increments[kind] += delta
}

func (q *fakeQuota) counted(kind CounterKind) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.increments[kind]
}

// fakeStore is an in-memory job and log store
type fakeStore struct {
	mu sync.Mutex

	jobs    map[string]*domain.Job
	entries []domain.LogEntry
	rules   *domain.ExclusionRules

	claimErr    error
	rulesErr    error
	totalsErr   error
	insertErr   error
	completeErr error
}

func newFakeStore(jobs ...*domain.Job) *fakeStore {
	s := &fakeStore{jobs: make(map[string]*domain.Job)}
	for _, job := range jobs {
		s.jobs[job.JobID] = job
	}
	return s
}

func (s *fakeStore) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return nil, s.claimErr
	}

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if domain.TerminalStatus(job.Status) {
		return nil, domain.ErrJobAlreadyFinished
	}

	job.Status = domain.JobStatusProcessing
	copied := *job
	return &copied, nil
}

func (s *fakeStore) SetJobTotals(ctx context.Context, jobID string, totalItems int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalsErr != nil {
		return s.totalsErr
	}
	if job, ok := s.jobs[jobID]; ok {
		job.TotalItems = totalItems
	}
	return nil
}

func (s *fakeStore) IncrementProcessed(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[jobID]; ok {
		job.ProcessedItems++
	}
	return nil
}

func (s *fakeStore) CompleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completeErr != nil {
		return s.completeErr
	}
	if job, ok := s.jobs[jobID]; ok {
		job.Status = domain.JobStatusCompleted
	}
	return nil
}

func (s *fakeStore) FailJob(ctx context.Context, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[jobID]; ok {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = message
	}
	return nil
}

func (s *fakeStore) GetExclusionRules(ctx context.Context, tenantID string) (*domain.ExclusionRules, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rulesErr != nil {
		return nil, s.rulesErr
	}
	if s.rules == nil {
		return &domain.ExclusionRules{TenantID: tenantID}, nil
	}
	return s.rules, nil
}

func (s *fakeStore) InsertLogEntry(ctx context.Context, entry *domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return s.insertErr
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *fakeStore) ListLoggedItemIDs(ctx context.Context, jobID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{})
	for _, entry := range s.entries {
		if entry.JobID == jobID {
			ids[entry.ItemID] = struct{}{}
		}
	}
	return ids, nil
}

func (s *fakeStore) job(jobID string) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

func (s *fakeStore) loggedEntries() []domain.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LogEntry(nil), s.entries...)
}
