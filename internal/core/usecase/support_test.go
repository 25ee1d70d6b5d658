package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
	"github.com/maksimrudenko/ticket-triage/internal/core/ports"
)

// memoryJobStore mirrors the ledger semantics the postgres repository
// enforces: monotonic progress, one-way terminal states, auto-completion.
type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	findActiveErr error
}

func newMemoryJobStore(jobs ...*domain.Job) *memoryJobStore {
	s := &memoryJobStore{jobs: make(map[string]*domain.Job)}
	for _, job := range jobs {
		copied := *job
		s.jobs[job.ID] = &copied
	}
	return s
}

func (s *memoryJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *memoryJobStore) GetByID(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memoryJobStore) UpdateProgress(_ context.Context, id string, current, total int, status domain.JobStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() || current < job.CurrentUnit {
		return false, nil
	}
	job.CurrentUnit = current
	job.TotalUnits = total
	job.Status = status
	if current >= total && total > 0 {
		job.Status = domain.JobStatusCompleted
	}
	job.Percentage = domain.ComputePercentage(current, total)
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *memoryJobStore) MarkFailed(_ context.Context, id string, errMessage string) error {
	return s.markTerminal(id, domain.JobStatusFailed, errMessage)
}

func (s *memoryJobStore) MarkCanceled(_ context.Context, id string) error {
	return s.markTerminal(id, domain.JobStatusCanceled, "")
}

func (s *memoryJobStore) markTerminal(id string, status domain.JobStatus, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return nil
	}
	job.Status = status
	job.Error = errMessage
	return nil
}

func (s *memoryJobStore) FindActive(_ context.Context, accountID string, kind domain.JobKind) (*domain.Job, error) {
	if s.findActiveErr != nil {
		return nil, s.findActiveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.AccountID == accountID && job.Kind == kind && !job.Status.IsTerminal() {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryJobStore) IsActive(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	return !job.Status.IsTerminal(), nil
}

func (s *memoryJobStore) status(id string) domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Status
}

// memoryTicketStore keeps tickets keyed by internal id.
type memoryTicketStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	upserts int

	upsertErr error
}

func newMemoryTicketStore(tickets ...*domain.Ticket) *memoryTicketStore {
	s := &memoryTicketStore{tickets: make(map[string]*domain.Ticket)}
	for _, ticket := range tickets {
		copied := *ticket
		s.tickets[ticket.ID] = &copied
	}
	return s
}

func (s *memoryTicketStore) Upsert(_ context.Context, ticket *domain.Ticket) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ticket
	s.tickets[ticket.ID] = &copied
	s.upserts++
	return nil
}

func (s *memoryTicketStore) GetByExternalID(_ context.Context, accountID, externalID string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range s.tickets {
		if ticket.AccountID == accountID && ticket.ExternalID == externalID {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryTicketStore) ListIDs(_ context.Context, accountID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, ticket := range s.tickets {
		if ticket.AccountID == accountID {
			ids = append(ids, ticket.ID)
		}
	}
	return ids, nil
}

func (s *memoryTicketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, nil
	}
	copied := *ticket
	return &copied, nil
}

type memoryAnalysisStore struct {
	mu       sync.Mutex
	analyses map[string]*domain.TicketAnalysis
	analyzed []string
}

func newMemoryAnalysisStore(analyzedIDs ...string) *memoryAnalysisStore {
	return &memoryAnalysisStore{
		analyses: make(map[string]*domain.TicketAnalysis),
		analyzed: analyzedIDs,
	}
}

func (s *memoryAnalysisStore) Upsert(_ context.Context, analysis *domain.TicketAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *analysis
	s.analyses[analysis.TicketID] = &copied
	return nil
}

func (s *memoryAnalysisStore) ListAnalyzedTicketIDs(_ context.Context, _ string) ([]string, error) {
	return s.analyzed, nil
}

func (s *memoryAnalysisStore) get(ticketID string) *domain.TicketAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyses[ticketID]
}

type memorySuggestionStore struct {
	mu          sync.Mutex
	suggestions []*domain.TagSuggestion
}

func (s *memorySuggestionStore) UpsertPending(_ context.Context, suggestion *domain.TagSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.suggestions {
		if existing.AccountID == suggestion.AccountID &&
			existing.TicketID == suggestion.TicketID &&
			existing.Tag == suggestion.Tag {
			return nil
		}
	}
	copied := *suggestion
	s.suggestions = append(s.suggestions, &copied)
	return nil
}

func (s *memorySuggestionStore) CountForTicket(_ context.Context, accountID, ticketID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, suggestion := range s.suggestions {
		if suggestion.AccountID == accountID && suggestion.TicketID == ticketID {
			count++
		}
	}
	return count, nil
}

type fakeAccountStore struct {
	allowed []string
	err     error
}

func (s *fakeAccountStore) AllowedTags(_ context.Context, _ string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.allowed, nil
}

type fakeClassifier struct {
	classification domain.TicketClassification
	classifyErr    error
	failFirst      error
	suggested      []string
	suggestErr     error

	classifyCalls int
	documents     []string
}

func (c *fakeClassifier) Classify(_ context.Context, text string, _ []string) (domain.TicketClassification, error) {
	c.classifyCalls++
	c.documents = append(c.documents, text)
	if c.failFirst != nil && c.classifyCalls == 1 {
		return domain.TicketClassification{}, c.failFirst
	}
	if c.classifyErr != nil {
		return domain.TicketClassification{}, c.classifyErr
	}
	return c.classification, nil
}

func (c *fakeClassifier) SuggestTags(_ context.Context, _ string, _ []string) ([]string, error) {
	if c.suggestErr != nil {
		return nil, c.suggestErr
	}
	return c.suggested, nil
}

type fakeQueue struct {
	published  []domain.JobDispatch
	publishErr error
}

func (q *fakeQueue) PublishJobDispatch(_ context.Context, dispatch domain.JobDispatch) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, dispatch)
	return nil
}

func (q *fakeQueue) SubscribeJobDispatch(context.Context, func(context.Context, domain.JobDispatch) error) error {
	return nil
}

// recordingTracker captures every snapshot so tests can inspect the feed.
type recordingTracker struct {
	mu        sync.Mutex
	snapshots []domain.ProgressSnapshot
	entries   map[string]domain.ProgressSnapshot
	removed   []string
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{entries: make(map[string]domain.ProgressSnapshot)}
}

func (t *recordingTracker) Record(accountID string, snapshot domain.ProgressSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot.AccountID = accountID
	t.snapshots = append(t.snapshots, snapshot)
	t.entries[accountID] = snapshot
}

func (t *recordingTracker) Read(accountID string, kind domain.JobKind) (domain.ProgressSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if snapshot, ok := t.entries[accountID]; ok {
		return snapshot, true
	}
	return domain.NoActiveJobSnapshot(accountID, kind), false
}

func (t *recordingTracker) Remove(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, accountID)
	t.removed = append(t.removed, accountID)
}

func (t *recordingTracker) last() domain.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.snapshots) == 0 {
		return domain.ProgressSnapshot{}
	}
	return t.snapshots[len(t.snapshots)-1]
}

var _ ports.JobStore = (*memoryJobStore)(nil)
var _ ports.TicketStore = (*memoryTicketStore)(nil)
var _ ports.AnalysisStore = (*memoryAnalysisStore)(nil)
var _ ports.SuggestionStore = (*memorySuggestionStore)(nil)
var _ ports.AccountStore = (*fakeAccountStore)(nil)
var _ ports.TicketClassifier = (*fakeClassifier)(nil)
var _ ports.JobQueue = (*fakeQueue)(nil)
var _ ports.ProgressTracker = (*recordingTracker)(nil)
