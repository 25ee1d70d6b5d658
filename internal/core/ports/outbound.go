package ports

import (
	"context"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

// JobStore is the durable job ledger, the sole cross-process source of truth
// for job state.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	// UpdateProgress is monotonic: an update whose current unit is below the
	// stored value is dropped and reported as false, not an error.
	UpdateProgress(ctx context.Context, id string, current, total int, status domain.JobStatus) (bool, error)
	MarkFailed(ctx context.Context, id string, errMessage string) error
	MarkCanceled(ctx context.Context, id string) error
	// FindActive returns the pending or running job for an account and kind,
	// or nil when there is none.
	FindActive(ctx context.Context, accountID string, kind domain.JobKind) (*domain.Job, error)
	// IsActive is the cooperative-cancellation predicate checked by workers
	// at every unit boundary.
	IsActive(ctx context.Context, id string) (bool, error)
}

// TicketStore persists imported tickets keyed by (external id, account id).
type TicketStore interface {
	Upsert(ctx context.Context, ticket *domain.Ticket) error
	GetByExternalID(ctx context.Context, accountID, externalID string) (*domain.Ticket, error)
	ListIDs(ctx context.Context, accountID string) ([]string, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
}

// AnalysisStore persists one reconciled analysis per ticket.
type AnalysisStore interface {
	Upsert(ctx context.Context, analysis *domain.TicketAnalysis) error
	ListAnalyzedTicketIDs(ctx context.Context, accountID string) ([]string, error)
}

// SuggestionStore persists proposed tags awaiting review, unique per
// (account, ticket, tag).
type SuggestionStore interface {
	UpsertPending(ctx context.Context, suggestion *domain.TagSuggestion) error
	CountForTicket(ctx context.Context, accountID, ticketID string) (int, error)
}

// AccountStore reads account settings; the tag allow-list is read once at
// the start of an analysis run.
type AccountStore interface {
	AllowedTags(ctx context.Context, accountID string) ([]string, error)
}

// TicketClassifier is the generative classification service.
type TicketClassifier interface {
	Classify(ctx context.Context, text string, allowedTags []string) (domain.TicketClassification, error)
	SuggestTags(ctx context.Context, text string, allowedTags []string) ([]string, error)
}

// TicketPage is one page from the remote ticket source.
type TicketPage struct {
	Tickets       []domain.Ticket
	NextCursor    string
	ReportedTotal int
}

// TicketDetail carries the auxiliary data fetched per ticket during the
// enrichment pass.
type TicketDetail struct {
	Conversation []domain.ConversationEntry
	Group        string
	Requester    string
	Assignee     string
}

// TicketSource is the paginated remote helpdesk. Page responses surface rate
// limiting as domain.ErrRateLimited (with an optional retry hint) and
// non-recoverable failures as domain.ErrRemoteFatal.
type TicketSource interface {
	ListPage(ctx context.Context, accountID, cursor string, since time.Time) (*TicketPage, error)
	GetDetail(ctx context.Context, accountID, externalID string) (*TicketDetail, error)
}

// ProgressTracker is the fast, process-local progress view plus the broadcast
// fan-out behind it. Read never fails: a missing entry yields a synthetic
// completed snapshot and live=false.
type ProgressTracker interface {
	Record(accountID string, snapshot domain.ProgressSnapshot)
	Read(accountID string, kind domain.JobKind) (snapshot domain.ProgressSnapshot, live bool)
	Remove(accountID string)
}

// WorkerInstrumentation receives job pipeline measurements. The worker binary
// wires prometheus here; tests use a no-op.
type WorkerInstrumentation interface {
	StartJob()
	FinishJob(kind, status string, duration time.Duration)
	ObservePage(outcome string)
	ObserveRateLimitWait()
	AddTicketsImported(n int)
	ObserveAnalyzed(outcome string)
}

// JobQueue hands dispatches from the Job Control API to the worker process.
type JobQueue interface {
	PublishJobDispatch(ctx context.Context, dispatch domain.JobDispatch) error
	SubscribeJobDispatch(ctx context.Context, handler func(context.Context, domain.JobDispatch) error) error
}
