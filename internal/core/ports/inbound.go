package ports

import (
	"context"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

// JobControl is the inbound contract for starting, canceling and observing
// jobs.
type JobControl interface {
	Start(ctx context.Context, accountID string, kind domain.JobKind, importCfg *domain.ImportConfig) (*domain.Job, error)
	// Cancel resolves either a job id or an (account id, kind) pair; canceling
	// an already-terminal job is a successful no-op.
	CancelByJobID(ctx context.Context, jobID string) error
	CancelByAccount(ctx context.Context, accountID string, kind domain.JobKind) error
	Progress(ctx context.Context, accountID string, kind domain.JobKind) (domain.ProgressSnapshot, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	// ForceTerminate drops a stuck cache entry without touching the ledger.
	// Operator-only escape hatch.
	ForceTerminate(ctx context.Context, accountID string) error
}

// JobRunner executes one dispatched job to completion.
type JobRunner interface {
	Run(ctx context.Context, dispatch domain.JobDispatch) error
}
