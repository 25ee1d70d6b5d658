package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
	"github.com/maksimrudenko/ticket-triage/internal/core/ports"
)

// JobControlUseCase creates ledger rows, hands jobs to the runner via the
// queue, and answers progress reads with cache/ledger reconciliation.
type JobControlUseCase struct {
	jobs    ports.JobStore
	queue   ports.JobQueue
	tracker ports.ProgressTracker
}

func NewJobControlUseCase(
	jobs ports.JobStore,
	queue ports.JobQueue,
	tracker ports.ProgressTracker,
) *JobControlUseCase {
	return &JobControlUseCase{
		jobs:    jobs,
		queue:   queue,
		tracker: tracker,
	}
}

func (uc *JobControlUseCase) Start(ctx context.Context, accountID string, kind domain.JobKind, importCfg *domain.ImportConfig) (*domain.Job, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start job", errors.New("account id is required"))
	}
	if kind != domain.JobKindImport && kind != domain.JobKindAnalysis {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start job", fmt.Errorf("unknown job kind %q", kind))
	}

	active, err := uc.jobs.FindActive(ctx, accountID, kind)
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	if active != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start job",
			fmt.Errorf("%s job %s is already active for this account", kind, active.ID))
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      kind,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	dispatch := domain.JobDispatch{
		JobID:     job.ID,
		AccountID: accountID,
		Kind:      kind,
		Import:    importCfg,
	}
	if err := uc.queue.PublishJobDispatch(ctx, dispatch); err != nil {
		// No worker will ever pick the job up; fail it so it does not sit
		// pending forever.
		if failErr := uc.jobs.MarkFailed(ctx, job.ID, "dispatch failed: "+err.Error()); failErr != nil {
			slog.Error("job_dispatch_mark_failed", "job_id", job.ID, "error", failErr)
		}
		return nil, fmt.Errorf("dispatch job: %w", err)
	}

	uc.tracker.Record(accountID, domain.ProgressSnapshot{
		JobID:     job.ID,
		AccountID: accountID,
		Kind:      kind,
	})
	return job, nil
}

// CancelByJobID is cooperative and idempotent: a terminal job is left alone
// and reported as success, a live one is marked canceled in the ledger and
// its cache entry dropped. The running worker notices at its next unit
// boundary.
func (uc *JobControlUseCase) CancelByJobID(ctx context.Context, jobID string) error {
	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if err := uc.jobs.MarkCanceled(ctx, jobID); err != nil {
		return fmt.Errorf("mark canceled: %w", err)
	}
	uc.tracker.Remove(job.AccountID)
	return nil
}

func (uc *JobControlUseCase) CancelByAccount(ctx context.Context, accountID string, kind domain.JobKind) error {
	active, err := uc.jobs.FindActive(ctx, accountID, kind)
	if err != nil {
		return fmt.Errorf("find active job: %w", err)
	}
	if active == nil {
		return nil
	}
	return uc.CancelByJobID(ctx, active.ID)
}

// Progress serves the polling read path. The cache is the fast view; the
// ledger is authoritative, so a miss falls back to the ledger and a stale
// running entry is corrected once the ledger shows no active job.
func (uc *JobControlUseCase) Progress(ctx context.Context, accountID string, kind domain.JobKind) (domain.ProgressSnapshot, error) {
	snapshot, live := uc.tracker.Read(accountID, kind)
	if !live {
		active, err := uc.jobs.FindActive(ctx, accountID, kind)
		if err != nil {
			return domain.ProgressSnapshot{}, fmt.Errorf("find active job: %w", err)
		}
		if active == nil {
			return snapshot, nil
		}
		fromLedger := snapshotFromJob(active)
		uc.tracker.Record(accountID, fromLedger)
		return fromLedger, nil
	}

	if !snapshot.IsCompleted {
		active, err := uc.jobs.FindActive(ctx, accountID, kind)
		if err != nil {
			return domain.ProgressSnapshot{}, fmt.Errorf("find active job: %w", err)
		}
		if active == nil {
			snapshot.IsCompleted = true
			uc.tracker.Record(accountID, snapshot)
		}
	}
	return snapshot, nil
}

func (uc *JobControlUseCase) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return uc.jobs.GetByID(ctx, jobID)
}

// ForceTerminate drops the cache entry without touching the ledger. Operator
// escape hatch for a stuck snapshot, not part of the normal lifecycle.
func (uc *JobControlUseCase) ForceTerminate(_ context.Context, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "force terminate", errors.New("account id is required"))
	}
	uc.tracker.Remove(accountID)
	return nil
}

func snapshotFromJob(job *domain.Job) domain.ProgressSnapshot {
	return domain.ProgressSnapshot{
		JobID:       job.ID,
		AccountID:   job.AccountID,
		Kind:        job.Kind,
		Current:     job.CurrentUnit,
		Total:       job.TotalUnits,
		Percentage:  job.Percentage,
		IsCompleted: job.Status.IsTerminal(),
		Error:       job.Error,
	}
}
