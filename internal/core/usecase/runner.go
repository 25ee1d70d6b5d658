package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
	"github.com/maksimrudenko/ticket-triage/internal/core/ports"
)

// JobRunnerUseCase routes a dispatch to the matching worker and records
// job-level instrumentation around the run.
type JobRunnerUseCase struct {
	importer ports.JobRunner
	analyzer ports.JobRunner
	jobs     ports.JobStore
	instr    ports.WorkerInstrumentation
}

func NewJobRunnerUseCase(
	importer ports.JobRunner,
	analyzer ports.JobRunner,
	jobs ports.JobStore,
	instr ports.WorkerInstrumentation,
) *JobRunnerUseCase {
	return &JobRunnerUseCase{
		importer: importer,
		analyzer: analyzer,
		jobs:     jobs,
		instr:    instr,
	}
}

func (uc *JobRunnerUseCase) Run(ctx context.Context, dispatch domain.JobDispatch) error {
	var runner ports.JobRunner
	switch dispatch.Kind {
	case domain.JobKindImport:
		runner = uc.importer
	case domain.JobKindAnalysis:
		runner = uc.analyzer
	default:
		err := fmt.Errorf("unknown job kind %q", dispatch.Kind)
		if markErr := uc.jobs.MarkFailed(ctx, dispatch.JobID, err.Error()); markErr != nil {
			slog.Error("runner_mark_failed", "job_id", dispatch.JobID, "error", markErr)
		}
		return domain.WrapError(domain.ErrInvalidInput, "run job", err)
	}

	uc.instr.StartJob()
	start := time.Now()
	runErr := runner.Run(ctx, dispatch)

	// Bookkeeping must survive a canceled run context.
	bookCtx := context.WithoutCancel(ctx)
	status := string(domain.JobStatusFailed)
	if job, err := uc.jobs.GetByID(bookCtx, dispatch.JobID); err == nil {
		status = string(job.Status)
		if ctx.Err() != nil && !job.Status.IsTerminal() {
			// An interrupted run leaves the ledger row open, which would pin
			// the duplicate-start guard forever. Close it out.
			msg := "run interrupted: " + ctx.Err().Error()
			if markErr := uc.jobs.MarkFailed(bookCtx, dispatch.JobID, msg); markErr != nil {
				slog.Error("runner_mark_interrupted", "job_id", dispatch.JobID, "error", markErr)
			} else {
				status = string(domain.JobStatusFailed)
			}
		}
	}
	uc.instr.FinishJob(string(dispatch.Kind), status, time.Since(start))
	return runErr
}

// NopInstrumentation satisfies the instrumentation port where no metrics
// backend is wired.
type NopInstrumentation struct{}

func (NopInstrumentation) StartJob()                               {}
func (NopInstrumentation) FinishJob(string, string, time.Duration) {}
func (NopInstrumentation) ObservePage(string)                      {}
func (NopInstrumentation) ObserveRateLimitWait()                   {}
func (NopInstrumentation) AddTicketsImported(int)                  {}
func (NopInstrumentation) ObserveAnalyzed(string)                  {}
