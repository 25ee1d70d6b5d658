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

// ImportSettings tunes the pagination and backoff behavior of an import run.
type ImportSettings struct {
	PageSize               int
	DefaultDaysBack        int
	ProgressInterval       int
	RateLimitInitialDelay  time.Duration
	RateLimitMaxAttempts   int
	UnknownTotalPageFactor int
}

func (s ImportSettings) normalize() ImportSettings {
	out := s
	if out.PageSize <= 0 {
		out.PageSize = 30
	}
	if out.DefaultDaysBack <= 0 {
		out.DefaultDaysBack = 30
	}
	if out.ProgressInterval <= 0 {
		out.ProgressInterval = 3
	}
	if out.RateLimitInitialDelay <= 0 {
		out.RateLimitInitialDelay = 2 * time.Second
	}
	if out.RateLimitMaxAttempts <= 0 {
		out.RateLimitMaxAttempts = 5
	}
	if out.UnknownTotalPageFactor <= 0 {
		out.UnknownTotalPageFactor = 10
	}
	return out
}

// retryHinter is implemented by rate-limit errors that carry a server hint.
type retryHinter interface {
	RetryHint() time.Duration
}

// ImportTicketsUseCase drains the remote ticket source into the ticket store
// for one account, advancing the ledger and progress cache as it goes.
type ImportTicketsUseCase struct {
	jobs    ports.JobStore
	tickets ports.TicketStore
	source  ports.TicketSource
	tracker ports.ProgressTracker
	instr   ports.WorkerInstrumentation
	cfg     ImportSettings

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewImportTicketsUseCase(
	jobs ports.JobStore,
	tickets ports.TicketStore,
	source ports.TicketSource,
	tracker ports.ProgressTracker,
	instr ports.WorkerInstrumentation,
	cfg ImportSettings,
) *ImportTicketsUseCase {
	return &ImportTicketsUseCase{
		jobs:    jobs,
		tickets: tickets,
		source:  source,
		tracker: tracker,
		instr:   instr,
		cfg:     cfg.normalize(),
		sleep:   sleepCtx,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ImportTicketsUseCase) Run(ctx context.Context, dispatch domain.JobDispatch) error {
	importCfg := dispatch.Import
	if importCfg == nil {
		importCfg = &domain.ImportConfig{}
	}
	daysBack := importCfg.DaysBack
	if daysBack <= 0 {
		daysBack = uc.cfg.DefaultDaysBack
	}
	since := uc.now().AddDate(0, 0, -daysBack)

	accumulated, fatal := uc.paginate(ctx, dispatch, importCfg, since)
	if fatal != nil {
		// Nothing was fetched at all: the run failed outright.
		if err := uc.jobs.MarkFailed(ctx, dispatch.JobID, fatal.Error()); err != nil {
			slog.Error("import_mark_failed", "job_id", dispatch.JobID, "error", err)
		}
		uc.recordSnapshot(dispatch, 0, 0, true, fatal.Error())
		return fatal
	}

	imported := uc.enrichAndPersist(ctx, dispatch, accumulated)

	if job, err := uc.jobs.GetByID(ctx, dispatch.JobID); err == nil {
		if job.Status == domain.JobStatusCanceled || job.Status == domain.JobStatusFailed {
			// Canceled mid-run: the terminal status is already in the ledger
			// and the persisted tickets stay as they are.
			return nil
		}
	}

	total := len(accumulated)
	if _, err := uc.jobs.UpdateProgress(ctx, dispatch.JobID, imported, total, domain.JobStatusCompleted); err != nil {
		return fmt.Errorf("final import ledger update: %w", err)
	}
	uc.instr.AddTicketsImported(imported)
	uc.recordSnapshot(dispatch, imported, total, true, "")
	slog.Info("import_completed",
		"job_id", dispatch.JobID,
		"account_id", dispatch.AccountID,
		"imported", imported,
		"accumulated", total,
	)
	return nil
}

// paginate walks the remote pages and returns the filtered accumulator. A
// non-nil fatal error is only returned when no page at all was processed; a
// later failure ends pagination gracefully with what has been collected.
func (uc *ImportTicketsUseCase) paginate(
	ctx context.Context,
	dispatch domain.JobDispatch,
	importCfg *domain.ImportConfig,
	since time.Time,
) ([]domain.Ticket, error) {
	var accumulated []domain.Ticket
	cursor := ""
	pagesFetched := 0
	totalKnown := false
	estimatedTotal := uc.cfg.PageSize * uc.cfg.UnknownTotalPageFactor

	if _, err := uc.jobs.UpdateProgress(ctx, dispatch.JobID, 0, 0, domain.JobStatusRunning); err != nil {
		return nil, fmt.Errorf("mark import running: %w", err)
	}
	uc.recordSnapshot(dispatch, 0, 0, false, "")

	for {
		if uc.stopRequested(ctx, dispatch.JobID) {
			return accumulated, nil
		}

		page, err := uc.fetchPage(ctx, dispatch.AccountID, cursor, since)
		if err != nil {
			uc.instr.ObservePage("error")
			if pagesFetched == 0 {
				return nil, domain.WrapError(domain.ErrRemoteFatal, "fetch first page", err)
			}
			// Partial import is preferred over a failed one.
			slog.Warn("import_page_failed", "job_id", dispatch.JobID, "cursor", cursor, "error", err)
			return accumulated, nil
		}
		uc.instr.ObservePage("ok")
		pagesFetched++

		if !totalKnown && page.ReportedTotal > 0 {
			estimatedTotal = page.ReportedTotal
			totalKnown = true
		}
		accumulated = append(accumulated, uc.filterTickets(page.Tickets, importCfg)...)

		if pagesFetched%uc.cfg.ProgressInterval == 0 {
			uc.recordPaginationProgress(dispatch, len(accumulated), estimatedTotal)
		}

		if page.NextCursor == "" {
			break
		}
		// A remote that hands back the cursor it was just asked for would
		// re-serve the same page forever.
		if page.NextCursor == cursor {
			slog.Warn("import_cursor_loop_detected", "job_id", dispatch.JobID, "cursor", cursor)
			break
		}
		cursor = page.NextCursor
	}

	uc.recordPaginationProgress(dispatch, len(accumulated), estimatedTotal)
	return accumulated, nil
}

// fetchPage retries a rate-limited page with the server hint when present,
// otherwise a doubling delay, up to the configured attempt bound. Any other
// error is returned as-is.
func (uc *ImportTicketsUseCase) fetchPage(ctx context.Context, accountID, cursor string, since time.Time) (*ports.TicketPage, error) {
	delay := uc.cfg.RateLimitInitialDelay

	for attempt := 1; ; attempt++ {
		page, err := uc.source.ListPage(ctx, accountID, cursor, since)
		if err == nil {
			return page, nil
		}
		if !domain.IsKind(err, domain.ErrRateLimited) {
			return nil, err
		}
		if attempt >= uc.cfg.RateLimitMaxAttempts {
			return nil, domain.WrapError(domain.ErrRemoteFatal, "rate limit retries exhausted", err)
		}

		wait := delay
		var hinted retryHinter
		if errors.As(err, &hinted) && hinted.RetryHint() > 0 {
			wait = hinted.RetryHint()
		}
		uc.instr.ObserveRateLimitWait()
		slog.Warn("import_rate_limited",
			"account_id", accountID,
			"cursor", cursor,
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
		)
		if err := uc.sleep(ctx, wait); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func (uc *ImportTicketsUseCase) filterTickets(tickets []domain.Ticket, importCfg *domain.ImportConfig) []domain.Ticket {
	statusAllowed := toLowerSet(importCfg.StatusFilter)
	groupAllowed := toLowerSet(importCfg.GroupFilter)

	var kept []domain.Ticket
	for _, ticket := range tickets {
		if len(statusAllowed) > 0 {
			if _, ok := statusAllowed[strings.ToLower(string(ticket.Status))]; !ok {
				continue
			}
		}
		if len(groupAllowed) > 0 {
			if _, ok := groupAllowed[strings.ToLower(ticket.Group)]; !ok {
				continue
			}
		}
		kept = append(kept, ticket)
	}
	return kept
}

// enrichAndPersist fetches auxiliary detail for every accumulated ticket and
// upserts it. One ticket's enrichment failure is logged and the ticket is
// persisted with partial data; the batch never aborts.
func (uc *ImportTicketsUseCase) enrichAndPersist(ctx context.Context, dispatch domain.JobDispatch, accumulated []domain.Ticket) int {
	imported := 0
	total := len(accumulated)

	for i := range accumulated {
		if uc.stopRequested(ctx, dispatch.JobID) {
			return imported
		}
		ticket := accumulated[i]

		detail, err := uc.source.GetDetail(ctx, dispatch.AccountID, ticket.ExternalID)
		if err != nil {
			slog.Warn("import_enrichment_failed",
				"job_id", dispatch.JobID,
				"external_id", ticket.ExternalID,
				"error", err,
			)
		} else {
			ticket.Conversation = detail.Conversation
			if detail.Group != "" {
				ticket.Group = detail.Group
			}
			ticket.Requester = detail.Requester
			ticket.Assignee = detail.Assignee
		}

		if err := uc.persistTicket(ctx, dispatch.AccountID, &ticket); err != nil {
			slog.Error("import_persist_failed",
				"job_id", dispatch.JobID,
				"external_id", ticket.ExternalID,
				"error", err,
			)
			continue
		}
		imported++

		if imported%uc.cfg.ProgressInterval == 0 {
			if _, err := uc.jobs.UpdateProgress(ctx, dispatch.JobID, imported, total, domain.JobStatusRunning); err != nil {
				slog.Error("import_progress_update", "job_id", dispatch.JobID, "error", err)
			}
			uc.recordSnapshot(dispatch, imported, total, imported == total, "")
		}
	}
	return imported
}

func (uc *ImportTicketsUseCase) persistTicket(ctx context.Context, accountID string, ticket *domain.Ticket) error {
	existing, err := uc.tickets.GetByExternalID(ctx, accountID, ticket.ExternalID)
	if err != nil {
		return fmt.Errorf("check existing ticket: %w", err)
	}
	if existing != nil {
		ticket.ID = existing.ID
		ticket.ImportedAt = existing.ImportedAt
	} else {
		ticket.ID = uuid.NewString()
		ticket.ImportedAt = uc.now()
	}
	if err := uc.tickets.Upsert(ctx, ticket); err != nil {
		return fmt.Errorf("upsert ticket: %w", err)
	}
	return nil
}

// recordPaginationProgress feeds the cache only. The accumulation count and
// the persisted-unit count the ledger tracks are different scales; writing
// both into one monotonic counter would let pagination outrun persistence.
// The percentage stays under 100 while the total is still an estimate.
func (uc *ImportTicketsUseCase) recordPaginationProgress(dispatch domain.JobDispatch, current, estimatedTotal int) {
	total := estimatedTotal
	if current >= total {
		total = current + uc.cfg.PageSize
	}
	uc.recordSnapshot(dispatch, current, total, false, "")
}

// stopRequested is the cooperative cancellation check performed at every
// unit boundary.
func (uc *ImportTicketsUseCase) stopRequested(ctx context.Context, jobID string) bool {
	if ctx.Err() != nil {
		return true
	}
	active, err := uc.jobs.IsActive(ctx, jobID)
	if err != nil {
		slog.Error("import_active_check", "job_id", jobID, "error", err)
		return false
	}
	return !active
}

func (uc *ImportTicketsUseCase) recordSnapshot(dispatch domain.JobDispatch, current, total int, completed bool, errMessage string) {
	uc.tracker.Record(dispatch.AccountID, domain.ProgressSnapshot{
		JobID:       dispatch.JobID,
		AccountID:   dispatch.AccountID,
		Kind:        domain.JobKindImport,
		Current:     current,
		Total:       total,
		Percentage:  domain.ComputePercentage(current, total),
		IsCompleted: completed,
		Error:       errMessage,
	})
}

func toLowerSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
