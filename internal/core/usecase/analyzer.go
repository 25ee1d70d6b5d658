package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
	"github.com/maksimrudenko/ticket-triage/internal/core/ports"
)

// AnalysisSettings tunes the analysis run.
type AnalysisSettings struct {
	// MaxSuggestionsPerTicket bounds the secondary suggestion pass when the
	// account already curates an allow-list. Zero means the default.
	MaxSuggestionsPerTicket int
}

func (s AnalysisSettings) normalize() AnalysisSettings {
	out := s
	if out.MaxSuggestionsPerTicket <= 0 {
		out.MaxSuggestionsPerTicket = 3
	}
	return out
}

// AnalyzeTicketsUseCase classifies every not-yet-analyzed ticket of one
// account, reconciling proposed tags against the account allow-list.
type AnalyzeTicketsUseCase struct {
	jobs        ports.JobStore
	tickets     ports.TicketStore
	analyses    ports.AnalysisStore
	suggestions ports.SuggestionStore
	accounts    ports.AccountStore
	classifier  ports.TicketClassifier
	tracker     ports.ProgressTracker
	instr       ports.WorkerInstrumentation
	cfg         AnalysisSettings

	now func() time.Time
}

func NewAnalyzeTicketsUseCase(
	jobs ports.JobStore,
	tickets ports.TicketStore,
	analyses ports.AnalysisStore,
	suggestions ports.SuggestionStore,
	accounts ports.AccountStore,
	classifier ports.TicketClassifier,
	tracker ports.ProgressTracker,
	instr ports.WorkerInstrumentation,
	cfg AnalysisSettings,
) *AnalyzeTicketsUseCase {
	return &AnalyzeTicketsUseCase{
		jobs:        jobs,
		tickets:     tickets,
		analyses:    analyses,
		suggestions: suggestions,
		accounts:    accounts,
		classifier:  classifier,
		tracker:     tracker,
		instr:       instr,
		cfg:         cfg.normalize(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (uc *AnalyzeTicketsUseCase) Run(ctx context.Context, dispatch domain.JobDispatch) error {
	// Control-loop failures (allow-list, enumeration) fail the whole job;
	// anything per ticket is recorded on the ticket and never stops the run.
	pending, allowed, err := uc.prepare(ctx, dispatch)
	if err != nil {
		if failErr := uc.jobs.MarkFailed(ctx, dispatch.JobID, err.Error()); failErr != nil {
			slog.Error("analysis_mark_failed", "job_id", dispatch.JobID, "error", failErr)
		}
		uc.recordSnapshot(dispatch, 0, 0, true, err.Error())
		return err
	}

	total := len(pending)
	if total == 0 {
		// Nothing to analyze is a successful run, not a failure.
		if _, err := uc.jobs.UpdateProgress(ctx, dispatch.JobID, 0, 0, domain.JobStatusCompleted); err != nil {
			return fmt.Errorf("complete empty analysis: %w", err)
		}
		uc.recordSnapshot(dispatch, 0, 0, true, "")
		return nil
	}

	if _, err := uc.jobs.UpdateProgress(ctx, dispatch.JobID, 0, total, domain.JobStatusRunning); err != nil {
		return fmt.Errorf("mark analysis running: %w", err)
	}
	uc.recordSnapshot(dispatch, 0, total, false, "")

	allowedSet := toLowerSet(allowed)

	for i, ticketID := range pending {
		if uc.stopRequested(ctx, dispatch.JobID) {
			return nil
		}

		if err := uc.analyzeTicket(ctx, dispatch, ticketID, allowed, allowedSet); err != nil {
			uc.instr.ObserveAnalyzed("error")
			slog.Warn("analysis_ticket_failed",
				"job_id", dispatch.JobID,
				"ticket_id", ticketID,
				"error", err,
			)
		} else {
			uc.instr.ObserveAnalyzed("ok")
		}

		// One unit per ticket, advanced on success and failure alike. The
		// ledger flips to completed by itself on the last unit.
		done := i + 1
		if _, err := uc.jobs.UpdateProgress(ctx, dispatch.JobID, done, total, domain.JobStatusRunning); err != nil {
			slog.Error("analysis_progress_update", "job_id", dispatch.JobID, "error", err)
		}
		uc.recordSnapshot(dispatch, done, total, done == total, "")
	}

	slog.Info("analysis_completed",
		"job_id", dispatch.JobID,
		"account_id", dispatch.AccountID,
		"processed", total,
	)
	return nil
}

func (uc *AnalyzeTicketsUseCase) prepare(ctx context.Context, dispatch domain.JobDispatch) (pending []string, allowed []string, err error) {
	// The allow-list is read once and used for the whole run; suggestions are
	// reconciled against it again at acceptance time, not creation time.
	allowed, err = uc.accounts.AllowedTags(ctx, dispatch.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch allowed tags: %w", err)
	}

	allIDs, err := uc.tickets.ListIDs(ctx, dispatch.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate tickets: %w", err)
	}
	analyzedIDs, err := uc.analyses.ListAnalyzedTicketIDs(ctx, dispatch.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate analyzed tickets: %w", err)
	}

	analyzed := make(map[string]struct{}, len(analyzedIDs))
	for _, id := range analyzedIDs {
		analyzed[id] = struct{}{}
	}
	for _, id := range allIDs {
		if _, ok := analyzed[id]; !ok {
			pending = append(pending, id)
		}
	}
	return pending, allowed, nil
}

func (uc *AnalyzeTicketsUseCase) analyzeTicket(
	ctx context.Context,
	dispatch domain.JobDispatch,
	ticketID string,
	allowed []string,
	allowedSet map[string]struct{},
) error {
	ticket, err := uc.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return uc.recordFailure(ctx, dispatch, ticketID, fmt.Errorf("load ticket: %w", err))
	}
	if ticket == nil {
		return uc.recordFailure(ctx, dispatch, ticketID, fmt.Errorf("ticket %s disappeared", ticketID))
	}

	document := buildDocument(ticket)

	cls, err := uc.classifier.Classify(ctx, document, allowed)
	if err != nil {
		return uc.recordFailure(ctx, dispatch, ticketID, err)
	}

	known, proposed := partitionTags(cls.Tags, allowedSet)

	analysis := &domain.TicketAnalysis{
		TicketID:    ticketID,
		AccountID:   dispatch.AccountID,
		Summary:     cls.Summary,
		Description: cls.Description,
		Tags:        cls.Tags,
		CreatedAt:   uc.now(),
	}
	if cls.ProposedNewTag && len(proposed) > 0 {
		// A proposed tag never auto-applies before review: persist only the
		// allow-listed subset and flag the pending review.
		analysis.Tags = known
		analysis.HasProposedNewTags = true
		for _, tag := range proposed {
			uc.suggest(ctx, dispatch.AccountID, ticketID, tag)
		}
	}
	if analysis.Tags == nil {
		analysis.Tags = []string{}
	}

	if err := uc.analyses.Upsert(ctx, analysis); err != nil {
		return fmt.Errorf("persist analysis: %w", err)
	}

	uc.suggestMore(ctx, dispatch.AccountID, ticketID, document, allowed, allowedSet)
	return nil
}

// recordFailure stores a failed outcome for the ticket so the run can keep
// going and the failure count stays recoverable from the results table.
func (uc *AnalyzeTicketsUseCase) recordFailure(ctx context.Context, dispatch domain.JobDispatch, ticketID string, cause error) error {
	analysis := &domain.TicketAnalysis{
		TicketID:  ticketID,
		AccountID: dispatch.AccountID,
		Tags:      []string{},
		Failed:    true,
		Error:     cause.Error(),
		CreatedAt: uc.now(),
	}
	if err := uc.analyses.Upsert(ctx, analysis); err != nil {
		slog.Error("analysis_failure_record", "ticket_id", ticketID, "error", err)
	}
	return cause
}

// suggestMore runs the secondary suggestion pass so the review backlog can
// surface tags even when the primary classification proposed none. Bounded
// when the account curates an allow-list, unconstrained otherwise.
func (uc *AnalyzeTicketsUseCase) suggestMore(ctx context.Context, accountID, ticketID, document string, allowed []string, allowedSet map[string]struct{}) {
	tags, err := uc.classifier.SuggestTags(ctx, document, allowed)
	if err != nil {
		slog.Warn("analysis_suggestion_pass_failed", "ticket_id", ticketID, "error", err)
		return
	}
	if len(tags) == 0 {
		return
	}

	limit := len(tags)
	if len(allowedSet) > 0 {
		// The per-ticket bound counts stored suggestions too, so re-running the
		// pass cannot grow the review backlog past the cap.
		stored, err := uc.suggestions.CountForTicket(ctx, accountID, ticketID)
		if err != nil {
			slog.Warn("analysis_suggestion_count", "ticket_id", ticketID, "error", err)
			stored = 0
		}
		limit = uc.cfg.MaxSuggestionsPerTicket - stored
		if limit <= 0 {
			return
		}
	}

	added := 0
	for _, tag := range tags {
		if added >= limit {
			break
		}
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, exists := allowedSet[strings.ToLower(tag)]; exists {
			continue
		}
		uc.suggest(ctx, accountID, ticketID, tag)
		added++
	}
}

func (uc *AnalyzeTicketsUseCase) suggest(ctx context.Context, accountID, ticketID, tag string) {
	suggestion := &domain.TagSuggestion{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TicketID:  ticketID,
		Tag:       tag,
		Status:    domain.SuggestionStatusPending,
		CreatedAt: uc.now(),
	}
	if err := uc.suggestions.UpsertPending(ctx, suggestion); err != nil {
		slog.Error("analysis_suggestion_persist", "ticket_id", ticketID, "tag", tag, "error", err)
	}
}

func (uc *AnalyzeTicketsUseCase) stopRequested(ctx context.Context, jobID string) bool {
	if ctx.Err() != nil {
		return true
	}
	active, err := uc.jobs.IsActive(ctx, jobID)
	if err != nil {
		slog.Error("analysis_active_check", "job_id", jobID, "error", err)
		return false
	}
	return !active
}

func (uc *AnalyzeTicketsUseCase) recordSnapshot(dispatch domain.JobDispatch, current, total int, completed bool, errMessage string) {
	uc.tracker.Record(dispatch.AccountID, domain.ProgressSnapshot{
		JobID:       dispatch.JobID,
		AccountID:   dispatch.AccountID,
		Kind:        domain.JobKindAnalysis,
		Current:     current,
		Total:       total,
		Percentage:  domain.ComputePercentage(current, total),
		IsCompleted: completed,
		Error:       errMessage,
	})
}

// buildDocument prefers the full conversation thread; a thread-less ticket
// falls back to subject plus description.
func buildDocument(ticket *domain.Ticket) string {
	var b strings.Builder
	b.WriteString(ticket.Subject)
	b.WriteString("\n\n")
	if len(ticket.Conversation) > 0 {
		for _, entry := range ticket.Conversation {
			b.WriteString(entry.Author)
			b.WriteString(": ")
			b.WriteString(entry.Body)
			b.WriteString("\n")
		}
	} else {
		b.WriteString(ticket.Description)
	}
	return b.String()
}

func partitionTags(tags []string, allowedSet map[string]struct{}) (known, proposed []string) {
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := allowedSet[strings.ToLower(tag)]; ok {
			known = append(known, tag)
		} else {
			proposed = append(proposed, tag)
		}
	}
	return known, proposed
}
