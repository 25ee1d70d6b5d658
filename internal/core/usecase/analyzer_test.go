package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

type analyzerFixture struct {
	uc          *AnalyzeTicketsUseCase
	jobs        *memoryJobStore
	tickets     *memoryTicketStore
	analyses    *memoryAnalysisStore
	suggestions *memorySuggestionStore
	tracker     *recordingTracker
}

func newAnalyzerFixture(t *testing.T, accounts *fakeAccountStore, classifier *fakeClassifier, tickets ...*domain.Ticket) *analyzerFixture {
	t.Helper()
	f := &analyzerFixture{
		jobs: newMemoryJobStore(&domain.Job{
			ID:        "job-1",
			AccountID: "acct-1",
			Kind:      domain.JobKindAnalysis,
			Status:    domain.JobStatusPending,
		}),
		tickets:     newMemoryTicketStore(tickets...),
		analyses:    newMemoryAnalysisStore(),
		suggestions: &memorySuggestionStore{},
		tracker:     newRecordingTracker(),
	}
	f.uc = NewAnalyzeTicketsUseCase(
		f.jobs, f.tickets, f.analyses, f.suggestions, accounts,
		classifier, f.tracker, NopInstrumentation{}, AnalysisSettings{},
	)
	return f
}

func analysisDispatch() domain.JobDispatch {
	return domain.JobDispatch{JobID: "job-1", AccountID: "acct-1", Kind: domain.JobKindAnalysis}
}

func storedTicket(id, subject string) *domain.Ticket {
	return &domain.Ticket{
		ID:         id,
		ExternalID: "ext-" + id,
		AccountID:  "acct-1",
		Subject:    subject,
		Status:     domain.TicketStatusOpen,
	}
}

func TestAnalysisKeepsProposedTagOutOfApplied(t *testing.T) {
	accounts := &fakeAccountStore{allowed: []string{"billing", "login_issue"}}
	classifier := &fakeClassifier{
		classification: domain.TicketClassification{
			Summary:        "invoice dispute",
			Description:    "customer disputes an invoice line",
			Tags:           []string{"billing", "foo"},
			ProposedNewTag: true,
		},
	}
	f := newAnalyzerFixture(t, accounts, classifier, storedTicket("t-1", "wrong invoice"))

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	analysis := f.analyses.get("t-1")
	if analysis == nil {
		t.Fatalf("expected analysis for t-1")
	}
	if len(analysis.Tags) != 1 || analysis.Tags[0] != "billing" {
		t.Fatalf("only allow-listed tags may apply, got %v", analysis.Tags)
	}
	if !analysis.HasProposedNewTags {
		t.Fatalf("expected proposed-new-tags flag")
	}
	if analysis.Failed {
		t.Fatalf("analysis must not be marked failed: %+v", analysis)
	}

	if len(f.suggestions.suggestions) != 1 {
		t.Fatalf("expected exactly one pending suggestion, got %d", len(f.suggestions.suggestions))
	}
	suggestion := f.suggestions.suggestions[0]
	if suggestion.Tag != "foo" || suggestion.Status != domain.SuggestionStatusPending {
		t.Fatalf("unexpected suggestion: %+v", suggestion)
	}

	if got := f.jobs.status("job-1"); got != domain.JobStatusCompleted {
		t.Fatalf("expected completed job, got %s", got)
	}
	last := f.tracker.last()
	if !last.IsCompleted || last.Current != 1 || last.Total != 1 {
		t.Fatalf("unexpected final snapshot: %+v", last)
	}
}

func TestAnalysisWithoutAllowListAppliesAllTags(t *testing.T) {
	accounts := &fakeAccountStore{allowed: nil}
	classifier := &fakeClassifier{
		classification: domain.TicketClassification{
			Summary: "cannot sign in",
			Tags:    []string{"login_issue"},
		},
	}
	f := newAnalyzerFixture(t, accounts, classifier, storedTicket("t-1", "login broken"))

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	analysis := f.analyses.get("t-1")
	if analysis == nil {
		t.Fatalf("expected analysis for t-1")
	}
	if len(analysis.Tags) != 1 || analysis.Tags[0] != "login_issue" {
		t.Fatalf("without an allow-list every tag applies, got %v", analysis.Tags)
	}
	if analysis.HasProposedNewTags {
		t.Fatalf("no proposal was flagged by the classifier: %+v", analysis)
	}
	if len(f.suggestions.suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %d", len(f.suggestions.suggestions))
	}
}

func TestAnalysisEmptyPendingSetCompletesImmediately(t *testing.T) {
	accounts := &fakeAccountStore{allowed: []string{"billing"}}
	f := newAnalyzerFixture(t, accounts, &fakeClassifier{})

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.jobs.status("job-1"); got != domain.JobStatusCompleted {
		t.Fatalf("expected completed job, got %s", got)
	}
	last := f.tracker.last()
	if !last.IsCompleted || last.Current != 0 || last.Total != 0 {
		t.Fatalf("unexpected final snapshot: %+v", last)
	}
}

func TestAnalysisSkipsAlreadyAnalyzedTickets(t *testing.T) {
	accounts := &fakeAccountStore{allowed: []string{"billing"}}
	classifier := &fakeClassifier{
		classification: domain.TicketClassification{Tags: []string{"billing"}},
	}
	f := newAnalyzerFixture(t, accounts, classifier,
		storedTicket("t-1", "first"), storedTicket("t-2", "second"))
	f.analyses.analyzed = []string{"t-1"}

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if classifier.classifyCalls != 1 {
		t.Fatalf("expected only the pending ticket classified, got %d calls", classifier.classifyCalls)
	}
	if f.analyses.get("t-2") == nil {
		t.Fatalf("expected analysis for the pending ticket")
	}
}

func TestAnalysisRecordFailureDoesNotStopRun(t *testing.T) {
	accounts := &fakeAccountStore{allowed: []string{"billing"}}
	classifier := &fakeClassifier{
		failFirst:      domain.WrapError(domain.ErrClassification, "classify", errors.New("model timeout")),
		classification: domain.TicketClassification{Tags: []string{"billing"}},
	}
	f := newAnalyzerFixture(t, accounts, classifier,
		storedTicket("t-1", "first"), storedTicket("t-2", "second"))

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("record failures must not fail the run, got %v", err)
	}

	if got := f.jobs.status("job-1"); got != domain.JobStatusCompleted {
		t.Fatalf("expected completed job despite a record failure, got %s", got)
	}

	failed, succeeded := 0, 0
	for _, id := range []string{"t-1", "t-2"} {
		analysis := f.analyses.get(id)
		if analysis == nil {
			t.Fatalf("expected analysis row for %s", id)
		}
		if analysis.Failed {
			failed++
			if analysis.Error == "" {
				t.Fatalf("failed analysis must carry the cause: %+v", analysis)
			}
		} else {
			succeeded++
		}
	}
	if failed != 1 || succeeded != 1 {
		t.Fatalf("expected 1 failed and 1 succeeded record, got %d/%d", failed, succeeded)
	}

	last := f.tracker.last()
	if !last.IsCompleted || last.Current != 2 || last.Total != 2 {
		t.Fatalf("unexpected final snapshot: %+v", last)
	}
}

func TestAnalysisBoundsSecondarySuggestions(t *testing.T) {
	accounts := &fakeAccountStore{allowed: []string{"billing"}}
	classifier := &fakeClassifier{
		classification: domain.TicketClassification{Tags: []string{"billing"}},
		suggested:      []string{"billing", "alpha", "beta", "gamma", "delta"},
	}
	f := newAnalyzerFixture(t, accounts, classifier, storedTicket("t-1", "subject"))

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The allow-listed tag is skipped and the rest is capped at the
	// per-ticket bound.
	if len(f.suggestions.suggestions) != 3 {
		t.Fatalf("expected 3 bounded suggestions, got %d", len(f.suggestions.suggestions))
	}
	for _, suggestion := range f.suggestions.suggestions {
		if suggestion.Tag == "billing" {
			t.Fatalf("allow-listed tag must never become a suggestion")
		}
		if suggestion.Status != domain.SuggestionStatusPending {
			t.Fatalf("expected pending status, got %+v", suggestion)
		}
	}
}

func TestAnalysisDuplicateProposalYieldsOneSuggestion(t *testing.T) {
	// The same new tag surfaces in both the primary classification and the
	// secondary pass; uniqueness on (account, ticket, tag) keeps one row.
	accounts := &fakeAccountStore{allowed: []string{"billing"}}
	classifier := &fakeClassifier{
		classification: domain.TicketClassification{
			Tags:           []string{"billing", "hardware"},
			ProposedNewTag: true,
		},
		suggested: []string{"hardware"},
	}
	f := newAnalyzerFixture(t, accounts, classifier, storedTicket("t-1", "broken keyboard"))

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(f.suggestions.suggestions) != 1 {
		t.Fatalf("expected one suggestion for the repeated tag, got %d", len(f.suggestions.suggestions))
	}
	if got := f.suggestions.suggestions[0].Tag; got != "hardware" {
		t.Fatalf("unexpected suggestion tag %q", got)
	}
}

func TestAnalysisStoredSuggestionsReduceSecondaryBudget(t *testing.T) {
	accounts := &fakeAccountStore{allowed: []string{"billing"}}
	classifier := &fakeClassifier{
		classification: domain.TicketClassification{Tags: []string{"billing"}},
		suggested:      []string{"alpha", "beta", "gamma"},
	}
	f := newAnalyzerFixture(t, accounts, classifier, storedTicket("t-1", "subject"))
	for _, tag := range []string{"earlier-1", "earlier-2"} {
		_ = f.suggestions.UpsertPending(context.Background(), &domain.TagSuggestion{
			ID: tag, AccountID: "acct-1", TicketID: "t-1", Tag: tag,
			Status: domain.SuggestionStatusPending,
		})
	}

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Two of the three slots are already taken by stored suggestions.
	if len(f.suggestions.suggestions) != 3 {
		t.Fatalf("expected the per-ticket cap to hold across runs, got %d", len(f.suggestions.suggestions))
	}
	last := f.suggestions.suggestions[len(f.suggestions.suggestions)-1]
	if last.Tag != "alpha" {
		t.Fatalf("expected only the first new tag to fit, got %q", last.Tag)
	}
}

func TestAnalysisFailsWhenAllowListUnavailable(t *testing.T) {
	accounts := &fakeAccountStore{err: domain.ErrStorageUnavailable}
	f := newAnalyzerFixture(t, accounts, &fakeClassifier{}, storedTicket("t-1", "subject"))

	err := f.uc.Run(context.Background(), analysisDispatch())
	if err == nil {
		t.Fatalf("expected control-loop failure")
	}
	if got := f.jobs.status("job-1"); got != domain.JobStatusFailed {
		t.Fatalf("expected failed job, got %s", got)
	}
	last := f.tracker.last()
	if !last.IsCompleted || last.Error == "" {
		t.Fatalf("expected completed snapshot carrying the error, got %+v", last)
	}
}

func TestAnalysisStopsAtCancellation(t *testing.T) {
	accounts := &fakeAccountStore{allowed: []string{"billing"}}
	classifier := &fakeClassifier{
		classification: domain.TicketClassification{Tags: []string{"billing"}},
	}
	f := newAnalyzerFixture(t, accounts, classifier,
		storedTicket("t-1", "first"), storedTicket("t-2", "second"))
	_ = f.jobs.MarkCanceled(context.Background(), "job-1")

	if err := f.uc.Run(context.Background(), analysisDispatch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if classifier.classifyCalls != 0 {
		t.Fatalf("canceled run must not classify, got %d calls", classifier.classifyCalls)
	}
	if got := f.jobs.status("job-1"); got != domain.JobStatusCanceled {
		t.Fatalf("cancellation must stick, got %s", got)
	}
}

func TestBuildDocumentPrefersConversation(t *testing.T) {
	ticket := storedTicket("t-1", "printer on fire")
	ticket.Description = "fallback description"
	ticket.Conversation = []domain.ConversationEntry{
		{Author: "alice", Body: "smoke everywhere", CreatedAt: time.Now()},
		{Author: "support", Body: "please unplug it", CreatedAt: time.Now()},
	}

	document := buildDocument(ticket)
	if !strings.Contains(document, "alice: smoke everywhere") {
		t.Fatalf("expected conversation in document: %q", document)
	}
	if strings.Contains(document, "fallback description") {
		t.Fatalf("description must not be used when a thread exists: %q", document)
	}

	ticket.Conversation = nil
	document = buildDocument(ticket)
	if !strings.Contains(document, "fallback description") {
		t.Fatalf("expected description fallback: %q", document)
	}
}

func TestPartitionTags(t *testing.T) {
	allowed := toLowerSet([]string{"Billing", "login_issue"})
	known, proposed := partitionTags([]string{"billing", "Foo", " ", "LOGIN_ISSUE"}, allowed)
	if len(known) != 2 {
		t.Fatalf("expected 2 known tags, got %v", known)
	}
	if len(proposed) != 1 || proposed[0] != "Foo" {
		t.Fatalf("expected Foo proposed, got %v", proposed)
	}
}
