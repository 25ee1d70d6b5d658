package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	natsio "github.com/nats-io/nats.go"

	"github.com/maksimrudenko/ticket-triage/internal/config"
	"github.com/maksimrudenko/ticket-triage/internal/core/ports"
	"github.com/maksimrudenko/ticket-triage/internal/core/usecase"
	"github.com/maksimrudenko/ticket-triage/internal/infrastructure/llm/ollama"
	"github.com/maksimrudenko/ticket-triage/internal/infrastructure/queue/nats"
	"github.com/maksimrudenko/ticket-triage/internal/infrastructure/remote/helpdesk"
	"github.com/maksimrudenko/ticket-triage/internal/infrastructure/repository/postgres"
	"github.com/maksimrudenko/ticket-triage/internal/infrastructure/resilience"
	"github.com/maksimrudenko/ticket-triage/internal/observability/metrics"
	"github.com/maksimrudenko/ticket-triage/internal/progress"
)

// APIApp wires everything the Job Control API binary needs.
type APIApp struct {
	Config  config.Config
	Control ports.JobControl
	Tracker *progress.Tracker
	Bus     *nats.ProgressBus
	Metrics *metrics.HTTPServerMetrics

	closeFn func()
}

func NewAPI(ctx context.Context, cfg config.Config) (*APIApp, error) {
	db, conn, err := openShared(ctx, cfg)
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue := nats.NewQueue(conn, cfg.NATSJobSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	bus := nats.NewProgressBus(conn, cfg.NATSProgressSubject)

	// The API-side tracker mirrors worker progress from the bus; it never
	// publishes back onto it.
	tracker := progress.NewTracker(cfg.ProgressRetention, nil)

	jobs := postgres.NewJobRepository(db)
	control := usecase.NewJobControlUseCase(jobs, queue, tracker)

	return &APIApp{
		Config:  cfg,
		Control: control,
		Tracker: tracker,
		Bus:     bus,
		Metrics: metrics.NewHTTPServerMetrics("api"),
		closeFn: func() {
			conn.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *APIApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// WorkerApp wires the job runner binary.
type WorkerApp struct {
	Config  config.Config
	Queue   ports.JobQueue
	Runner  ports.JobRunner
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*WorkerApp, error) {
	db, conn, err := openShared(ctx, cfg)
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue := nats.NewQueue(conn, cfg.NATSJobSubject, nats.Options{
		Concurrency:        cfg.WorkerConcurrency,
		ResilienceExecutor: executor,
	})
	bus := nats.NewProgressBus(conn, cfg.NATSProgressSubject)
	tracker := progress.NewTracker(cfg.ProgressRetention, bus)

	jobs := postgres.NewJobRepository(db)
	tickets := postgres.NewTicketRepository(db)
	analyses := postgres.NewAnalysisRepository(db)
	suggestions := postgres.NewSuggestionRepository(db)
	accounts := postgres.NewAccountRepository(db)

	source := helpdesk.New(cfg.HelpdeskBaseURL, cfg.HelpdeskAPIKey, helpdesk.Options{
		PageSize:          cfg.ImportPageSize,
		DetailCallsPerSec: cfg.EnrichmentRatePerSec,
	})
	classifier := ollama.NewClassifier(ollama.New(cfg.OllamaURL, cfg.OllamaModel, executor))

	workerMetrics := metrics.NewWorkerMetrics("worker")

	importer := usecase.NewImportTicketsUseCase(jobs, tickets, source, tracker, workerMetrics, usecase.ImportSettings{
		PageSize:              cfg.ImportPageSize,
		DefaultDaysBack:       cfg.ImportDaysBack,
		ProgressInterval:      cfg.ImportProgressInterval,
		RateLimitInitialDelay: cfg.ImportRetryInitial,
		RateLimitMaxAttempts:  cfg.ImportRetryMaxAttempts,
	})
	analyzer := usecase.NewAnalyzeTicketsUseCase(jobs, tickets, analyses, suggestions, accounts, classifier, tracker, workerMetrics, usecase.AnalysisSettings{
		MaxSuggestionsPerTicket: cfg.AnalysisMaxSuggestions,
	})
	runner := usecase.NewJobRunnerUseCase(importer, analyzer, jobs, workerMetrics)

	return &WorkerApp{
		Config:  cfg,
		Queue:   queue,
		Runner:  runner,
		Metrics: workerMetrics,
		closeFn: func() {
			conn.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *WorkerApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func openShared(ctx context.Context, cfg config.Config) (*sql.DB, *natsio.Conn, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := postgres.EnsureSchema(schemaCtx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Options{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return db, conn, nil
}
