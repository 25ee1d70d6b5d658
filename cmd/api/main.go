package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/maksimrudenko/ticket-triage/internal/adapters/http"
	"github.com/maksimrudenko/ticket-triage/internal/bootstrap"
	"github.com/maksimrudenko/ticket-triage/internal/config"
	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
	"github.com/maksimrudenko/ticket-triage/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewAPI(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Worker-side snapshots arrive over the bus and are mirrored into the
	// local cache so progress reads and websocket observers stay current.
	err = app.Bus.SubscribeProgress(ctx, func(snapshot domain.ProgressSnapshot) {
		app.Tracker.Mirror(snapshot)
	})
	if err != nil {
		slog.Error("progress subscribe error", "error", err)
		os.Exit(1)
	}

	router := httpadapter.NewRouter(app.Control, app.Tracker, app.Metrics).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
}
