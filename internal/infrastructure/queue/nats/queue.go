package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
	"github.com/maksimrudenko/ticket-triage/internal/infrastructure/resilience"
)

// Queue carries job dispatches from the Job Control API to the worker
// process over a NATS queue group.
type Queue struct {
	conn        *nats.Conn
	subject     string
	concurrency int
	executor    *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	Concurrency          int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func Connect(url string, options Options) (*nats.Conn, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("ticket-triage"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

func NewQueue(conn *nats.Conn, subject string, options Options) *Queue {
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		concurrency: concurrency,
		executor:    options.ResilienceExecutor,
	}
}

func (q *Queue) PublishJobDispatch(ctx context.Context, dispatch domain.JobDispatch) error {
	payload, err := json.Marshal(dispatch)
	if err != nil {
		return fmt.Errorf("marshal job dispatch: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish_dispatch", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded("publish job dispatch", err)
	}
	return nil
}

// SubscribeJobDispatch consumes dispatches on a queue group. Handlers run on
// their own goroutines, capped by the configured concurrency so a burst of
// job starts cannot exhaust the process.
func (q *Queue) SubscribeJobDispatch(ctx context.Context, handler func(context.Context, domain.JobDispatch) error) error {
	slots := make(chan struct{}, q.concurrency)

	sub, err := q.conn.QueueSubscribe(q.subject, "job-runners", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var dispatch domain.JobDispatch
		if err := json.Unmarshal(msg.Data, &dispatch); err != nil {
			slog.Error("job_dispatch_decode_failed", "error", err)
			return
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		go func() {
			defer func() { <-slots }()
			if err := handler(ctx, dispatch); err != nil {
				slog.Error("job_dispatch_handler_failed",
					"job_id", dispatch.JobID,
					"account_id", dispatch.AccountID,
					"kind", dispatch.Kind,
					"error", err,
				)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
