package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

// ProgressBus mirrors progress snapshots between processes: the worker
// publishes, the API process subscribes and feeds its local cache and hub.
// Delivery is at-least-once; snapshots are idempotent full-state overwrites,
// so a dropped or duplicated event never leaves an observer inconsistent.
type ProgressBus struct {
	conn    *nats.Conn
	subject string
}

func NewProgressBus(conn *nats.Conn, subject string) *ProgressBus {
	return &ProgressBus{conn: conn, subject: subject}
}

// PublishProgress is fire-and-forget: a failed publish is logged, never
// surfaced to the worker loop, because the ledger remains authoritative.
func (b *ProgressBus) PublishProgress(snapshot domain.ProgressSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("progress_marshal_failed", "account_id", snapshot.AccountID, "error", err)
		return
	}
	if err := b.conn.Publish(b.subject+"."+snapshot.AccountID, payload); err != nil {
		slog.Warn("progress_publish_failed", "account_id", snapshot.AccountID, "error", err)
	}
}

// SubscribeProgress delivers every snapshot published on the bus until the
// context ends.
func (b *ProgressBus) SubscribeProgress(ctx context.Context, handler func(domain.ProgressSnapshot)) error {
	sub, err := b.conn.Subscribe(b.subject+".>", func(msg *nats.Msg) {
		var snapshot domain.ProgressSnapshot
		if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
			slog.Error("progress_decode_failed", "error", err)
			return
		}
		handler(snapshot)
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return nil
}
