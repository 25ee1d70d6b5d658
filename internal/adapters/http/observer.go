package httpadapter

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maksimrudenko/ticket-triage/internal/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// observeProgress upgrades the connection and streams progress snapshots for
// either one import job or one account's analysis runs. Snapshots are
// idempotent full-state overwrites, so a slow consumer that skips events is
// still consistent.
func (rt *Router) observeProgress(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	accountID := r.URL.Query().Get("account_id")
	if jobID == "" && accountID == "" {
		writeError(w, http.StatusBadRequest, "job_id or account_id is required")
		return
	}

	var sub *progress.Subscription
	if jobID != "" {
		sub = rt.tracker.SubscribeImport(jobID)
	} else {
		sub = rt.tracker.SubscribeAnalysis(accountID)
	}
	defer rt.tracker.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("observer_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	rt.metrics.ObserverConnected()
	defer rt.metrics.ObserverDisconnected()

	// Read pump: the observer sends nothing meaningful, but reading is what
	// surfaces close frames and pong replies.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(pingInterval)
	defer pings.Stop()

	for {
		select {
		case snapshot := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(snapshot); err != nil {
				return
			}
		case <-pings.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
