package progress

import (
	"sync"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

// ImportTopic addresses observers of one import job.
func ImportTopic(jobID string) string { return "import:" + jobID }

// AnalysisTopic addresses observers of an account's analysis run.
func AnalysisTopic(accountID string) string { return "analysis:" + accountID }

const subscriptionBuffer = 8

// Subscription is one observer's feed. Snapshots are full-state overwrites,
// so delivery is at-least-once and unordered-safe: when the buffer is full
// the oldest pending snapshot is dropped in favor of the newest.
type Subscription struct {
	C     chan domain.ProgressSnapshot
	topic string
}

// Hub is the publish/subscribe registry of progress observers, keyed by
// import-job or analysis-account topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		C:     make(chan domain.ProgressSnapshot, subscriptionBuffer),
		topic: topic,
	}

	h.mu.Lock()
	observers, ok := h.topics[topic]
	if !ok {
		observers = make(map[*Subscription]struct{})
		h.topics[topic] = observers
	}
	observers[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if observers, ok := h.topics[sub.topic]; ok {
		delete(observers, sub)
		if len(observers) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	h.mu.Unlock()
}

// Publish delivers the snapshot to every observer of the topic without ever
// blocking the publisher.
func (h *Hub) Publish(topic string, snapshot domain.ProgressSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.topics[topic] {
		deliver(sub, snapshot)
	}
}

func deliver(sub *Subscription, snapshot domain.ProgressSnapshot) {
	for {
		select {
		case sub.C <- snapshot:
			return
		default:
		}
		// Buffer full: make room by discarding the stalest snapshot.
		select {
		case <-sub.C:
		default:
		}
	}
}
