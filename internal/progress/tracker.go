package progress

import (
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

// BusPublisher forwards snapshots to other processes. The worker binary wires
// a NATS-backed implementation here so the API process's tracker can mirror
// worker-side progress; the API side leaves it nil.
type BusPublisher interface {
	PublishProgress(snapshot domain.ProgressSnapshot)
}

// Tracker is the owned, injected progress component: the striped cache plus
// the local broadcast hub, with an optional cross-process bus behind it.
type Tracker struct {
	cache *Cache
	hub   *Hub
	bus   BusPublisher
}

func NewTracker(retention time.Duration, bus BusPublisher) *Tracker {
	return &Tracker{
		cache: NewCache(retention),
		hub:   NewHub(),
		bus:   bus,
	}
}

// Record overwrites the cached snapshot and fans it out to local observers
// and, when configured, to the cross-process bus.
func (t *Tracker) Record(accountID string, snapshot domain.ProgressSnapshot) {
	t.cache.Record(accountID, snapshot)

	// Re-read so observers see the stamped update time.
	stamped, _ := t.cache.Read(accountID, snapshot.Kind)
	t.publish(stamped)
	if t.bus != nil {
		t.bus.PublishProgress(stamped)
	}
}

// Mirror applies a snapshot that originated in another process. It updates
// the cache and local observers but never forwards back to the bus.
func (t *Tracker) Mirror(snapshot domain.ProgressSnapshot) {
	t.cache.Record(snapshot.AccountID, snapshot)
	stamped, _ := t.cache.Read(snapshot.AccountID, snapshot.Kind)
	t.publish(stamped)
}

// Read returns the live snapshot, or a synthetic completed one when nothing
// is cached for the account.
func (t *Tracker) Read(accountID string, kind domain.JobKind) (domain.ProgressSnapshot, bool) {
	return t.cache.Read(accountID, kind)
}

func (t *Tracker) Remove(accountID string) {
	t.cache.Remove(accountID)
}

// SubscribeImport attaches an observer to one import job's progress feed.
func (t *Tracker) SubscribeImport(jobID string) *Subscription {
	return t.hub.Subscribe(ImportTopic(jobID))
}

// SubscribeAnalysis attaches an observer to an account's analysis feed. A
// live snapshot, if any, is delivered immediately so late subscribers are
// not stuck waiting for the next unit of work.
func (t *Tracker) SubscribeAnalysis(accountID string) *Subscription {
	sub := t.hub.Subscribe(AnalysisTopic(accountID))
	if snapshot, ok := t.cache.Read(accountID, domain.JobKindAnalysis); ok {
		deliver(sub, snapshot)
	}
	return sub
}

func (t *Tracker) Unsubscribe(sub *Subscription) {
	t.hub.Unsubscribe(sub)
}

func (t *Tracker) publish(snapshot domain.ProgressSnapshot) {
	switch snapshot.Kind {
	case domain.JobKindImport:
		t.hub.Publish(ImportTopic(snapshot.JobID), snapshot)
	case domain.JobKindAnalysis:
		t.hub.Publish(AnalysisTopic(snapshot.AccountID), snapshot)
	}
}
