package progress

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

const shardCount = 16

// DefaultRetention is how long a completed snapshot stays readable before a
// read path may prune it.
const DefaultRetention = time.Hour

// Cache is the process-local, account-keyed map of live progress snapshots.
// It is sharded so unrelated accounts never contend on the same lock. The
// durable job ledger stays authoritative; the cache is the fast view.
type Cache struct {
	retention time.Duration
	now       func() time.Time
	shards    [shardCount]cacheShard
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[string]domain.ProgressSnapshot
}

func NewCache(retention time.Duration) *Cache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	c := &Cache{
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]domain.ProgressSnapshot)
	}
	return c
}

func (c *Cache) shard(accountID string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return &c.shards[h.Sum32()%shardCount]
}

// Record overwrites the account's snapshot and stamps its update time.
func (c *Cache) Record(accountID string, snapshot domain.ProgressSnapshot) {
	snapshot.AccountID = accountID
	snapshot.LastUpdate = c.now()

	s := c.shard(accountID)
	s.mu.Lock()
	s.entries[accountID] = snapshot
	s.mu.Unlock()
}

// Read returns the live snapshot for an account, or a synthetic completed
// "no active job" snapshot when nothing is cached. Completed entries past
// the retention window are pruned opportunistically on the way.
func (c *Cache) Read(accountID string, kind domain.JobKind) (domain.ProgressSnapshot, bool) {
	s := c.shard(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	c.pruneLocked(s)

	if snapshot, ok := s.entries[accountID]; ok {
		return snapshot, true
	}
	return domain.NoActiveJobSnapshot(accountID, kind), false
}

// Remove drops the account's entry. Used by cancellation and by the forced
// termination override.
func (c *Cache) Remove(accountID string) {
	s := c.shard(accountID)
	s.mu.Lock()
	delete(s.entries, accountID)
	s.mu.Unlock()
}

func (c *Cache) pruneLocked(s *cacheShard) {
	cutoff := c.now().Add(-c.retention)
	for key, snapshot := range s.entries {
		if snapshot.IsCompleted && snapshot.LastUpdate.Before(cutoff) {
			delete(s.entries, key)
		}
	}
}
