package domain

import "time"

// ProgressSnapshot is the live, account-scoped view of a running job. It is a
// full-state overwrite, never a delta, so observers that miss an event are
// consistent again on the next one.
type ProgressSnapshot struct {
	JobID       string    `json:"job_id"`
	AccountID   string    `json:"account_id"`
	Kind        JobKind   `json:"kind"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	Percentage  int       `json:"percentage"`
	IsCompleted bool      `json:"is_completed"`
	Error       string    `json:"error,omitempty"`
	LastUpdate  time.Time `json:"last_update"`
}

// NoActiveJobSnapshot is returned to readers when nothing is cached for an
// account. Callers treat a missing entry as "nothing running", not as a fault.
func NoActiveJobSnapshot(accountID string, kind JobKind) ProgressSnapshot {
	return ProgressSnapshot{
		AccountID:   accountID,
		Kind:        kind,
		IsCompleted: true,
		LastUpdate:  time.Now().UTC(),
	}
}
