package domain

import "time"

type JobKind string

const (
	JobKindImport   JobKind = "import"
	JobKindAnalysis JobKind = "analysis"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether no further status transition is allowed.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

type Job struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"account_id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	CurrentUnit int        `json:"current_unit"`
	TotalUnits  int        `json:"total_units"`
	Percentage  int        `json:"percentage"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Percentage is floor(current/total*100); zero while the total is unknown.
func ComputePercentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return current * 100 / total
}
