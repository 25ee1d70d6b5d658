package domain

// ImportConfig carries per-run options for a remote import.
type ImportConfig struct {
	DaysBack     int      `json:"days_back,omitempty"`
	StatusFilter []string `json:"status_filter,omitempty"`
	GroupFilter  []string `json:"group_filter,omitempty"`
}

// JobDispatch is the message handed from the Job Control API to the worker
// that actually runs the job.
type JobDispatch struct {
	JobID     string        `json:"job_id"`
	AccountID string        `json:"account_id"`
	Kind      JobKind       `json:"kind"`
	Import    *ImportConfig `json:"import,omitempty"`
}
