package domain

import "time"

// TicketClassification is the raw output of the classification service for
// one ticket, before tag reconciliation against the account allow-list.
type TicketClassification struct {
	Summary        string   `json:"summary"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	ProposedNewTag bool     `json:"proposed_new_tag"`
}

// TicketAnalysis is the persisted, reconciled analysis for one ticket. Its
// tag list only ever contains tags from the account allow-list unless the
// matching TagSuggestion has been accepted.
type TicketAnalysis struct {
	TicketID           string    `json:"ticket_id"`
	AccountID          string    `json:"account_id"`
	Summary            string    `json:"summary"`
	Description        string    `json:"description"`
	Tags               []string  `json:"tags"`
	HasProposedNewTags bool      `json:"has_proposed_new_tags"`
	Failed             bool      `json:"failed,omitempty"`
	Error              string    `json:"error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type SuggestionStatus string

const (
	SuggestionStatusPending  SuggestionStatus = "pending"
	SuggestionStatusAccepted SuggestionStatus = "accepted"
	SuggestionStatusRejected SuggestionStatus = "rejected"
)

// TagSuggestion is a proposed-but-unapproved tag awaiting human review,
// unique per (AccountID, TicketID, Tag).
type TagSuggestion struct {
	ID        string           `json:"id"`
	AccountID string           `json:"account_id"`
	TicketID  string           `json:"ticket_id"`
	Tag       string           `json:"tag"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
