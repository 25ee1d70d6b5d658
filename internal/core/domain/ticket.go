package domain

import "time"

type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Ticket is a support ticket normalized from the remote helpdesk. A ticket is
// unique per (ExternalID, AccountID); re-importing overwrites in place.
type Ticket struct {
	ID              string              `json:"id"`
	ExternalID      string              `json:"external_id"`
	AccountID       string              `json:"account_id"`
	Subject         string              `json:"subject"`
	Description     string              `json:"description"`
	Conversation    []ConversationEntry `json:"conversation,omitempty"`
	Status          TicketStatus        `json:"status"`
	Priority        TicketPriority      `json:"priority"`
	Requester       string              `json:"requester,omitempty"`
	Assignee        string              `json:"assignee,omitempty"`
	Group           string              `json:"group,omitempty"`
	Tags            []string            `json:"tags,omitempty"`
	Source          string              `json:"source"`
	SourceURL       string              `json:"source_url,omitempty"`
	RemoteCreatedAt time.Time           `json:"remote_created_at"`
	RemoteUpdatedAt time.Time           `json:"remote_updated_at"`
	ImportedAt      time.Time           `json:"imported_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type ConversationEntry struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Private   bool      `json:"private,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
