package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

type TicketRepository struct {
	db *sql.DB
}

func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Upsert writes the ticket keyed by (account id, external id); re-importing
// the same remote ticket overwrites in place instead of duplicating.
func (r *TicketRepository) Upsert(ctx context.Context, ticket *domain.Ticket) error {
	conversationJSON, err := json.Marshal(ticket.Conversation)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	tagsJSON, err := json.Marshal(ticket.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO tickets (
	id, external_id, account_id, subject, description, conversation, status, priority,
	requester, assignee, group_name, tags, source, source_url,
	remote_created_at, remote_updated_at, imported_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (account_id, external_id) DO UPDATE SET
	subject = EXCLUDED.subject,
	description = EXCLUDED.description,
	conversation = EXCLUDED.conversation,
	status = EXCLUDED.status,
	priority = EXCLUDED.priority,
	requester = EXCLUDED.requester,
	assignee = EXCLUDED.assignee,
	group_name = EXCLUDED.group_name,
	tags = EXCLUDED.tags,
	source = EXCLUDED.source,
	source_url = EXCLUDED.source_url,
	remote_created_at = EXCLUDED.remote_created_at,
	remote_updated_at = EXCLUDED.remote_updated_at,
	updated_at = EXCLUDED.updated_at
`,
		ticket.ID, ticket.ExternalID, ticket.AccountID, ticket.Subject, ticket.Description,
		conversationJSON, string(ticket.Status), string(ticket.Priority),
		ticket.Requester, ticket.Assignee, ticket.Group, tagsJSON, ticket.Source, ticket.SourceURL,
		ticket.RemoteCreatedAt, ticket.RemoteUpdatedAt, ticket.ImportedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert ticket: %w", err)
	}
	return nil
}

const ticketColumns = `id, external_id, account_id, subject, description, conversation, status, priority,
	requester, assignee, group_name, tags, source, source_url,
	remote_created_at, remote_updated_at, imported_at, updated_at`

func (r *TicketRepository) GetByExternalID(ctx context.Context, accountID, externalID string) (*domain.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+ticketColumns+`
FROM tickets
WHERE account_id = $1 AND external_id = $2
`, accountID, externalID)
	return scanTicket(row)
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+ticketColumns+`
FROM tickets
WHERE id = $1
`, id)
	return scanTicket(row)
}

func (r *TicketRepository) ListIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id FROM tickets WHERE account_id = $1 ORDER BY imported_at
`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list ticket ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ticket id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket ids: %w", err)
	}
	return ids, nil
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var conversationRaw, tagsRaw []byte
	var status, priority string
	var requester, assignee, group, sourceURL sql.NullString

	err := row.Scan(
		&ticket.ID, &ticket.ExternalID, &ticket.AccountID, &ticket.Subject, &ticket.Description,
		&conversationRaw, &status, &priority,
		&requester, &assignee, &group, &tagsRaw, &ticket.Source, &sourceURL,
		&ticket.RemoteCreatedAt, &ticket.RemoteUpdatedAt, &ticket.ImportedAt, &ticket.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ticket: %w", err)
	}

	if err := json.Unmarshal(conversationRaw, &ticket.Conversation); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	if err := json.Unmarshal(tagsRaw, &ticket.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(priority)
	ticket.Requester = requester.String
	ticket.Assignee = assignee.String
	ticket.Group = group.String
	ticket.SourceURL = sourceURL.String
	return &ticket, nil
}
