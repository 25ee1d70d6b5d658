package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

type SuggestionRepository struct {
	db *sql.DB
}

func NewSuggestionRepository(db *sql.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// UpsertPending records a proposed tag. The (account, ticket, tag) uniqueness
// constraint makes repeated proposals idempotent; an existing row keeps its
// review status.
func (r *SuggestionRepository) UpsertPending(ctx context.Context, suggestion *domain.TagSuggestion) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tag_suggestions (id, account_id, ticket_id, tag, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (account_id, ticket_id, tag) DO NOTHING
`,
		suggestion.ID, suggestion.AccountID, suggestion.TicketID, suggestion.Tag,
		string(domain.SuggestionStatusPending), now,
	)
	if err != nil {
		return fmt.Errorf("upsert tag suggestion: %w", err)
	}
	return nil
}

func (r *SuggestionRepository) CountForTicket(ctx context.Context, accountID, ticketID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM tag_suggestions WHERE account_id = $1 AND ticket_id = $2
`, accountID, ticketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tag suggestions: %w", err)
	}
	return count, nil
}
