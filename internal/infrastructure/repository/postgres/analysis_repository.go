package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Upsert writes one analysis per ticket; a re-run overwrites the previous
// result.
func (r *AnalysisRepository) Upsert(ctx context.Context, analysis *domain.TicketAnalysis) error {
	tagsJSON, err := json.Marshal(analysis.Tags)
	if err != nil {
		return fmt.Errorf("marshal analysis tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO ticket_analyses (
	ticket_id, account_id, summary, description, tags, has_proposed_new_tags, failed, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (ticket_id) DO UPDATE SET
	summary = EXCLUDED.summary,
	description = EXCLUDED.description,
	tags = EXCLUDED.tags,
	has_proposed_new_tags = EXCLUDED.has_proposed_new_tags,
	failed = EXCLUDED.failed,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
`,
		analysis.TicketID, analysis.AccountID, analysis.Summary, analysis.Description,
		tagsJSON, analysis.HasProposedNewTags, analysis.Failed, analysis.Error,
		analysis.CreatedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) ListAnalyzedTicketIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT ticket_id FROM ticket_analyses WHERE account_id = $1
`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list analyzed ticket ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan analyzed ticket id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyzed ticket ids: %w", err)
	}
	return ids, nil
}
