package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// AllowedTags returns the account's tag allow-list. An unknown account has
// an empty allow-list rather than being an error.
func (r *AccountRepository) AllowedTags(ctx context.Context, accountID string) ([]string, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
SELECT allowed_tags FROM accounts WHERE id = $1
`, accountID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []string{}, nil
		}
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "read allowed tags", err)
	}

	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("unmarshal allowed tags: %w", err)
	}
	return tags, nil
}
