package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

func pendingSuggestion() *domain.TagSuggestion {
	return &domain.TagSuggestion{
		ID:        "sug-1",
		AccountID: "acct-1",
		TicketID:  "t-1",
		Tag:       "hardware",
		Status:    domain.SuggestionStatusPending,
	}
}

func TestSuggestionRepositoryUpsertPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewSuggestionRepository(db)
	mock.ExpectExec(`ON CONFLICT \(account_id, ticket_id, tag\) DO NOTHING`).
		WithArgs("sug-1", "acct-1", "t-1", "hardware", "pending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertPending(context.Background(), pendingSuggestion()); err != nil {
		t.Fatalf("UpsertPending() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSuggestionRepositoryUpsertPendingConflictIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewSuggestionRepository(db)
	// A second proposal of the same (account, ticket, tag) hits the conflict
	// clause and affects zero rows; that is a success, not an error.
	mock.ExpectExec(`ON CONFLICT \(account_id, ticket_id, tag\) DO NOTHING`).
		WithArgs("sug-1", "acct-1", "t-1", "hardware", "pending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpsertPending(context.Background(), pendingSuggestion()); err != nil {
		t.Fatalf("conflicting upsert must succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSuggestionRepositoryCountForTicket(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewSuggestionRepository(db)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tag_suggestions`).
		WithArgs("acct-1", "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountForTicket(context.Background(), "acct-1", "t-1")
	if err != nil {
		t.Fatalf("CountForTicket() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 suggestions, got %d", count)
	}
}
