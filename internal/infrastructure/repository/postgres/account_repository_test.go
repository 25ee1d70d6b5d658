package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestAccountRepositoryAllowedTags(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAccountRepository(db)
	mock.ExpectQuery("SELECT allowed_tags FROM accounts").WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"allowed_tags"}).AddRow([]byte(`["billing","login_issue"]`)))

	tags, err := repo.AllowedTags(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("AllowedTags() error = %v", err)
	}
	if len(tags) != 2 || tags[0] != "billing" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestAccountRepositoryAllowedTagsUnknownAccountIsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAccountRepository(db)
	mock.ExpectQuery("SELECT allowed_tags FROM accounts").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"allowed_tags"}))

	tags, err := repo.AllowedTags(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unknown account must not error, got %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected empty allow-list, got %v", tags)
	}
}
