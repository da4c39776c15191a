package store

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// newMockPostgresStore wires a session store over a mocked Postgres
// connection so the dialect-rewritten SQL can be asserted.
func newMockPostgresStore(t *testing.T) (*SessionStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return NewSessionStore(db.NewFromSQL(sqlDB, db.DialectPostgres), "alice"), mock
}

func TestSessionCreateRewritesPlaceholdersForPostgres(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO sessions.*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)`).
		WithArgs("s1", "Budget check", "unset", sqlmock.AnyArg(), sqlmock.AnyArg(),
			0, "active", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Create(context.Background(), &Session{ID: "s1", Title: "Budget check"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionSetTitleAutoGuardReachesPostgres(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	// The auto-title guard must survive dialect rewriting so an
	// auto-synthesised title can never overwrite a user-set one.
	mock.ExpectExec(`(?s)UPDATE sessions SET title = \$1.*AND title_source = 'unset'`).
		WithArgs("Auto title", "auto", sqlmock.AnyArg(), "s1", "alice").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetTitle(context.Background(), "s1", "Auto title", TitleSourceAuto)
	if err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
