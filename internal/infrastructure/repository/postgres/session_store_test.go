package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

func TestSessionStoreEnsureSessionCreatesOnFirstUse(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("s-1", "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM sessions").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}).
			AddRow("s-1", "alice", now, now))

	store := NewSessionStore(db)
	session, err := store.EnsureSession(context.Background(), "alice", "s-1")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if session.ID != "s-1" || session.UserID != "alice" {
		t.Fatalf("unexpected session %+v", session)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionStoreEnsureSessionRejectsForeignOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("s-1", "mallory", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM sessions").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}).
			AddRow("s-1", "alice", now, now))

	store := NewSessionStore(db)
	_, err = store.EnsureSession(context.Background(), "mallory", "s-1")
	if !domain.IsKind(err, domain.ErrSessionDenied) {
		t.Fatalf("expected session denied, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionStoreGetSessionMissingReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM sessions").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}))

	store := NewSessionStore(db)
	_, err = store.GetSession(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionStoreListRecentTurnsReturnsChronologicalOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	base := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
		AddRow("t-3", "s-1", domain.RoleAssistant, "third", base.Add(2*time.Second)).
		AddRow("t-2", "s-1", domain.RoleUser, "second", base.Add(time.Second)).
		AddRow("t-1", "s-1", domain.RoleUser, "first", base)

	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs("s-1", 3).
		WillReturnRows(rows)

	store := NewSessionStore(db)
	turns, err := store.ListRecentTurns(context.Background(), "s-1", 3)
	if err != nil {
		t.Fatalf("ListRecentTurns() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].ID != "t-1" || turns[2].ID != "t-3" {
		t.Fatalf("turns not in chronological order: %v, %v, %v", turns[0].ID, turns[1].ID, turns[2].ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionStoreAppendTurnTouchesSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	turn := domain.Turn{
		ID:        "t-1",
		SessionID: "s-1",
		Role:      domain.RoleUser,
		Content:   "what documents do I need",
		CreatedAt: time.Now().UTC(),
	}
	mock.ExpectExec("INSERT INTO session_turns").
		WithArgs(turn.ID, turn.SessionID, turn.Role, turn.Content, turn.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sessions").
		WithArgs(turn.SessionID, turn.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewSessionStore(db)
	if err := store.AppendTurn(context.Background(), turn); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionStoreResetDeletesTurnsOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM session_turns").
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("UPDATE sessions").
		WithArgs("s-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewSessionStore(db)
	if err := store.ResetSession(context.Background(), "s-1"); err != nil {
		t.Fatalf("ResetSession() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
