package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sakif/blog-platform/internal/repository"
)

// These tests drive WithinTx against sqlmock instead of a real database, so
// that failures SQLite never produces on its own (a dead connection, a
// failing COMMIT) can be checked too.
func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &DB{conn: conn}, mock
}

func TestWithinTx_RollbackOnStatementError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM comments").
		WithArgs("post-1").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := db.WithinTx(context.Background(), func(tx repository.Store) error {
		return tx.Comments().DeleteByPost(context.Background(), "post-1")
	})
	if err == nil {
		t.Fatal("WithinTx() should return the statement error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWithinTx_CommitError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM comments").
		WithArgs("post-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err := db.WithinTx(context.Background(), func(tx repository.Store) error {
		return tx.Comments().DeleteByPost(context.Background(), "post-1")
	})
	if err == nil {
		t.Fatal("WithinTx() should surface the commit error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWithinTx_BeginError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	called := false
	err := db.WithinTx(context.Background(), func(tx repository.Store) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("WithinTx() should fail when BEGIN fails")
	}
	if called {
		t.Error("callback ran without a transaction")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWithinTx_RollbackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		if recover() == nil {
			t.Error("WithinTx() swallowed the panic")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	}()

	_ = db.WithinTx(context.Background(), func(tx repository.Store) error {
		panic("handler bug")
	})
}
