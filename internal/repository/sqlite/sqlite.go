// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of SQLite: no C compiler needed, works everywhere Go works.
//
// LAYOUT:
//
//	DB          owns the *sql.DB pool, runs migrations, starts transactions
//	UserDB      users table
//	SessionDB   sessions table
//	PostDB      posts table
//	CommentDB   comments table
//
// Each table type holds a querier, which is either the pool or an open
// transaction. DB.Users() hands out a UserDB bound to the pool;
// inside WithinTx the same types are bound to the *sql.Tx instead, so
// repository code never needs to know whether it runs in a transaction.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/sakif/blog-platform/internal/repository"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named
	// "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// querier is the subset of *sql.DB and *sql.Tx the table types need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and hands out table repositories.
type DB struct {
	conn *sql.DB
}

// compile-time checks
var (
	_ repository.Store      = (*DB)(nil)
	_ repository.Transactor = (*DB)(nil)
)

// New opens the database, applies pragmas and runs migrations.
//
// dbPath examples:
//   - "data/blog.db"  → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests)
//
// SINGLE CONNECTION:
// SQLite allows one writer at a time. Capping the pool at one connection
// turns concurrent writers into a queue inside database/sql instead of
// SQLITE_BUSY errors, and keeps ":memory:" databases on one connection
// (each new connection to ":memory:" would see an empty database).
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// now returns the current time in UTC. Stored timestamps are always UTC so
// that their text form sorts chronologically.
func now() time.Time {
	return time.Now().UTC()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate applies the embedded goose migrations. Goose records applied
// versions in goose_db_version, so this is safe to run on every start.
func (db *DB) migrate(ctx context.Context) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// compile-time check that *DB is a full repository.Database
var _ repository.Database = (*DB)(nil)

func (db *DB) Users() repository.UserRepository       { return &UserDB{q: db.conn} }
func (db *DB) Sessions() repository.SessionRepository { return &SessionDB{q: db.conn} }
func (db *DB) Posts() repository.PostRepository       { return &PostDB{q: db.conn} }
func (db *DB) Comments() repository.CommentRepository { return &CommentDB{q: db.conn} }

// txStore is the Store handed to WithinTx callbacks.
type txStore struct {
	tx *sql.Tx
}

func (s txStore) Users() repository.UserRepository       { return &UserDB{q: s.tx} }
func (s txStore) Sessions() repository.SessionRepository { return &SessionDB{q: s.tx} }
func (s txStore) Posts() repository.PostRepository       { return &PostDB{q: s.tx} }
func (s txStore) Comments() repository.CommentRepository { return &CommentDB{q: s.tx} }

// WithinTx runs fn in a transaction. The transaction commits when fn
// returns nil and rolls back on error or panic.
//
// The pool holds a single connection, so fn must only use the tx Store it is
// given. Calling db.Users() or any other non-transactional repository inside
// fn blocks forever.
//
// Usage:
//
//	err := db.WithinTx(ctx, func(tx repository.Store) error {
//	    if err := tx.Comments().DeleteByPost(ctx, id); err != nil {
//	        return err
//	    }
//	    return tx.Posts().Delete(ctx, id)
//	})
func (db *DB) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}
