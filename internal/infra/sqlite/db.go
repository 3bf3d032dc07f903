// Package sqlite is the transactional store for the settlement core.
//
// Every multi-entity operation runs inside one WithTx transaction: it fully
// commits or fully rolls back, and concurrent writers serialize through the
// store (immediate transactions + busy timeout). Balance arithmetic is
// always a single guarded UPDATE statement, never read-then-check-then-write.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same row operations compose inside and outside transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every row operation; embedded by both DB and Tx.
type queries struct {
	q dbtx
}

// DB is the settlement store.
type DB struct {
	queries
	sql *sql.DB
}

// Tx is one all-or-nothing transaction against the store.
type Tx struct {
	queries
	tx *sql.Tx
}

// Open opens (creating if needed) the settlement database at path and runs
// migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*DB, error) {
	// _txlock=immediate makes write transactions take the write lock at
	// BEGIN, so two concurrent WithTx calls on the same rows serialize
	// instead of failing at commit.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	raw, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; funneling through a single connection
	// avoids spurious SQLITE_BUSY under concurrent transactions.
	raw.SetMaxOpenConns(1)

	db := &DB{queries: queries{q: raw}, sql: raw}
	if err := db.migrate(); err != nil {
		raw.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying database handle.
func (db *DB) Close() error {
	return db.sql.Close()
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.sql.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside a single transaction. Any error (or panic) rolls
// back every write fn made; a nil return commits them atomically.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	raw, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &Tx{queries: queries{q: raw}, tx: raw}

	defer func() {
		if p := recover(); p != nil {
			raw.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := raw.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := raw.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ─── Time Encoding ──────────────────────────────────────────────────────────
// Timestamps are stored as RFC3339Nano UTC strings. Insertion order is
// preserved by rowid, so listings never rely on lexicographic time ordering.

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
