// Package sqlite is the durable enroll.Store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wgenroll/internal/enroll"

	_ "modernc.org/sqlite"
)

// DefaultAuditCapacity bounds the audit table when no capacity is given.
const DefaultAuditCapacity = 5000

var _ enroll.Store = (*Store)(nil)

// Store persists peers, invites and audit events in one SQLite file.
//
// The pool is limited to a single connection so a transaction opened by InTx
// excludes every other statement until it commits. ConsumeInvite is a
// conditional UPDATE, which keeps it single-use even across processes that
// share the file.
type Store struct {
	ops
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops implements enroll.Tx over a querier.
type ops struct {
	q        querier
	capacity int
}

var _ enroll.Tx = ops{}

const schema = `
CREATE TABLE IF NOT EXISTS peers (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	peer_id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	overlay_ip TEXT NOT NULL,
	allowed_ips_json TEXT NOT NULL DEFAULT '[]',
	public_key TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	revoked_at INTEGER,
	tags_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS peers_user_device ON peers (user_id, device_id);
CREATE TABLE IF NOT EXISTS invites (
	invite_code TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	device_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	used_at INTEGER
);
CREATE TABLE IF NOT EXISTS audit_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	actor_user_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	meta_json TEXT NOT NULL DEFAULT '{}'
)`

// Open opens or creates the database at path. A non-positive auditCapacity
// selects DefaultAuditCapacity.
func Open(path string, auditCapacity int) (*Store, error) {
	if auditCapacity <= 0 {
		auditCapacity = DefaultAuditCapacity
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize enrollment schema: %w", err)
	}

	return &Store{ops: ops{q: db, capacity: auditCapacity}, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside one SQLite transaction and rolls back on error.
func (s *Store) InTx(ctx context.Context, fn func(tx enroll.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ops{q: tx, capacity: s.capacity}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ConsumeInvite runs the conditional update and the read-back in one
// transaction.
func (s *Store) ConsumeInvite(ctx context.Context, code string, now time.Time) (enroll.Invite, bool, error) {
	var (
		inv enroll.Invite
		ok  bool
	)
	err := s.InTx(ctx, func(tx enroll.Tx) error {
		var err error
		inv, ok, err = tx.ConsumeInvite(ctx, code, now)
		return err
	})
	return inv, ok, err
}

type scanner interface {
	Scan(dest ...any) error
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
