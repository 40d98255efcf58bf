package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable append-only conversation record.
type Store struct {
	db *sql.DB
}

// NewStore creates/opens the conversation database at path and ensures the
// schema exists. Safe to call on every process start.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One active session per process. A single shared connection avoids
	// writer lock contention with SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			role TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'auto',
			content TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			category TEXT NOT NULL,
			fact_key TEXT NOT NULL,
			fact_value TEXT NOT NULL,
			source_message_id INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS facts_source_idx ON facts(source_message_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init store schema: %w", err)
		}
	}
	return nil
}

// timestamps are stored ISO-8601 at second precision, UTC.
const timeLayout = "2006-01-02T15:04:05Z07:00"

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// AppendMessage inserts one immutable message row and returns its id.
func (s *Store) AppendMessage(ctx context.Context, role, mode, content string) (int64, error) {
	if role != RoleUser && role != RoleAssistant {
		return 0, fmt.Errorf("append message: invalid role %q", role)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO messages(created_at, role, mode, content) VALUES(?, ?, ?, ?)`,
		now().Format(timeLayout), role, mode, content)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append message id: %w", err)
	}
	return id, nil
}

// AppendFacts inserts the batch in one transaction, each row tagged with the
// source message id. No-op for an empty slice.
func (s *Store) AppendFacts(ctx context.Context, facts []Fact, sourceMessageID int64) error {
	if len(facts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append facts begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := now().Format(timeLayout)
	for _, f := range facts {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO facts(created_at, category, fact_key, fact_value, source_message_id) VALUES(?, ?, ?, ?, ?)`,
			ts, f.Category, f.Key, f.Value, sourceMessageID); err != nil {
			return fmt.Errorf("append fact: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append facts commit: %w", err)
	}
	return nil
}

// LoadRecent returns the most recent limit messages in chronological order.
// limit <= 0 loads the full history.
func (s *Store) LoadRecent(ctx context.Context, limit int) ([]Message, error) {
	query := `SELECT id, created_at, role, mode, content FROM messages ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &ts, &m.Role, &m.Mode, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if parsed, err := time.Parse(timeLayout, ts); err == nil {
			m.CreatedAt = parsed
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// The select runs newest-first; callers get chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListFacts returns up to limit facts, newest first. limit <= 0 lists all.
func (s *Store) ListFacts(ctx context.Context, limit int) ([]Fact, error) {
	query := `SELECT id, created_at, category, fact_key, fact_value, source_message_id FROM facts ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	out := []Fact{}
	for rows.Next() {
		var f Fact
		var ts string
		if err := rows.Scan(&f.ID, &ts, &f.Category, &f.Key, &f.Value, &f.SourceMessageID); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		if parsed, err := time.Parse(timeLayout, ts); err == nil {
			f.CreatedAt = parsed
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return out, nil
}

// MessageCount returns the number of persisted messages.
func (s *Store) MessageCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "messages")
}

// FactCount returns the number of persisted facts.
func (s *Store) FactCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "facts")
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Reset deletes every message and fact. Irreversible.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "facts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}
