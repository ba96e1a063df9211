// Package db provides the SQLite storage and identity collaborator for
// workdesk.
//
// The database is stored at ~/.workdesk/workdesk.db by default.
// Use Open() to connect and Init() to create the schema.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	name TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'todo',
	start_date TEXT,
	due_date TEXT,
	sla_deadline TEXT,
	reminder_at TEXT,
	reminder_sent INTEGER NOT NULL DEFAULT 0,
	parent_id TEXT REFERENCES items(id),
	estimated_hours REAL,
	is_recurring INTEGER NOT NULL DEFAULT 0,
	recurrence_type TEXT,
	recurrence_interval INTEGER NOT NULL DEFAULT 0,
	recurrence_end TEXT,
	next_occurrence TEXT,
	recurrence_source_id TEXT UNIQUE,
	successor_id TEXT,
	creator_id TEXT NOT NULL REFERENCES users(id),
	assignee_id TEXT REFERENCES users(id),
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS deps (
	blocking_id TEXT NOT NULL REFERENCES items(id),
	dependent_id TEXT NOT NULL REFERENCES items(id),
	created_at TEXT NOT NULL,
	PRIMARY KEY (blocking_id, dependent_id)
);

CREATE TABLE IF NOT EXISTS time_entries (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES items(id),
	author_id TEXT NOT NULL REFERENCES users(id),
	hours REAL NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES items(id),
	author_id TEXT NOT NULL REFERENCES users(id),
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mentions (
	comment_id TEXT NOT NULL REFERENCES comments(id),
	user_id TEXT NOT NULL REFERENCES users(id),
	username TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (comment_id, user_id)
);

CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES items(id),
	filename TEXT NOT NULL,
	size INTEGER NOT NULL,
	mime_type TEXT NOT NULL,
	uploader_id TEXT NOT NULL REFERENCES users(id),
	url TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS status_history (
	id INTEGER PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES items(id),
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id);
CREATE INDEX IF NOT EXISTS idx_items_reminder ON items(reminder_at) WHERE reminder_sent = 0;
CREATE INDEX IF NOT EXISTS idx_deps_dependent ON deps(dependent_id);
CREATE INDEX IF NOT EXISTS idx_time_entries_item ON time_entries(item_id);
CREATE INDEX IF NOT EXISTS idx_comments_item ON comments(item_id);
CREATE INDEX IF NOT EXISTS idx_attachments_item ON attachments(item_id);
CREATE INDEX IF NOT EXISTS idx_status_history_item ON status_history(item_id);
`

// DB wraps a SQL database connection and implements the service's Store and
// Identity collaborators.
type DB struct {
	*sql.DB
}

// DefaultPath returns the default database path (~/.workdesk/workdesk.db)
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".workdesk", "workdesk.db"), nil
}

// Open opens or creates the database at the given path
func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers inside this process; the busy
	// timeout covers other processes sharing the file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &DB{db}, nil
}

// Init creates the schema.
func (db *DB) Init() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// immediate runs fn inside a BEGIN IMMEDIATE transaction. The write lock is
// taken up front, so reads made by fn cannot be invalidated by another
// process before fn's writes commit. Other writers wait out busy_timeout.
func (db *DB) immediate(ctx context.Context, fn func(q querier) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(conn); err != nil {
		_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
		return err
	}
	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Times are stored as fixed-width UTC text so that SQL comparisons order
// them correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
