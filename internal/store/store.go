// Package store persists conversation threads and their messages in SQLite.
// One thread holds one conversation; messages are append-only rows in the
// flattened storage shape and are rebuilt into provider-ready history through
// the conversation reconciler.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"ansari/internal/conversation"
	"ansari/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id    TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	tool_name    TEXT NOT NULL DEFAULT '',
	tool_details TEXT NOT NULL DEFAULT '',
	ref_list     TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, id);
`

// Thread is one stored conversation.
type Thread struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ErrThreadNotFound reports a lookup of an unknown thread id.
var ErrThreadNotFound = fmt.Errorf("thread not found")

// Store wraps the SQLite database. Safe for concurrent use; writes serialize
// on a single connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes the database at path, creating the file and schema on
// first use and applying column migrations on subsequent opens.
func Open(path string) (*Store, error) {
	log := logging.Get(logging.CategoryStore)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debugf("%s failed: %v", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Debugf("opened thread store at %s", path)
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateThread registers a new conversation and returns it.
func (s *Store) CreateThread(ctx context.Context, name string) (Thread, error) {
	t := Thread{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO threads (id, name, created_at) VALUES (?, ?, ?)",
		t.ID, t.Name, t.CreatedAt)
	if err != nil {
		return Thread{}, fmt.Errorf("failed to create thread: %w", err)
	}
	return t, nil
}

// GetThread looks up one thread by id.
func (s *Store) GetThread(ctx context.Context, id string) (Thread, error) {
	var t Thread
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM threads WHERE id = ?", id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	if err != nil {
		return Thread{}, fmt.Errorf("failed to load thread: %w", err)
	}
	return t, nil
}

// ListThreads returns all threads, newest first.
func (s *Store) ListThreads(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM threads ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// RenameThread updates a thread's display name.
func (s *Store) RenameThread(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE threads SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("failed to rename thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return nil
}

// DeleteThread removes a thread and, via the foreign key, its messages.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return nil
}

// AppendMessage stores one message row at the end of a thread.
func (s *Store) AppendMessage(ctx context.Context, threadID string, row conversation.StorageRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (thread_id, role, content, tool_name, tool_details, ref_list)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		threadID, row.Role, row.Content, row.ToolName, row.ToolDetails, row.RefList)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// MessageRows returns the raw stored rows of a thread in append order.
func (s *Store) MessageRows(ctx context.Context, threadID string) ([]conversation.StorageRow, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_name, tool_details, ref_list
		 FROM messages WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []conversation.StorageRow
	for rows.Next() {
		var r conversation.StorageRow
		if err := rows.Scan(&r.Role, &r.Content, &r.ToolName, &r.ToolDetails, &r.RefList); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// History rebuilds a thread's provider-ready message history.
func (s *Store) History(ctx context.Context, threadID string) ([]conversation.Message, error) {
	rows, err := s.MessageRows(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return conversation.FromStorageRows(rows), nil
}
