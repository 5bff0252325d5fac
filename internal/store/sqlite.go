// ABOUTME: SQLite implementation of the MessageStore interface using modernc.org/sqlite
// ABOUTME: Provides message/read-mark persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/guildhouse/chat-gateway/internal/protocol"
	_ "modernc.org/sqlite"
)

const defaultMessageLimit = 50

// SQLiteStore implements the MessageStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// createSchema creates the messages and read_marks tables if needed.
func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		thread_id  TEXT NOT NULL,
		sender_id  TEXT NOT NULL,
		content    TEXT NOT NULL,
		kind       TEXT NOT NULL DEFAULT 'text',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread_created
		ON messages(thread_id, created_at);

	CREATE TABLE IF NOT EXISTS read_marks (
		thread_id  TEXT NOT NULL,
		reader_id  TEXT NOT NULL,
		read_up_to TEXT NOT NULL,
		read_at    TEXT NOT NULL,
		PRIMARY KEY (thread_id, reader_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append persists a message and returns its envelope with the assigned id.
func (s *SQLiteStore) Append(ctx context.Context, threadID, senderID, content, kind string) (*protocol.MessageEnvelope, error) {
	env := &protocol.MessageEnvelope{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		SenderID:  senderID,
		Content:   content,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO messages (message_id, thread_id, sender_id, content, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		env.ID,
		env.ThreadID,
		env.SenderID,
		env.Content,
		env.Kind,
		env.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	return env, nil
}

// MarkRead upserts the reader's high-water mark for a thread.
// Returns ErrNotFound if upToMessageID is not a message of the thread.
func (s *SQLiteStore) MarkRead(ctx context.Context, threadID, readerID, upToMessageID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE message_id = ? AND thread_id = ?`,
		upToMessageID, threadID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking message: %w", err)
	}

	query := `
		INSERT INTO read_marks (thread_id, reader_id, read_up_to, read_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (thread_id, reader_id)
		DO UPDATE SET read_up_to = excluded.read_up_to, read_at = excluded.read_at
	`
	_, err = s.db.ExecContext(ctx, query,
		threadID, readerID, upToMessageID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting read mark: %w", err)
	}
	return nil
}

// Messages returns the thread's messages in creation order.
func (s *SQLiteStore) Messages(ctx context.Context, threadID string, since time.Time, limit int) ([]*protocol.MessageEnvelope, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	query := `
		SELECT message_id, thread_id, sender_id, content, kind, created_at
		FROM messages
		WHERE thread_id = ? AND created_at >= ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		threadID, since.UTC().Format(time.RFC3339Nano), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var envelopes []*protocol.MessageEnvelope
	for rows.Next() {
		env := &protocol.MessageEnvelope{}
		var createdAt string
		if err := rows.Scan(&env.ID, &env.ThreadID, &env.SenderID, &env.Content, &env.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		env.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing message timestamp: %w", err)
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return envelopes, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
