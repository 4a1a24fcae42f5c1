package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore is a SQLite-backed history Provider.
type SQLiteStore struct {
	db *sql.DB
}

// tsLayout is RFC 3339 with a fixed-width nanosecond fraction. Messages
// are ordered by comparing timestamps as text, which requires the
// fraction to never drop trailing zeros the way RFC3339Nano does.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewSQLiteStore creates a store on an existing database handle and
// ensures the schema exists. The caller owns the handle's lifecycle;
// production code opens it with the sqlite3 driver
// (dbPath + "?_journal_mode=WAL&_busy_timeout=5000").
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		track TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		metadata TEXT,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_messages_track ON messages(conversation_id, track, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ensureConversation inserts the conversation row if it does not exist.
func (s *SQLiteStore) ensureConversation(ctx context.Context, id, now string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, id, now, now)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// Append adds a message to a track and returns its id.
func (s *SQLiteStore) Append(ctx context.Context, conversationID, track, role, content string, metadata map[string]any) (string, error) {
	now := time.Now().UTC().Format(tsLayout)

	if err := s.ensureConversation(ctx, conversationID, now); err != nil {
		return "", err
	}

	msgID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate message id: %w", err)
	}

	var meta any
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(data)
	} // else nil (NULL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, track, role, content, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msgID.String(), conversationID, track, role, content, now, meta)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, now, conversationID)
	if err != nil {
		return "", fmt.Errorf("update conversation: %w", err)
	}

	return msgID.String(), nil
}

// Load returns the merged view of the dialogue and chat tracks, ordered
// by timestamp. The agent log track stays out of the searchable view.
// Missing conversations yield an empty view, not an error.
func (s *SQLiteStore) Load(ctx context.Context, conversationID string) (View, error) {
	return s.query(ctx, `
		SELECT id, track, role, content, timestamp, metadata
		FROM messages
		WHERE conversation_id = ? AND track IN (?, ?)
		ORDER BY timestamp ASC
	`, conversationID, TrackDialogue, TrackChat)
}

// LoadTrack returns a single track in insertion order.
func (s *SQLiteStore) LoadTrack(ctx context.Context, conversationID, track string) (View, error) {
	return s.query(ctx, `
		SELECT id, track, role, content, timestamp, metadata
		FROM messages
		WHERE conversation_id = ? AND track = ?
		ORDER BY timestamp ASC
	`, conversationID, track)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) (View, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var view View
	for rows.Next() {
		var m Message
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.Track, &m.Role, &m.Content, &m.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
			}
		}
		view = append(view, m)
	}
	return view, rows.Err()
}

// ConversationSummary describes one stored conversation.
type ConversationSummary struct {
	ID        string `json:"id"`
	Messages  int    `json:"message_count"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListConversations returns all conversations, most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.Messages); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats returns per-track usage statistics for a conversation.
func (s *SQLiteStore) Stats(ctx context.Context, conversationID string) (map[string]any, error) {
	stats := map[string]any{}

	for _, track := range []string{TrackDialogue, TrackChat, TrackAgent} {
		var count, chars int
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0)
			FROM messages
			WHERE conversation_id = ? AND track = ?
		`, conversationID, track).Scan(&count, &chars)
		if err != nil {
			return nil, fmt.Errorf("track stats: %w", err)
		}
		stats[track+"_messages_count"] = count
		stats[track+"_characters"] = chars
		stats[track+"_estimated_tokens"] = chars / 4
	}

	return stats, nil
}
