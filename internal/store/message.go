package store

import (
	"context"
	"fmt"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// MessageStore persists append-only conversation messages. Messages belong to
// sessions; user scoping happens through the owning session row.
type MessageStore struct {
	db     *db.DB
	userID string
}

// NewMessageStore creates a message store.
func NewMessageStore(d *db.DB, userID string) *MessageStore {
	return &MessageStore{db: d, userID: userID}
}

// Append inserts one message and returns its assigned id. Ordering within a
// session is the auto-increment id, so appends are strictly ordered.
func (s *MessageStore) Append(ctx context.Context, msg *Message) (int64, error) {
	if msg.SessionID == "" {
		return 0, fmt.Errorf("message session_id is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = nowUTC()
	}
	res, err := s.db.Exec(ctx, `
		INSERT INTO messages (session_id, role, content, turn_number, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, msg.TurnNumber, msg.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		// Postgres does not report LastInsertId through lib/pq; fall back to
		// the max id for the session.
		var maxID int64
		if qErr := s.db.QueryRow(ctx,
			`SELECT COALESCE(MAX(id), 0) FROM messages WHERE session_id = ?`,
			msg.SessionID).Scan(&maxID); qErr == nil {
			id = maxID
		}
	}
	msg.ID = id
	return id, nil
}

// AppendBatch inserts messages in order inside one transaction.
func (s *MessageStore) AppendBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	argSets := make([][]any, 0, len(msgs))
	for _, msg := range msgs {
		if msg.SessionID == "" {
			return fmt.Errorf("message session_id is required")
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = nowUTC()
		}
		argSets = append(argSets, []any{msg.SessionID, msg.Role, msg.Content, msg.TurnNumber, msg.CreatedAt})
	}
	err := s.db.ExecMany(ctx, `
		INSERT INTO messages (session_id, role, content, turn_number, created_at)
		VALUES (?, ?, ?, ?, ?)`, argSets)
	if err != nil {
		return fmt.Errorf("failed to append message batch: %w", err)
	}
	return nil
}

// List returns all messages for a session ordered by id ascending.
// limit <= 0 returns everything.
func (s *MessageStore) List(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, session_id, role, content, turn_number, created_at
		FROM messages WHERE session_id = ? ORDER BY id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.TurnNumber, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

// Count returns the number of messages in a session.
func (s *MessageStore) Count(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// Clear removes every message in a session. Used on session clear and on
// rollback before re-persisting from snapshot index zero.
func (s *MessageStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}
