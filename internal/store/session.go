package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// ErrSessionNotFound is returned when a session id does not exist in scope.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists session rows scoped to one user identity.
type SessionStore struct {
	db     *db.DB
	userID string
}

// NewSessionStore creates a session store. userID may be empty for anonymous.
func NewSessionStore(d *db.DB, userID string) *SessionStore {
	return &SessionStore{db: d, userID: userID}
}

// Create inserts a new session row. Zero timestamps are filled with now, and
// the store's user identity overrides whatever is on the struct.
func (s *SessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = nowUTC()
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	if sess.TitleSource == "" {
		sess.TitleSource = TitleSourceUnset
	}
	if sess.Status == "" {
		sess.Status = SessionActive
	}
	sess.UserID = s.userID

	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, title, title_source, created_at, updated_at, message_count, status, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, string(sess.TitleSource), sess.CreatedAt, sess.UpdatedAt,
		sess.MessageCount, string(sess.Status), nullableUser(s.userID))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get returns the session with the given id, or ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	filter, args := userFilter(s.userID)
	query := `
		SELECT id, title, title_source, created_at, updated_at, message_count, status, COALESCE(user_id, '')
		FROM sessions WHERE id = ? AND ` + filter
	row := s.db.QueryRow(ctx, query, append([]any{id}, args...)...)
	return scanSession(row)
}

// List returns sessions in scope ordered by most recently updated.
// Archived sessions are excluded unless includeArchived is set.
func (s *SessionStore) List(ctx context.Context, includeArchived bool, limit int) ([]*Session, error) {
	filter, args := userFilter(s.userID)
	query := `
		SELECT id, title, title_source, created_at, updated_at, message_count, status, COALESCE(user_id, '')
		FROM sessions WHERE ` + filter
	if !includeArchived {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY updated_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// Update writes title, title source, status, and message count for a session.
func (s *SessionStore) Update(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = nowUTC()
	filter, args := userFilter(s.userID)
	query := `
		UPDATE sessions SET title = ?, title_source = ?, updated_at = ?, message_count = ?, status = ?
		WHERE id = ? AND ` + filter
	res, err := s.db.Exec(ctx, query,
		append([]any{sess.Title, string(sess.TitleSource), sess.UpdatedAt,
			sess.MessageCount, string(sess.Status), sess.ID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetTitle updates the title and title source only when the current source
// allows it: an auto-synthesised title never overwrites a user-set one.
func (s *SessionStore) SetTitle(ctx context.Context, id, title string, source TitleSource) error {
	filter, args := userFilter(s.userID)
	query := `
		UPDATE sessions SET title = ?, title_source = ?, updated_at = ?
		WHERE id = ? AND ` + filter
	if source == TitleSourceAuto {
		query += ` AND title_source = 'unset'`
	}
	_, err := s.db.Exec(ctx, query,
		append([]any{title, string(source), nowUTC(), id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to set session title: %w", err)
	}
	return nil
}

// Touch bumps updated_at and synchronises message_count with the messages table.
func (s *SessionStore) Touch(ctx context.Context, id string) error {
	filter, args := userFilter(s.userID)
	query := `
		UPDATE sessions SET updated_at = ?,
			message_count = (SELECT COUNT(*) FROM messages WHERE session_id = sessions.id)
		WHERE id = ? AND ` + filter
	_, err := s.db.Exec(ctx, query, append([]any{nowUTC(), id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Archive marks a session archived.
func (s *SessionStore) Archive(ctx context.Context, id string) error {
	filter, args := userFilter(s.userID)
	query := `UPDATE sessions SET status = 'archived', updated_at = ? WHERE id = ? AND ` + filter
	_, err := s.db.Exec(ctx, query, append([]any{nowUTC(), id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	return nil
}

// Delete removes a session and (via cascade) its messages.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	filter, args := userFilter(s.userID)
	query := `DELETE FROM sessions WHERE id = ? AND ` + filter
	_, err := s.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var titleSource, status string
	err := row.Scan(&sess.ID, &sess.Title, &titleSource, &sess.CreatedAt,
		&sess.UpdatedAt, &sess.MessageCount, &status, &sess.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.TitleSource = TitleSource(titleSource)
	sess.Status = SessionStatus(status)
	return &sess, nil
}

func scanSessionRows(rows *sql.Rows) (*Session, error) {
	var sess Session
	var titleSource, status string
	err := rows.Scan(&sess.ID, &sess.Title, &titleSource, &sess.CreatedAt,
		&sess.UpdatedAt, &sess.MessageCount, &status, &sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.TitleSource = TitleSource(titleSource)
	sess.Status = SessionStatus(status)
	return &sess, nil
}
