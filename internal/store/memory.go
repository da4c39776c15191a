package store

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// MemoryEntry is one categorised learned fact.
type MemoryEntry struct {
	ID          int64
	EntryID     string
	Category    string
	Content     string
	ContentHash string
	Source      string
	CreatedAt   time.Time
	UserID      string
}

// MemoryStore persists categorised memory entries with content-hash dedup and
// a bounded total capacity.
type MemoryStore struct {
	db         *db.DB
	userID     string
	maxEntries int
}

// DefaultMaxMemoryEntries bounds total memory rows per scope.
const DefaultMaxMemoryEntries = 1000

// NewMemoryStore creates a memory store.
func NewMemoryStore(d *db.DB, userID string) *MemoryStore {
	return &MemoryStore{db: d, userID: userID, maxEntries: DefaultMaxMemoryEntries}
}

// SetMaxEntries overrides the capacity bound. Values <= 0 keep the default.
func (s *MemoryStore) SetMaxEntries(n int) {
	if n > 0 {
		s.maxEntries = n
	}
}

// SaveEntries inserts entries, skipping any whose (category, content hash)
// already exists in scope. Returns the number of newly inserted rows.
func (s *MemoryStore) SaveEntries(ctx context.Context, entries []*MemoryEntry) (int, error) {
	inserted := 0
	for _, e := range entries {
		if e.Content == "" {
			continue
		}
		if e.ContentHash == "" {
			e.ContentHash = ContentHash(s.userID, e.Content)
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = nowUTC()
		}
		res, err := s.db.Exec(ctx, `
			INSERT OR IGNORE INTO memory_entries (entry_id, category, content, content_hash, source, created_at, user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.EntryID, e.Category, e.Content, e.ContentHash, e.Source, e.CreatedAt,
			nullableUser(s.userID))
		if err != nil {
			return inserted, fmt.Errorf("failed to save memory entry: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected > 0 {
			inserted++
		}
	}
	if inserted > 0 {
		if err := s.prune(ctx); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// List returns entries in scope, optionally filtered by category, ordered by
// created_at then id.
func (s *MemoryStore) List(ctx context.Context, category string, limit int) ([]*MemoryEntry, error) {
	filter, args := userFilter(s.userID)
	query := `
		SELECT id, entry_id, category, content, content_hash, source, created_at, COALESCE(user_id, '')
		FROM memory_entries WHERE ` + filter
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory entries: %w", err)
	}
	defer rows.Close()

	var out []*MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.EntryID, &e.Category, &e.Content,
			&e.ContentHash, &e.Source, &e.CreatedAt, &e.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan memory entry: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memory entries: %w", err)
	}
	return out, nil
}

// DeleteByEntryID removes one entry by its external 12-hex id.
func (s *MemoryStore) DeleteByEntryID(ctx context.Context, entryID string) error {
	filter, args := userFilter(s.userID)
	query := `DELETE FROM memory_entries WHERE entry_id = ? AND ` + filter
	_, err := s.db.Exec(ctx, query, append([]any{entryID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete memory entry: %w", err)
	}
	return nil
}

// Count returns the total entries in scope.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	filter, args := userFilter(s.userID)
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM memory_entries WHERE `+filter, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count memory entries: %w", err)
	}
	return count, nil
}

// Clear removes all entries in scope.
func (s *MemoryStore) Clear(ctx context.Context) error {
	filter, args := userFilter(s.userID)
	_, err := s.db.Exec(ctx, `DELETE FROM memory_entries WHERE `+filter, args...)
	if err != nil {
		return fmt.Errorf("failed to clear memory entries: %w", err)
	}
	return nil
}

// prune deletes the oldest rows beyond the capacity bound.
func (s *MemoryStore) prune(ctx context.Context) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	overflow := count - s.maxEntries
	if overflow <= 0 {
		return nil
	}
	filter, args := userFilter(s.userID)
	query := fmt.Sprintf(`
		DELETE FROM memory_entries WHERE id IN (
			SELECT id FROM memory_entries WHERE %s ORDER BY created_at, id LIMIT %d
		)`, filter, overflow)
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to prune memory entries: %w", err)
	}
	return nil
}
