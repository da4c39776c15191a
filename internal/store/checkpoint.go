package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// ErrCheckpointNotFound is returned when a session has no checkpoints.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// MaxCheckpointsPerSession bounds the checkpoint ring per session; the oldest
// rows beyond it are evicted on save.
const MaxCheckpointsPerSession = 20

// CheckpointStore persists per-turn session state snapshots.
type CheckpointStore struct {
	db *db.DB
}

// NewCheckpointStore creates a checkpoint store.
func NewCheckpointStore(d *db.DB) *CheckpointStore {
	return &CheckpointStore{db: d}
}

// Save writes a checkpoint and evicts the oldest rows beyond the retention
// bound for the session.
func (s *CheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.SessionID == "" {
		return fmt.Errorf("checkpoint session_id is required")
	}
	if cp.CheckpointType == "" {
		cp.CheckpointType = "turn"
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = nowUTC()
	}
	if cp.StateJSON == "" {
		cp.StateJSON = "{}"
	}
	if cp.TaskListJSON == "" {
		cp.TaskListJSON = "[]"
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO session_checkpoints (session_id, checkpoint_type, state_json, task_list_json, turn_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cp.SessionID, cp.CheckpointType, cp.StateJSON, cp.TaskListJSON,
		cp.TurnNumber, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	prune := fmt.Sprintf(`
		DELETE FROM session_checkpoints WHERE session_id = ? AND id NOT IN (
			SELECT id FROM session_checkpoints WHERE session_id = ?
			ORDER BY id DESC LIMIT %d
		)`, MaxCheckpointsPerSession)
	if _, err := s.db.Exec(ctx, prune, cp.SessionID, cp.SessionID); err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return nil
}

// Latest returns the newest checkpoint for a session.
func (s *CheckpointStore) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, session_id, checkpoint_type, state_json, task_list_json, turn_number, created_at
		FROM session_checkpoints WHERE session_id = ?
		ORDER BY id DESC LIMIT 1`, sessionID)

	var cp Checkpoint
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.CheckpointType, &cp.StateJSON,
		&cp.TaskListJSON, &cp.TurnNumber, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	return &cp, nil
}

// Count returns the number of retained checkpoints for a session.
func (s *CheckpointStore) Count(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_checkpoints WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count checkpoints: %w", err)
	}
	return count, nil
}

// Clear removes all checkpoints for a session.
func (s *CheckpointStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM session_checkpoints WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
