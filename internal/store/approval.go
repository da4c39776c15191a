package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/haasonsaas/sheetflow/internal/db"
)

// ErrApprovalTerminal is returned when a status update targets an approval
// that already reached success or failed.
var ErrApprovalTerminal = errors.New("approval already in terminal status")

// ErrApprovalNotFound is returned when an approval id does not exist in scope.
var ErrApprovalNotFound = errors.New("approval not found")

// ApprovalStore persists approvals for side-effectful tool executions.
// Status only advances pending -> success or pending -> failed; artefact
// fields are immutable once a terminal status is set.
type ApprovalStore struct {
	db     *db.DB
	userID string
}

// NewApprovalStore creates an approval store.
func NewApprovalStore(d *db.DB, userID string) *ApprovalStore {
	return &ApprovalStore{db: d, userID: userID}
}

// Create inserts a pending approval and returns its id.
func (s *ApprovalStore) Create(ctx context.Context, a *Approval) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAtUTC.IsZero() {
		a.CreatedAtUTC = nowUTC()
	}
	if a.ExecutionStatus == "" {
		a.ExecutionStatus = ApprovalPending
	}
	a.UserID = s.userID

	_, err := s.db.Exec(ctx, `
		INSERT INTO approvals (id, tool_name, arguments, tool_scope, created_at_utc,
			execution_status, undoable, audit_dir, manifest_file, patch_file,
			repo_diff_before, user_id, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ToolName, a.Arguments, a.ToolScope, a.CreatedAtUTC,
		string(a.ExecutionStatus), boolInt(a.Undoable), a.AuditDir,
		a.ManifestFile, a.PatchFile, a.RepoDiffBefore,
		nullableUser(s.userID), nullableUser(a.SessionID))
	if err != nil {
		return "", fmt.Errorf("failed to create approval: %w", err)
	}
	return a.ID, nil
}

// Get returns an approval by id.
func (s *ApprovalStore) Get(ctx context.Context, id string) (*Approval, error) {
	filter, args := userFilter(s.userID)
	query := `
		SELECT id, tool_name, arguments, tool_scope, created_at_utc,
			applied_at_utc, execution_status, undoable,
			result_preview, error_type, error_message, partial_scan, audit_dir,
			manifest_file, patch_file, repo_diff_before, repo_diff_after, changes,
			binary_snapshots, COALESCE(user_id, ''), COALESCE(session_id, '')
		FROM approvals WHERE id = ? AND ` + filter
	row := s.db.QueryRow(ctx, query, append([]any{id}, args...)...)

	var a Approval
	var status string
	var undoable, partialScan int
	var appliedAt sql.NullTime
	err := row.Scan(&a.ID, &a.ToolName, &a.Arguments, &a.ToolScope, &a.CreatedAtUTC,
		&appliedAt, &status, &undoable, &a.ResultPreview, &a.ErrorType,
		&a.ErrorMessage, &partialScan, &a.AuditDir, &a.ManifestFile, &a.PatchFile,
		&a.RepoDiffBefore, &a.RepoDiffAfter, &a.Changes, &a.BinarySnapshots,
		&a.UserID, &a.SessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrApprovalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}
	if appliedAt.Valid {
		a.AppliedAtUTC = appliedAt.Time
	}
	a.ExecutionStatus = ApprovalStatus(status)
	a.Undoable = undoable != 0
	a.PartialScan = partialScan != 0
	return &a, nil
}

// MarkSuccess advances a pending approval to success with its result artefacts.
func (s *ApprovalStore) MarkSuccess(ctx context.Context, id, resultPreview, repoDiffAfter, changes string) error {
	return s.finish(ctx, id, ApprovalSuccess, resultPreview, "", "", repoDiffAfter, changes)
}

// MarkFailed advances a pending approval to failed with the error details.
func (s *ApprovalStore) MarkFailed(ctx context.Context, id, errorType, errorMessage string) error {
	return s.finish(ctx, id, ApprovalFailed, "", errorType, errorMessage, "", "")
}

func (s *ApprovalStore) finish(ctx context.Context, id string, status ApprovalStatus,
	resultPreview, errorType, errorMessage, repoDiffAfter, changes string) error {

	filter, args := userFilter(s.userID)
	query := `
		UPDATE approvals SET execution_status = ?, applied_at_utc = ?,
			result_preview = ?, error_type = ?, error_message = ?,
			repo_diff_after = ?, changes = ?
		WHERE id = ? AND execution_status = 'pending' AND ` + filter
	res, err := s.db.Exec(ctx, query,
		append([]any{string(status), nowUTC(), resultPreview, errorType,
			errorMessage, repoDiffAfter, changes, id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to finish approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if affected == 0 {
		// Distinguish missing from already-terminal.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrApprovalTerminal
	}
	return nil
}

// ListPending returns pending approvals in scope, oldest first.
func (s *ApprovalStore) ListPending(ctx context.Context, limit int) ([]*Approval, error) {
	filter, args := userFilter(s.userID)
	query := `
		SELECT id FROM approvals WHERE execution_status = 'pending' AND ` + filter +
		` ORDER BY created_at_utc, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan approval id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvals: %w", err)
	}

	out := make([]*Approval, 0, len(ids))
	for _, id := range ids {
		a, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
