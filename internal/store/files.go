package store

import (
	"context"
	"fmt"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// WorkspaceFileStore caches scanned workspace manifests so session start can
// refresh by mtime diff instead of re-reading every spreadsheet.
type WorkspaceFileStore struct {
	db     *db.DB
	userID string
}

// NewWorkspaceFileStore creates a workspace file store.
func NewWorkspaceFileStore(d *db.DB, userID string) *WorkspaceFileStore {
	return &WorkspaceFileStore{db: d, userID: userID}
}

// Upsert inserts or replaces a scanned file keyed by (workspace, path).
func (s *WorkspaceFileStore) Upsert(ctx context.Context, f *WorkspaceFile) error {
	if f.ScannedAt.IsZero() {
		f.ScannedAt = nowUTC()
	}
	if f.SheetsJSON == "" {
		f.SheetsJSON = "[]"
	}
	// Delete-then-insert keeps the (workspace, path) uniqueness portable
	// across both backends without depending on their upsert targets.
	if _, err := s.db.Exec(ctx,
		`DELETE FROM workspace_files WHERE workspace = ? AND path = ?`,
		f.Workspace, f.Path); err != nil {
		return fmt.Errorf("failed to replace workspace file: %w", err)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO workspace_files (workspace, path, name, size_bytes, mtime_ns, sheets_json, scanned_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Workspace, f.Path, f.Name, f.SizeBytes, f.MTimeNS, f.SheetsJSON,
		f.ScannedAt, nullableUser(s.userID))
	if err != nil {
		return fmt.Errorf("failed to upsert workspace file: %w", err)
	}
	return nil
}

// ListByWorkspace returns cached files for a workspace, ordered by path.
func (s *WorkspaceFileStore) ListByWorkspace(ctx context.Context, workspace string) ([]*WorkspaceFile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, workspace, path, name, size_bytes, mtime_ns, sheets_json, scanned_at, COALESCE(user_id, '')
		FROM workspace_files WHERE workspace = ? ORDER BY path`, workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace files: %w", err)
	}
	defer rows.Close()

	var out []*WorkspaceFile
	for rows.Next() {
		var f WorkspaceFile
		if err := rows.Scan(&f.ID, &f.Workspace, &f.Path, &f.Name, &f.SizeBytes,
			&f.MTimeNS, &f.SheetsJSON, &f.ScannedAt, &f.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan workspace file: %w", err)
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workspace files: %w", err)
	}
	return out, nil
}

// Delete removes one cached file.
func (s *WorkspaceFileStore) Delete(ctx context.Context, workspace, path string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM workspace_files WHERE workspace = ? AND path = ?`, workspace, path)
	if err != nil {
		return fmt.Errorf("failed to delete workspace file: %w", err)
	}
	return nil
}

// FileRegistryStore assigns stable short aliases to spreadsheet files and
// records registry events for audit.
type FileRegistryStore struct {
	db     *db.DB
	userID string
}

// NewFileRegistryStore creates a file registry store.
func NewFileRegistryStore(d *db.DB, userID string) *FileRegistryStore {
	return &FileRegistryStore{db: d, userID: userID}
}

// Register adds a file to the registry if absent and binds its alias.
// Re-registering an existing path refreshes size/mtime and keeps the alias.
func (s *FileRegistryStore) Register(ctx context.Context, path, alias string, sizeBytes, mtimeNS int64) error {
	now := nowUTC()
	_, err := s.db.Exec(ctx, `
		INSERT OR IGNORE INTO file_registry (path, alias, size_bytes, mtime_ns, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		path, alias, sizeBytes, mtimeNS, now, nullableUser(s.userID))
	if err != nil {
		return fmt.Errorf("failed to register file: %w", err)
	}
	if _, err := s.db.Exec(ctx,
		`UPDATE file_registry SET size_bytes = ?, mtime_ns = ? WHERE path = ?`,
		sizeBytes, mtimeNS, path); err != nil {
		return fmt.Errorf("failed to refresh file registry row: %w", err)
	}
	if alias != "" {
		_, err = s.db.Exec(ctx, `
			INSERT OR REPLACE INTO file_registry_aliases (alias, path, created_at)
			VALUES (?, ?, ?)`, alias, path, now)
		if err != nil {
			return fmt.Errorf("failed to bind file alias: %w", err)
		}
	}
	return s.AppendEvent(ctx, path, "registered", alias)
}

// ResolveAlias returns the path bound to an alias, or empty when unbound.
func (s *FileRegistryStore) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var path string
	err := s.db.QueryRow(ctx,
		`SELECT path FROM file_registry_aliases WHERE alias = ?`, alias).Scan(&path)
	if err != nil {
		return "", nil
	}
	return path, nil
}

// AppendEvent writes one append-only registry event.
func (s *FileRegistryStore) AppendEvent(ctx context.Context, path, event, detail string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO file_registry_events (path, event, detail, created_at)
		VALUES (?, ?, ?, ?)`, path, event, detail, nowUTC())
	if err != nil {
		return fmt.Errorf("failed to append registry event: %w", err)
	}
	return nil
}

// List returns registered files, ordered by path.
func (s *FileRegistryStore) List(ctx context.Context) ([]*RegistryFile, error) {
	filter, args := userFilter(s.userID)
	rows, err := s.db.Query(ctx, `
		SELECT id, path, alias, size_bytes, mtime_ns, created_at, COALESCE(user_id, '')
		FROM file_registry WHERE `+filter+` ORDER BY path`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list file registry: %w", err)
	}
	defer rows.Close()

	var out []*RegistryFile
	for rows.Next() {
		var f RegistryFile
		if err := rows.Scan(&f.ID, &f.Path, &f.Alias, &f.SizeBytes, &f.MTimeNS,
			&f.CreatedAt, &f.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan file registry row: %w", err)
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file registry: %w", err)
	}
	return out, nil
}
