package db

import (
	"context"
	"fmt"
)

// Migrate applies any schema migrations newer than the recorded version.
// Versions run in ascending order; each version executes inside its own
// transaction together with the schema_version bookkeeping row, so a failed
// step never leaves the version counter ahead of the schema.
func (d *DB) Migrate(ctx context.Context) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := d.sqlDB.ExecContext(ctx, d.Rewrite(
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)`)); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	applied, err := d.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for version := 1; version <= len(migrations); version++ {
		if applied[version] {
			continue
		}
		if err := d.applyMigration(ctx, version, migrations[version-1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_version: %w", err)
	}
	defer rows.Close()

	applied := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan schema_version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	return applied, nil
}

func (d *DB) applyMigration(ctx context.Context, version int, stmt string) error {
	tx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, d.Rewrite(stmt)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to apply migration %d: %w", version, err)
	}
	record := d.Rewrite(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`)
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", version, err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, or 0 when the
// database is empty.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	exists, err := d.TableExists(ctx, "schema_version")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var version int
	err = d.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
