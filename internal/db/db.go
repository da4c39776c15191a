// Package db provides a uniform connection adapter over SQLite and Postgres.
//
// All store SQL in this repository is written in the SQLite dialect using `?`
// placeholders. When the backend is Postgres the adapter rewrites statements
// on the way out: placeholders become positional (`$1`, `$2`, ...), and the
// SQLite upsert forms (`INSERT OR IGNORE`, `INSERT OR REPLACE`) become the
// equivalent `ON CONFLICT` clauses. Stores never need to know which backend
// they are talking to.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/lib/pq"      // Postgres driver
	_ "modernc.org/sqlite"     // Pure-Go SQLite driver
)

// Dialect identifies the SQL dialect of the underlying backend.
type Dialect int

const (
	// DialectSQLite is the default file or in-memory backend.
	DialectSQLite Dialect = iota

	// DialectPostgres is the shared-server backend.
	DialectPostgres
)

// String returns the dialect name.
func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB is the connection adapter shared by all stores. It owns a *sql.DB,
// rewrites statements for the active dialect, and serialises writes so that
// SQLite access from multiple goroutines stays safe at the statement level.
type DB struct {
	sqlDB   *sql.DB
	dialect Dialect

	// writeMu serialises mutating statements. SQLite allows a single writer;
	// taking the lock for Postgres too keeps commit ordering deterministic.
	writeMu sync.Mutex
}

// Config holds connection configuration for either backend.
type Config struct {
	// Backend selects "sqlite" (default) or "postgres".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path. ":memory:" opens an in-memory
	// database. Ignored for Postgres.
	Path string `yaml:"path"`

	// DSN is the Postgres connection string. Ignored for SQLite.
	DSN string `yaml:"dsn"`

	// MaxOpenConns bounds the Postgres connection pool.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns bounds idle Postgres connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns the default SQLite configuration.
func DefaultConfig() Config {
	return Config{
		Backend:        "sqlite",
		Path:           "data.db",
		MaxOpenConns:   25,
		MaxIdleConns:   5,
		ConnectTimeout: 10 * time.Second,
	}
}

// Open opens a database connection for the configured backend and applies any
// pending schema migrations.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	var adapter *DB
	var err error

	switch cfg.Backend {
	case "", "sqlite":
		adapter, err = OpenSQLite(cfg.Path)
	case "postgres":
		adapter, err = OpenPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database backend: %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := adapter.Migrate(ctx); err != nil {
		adapter.Close()
		return nil, err
	}
	return adapter, nil
}

// OpenSQLite opens (and creates if needed) a SQLite database at path.
// The connection uses WAL journaling and a busy timeout so that concurrent
// sessions sharing one file do not fail on transient lock contention.
func OpenSQLite(path string) (*DB, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// modernc.org/sqlite serialises internally, but a single connection keeps
	// transaction semantics predictable for the statement-level locking model.
	sqlDB.SetMaxOpenConns(1)

	return &DB{sqlDB: sqlDB, dialect: DialectSQLite}, nil
}

// OpenPostgres opens a Postgres connection using the configured DSN.
func OpenPostgres(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return &DB{sqlDB: sqlDB, dialect: DialectPostgres}, nil
}

// NewFromSQL wraps an existing *sql.DB with the given dialect. Used by tests
// and by callers that manage the connection lifecycle themselves.
func NewFromSQL(sqlDB *sql.DB, dialect Dialect) *DB {
	return &DB{sqlDB: sqlDB, dialect: dialect}
}

// Dialect returns the active SQL dialect.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// SQL exposes the underlying connection for related components (migrator,
// backup tooling). Stores should go through Exec/Query instead.
func (d *DB) SQL() *sql.DB {
	return d.sqlDB
}

// Exec executes a mutating statement after dialect rewriting.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.sqlDB.ExecContext(ctx, d.Rewrite(query), args...)
}

// ExecMany executes the same statement once per argument set inside a single
// transaction. The whole batch commits or rolls back together.
func (d *DB) ExecMany(ctx context.Context, query string, argSets [][]any) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	rewritten := d.Rewrite(query)
	stmt, err := tx.PrepareContext(ctx, rewritten)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, args := range argSets {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute batch statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Query runs a query after dialect rewriting.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sqlDB.QueryContext(ctx, d.Rewrite(query), args...)
}

// QueryRow runs a single-row query after dialect rewriting.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sqlDB.QueryRowContext(ctx, d.Rewrite(query), args...)
}

// TableExists reports whether a table with the given name exists.
func (d *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var query string
	switch d.dialect {
	case DialectPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}

	var count int
	if err := d.sqlDB.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.sqlDB.Close()
}

// RowMap reads all remaining rows into maps keyed by column name, giving
// callers name-based access on top of the usual positional Scan.
func RowMap(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				m[col] = string(b)
			} else {
				m[col] = values[i]
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}
