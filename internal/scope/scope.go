package scope

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/haasonsaas/sheetflow/internal/config"
	"github.com/haasonsaas/sheetflow/internal/db"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/store"
)

// userIDPattern restricts user identifiers to filesystem-safe names so a
// user id can never escape the users/ directory.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ErrInvalidUserID is returned for identifiers that fail the pattern check.
var ErrInvalidUserID = fmt.Errorf("invalid user id")

// UserContext is the immutable requester identity for one invocation. An
// empty UserID is the anonymous sentinel.
type UserContext struct {
	UserID        string
	Role          string
	WorkspaceRoot string
}

// NewUserContext validates a requester identity. The workspace root, when
// given, must be an existing directory.
func NewUserContext(userID, role, workspaceRoot string) (UserContext, error) {
	if userID != "" && !userIDPattern.MatchString(userID) {
		return UserContext{}, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	if workspaceRoot != "" {
		info, err := os.Stat(workspaceRoot)
		if err != nil || !info.IsDir() {
			return UserContext{}, fmt.Errorf("workspace root %q is not a directory", workspaceRoot)
		}
	}
	return UserContext{UserID: userID, Role: role, WorkspaceRoot: workspaceRoot}, nil
}

// IsAnonymous reports whether the context carries no user identity.
func (c UserContext) IsAnonymous() bool { return c.UserID == "" }

// UserScope is the complete per-user view of persistence: one database
// handle plus the store bundle bound to the user's identity. SQLite scopes
// own a private database file under users/<id>/data.db; Postgres scopes
// share one database and partition rows by user_id.
type UserScope struct {
	UserID  string
	Context UserContext
	DB      *db.DB
	Stores  *store.Stores
	DataDir string

	// ReadOnly is set when migration failed at open time; writes are refused
	// upstream but reads of the existing schema still work.
	ReadOnly bool
}

// Manager opens and caches user scopes.
type Manager struct {
	cfg    *config.Config
	logger *observability.Logger

	mu     sync.Mutex
	scopes map[string]*UserScope

	// pg is the shared handle when the backend is Postgres.
	pg *db.DB
}

// NewManager creates a scope manager.
func NewManager(cfg *config.Config, logger *observability.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger,
		scopes: make(map[string]*UserScope),
	}
}

// Acquire returns the scope for a user, opening it on first use. An empty
// userID yields the anonymous scope.
func (m *Manager) Acquire(ctx context.Context, userID string) (*UserScope, error) {
	return m.AcquireFor(ctx, UserContext{UserID: userID})
}

// AcquireFor returns the scope for a requester identity, opening it on first
// use.
func (m *Manager) AcquireFor(ctx context.Context, uc UserContext) (*UserScope, error) {
	if uc.UserID != "" && !userIDPattern.MatchString(uc.UserID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUserID, uc.UserID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scopes[uc.UserID]; ok {
		return s, nil
	}

	s, err := m.open(ctx, uc.UserID)
	if err != nil {
		return nil, err
	}
	s.Context = uc
	m.scopes[uc.UserID] = s
	return s, nil
}

func (m *Manager) open(ctx context.Context, userID string) (*UserScope, error) {
	if m.cfg.Database.Backend == "postgres" {
		return m.openPostgres(ctx, userID)
	}
	return m.openSQLite(ctx, userID)
}

// openSQLite gives each user a private database file. The anonymous scope
// uses the top-level path directly.
func (m *Manager) openSQLite(ctx context.Context, userID string) (*UserScope, error) {
	dataDir := m.cfg.Database.DataDir
	dbPath := filepath.Join(dataDir, m.cfg.Database.Path)
	if userID != "" {
		dataDir = filepath.Join(m.cfg.Database.DataDir, "users", userID)
		dbPath = filepath.Join(dataDir, "data.db")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scope directory: %w", err)
	}

	d, err := db.OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open scope database: %w", err)
	}
	return m.finish(ctx, d, userID, dataDir)
}

func (m *Manager) openPostgres(ctx context.Context, userID string) (*UserScope, error) {
	if m.pg == nil {
		d, err := db.OpenPostgres(db.Config{
			Backend:      "postgres",
			DSN:          m.cfg.Database.DSN,
			MaxOpenConns: m.cfg.Database.MaxConnections,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open shared database: %w", err)
		}
		m.pg = d
	}
	dataDir := m.cfg.Database.DataDir
	if userID != "" {
		dataDir = filepath.Join(m.cfg.Database.DataDir, "users", userID)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scope directory: %w", err)
	}
	return m.finish(ctx, m.pg, userID, dataDir)
}

// finish runs migration and builds the store bundle. Migration failure
// degrades the scope to read-only instead of blocking session start.
func (m *Manager) finish(ctx context.Context, d *db.DB, userID, dataDir string) (*UserScope, error) {
	s := &UserScope{
		UserID:  userID,
		DB:      d,
		DataDir: dataDir,
	}
	if err := d.Migrate(ctx); err != nil {
		m.logger.Warn(ctx, "scope migration failed, continuing read-only",
			"user_id", userID, "error", err)
		s.ReadOnly = true
	}
	s.Stores = store.New(d, userID)
	if m.cfg.Memory.Embedding.Store == "file" {
		s.Stores.Vectors = store.NewFileVectorStore(filepath.Join(dataDir, "vectors.jsonl"))
	}
	if n := m.cfg.Memory.MaxEntries; n > 0 {
		s.Stores.Memory.SetMaxEntries(n)
	}
	return s, nil
}

// Close releases every open scope. SQLite scopes own their handles; the
// shared Postgres handle closes once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, s := range m.scopes {
		if m.cfg.Database.Backend == "postgres" {
			continue
		}
		if err := s.DB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close scope %q: %w", id, err)
		}
	}
	m.scopes = make(map[string]*UserScope)
	if m.pg != nil {
		if err := m.pg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.pg = nil
	}
	return firstErr
}
