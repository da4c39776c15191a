package config

import (
	"fmt"
	"time"
)

// Config is the main configuration structure for SheetFlow.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Database   DatabaseConfig   `yaml:"database"`
	LLM        LLMConfig        `yaml:"llm"`
	Memory     MemoryConfig     `yaml:"memory"`
	Perception PerceptionConfig `yaml:"perception"`
	Session    SessionConfig    `yaml:"session"`
	Masking    MaskingConfig    `yaml:"masking"`
	Rules      RulesConfig      `yaml:"rules"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type WorkspaceConfig struct {
	Root string `yaml:"root"`
	// Watch enables filesystem change notification on the workspace root so
	// the manifest refreshes without a rescan.
	Watch bool `yaml:"watch"`
	// MaxScanFiles bounds a manifest scan; 0 means unlimited.
	MaxScanFiles int `yaml:"max_scan_files"`
}

type DatabaseConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `yaml:"backend"`
	// Path is the SQLite database file (sqlite backend only). Per-user
	// databases live under <data_dir>/users/<user_id>/data.db.
	Path    string `yaml:"path"`
	DataDir string `yaml:"data_dir"`
	// DSN is the Postgres connection string (postgres backend only).
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
	// Model is the primary conversation model.
	Model string `yaml:"model"`
	// SmallModel serves advisory calls (titles, window lifecycle hints).
	SmallModel string        `yaml:"small_model"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
	// MaxRetries bounds transient retry attempts per request.
	MaxRetries int `yaml:"max_retries"`
}

type LLMProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type MemoryConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
	// MaxFileLines bounds the rendered memory markdown before truncation.
	MaxFileLines int `yaml:"max_file_lines"`
	// TruncateToLines is the post-truncation size.
	TruncateToLines int             `yaml:"truncate_to_lines"`
	Embedding       EmbeddingConfig `yaml:"embedding"`
}

type EmbeddingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// Dimensions is the expected vector width; 0 accepts the provider default.
	Dimensions int `yaml:"dimensions"`
	// BatchSize bounds texts per embedding request.
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
	// Store is "db" or "file".
	Store string `yaml:"store"`
}

type PerceptionConfig struct {
	Enabled bool `yaml:"enabled"`
	// BudgetTokens is the total token budget for rendered windows per turn.
	BudgetTokens int `yaml:"budget_tokens"`
	// MaxWindows bounds live windows before lifecycle eviction kicks in.
	MaxWindows int `yaml:"max_windows"`
	// Mode forces "anchored" or "unified"; empty selects by model family.
	Mode string `yaml:"mode"`
	// IntentKeywords maps intent names to trigger phrases. Defaults cover
	// English and Chinese spreadsheet vocabulary.
	IntentKeywords map[string][]string `yaml:"intent_keywords"`
	// SmallModelAdvisor enables lifecycle hints from the small model.
	SmallModelAdvisor bool `yaml:"small_model_advisor"`
	// RepeatThreshold flags a window re-read after this many identical reads.
	RepeatThreshold int `yaml:"repeat_threshold"`
}

type SessionConfig struct {
	// Persistence is "write_through" (every turn persists immediately) or
	// "snapshot" (bridge flushes on checkpoint).
	Persistence string `yaml:"persistence"`
	// WipeOnRollback clears persisted rows past the rollback point instead of
	// keeping them for audit.
	WipeOnRollback bool `yaml:"wipe_on_rollback"`
	// TitleMaxLen bounds auto-synthesised titles.
	TitleMaxLen    int `yaml:"title_max_len"`
	MaxCheckpoints int `yaml:"max_checkpoints"`
}

type MaskingConfig struct {
	// Disabled turns off stale-observation masking; masking is on by default.
	Disabled bool `yaml:"disabled"`
	// FallbackChars is the head-truncation length for observations with no
	// tool-specific template.
	FallbackChars int `yaml:"fallback_chars"`
}

type RulesConfig struct {
	// GlobalPath is a YAML file of rules prepended to every session.
	GlobalPath string `yaml:"global_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
	// Redact disables secret pattern scrubbing when false.
	Redact bool `yaml:"redact"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Workspace.Root == "" {
		c.Workspace.Root = "."
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "sqlite"
	}
	if c.Database.DataDir == "" {
		c.Database.DataDir = ".sheetflow"
	}
	if c.Database.Path == "" {
		c.Database.Path = "sheetflow.db"
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 10
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.LLM.SmallModel == "" {
		c.LLM.SmallModel = "gpt-4o-mini"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.Memory.MaxEntries == 0 {
		c.Memory.MaxEntries = 1000
	}
	if c.Memory.MaxFileLines == 0 {
		c.Memory.MaxFileLines = 500
	}
	if c.Memory.TruncateToLines == 0 {
		c.Memory.TruncateToLines = 400
	}
	if c.Memory.Embedding.Model == "" {
		c.Memory.Embedding.Model = "text-embedding-3-small"
	}
	if c.Memory.Embedding.BatchSize == 0 {
		c.Memory.Embedding.BatchSize = 256
	}
	if c.Memory.Embedding.Timeout == 0 {
		c.Memory.Embedding.Timeout = 30 * time.Second
	}
	if c.Memory.Embedding.Store == "" {
		c.Memory.Embedding.Store = "db"
	}
	if c.Perception.BudgetTokens == 0 {
		c.Perception.BudgetTokens = 8000
	}
	if c.Perception.MaxWindows == 0 {
		c.Perception.MaxWindows = 12
	}
	if c.Perception.RepeatThreshold == 0 {
		c.Perception.RepeatThreshold = 3
	}
	if len(c.Perception.IntentKeywords) == 0 {
		c.Perception.IntentKeywords = DefaultIntentKeywords()
	}
	if c.Session.Persistence == "" {
		c.Session.Persistence = "write_through"
	}
	if c.Session.TitleMaxLen == 0 {
		c.Session.TitleMaxLen = 60
	}
	if c.Session.MaxCheckpoints == 0 {
		c.Session.MaxCheckpoints = 20
	}
	if c.Masking.FallbackChars == 0 {
		c.Masking.FallbackChars = 200
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database backend %q", c.Database.Backend)
	}
	if c.Database.Backend == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("postgres backend requires database.dsn")
	}
	switch c.Session.Persistence {
	case "write_through", "snapshot":
	default:
		return fmt.Errorf("invalid session persistence %q", c.Session.Persistence)
	}
	switch c.Perception.Mode {
	case "", "anchored", "unified":
	default:
		return fmt.Errorf("invalid perception mode %q", c.Perception.Mode)
	}
	switch c.Memory.Embedding.Store {
	case "db", "file":
	default:
		return fmt.Errorf("invalid embedding store %q", c.Memory.Embedding.Store)
	}
	if c.Memory.TruncateToLines > c.Memory.MaxFileLines {
		return fmt.Errorf("memory.truncate_to_lines must not exceed memory.max_file_lines")
	}
	return nil
}

// DefaultIntentKeywords returns the built-in intent trigger phrases covering
// English and Chinese spreadsheet vocabulary.
func DefaultIntentKeywords() map[string][]string {
	return map[string][]string{
		"filter":    {"filter", "only show", "筛选", "过滤"},
		"sort":      {"sort", "order by", "排序"},
		"aggregate": {"sum", "total", "average", "count", "汇总", "求和", "平均"},
		"compare":   {"compare", "difference", "versus", "对比", "比较"},
		"pivot":     {"pivot", "group by", "透视", "分组"},
		"chart":     {"chart", "plot", "graph", "图表", "画图"},
		"lookup":    {"lookup", "find", "search", "查找", "搜索"},
	}
}
