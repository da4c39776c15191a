package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Database.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", cfg.Database.Backend)
	}
	if cfg.Session.Persistence != "write_through" {
		t.Errorf("persistence = %q, want write_through", cfg.Session.Persistence)
	}
	if cfg.Masking.FallbackChars != 200 {
		t.Errorf("fallback chars = %d, want 200", cfg.Masking.FallbackChars)
	}
	if cfg.Memory.Embedding.BatchSize != 256 {
		t.Errorf("batch size = %d, want 256", cfg.Memory.Embedding.BatchSize)
	}
	if len(cfg.Perception.IntentKeywords) == 0 {
		t.Error("default intent keywords missing")
	}
}

func TestLoadFileWithEnvExpansion(t *testing.T) {
	os.Setenv("SHEETFLOW_TEST_KEY", "sk-test")
	defer os.Unsetenv("SHEETFLOW_TEST_KEY")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
workspace:
  root: /data/sheets
llm:
  model: claude-sonnet
  timeout: 45s
  providers:
    openai:
      api_key: ${SHEETFLOW_TEST_KEY}
perception:
  budget_tokens: 12000
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Workspace.Root != "/data/sheets" {
		t.Errorf("root = %q", cfg.Workspace.Root)
	}
	if cfg.LLM.Model != "claude-sonnet" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Timeout != 45*time.Second {
		t.Errorf("timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.LLM.Providers["openai"].APIKey != "sk-test" {
		t.Errorf("api key = %q, want env-expanded value", cfg.LLM.Providers["openai"].APIKey)
	}
	if cfg.Perception.BudgetTokens != 12000 {
		t.Errorf("budget = %d", cfg.Perception.BudgetTokens)
	}
	// Unset fields still default.
	if cfg.LLM.SmallModel != "gpt-4o-mini" {
		t.Errorf("small model = %q, want default", cfg.LLM.SmallModel)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Database.Backend = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Backend = "postgres"; c.Database.DSN = "" }},
		{"bad persistence", func(c *Config) { c.Session.Persistence = "lazy" }},
		{"bad perception mode", func(c *Config) { c.Perception.Mode = "hybrid" }},
		{"bad embedding store", func(c *Config) { c.Memory.Embedding.Store = "s3" }},
		{"truncate exceeds max", func(c *Config) { c.Memory.TruncateToLines = 600 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
