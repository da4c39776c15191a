// Package rules loads the user's global prompt rules from YAML and combines
// them with per-session rules into a block for the system prompt.
package rules

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/sheetflow/internal/store"
)

// Rule is one prompt rule. Global rules come from the YAML file; session
// rules come from the session_rules table.
type Rule struct {
	ID        string    `yaml:"id"`
	Content   string    `yaml:"content"`
	Enabled   bool      `yaml:"enabled"`
	CreatedAt time.Time `yaml:"created_at,omitempty"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadGlobal reads the global rules file. A missing file yields no rules.
func LoadGlobal(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return f.Rules, nil
}

// SaveGlobal writes the global rules file.
func SaveGlobal(path string, rules []Rule) error {
	data, err := yaml.Marshal(rulesFile{Rules: rules})
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return nil
}

// Composer merges global and session rules into prompt text.
type Composer struct {
	globalPath string
	sessions   *store.SessionRuleStore
}

// NewComposer creates a composer. sessions may be nil when no database is
// available; only global rules apply then.
func NewComposer(globalPath string, sessions *store.SessionRuleStore) *Composer {
	return &Composer{globalPath: globalPath, sessions: sessions}
}

// Compose returns the enabled rules for a session as a prompt block, global
// rules first, then session rules in creation order. An empty result means
// no rules apply.
func (c *Composer) Compose(ctx context.Context, sessionID string) (string, error) {
	global, err := LoadGlobal(c.globalPath)
	if err != nil {
		return "", err
	}
	sort.SliceStable(global, func(i, j int) bool {
		return global[i].CreatedAt.Before(global[j].CreatedAt)
	})

	var session []*store.SessionRule
	if c.sessions != nil && sessionID != "" {
		session, err = c.sessions.List(ctx, sessionID)
		if err != nil {
			return "", err
		}
	}

	var lines []string
	for _, r := range global {
		if r.Enabled && strings.TrimSpace(r.Content) != "" {
			lines = append(lines, "- "+strings.TrimSpace(r.Content))
		}
	}
	for _, r := range session {
		if r.Enabled && strings.TrimSpace(r.Content) != "" {
			lines = append(lines, "- "+strings.TrimSpace(r.Content))
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return "User rules:\n" + strings.Join(lines, "\n"), nil
}
