package store

import (
	"context"
	"fmt"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// SessionRuleStore persists per-session prompt rules.
type SessionRuleStore struct {
	db *db.DB
}

// NewSessionRuleStore creates a session rule store.
func NewSessionRuleStore(d *db.DB) *SessionRuleStore {
	return &SessionRuleStore{db: d}
}

// Put inserts or replaces a rule keyed by (session, rule id).
func (s *SessionRuleStore) Put(ctx context.Context, rule *SessionRule) error {
	if rule.SessionID == "" || rule.RuleID == "" {
		return fmt.Errorf("session rule requires session_id and rule_id")
	}
	if rule.Content == "" {
		return fmt.Errorf("session rule content is required")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = nowUTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT OR REPLACE INTO session_rules (session_id, rule_id, content, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rule.SessionID, rule.RuleID, rule.Content, boolInt(rule.Enabled), rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put session rule: %w", err)
	}
	return nil
}

// List returns the rules for a session, ordered by creation.
func (s *SessionRuleStore) List(ctx context.Context, sessionID string) ([]*SessionRule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, rule_id, content, enabled, created_at
		FROM session_rules WHERE session_id = ? ORDER BY created_at, rule_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session rules: %w", err)
	}
	defer rows.Close()

	var out []*SessionRule
	for rows.Next() {
		var r SessionRule
		var enabled int
		if err := rows.Scan(&r.SessionID, &r.RuleID, &r.Content, &enabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session rule: %w", err)
		}
		r.Enabled = enabled != 0
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rules: %w", err)
	}
	return out, nil
}

// Delete removes one rule.
func (s *SessionRuleStore) Delete(ctx context.Context, sessionID, ruleID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM session_rules WHERE session_id = ? AND rule_id = ?`, sessionID, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete session rule: %w", err)
	}
	return nil
}
