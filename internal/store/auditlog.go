package store

import (
	"context"
	"fmt"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// ToolCallLogStore appends tool execution audit rows. Append-only.
type ToolCallLogStore struct {
	db     *db.DB
	userID string
}

// NewToolCallLogStore creates a tool call audit store.
func NewToolCallLogStore(d *db.DB, userID string) *ToolCallLogStore {
	return &ToolCallLogStore{db: d, userID: userID}
}

// Append writes one audit row.
func (s *ToolCallLogStore) Append(ctx context.Context, entry *ToolCallLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = nowUTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO tool_call_log (session_id, turn, iteration, tool_name, arguments, success, duration_ms, error, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Turn, entry.Iteration, entry.ToolName, entry.Arguments,
		boolInt(entry.Success), entry.DurationMS, entry.Error, entry.CreatedAt,
		nullableUser(s.userID))
	if err != nil {
		return fmt.Errorf("failed to append tool call log: %w", err)
	}
	return nil
}

// List returns audit rows for a session ordered by created_at then id.
func (s *ToolCallLogStore) List(ctx context.Context, sessionID string, limit int) ([]*ToolCallLog, error) {
	query := `
		SELECT id, session_id, turn, iteration, tool_name, arguments, success, duration_ms, error, created_at
		FROM tool_call_log WHERE session_id = ? ORDER BY created_at, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool call log: %w", err)
	}
	defer rows.Close()

	var out []*ToolCallLog
	for rows.Next() {
		var e ToolCallLog
		var success int
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Turn, &e.Iteration, &e.ToolName,
			&e.Arguments, &success, &e.DurationMS, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call log: %w", err)
		}
		e.Success = success != 0
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tool call log: %w", err)
	}
	return out, nil
}

// LLMCallLogStore appends LLM call audit rows. Append-only.
type LLMCallLogStore struct {
	db     *db.DB
	userID string
}

// NewLLMCallLogStore creates an LLM call audit store.
func NewLLMCallLogStore(d *db.DB, userID string) *LLMCallLogStore {
	return &LLMCallLogStore{db: d, userID: userID}
}

// Append writes one audit row.
func (s *LLMCallLogStore) Append(ctx context.Context, entry *LLMCallLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = nowUTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO llm_call_log (session_id, turn, iteration, model, prompt_tokens, completion_tokens, latency_ms, ttft_ms, success, error, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Turn, entry.Iteration, entry.Model,
		entry.PromptTokens, entry.CompletionTokens, entry.LatencyMS, entry.TTFTMS,
		boolInt(entry.Success), entry.Error, entry.CreatedAt, nullableUser(s.userID))
	if err != nil {
		return fmt.Errorf("failed to append llm call log: %w", err)
	}
	return nil
}

// List returns audit rows for a session ordered by created_at then id.
func (s *LLMCallLogStore) List(ctx context.Context, sessionID string, limit int) ([]*LLMCallLog, error) {
	query := `
		SELECT id, session_id, turn, iteration, model, prompt_tokens, completion_tokens, latency_ms, ttft_ms, success, error, created_at
		FROM llm_call_log WHERE session_id = ? ORDER BY created_at, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list llm call log: %w", err)
	}
	defer rows.Close()

	var out []*LLMCallLog
	for rows.Next() {
		var e LLMCallLog
		var success int
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Turn, &e.Iteration, &e.Model,
			&e.PromptTokens, &e.CompletionTokens, &e.LatencyMS, &e.TTFTMS,
			&success, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan llm call log: %w", err)
		}
		e.Success = success != 0
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate llm call log: %w", err)
	}
	return out, nil
}
