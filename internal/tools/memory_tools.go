package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/sheetflow/internal/memory"
)

// Fixed replies the model can pattern-match on.
const (
	msgMemoryDisabled = "Memory is currently disabled."
	msgMemoryReadOnly = "Memory is in read-only mode; the note was not saved."
	msgTopicEmpty     = "No entries recorded for this topic yet."
)

type readTopicParams struct {
	Topic string `json:"topic" jsonschema:"enum=file_patterns,enum=user_prefs,enum=error_solutions,enum=general,description=Memory topic to read"`
}

// ReadTopicTool exposes memory_read_topic.
type ReadTopicTool struct{}

func (t *ReadTopicTool) Name() string { return "memory_read_topic" }

func (t *ReadTopicTool) Description() string {
	return "Read saved notes for a topic: file_patterns, user_prefs, error_solutions, or general."
}

func (t *ReadTopicTool) Schema() json.RawMessage {
	return SchemaFor(&readTopicParams{})
}

func (t *ReadTopicTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var p readTopicParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Errorf("invalid memory_read_topic arguments: %v", err), nil
	}
	m := MemoryFrom(ctx)
	if m == nil || !m.Enabled() {
		return &Result{Content: msgMemoryDisabled}, nil
	}
	text, err := m.ReadTopic(ctx, memory.ParseCategory(p.Topic))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory topic: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return &Result{Content: msgTopicEmpty}, nil
	}
	return &Result{Content: text}, nil
}

type saveParams struct {
	Content  string `json:"content" jsonschema:"description=The note to remember"`
	Category string `json:"category" jsonschema:"enum=file_pattern,enum=user_pref,enum=error_solution,enum=general,description=Category for the note"`
}

// SaveTool exposes memory_save.
type SaveTool struct{}

func (t *SaveTool) Name() string { return "memory_save" }

func (t *SaveTool) Description() string {
	return "Save a durable note about the user's files, preferences, or solved errors."
}

func (t *SaveTool) Schema() json.RawMessage {
	return SchemaFor(&saveParams{})
}

func (t *SaveTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var p saveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Errorf("invalid memory_save arguments: %v", err), nil
	}
	if strings.TrimSpace(p.Content) == "" {
		return Errorf("memory_save requires non-empty content"), nil
	}
	m := MemoryFrom(ctx)
	if m == nil || !m.Enabled() {
		return &Result{Content: msgMemoryDisabled}, nil
	}
	entry, err := m.Save(ctx, memory.ParseCategory(p.Category), p.Content, "agent")
	if err != nil {
		if errors.Is(err, memory.ErrReadOnly) {
			return &Result{Content: msgMemoryReadOnly}, nil
		}
		return nil, fmt.Errorf("failed to save memory entry: %w", err)
	}
	return &Result{Content: fmt.Sprintf("Saved note %s under %s.", entry.ID, entry.Category)}, nil
}
