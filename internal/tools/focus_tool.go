package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/sheetflow/internal/perception"
)

type focusParams struct {
	WindowID string `json:"window_id" jsonschema:"description=Window to act on (e.g. sheet_1)"`
	Action   string `json:"action" jsonschema:"enum=scroll,enum=clear_filter,enum=expand,enum=restore,description=Focus action"`
	Range    string `json:"range,omitempty" jsonschema:"description=Target range for scroll in A1:D25 form"`
	Rows     int    `json:"rows,omitempty" jsonschema:"description=Row count for expand"`
}

// FocusTool exposes focus_window over a session's focus service.
type FocusTool struct {
	service *perception.FocusService
}

// NewFocusTool creates the focus tool for one session.
func NewFocusTool(service *perception.FocusService) *FocusTool {
	return &FocusTool{service: service}
}

func (t *FocusTool) Name() string { return "focus_window" }

func (t *FocusTool) Description() string {
	return "Scroll, expand, restore, or clear the filter of a perception window."
}

func (t *FocusTool) Schema() json.RawMessage {
	return SchemaFor(&focusParams{})
}

func (t *FocusTool) Execute(_ context.Context, params json.RawMessage) (*Result, error) {
	var p focusParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Errorf("invalid focus_window arguments: %v", err), nil
	}
	res, err := t.service.Handle(p.WindowID, p.Action, p.Range, p.Rows)
	if err != nil {
		// Errors carry the available_windows hint from the focus service.
		return Errorf("focus_window failed: %v", err), nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode focus result: %w", err)
	}
	return &Result{Content: string(data)}, nil
}
