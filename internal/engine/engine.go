// Package engine drives the agent turn loop: LLM call, tool dispatch,
// perception enrichment, and audit, with checkpoints at turn boundaries.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/sheetflow/internal/llm"
	"github.com/haasonsaas/sheetflow/internal/masking"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/perception"
	"github.com/haasonsaas/sheetflow/internal/store"
	"github.com/haasonsaas/sheetflow/internal/tools"
)

// DefaultMaxIterations bounds tool-call rounds within one turn.
const DefaultMaxIterations = 8

// Options configures an engine for one session.
type Options struct {
	SessionID     string
	UserID        string
	Model         string
	SystemPrompt  string
	MaxIterations int
	// StreamableTools names tools whose argument deltas stream to the sink.
	StreamableTools map[string]bool
	// ApprovalTools names tools whose executions are recorded as approvals.
	ApprovalTools map[string]bool
	// Masker overrides the default stale-observation masker; nil keeps the
	// defaults, and MaskingDisabled skips masking entirely.
	Masker          *masking.Masker
	MaskingDisabled bool
}

// Stores is the subset of persistence the engine writes to. Any field may be
// nil; the engine then skips that concern.
type Stores struct {
	ToolCalls   *store.ToolCallLogStore
	LLMCalls    *store.LLMCallLogStore
	Checkpoints *store.CheckpointStore
	Approvals   *store.ApprovalStore
}

// TurnResult is the outcome of one agent turn.
type TurnResult struct {
	Content    string
	Iterations int
	ToolCalls  int
	// Exhausted is set when the iteration budget ran out before the model
	// produced a terminal reply.
	Exhausted bool
}

// Engine runs the agent loop for a single session. It is not safe for
// concurrent use; sessions run their turns sequentially.
type Engine struct {
	caller     *llm.Caller
	registry   *tools.Registry
	perception *perception.Manager
	masker     *masking.Masker
	logger     *observability.Logger
	metrics    *observability.Metrics
	stores     Stores
	opts       Options

	raw           []openai.ChatCompletionMessage
	snapshotIndex int
	turn          int
}

// New creates an engine. metrics may be nil.
func New(caller *llm.Caller, registry *tools.Registry, pm *perception.Manager,
	logger *observability.Logger, metrics *observability.Metrics,
	stores Stores, opts Options) *Engine {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = observability.Nop()
	}
	masker := opts.Masker
	if masker == nil {
		masker = masking.New()
	}
	return &Engine{
		caller:     caller,
		registry:   registry,
		perception: pm,
		masker:     masker,
		logger:     logger,
		metrics:    metrics,
		stores:     stores,
		opts:       opts,
	}
}

// RawMessages returns the live conversation history. The persistence bridge
// snapshots this; callers must not mutate it.
func (e *Engine) RawMessages() []openai.ChatCompletionMessage { return e.raw }

// SnapshotIndex returns the index of the first unpersisted message.
func (e *Engine) SnapshotIndex() int { return e.snapshotIndex }

// SetSnapshotIndex advances the persistence watermark.
func (e *Engine) SetSnapshotIndex(i int) { e.snapshotIndex = i }

// Turn returns the current turn number.
func (e *Engine) Turn() int { return e.turn }

// SetSystemPrompt replaces the system prompt for subsequent calls; the
// session layer refreshes it when the workspace manifest changes.
func (e *Engine) SetSystemPrompt(p string) { e.opts.SystemPrompt = p }

// LoadHistory seeds the engine from persisted messages on resume. The
// snapshot index starts past the loaded tail so nothing is re-persisted.
func (e *Engine) LoadHistory(msgs []openai.ChatCompletionMessage, turn int) {
	e.raw = append([]openai.ChatCompletionMessage(nil), msgs...)
	e.snapshotIndex = len(e.raw)
	e.turn = turn
}

// RunTurn executes one agent turn for a user message.
func (e *Engine) RunTurn(ctx context.Context, userText string, sink llm.EventSink) (*TurnResult, error) {
	e.turn++
	e.perception.BeginTurn(e.turn)
	e.raw = append(e.raw, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	result := &TurnResult{}
	toolDefs := e.toolDefinitions()
	for iter := 1; iter <= e.opts.MaxIterations; iter++ {
		result.Iterations = iter

		res, err := e.complete(ctx, iter, toolDefs, sink)
		if err != nil {
			return nil, fmt.Errorf("turn %d failed: %w", e.turn, err)
		}
		e.raw = append(e.raw, res.Message())

		if len(res.ToolCalls) == 0 {
			result.Content = res.Content
			e.checkpoint(ctx)
			return result, nil
		}

		for _, tc := range res.ToolCalls {
			result.ToolCalls++
			content := e.dispatch(ctx, iter, tc)
			e.raw = append(e.raw, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: tc.ID,
				Content:    content,
			})
		}
	}

	e.logger.Warn(ctx, "turn iteration budget exhausted",
		"session_id", e.opts.SessionID, "turn", e.turn)
	result.Exhausted = true
	result.Content = lastAssistantContent(e.raw)
	e.checkpoint(ctx)
	return result, nil
}

func (e *Engine) complete(ctx context.Context, iter int, toolDefs []openai.Tool, sink llm.EventSink) (*llm.Result, error) {
	start := time.Now()
	res, err := e.caller.Complete(ctx, llm.Request{
		Messages:        e.promptMessages(),
		Tools:           toolDefs,
		Model:           e.opts.Model,
		Sink:            sink,
		StreamableTools: e.opts.StreamableTools,
	})
	e.auditLLM(ctx, iter, res, time.Since(start), err)
	return res, err
}

// promptMessages builds the payload: the current system prompt followed by
// the masked conversation.
func (e *Engine) promptMessages() []openai.ChatCompletionMessage {
	masked := e.raw
	if !e.opts.MaskingDisabled {
		masked = e.masker.Mask(e.raw)
	}
	if e.opts.SystemPrompt == "" {
		return masked
	}
	out := make([]openai.ChatCompletionMessage, 0, len(masked)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: e.opts.SystemPrompt,
	})
	return append(out, masked...)
}

func (e *Engine) toolDefinitions() []openai.Tool {
	if e.registry == nil {
		return nil
	}
	list := e.registry.List()
	out := make([]openai.Tool, 0, len(list))
	for _, t := range list {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Schema(),
			},
		})
	}
	return out
}

// dispatch executes one tool call and returns the content for the tool
// message, enriched through perception when the observation is handled.
func (e *Engine) dispatch(ctx context.Context, iter int, tc llm.ToolCall) string {
	approvalID := e.openApproval(ctx, tc)

	start := time.Now()
	res, err := e.registry.Execute(ctx, tc.Name, json.RawMessage(tc.Arguments))
	elapsed := time.Since(start)

	if err != nil {
		e.auditTool(ctx, iter, tc, false, elapsed, err.Error())
		e.closeApproval(ctx, approvalID, false, err.Error())
		e.observeToolMetric(tc.Name, "error", elapsed)
		return fmt.Sprintf("tool %s failed: %v", tc.Name, err)
	}
	if res.IsError {
		e.auditTool(ctx, iter, tc, false, elapsed, res.Content)
		e.closeApproval(ctx, approvalID, false, res.Content)
		e.observeToolMetric(tc.Name, "error", elapsed)
		return res.Content
	}

	e.auditTool(ctx, iter, tc, true, elapsed, "")
	e.closeApproval(ctx, approvalID, true, res.Content)
	e.observeToolMetric(tc.Name, "ok", elapsed)

	if e.perception != nil {
		if text, handled := e.perception.Observe(observationFrom(tc.Name, tc.Arguments, res.Content)); handled {
			return text
		}
	}
	return res.Content
}

func (e *Engine) openApproval(ctx context.Context, tc llm.ToolCall) string {
	if e.stores.Approvals == nil || !e.opts.ApprovalTools[tc.Name] {
		return ""
	}
	id, err := e.stores.Approvals.Create(ctx, &store.Approval{
		ToolName:  tc.Name,
		Arguments: tc.Arguments,
		SessionID: e.opts.SessionID,
		UserID:    e.opts.UserID,
	})
	if err != nil {
		e.logger.Warn(ctx, "failed to record approval", "tool", tc.Name, "error", err)
		return ""
	}
	return id
}

func (e *Engine) closeApproval(ctx context.Context, id string, ok bool, detail string) {
	if id == "" {
		return
	}
	var err error
	if ok {
		err = e.stores.Approvals.MarkSuccess(ctx, id, truncateForAudit(detail), "", "")
	} else {
		err = e.stores.Approvals.MarkFailed(ctx, id, "tool_failure", truncateForAudit(detail))
	}
	if err != nil {
		e.logger.Warn(ctx, "failed to finish approval", "approval_id", id, "error", err)
	}
}

func (e *Engine) auditTool(ctx context.Context, iter int, tc llm.ToolCall, ok bool, elapsed time.Duration, errText string) {
	if e.stores.ToolCalls == nil {
		return
	}
	err := e.stores.ToolCalls.Append(ctx, &store.ToolCallLog{
		SessionID:  e.opts.SessionID,
		Turn:       e.turn,
		Iteration:  iter,
		ToolName:   tc.Name,
		Arguments:  tc.Arguments,
		Success:    ok,
		DurationMS: elapsed.Milliseconds(),
		Error:      errText,
	})
	if err != nil {
		e.logger.Warn(ctx, "failed to append tool audit row", "error", err)
	}
}

func (e *Engine) auditLLM(ctx context.Context, iter int, res *llm.Result, elapsed time.Duration, callErr error) {
	if e.stores.LLMCalls == nil {
		return
	}
	entry := &store.LLMCallLog{
		SessionID: e.opts.SessionID,
		Turn:      e.turn,
		Iteration: iter,
		Model:     e.opts.Model,
		LatencyMS: elapsed.Milliseconds(),
		Success:   callErr == nil,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if res != nil {
		entry.TTFTMS = res.TTFT.Milliseconds()
		if res.Usage != nil {
			entry.PromptTokens = res.Usage.PromptTokens
			entry.CompletionTokens = res.Usage.CompletionTokens
		}
	}
	if err := e.stores.LLMCalls.Append(ctx, entry); err != nil {
		e.logger.Warn(ctx, "failed to append llm audit row", "error", err)
	}
}

func (e *Engine) observeToolMetric(name, status string, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.ToolExecutionCounter.WithLabelValues(name, status).Inc()
	e.metrics.ToolExecutionDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// checkpointState is the serialised engine state stored after each turn.
type checkpointState struct {
	Turn         int      `json:"turn"`
	Mode         string   `json:"mode"`
	WindowIDs    []string `json:"window_ids"`
	ActiveWindow string   `json:"active_window"`
}

func (e *Engine) checkpoint(ctx context.Context) {
	if e.stores.Checkpoints == nil {
		return
	}
	state := checkpointState{Turn: e.turn}
	if e.perception != nil {
		state.Mode = string(e.perception.Mode())
		state.WindowIDs = e.perception.WindowIDs()
		state.ActiveWindow = e.perception.ActiveID()
	}
	data, err := json.Marshal(state)
	if err != nil {
		e.logger.Warn(ctx, "failed to marshal checkpoint state", "error", err)
		return
	}
	err = e.stores.Checkpoints.Save(ctx, &store.Checkpoint{
		SessionID:      e.opts.SessionID,
		CheckpointType: "turn",
		StateJSON:      string(data),
		TurnNumber:     e.turn,
	})
	if err != nil {
		e.logger.Warn(ctx, "failed to save checkpoint", "error", err)
	}
}

func lastAssistantContent(msgs []openai.ChatCompletionMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == openai.ChatMessageRoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}

func truncateForAudit(s string) string {
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
