// Package session ties the runtime together per conversation: it opens or
// resumes a session, assembles the system prompt from the workspace manifest
// and the user's rules, runs turns through the engine, and persists state
// through the bridge.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/sheetflow/internal/engine"
	"github.com/haasonsaas/sheetflow/internal/llm"
	"github.com/haasonsaas/sheetflow/internal/memory"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/perception"
	"github.com/haasonsaas/sheetflow/internal/rules"
	"github.com/haasonsaas/sheetflow/internal/store"
	"github.com/haasonsaas/sheetflow/internal/tools"
	"github.com/haasonsaas/sheetflow/internal/workspace"
)

// DefaultBasePrompt is the core system prompt when the config provides none.
const DefaultBasePrompt = "You are a spreadsheet assistant. You read, analyse, " +
	"and modify the user's Excel and CSV files through the provided tools. " +
	"Confirm before destructive changes."

// ManagerConfig wires the session manager.
type ManagerConfig struct {
	Model      string
	BasePrompt string
	UserID     string
	RulesPath  string
	Perception perception.ManagerConfig
	EngineOpts engine.Options
	ExtraTools []tools.Tool
}

// Manager opens sessions over one user scope.
type Manager struct {
	cfg     ManagerConfig
	caller  *llm.Caller
	titler  *llm.Caller
	stores  *store.Stores
	memory  *memory.Manager
	scanner *workspace.Scanner
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewManager creates a session manager. titler may be nil to disable title
// synthesis; scanner may be nil when no workspace is configured.
func NewManager(cfg ManagerConfig, caller, titler *llm.Caller, stores *store.Stores,
	mem *memory.Manager, scanner *workspace.Scanner,
	logger *observability.Logger, metrics *observability.Metrics) *Manager {
	if cfg.BasePrompt == "" {
		cfg.BasePrompt = DefaultBasePrompt
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Manager{
		cfg:     cfg,
		caller:  caller,
		titler:  titler,
		stores:  stores,
		memory:  mem,
		scanner: scanner,
		logger:  logger,
		metrics: metrics,
	}
}

// Session is one live conversation.
type Session struct {
	ID     string
	Engine *engine.Engine
	Focus  *perception.FocusService

	mgr       *Manager
	bridge    *Bridge
	perc      *perception.Manager
	titleDone bool
}

// Open starts a new session or resumes an existing one. An empty id starts
// fresh; the session row is created lazily on first persist.
func (m *Manager) Open(ctx context.Context, sessionID string) (*Session, error) {
	resuming := sessionID != ""
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	percCfg := m.cfg.Perception
	if percCfg.Model == "" {
		percCfg.Model = m.cfg.Model
	}
	perc := perception.NewManager(m.logger, percCfg)
	focus := perception.NewFocusService(perc, nil)

	registry := tools.NewRegistry()
	registry.Register(&tools.ReadTopicTool{})
	registry.Register(&tools.SaveTool{})
	registry.Register(tools.NewFocusTool(focus))
	for _, t := range m.cfg.ExtraTools {
		registry.Register(t)
	}

	opts := m.cfg.EngineOpts
	opts.SessionID = sessionID
	opts.UserID = m.cfg.UserID
	opts.Model = m.cfg.Model
	prompt, err := m.systemPrompt(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	opts.SystemPrompt = prompt

	eng := engine.New(m.caller, registry, perc, m.logger, m.metrics, engine.Stores{
		ToolCalls:   m.stores.ToolCalls,
		LLMCalls:    m.stores.LLMCalls,
		Checkpoints: m.stores.Checkpoints,
		Approvals:   m.stores.Approvals,
	}, opts)

	bridge := NewBridge(m.stores.Sessions, m.stores.Messages, m.logger)
	sess := &Session{
		ID:     sessionID,
		Engine: eng,
		Focus:  focus,
		mgr:    m,
		bridge: bridge,
		perc:   perc,
	}

	if resuming {
		if err := sess.resume(ctx); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// systemPrompt assembles base prompt, workspace summary, and rules.
func (m *Manager) systemPrompt(ctx context.Context, sessionID string) (string, error) {
	parts := []string{m.cfg.BasePrompt}

	if m.scanner != nil {
		manifest, err := m.scanner.Refresh(ctx)
		if err != nil {
			m.logger.Warn(ctx, "workspace scan failed", "error", err)
		} else {
			parts = append(parts, manifest.Summary())
		}
	}

	if m.cfg.RulesPath != "" {
		composed, err := rules.NewComposer(m.cfg.RulesPath, m.stores.Rules).Compose(ctx, sessionID)
		if err != nil {
			return "", fmt.Errorf("failed to compose rules: %w", err)
		}
		if composed != "" {
			parts = append(parts, composed)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// resume loads persisted messages and the latest checkpoint into the engine.
func (s *Session) resume(ctx context.Context) error {
	if _, err := s.mgr.stores.Sessions.Get(ctx, s.ID); err != nil {
		return err
	}
	msgs, err := s.bridge.LoadMessages(ctx, s.ID)
	if err != nil {
		return err
	}

	turn := 0
	cp, err := s.mgr.stores.Checkpoints.Latest(ctx, s.ID)
	if err == nil && cp != nil {
		turn = cp.TurnNumber
		var state struct {
			Turn int `json:"turn"`
		}
		if json.Unmarshal([]byte(cp.StateJSON), &state) == nil && state.Turn > 0 {
			turn = state.Turn
		}
	}

	s.Engine.LoadHistory(msgs, turn)
	s.titleDone = true
	return nil
}

// Chat runs one turn: the memory layer is bound to the request context, the
// engine executes, and the result is persisted before returning.
func (s *Session) Chat(ctx context.Context, text string, sink llm.EventSink) (*engine.TurnResult, error) {
	if s.mgr.memory != nil {
		ctx = tools.WithMemory(ctx, s.mgr.memory)
	}

	res, err := s.Engine.RunTurn(ctx, text, sink)
	if err != nil {
		return nil, err
	}

	if _, err := s.bridge.Persist(ctx, s.ID, s.Engine, s.mgr.cfg.UserID); err != nil {
		// The turn already happened; surface persistence failures to the
		// caller but keep the in-memory conversation intact.
		return res, fmt.Errorf("failed to persist session: %w", err)
	}

	s.maybeSynthesizeTitle(ctx, text, res.Content)
	return res, nil
}

func (s *Session) maybeSynthesizeTitle(ctx context.Context, userText, reply string) {
	if s.titleDone || s.mgr.titler == nil || reply == "" {
		return
	}
	s.titleDone = true
	title := SynthesizeTitle(ctx, s.mgr.titler, userText, reply)
	if err := MaybeSetTitle(ctx, s.mgr.stores.Sessions, s.ID, title); err != nil {
		s.mgr.logger.Warn(ctx, "failed to set session title",
			"session_id", s.ID, "error", err)
	}
}

// Rollback discards the persisted conversation and the perception state.
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.bridge.Rollback(ctx, s.ID, s.Engine); err != nil {
		return err
	}
	if err := s.mgr.stores.Checkpoints.Clear(ctx, s.ID); err != nil {
		return err
	}
	s.perc.Reset()
	return nil
}
