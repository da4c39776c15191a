package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/sheetflow/internal/observability"
)

// AdvisorModel sends a compact JSON payload to a secondary model and returns
// its raw text response.
type AdvisorModel func(ctx context.Context, payload string) (string, error)

// AdvisorConfig tunes the small-model lifecycle advisor.
type AdvisorConfig struct {
	// TriggerWindowCount fires the advisor when the window count reaches it.
	TriggerWindowCount int
	// TriggerTurn fires the advisor from this turn onward.
	TriggerTurn int
	// PlanTTLTurns bounds how long a cached plan stays usable.
	PlanTTLTurns int
	// Timeout bounds the primary model call.
	Timeout time.Duration
	// IsTransient classifies errors eligible for the quick retry.
	IsTransient func(error) bool
}

// advisorPayload is the compact JSON sent to the small model.
type advisorPayload struct {
	CurrentTurn  int                  `json:"current_turn"`
	ActiveWindow string               `json:"active_window"`
	BudgetTokens int                  `json:"budget_tokens"`
	Context      string               `json:"context,omitempty"`
	Windows      []advisorWindowBrief `json:"windows"`
}

type advisorWindowBrief struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	IdleTurns int    `json:"idle_turns"`
	Summary   string `json:"summary,omitempty"`
	Intent    string `json:"intent"`
}

// SmallModelAdvisor runs lifecycle planning on a secondary model in the
// background and caches the parsed plan. Failures never update the cache;
// the hybrid advisor falls back to rules.
type SmallModelAdvisor struct {
	model  AdvisorModel
	cfg    AdvisorConfig
	logger *observability.Logger

	mu         sync.Mutex
	plan       *LifecyclePlan
	lastFireAt int
	lastCount  int
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewSmallModelAdvisor creates an advisor bound to a model callback.
func NewSmallModelAdvisor(model AdvisorModel, logger *observability.Logger, cfg AdvisorConfig) *SmallModelAdvisor {
	if cfg.TriggerWindowCount <= 0 {
		cfg.TriggerWindowCount = 4
	}
	if cfg.TriggerTurn <= 0 {
		cfg.TriggerTurn = 6
	}
	if cfg.PlanTTLTurns <= 0 {
		cfg.PlanTTLTurns = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &SmallModelAdvisor{model: model, cfg: cfg, logger: logger}
}

// Plan returns the cached plan, or nil.
func (a *SmallModelAdvisor) Plan() *LifecyclePlan {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plan
}

// ShouldTrigger reports whether a new advisory run is warranted.
func (a *SmallModelAdvisor) ShouldTrigger(windows []*Window, currentTurn int, newTask bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case newTask:
		return true
	case len(windows) != a.lastCount:
		return true
	case len(windows) >= a.cfg.TriggerWindowCount:
		return true
	case currentTurn >= a.cfg.TriggerTurn && currentTurn-a.lastFireAt >= a.cfg.PlanTTLTurns:
		return true
	}
	return false
}

// Trigger spawns a background planning task. The previous in-flight task, if
// any, is cancelled best-effort.
func (a *SmallModelAdvisor) Trigger(windows []*Window, activeID string, budgetTokens, currentTurn int, taskContext string) {
	payload := advisorPayload{
		CurrentTurn:  currentTurn,
		ActiveWindow: activeID,
		BudgetTokens: budgetTokens,
		Context:      taskContext,
	}
	for _, w := range windows {
		payload.Windows = append(payload.Windows, advisorWindowBrief{
			ID:        w.ID,
			Kind:      string(w.Kind),
			Label:     w.Label(),
			IdleTurns: w.Lifecycle.IdleTurns,
			Summary:   w.Summary,
			Intent:    string(w.Intent.Tag),
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.lastFireAt = currentTurn
	a.lastCount = len(windows)
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		a.run(ctx, string(body), currentTurn)
	}()
}

func (a *SmallModelAdvisor) run(ctx context.Context, payload string, generatedTurn int) {
	raw, err := a.complete(ctx, payload, a.cfg.Timeout)
	if err != nil && a.cfg.IsTransient != nil && a.cfg.IsTransient(err) {
		// One quick retry with a shorter timeout.
		quick := a.cfg.Timeout * 2 / 5
		raw, err = a.complete(ctx, payload, quick)
	}
	if err != nil {
		a.logger.Debug(ctx, "lifecycle advisor call failed", "error", err)
		return
	}

	var plan LifecyclePlan
	if err := json.Unmarshal([]byte(extractJSON(raw)), &plan); err != nil {
		a.logger.Debug(ctx, "lifecycle advisor returned unparseable plan", "error", err)
		return
	}
	if plan.GeneratedTurn == 0 {
		plan.GeneratedTurn = generatedTurn
	}

	a.mu.Lock()
	a.plan = &plan
	a.mu.Unlock()
}

func (a *SmallModelAdvisor) complete(ctx context.Context, payload string, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	raw, err := a.model(callCtx, payload)
	if err != nil {
		return "", fmt.Errorf("advisor model call failed: %w", err)
	}
	return raw, nil
}

// Reset cancels the in-flight task and drops the cached plan.
func (a *SmallModelAdvisor) Reset() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.plan = nil
	a.mu.Unlock()
}

// Wait blocks until background tasks finish. Test helper.
func (a *SmallModelAdvisor) Wait() {
	a.wg.Wait()
}

// extractJSON pulls the outermost JSON object from a model response that may
// wrap it in prose or code fences.
func extractJSON(s string) string {
	start := -1
	depth := 0
	for i, c := range s {
		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				return s[start : i+1]
			}
		}
	}
	return s
}
