package perception

// Tier is the per-turn lifecycle ranking of a window.
type Tier string

const (
	TierActive     Tier = "active"
	TierBackground Tier = "background"
	TierSuspended  Tier = "suspended"
	TierTerminated Tier = "terminated"
)

// LifecycleAdvisor ranks windows into tiers each turn.
type LifecycleAdvisor interface {
	Advise(windows []*Window, activeID string, currentTurn int) map[string]Tier
}

// RuleAdvisor tiers windows by idle turns against three ascending thresholds.
type RuleAdvisor struct {
	BackgroundAfter int
	SuspendAfter    int
	TerminateAfter  int
}

// NewRuleAdvisor creates a rule advisor with the default thresholds.
func NewRuleAdvisor() *RuleAdvisor {
	return &RuleAdvisor{BackgroundAfter: 2, SuspendAfter: 4, TerminateAfter: 8}
}

// Advise assigns a tier per window id. The active window is always active.
func (a *RuleAdvisor) Advise(windows []*Window, activeID string, _ int) map[string]Tier {
	out := make(map[string]Tier, len(windows))
	for _, w := range windows {
		if w.ID == activeID {
			out[w.ID] = TierActive
			continue
		}
		switch idle := w.Lifecycle.IdleTurns; {
		case idle >= a.TerminateAfter:
			out[w.ID] = TierTerminated
		case idle >= a.SuspendAfter:
			out[w.ID] = TierSuspended
		case idle >= a.BackgroundAfter:
			out[w.ID] = TierBackground
		default:
			out[w.ID] = TierActive
		}
	}
	return out
}

// LifecycleAdvice is one window's tier suggestion from the small model.
type LifecycleAdvice struct {
	WindowID      string `json:"window_id"`
	Tier          Tier   `json:"tier"`
	Reason        string `json:"reason"`
	CustomSummary string `json:"custom_summary,omitempty"`
}

// LifecyclePlan is the parsed small-model output.
type LifecyclePlan struct {
	TaskType      string            `json:"task_type"`
	GeneratedTurn int               `json:"generated_turn"`
	Advices       []LifecycleAdvice `json:"advices"`
}

// HybridAdvisor prefers a fresh small-model plan and falls back to rules.
type HybridAdvisor struct {
	Rules *RuleAdvisor
	// Plan returns the current cached plan, or nil.
	Plan func() *LifecyclePlan
	// PlanTTLTurns bounds how many turns a plan stays usable.
	PlanTTLTurns int
}

// Advise applies the plan's tiers when the plan is within TTL; windows the
// plan does not mention, and stale plans, fall back to the rule advisor. The
// active window stays active regardless.
func (a *HybridAdvisor) Advise(windows []*Window, activeID string, currentTurn int) map[string]Tier {
	out := a.Rules.Advise(windows, activeID, currentTurn)

	var plan *LifecyclePlan
	if a.Plan != nil {
		plan = a.Plan()
	}
	if plan == nil || currentTurn-plan.GeneratedTurn > a.PlanTTLTurns {
		return out
	}

	for _, advice := range plan.Advices {
		if advice.WindowID == activeID {
			continue
		}
		if _, known := out[advice.WindowID]; known {
			out[advice.WindowID] = advice.Tier
		}
	}
	return out
}
