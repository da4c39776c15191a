package perception

import (
	"strings"
)

// Intent confidence levels for user-expressed hints.
const (
	intentForceConfidence = 0.75
	intentSoftConfidence  = 0.5
)

// DefaultStickyTurns is how long a resolved intent locks before a soft
// switch can replace it.
const DefaultStickyTurns = 3

// formulaSignals are substrings in tool args/results that flip entry-class
// tools to formula intent.
var formulaSignals = []string{"=", "SUMIFS(", "VLOOKUP("}

// defaultIntentKeywords maps intent tags to trigger phrases in English and
// Chinese. Treated as configuration; replaceable via IntentResolver.Keywords.
var defaultIntentKeywords = map[IntentTag][]string{
	IntentAggregate: {"sum", "total", "average", "count", "汇总", "求和", "平均", "合计"},
	IntentFormat:    {"format", "style", "color", "bold", "格式", "样式", "颜色", "加粗"},
	IntentValidate:  {"check", "verify", "validate", "检查", "校验", "核对"},
	IntentFormula:   {"formula", "function", "公式", "函数"},
	IntentEntry:     {"enter", "fill", "input", "write", "录入", "填写", "输入"},
}

// toolIntentClasses maps tool-name fragments to inferred intents.
var toolIntentClasses = map[string]IntentTag{
	"aggregate": IntentAggregate,
	"pivot":     IntentAggregate,
	"style":     IntentFormat,
	"format":    IntentFormat,
	"validate":  IntentValidate,
	"inspect":   IntentValidate,
	"formula":   IntentFormula,
	"write":     IntentEntry,
	"fill":      IntentEntry,
	"entry":     IntentEntry,
}

// IntentResolver applies the resolution precedence: user hint, tool
// inference, sticky lock, carry.
type IntentResolver struct {
	// Keywords overrides the default intent keyword table when non-nil.
	Keywords map[IntentTag][]string
	// StickyTurns is the lock duration applied on switch.
	StickyTurns int
}

// NewIntentResolver creates a resolver with the default tables.
func NewIntentResolver() *IntentResolver {
	return &IntentResolver{StickyTurns: DefaultStickyTurns}
}

func (r *IntentResolver) keywords() map[IntentTag][]string {
	if r.Keywords != nil {
		return r.Keywords
	}
	return defaultIntentKeywords
}

// ResolveUserIntent scans a turn hint for intent keywords. The confidence is
// the force threshold for an exact category phrase match, soft otherwise.
func (r *IntentResolver) ResolveUserIntent(hint string) (IntentTag, float64) {
	lower := strings.ToLower(hint)
	if strings.TrimSpace(lower) == "" {
		return "", 0
	}
	for tag, words := range r.keywords() {
		matches := 0
		for _, word := range words {
			if strings.Contains(lower, strings.ToLower(word)) {
				matches++
			}
		}
		if matches >= 2 {
			return tag, intentForceConfidence
		}
		if matches == 1 {
			return tag, intentSoftConfidence
		}
	}
	return "", 0
}

// InferToolIntent maps a tool name (and its args/result text) to an intent.
// Formula signals in the text flip entry-class tools to formula.
func (r *IntentResolver) InferToolIntent(toolName, text string) IntentTag {
	name := strings.ToLower(toolName)
	var inferred IntentTag
	for fragment, tag := range toolIntentClasses {
		if strings.Contains(name, fragment) {
			inferred = tag
			break
		}
	}
	if inferred == IntentEntry {
		for _, signal := range formulaSignals {
			if strings.Contains(text, signal) {
				return IntentFormula
			}
		}
	}
	return inferred
}

// Resolve applies the full precedence for one tool call and returns the next
// intent state for the window.
func (r *IntentResolver) Resolve(current IntentState, userHint, toolName, toolText string, currentTurn int) IntentState {
	sticky := r.StickyTurns
	if sticky <= 0 {
		sticky = DefaultStickyTurns
	}

	switchTo := func(tag IntentTag, confidence float64, source string) IntentState {
		return IntentState{
			Tag:           tag,
			Confidence:    confidence,
			Source:        source,
			UpdatedTurn:   currentTurn,
			LockUntilTurn: currentTurn + sticky - 1,
		}
	}
	locked := current.LockUntilTurn >= currentTurn

	// 1. User-expressed intent; a force-confidence hint overrides the lock.
	if tag, confidence := r.ResolveUserIntent(userHint); tag != "" {
		if tag == current.Tag {
			return current
		}
		if confidence >= intentForceConfidence || !locked {
			return switchTo(tag, confidence, "user")
		}
		return current
	}

	// 2. Tool-inferred intent respects the sticky lock.
	if tag := r.InferToolIntent(toolName, toolText); tag != "" && tag != current.Tag {
		if locked {
			return current
		}
		return switchTo(tag, intentSoftConfidence, "tool")
	}

	// 3-4. Carry the current tag, defaulting to general.
	if current.Tag == "" {
		return switchTo(IntentGeneral, 0, "carry")
	}
	return current
}
