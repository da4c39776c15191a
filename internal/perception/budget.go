package perception

import (
	"sort"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates rendered token counts for budget decisions.
type TokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTokenCounter builds a counter for a model's encoding, falling back to
// the chars/4 estimate when the encoding is unknown.
func NewTokenCounter(model string) *TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token count of text.
func (c *TokenCounter) Count(text string) int {
	if c == nil || c.enc == nil {
		return len(text) / 4
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// MinimizedTokens is the minimum budget a suspended one-line render needs.
const MinimizedTokens = 24

// BudgetAllocator fits windows into the system token budget by walking each
// window down the tier fallback chain until its render fits.
type BudgetAllocator struct {
	MaxWindows   int
	BudgetTokens int
	Counter      *TokenCounter
	// Render produces the text a window would contribute at a tier.
	Render func(w *Window, tier Tier) string
}

// tierFallback is the acceptance order per window.
var tierFallback = []Tier{TierActive, TierBackground, TierSuspended, TierTerminated}

// Allocate decides the final tier for each window. Windows are considered
// active-first then most recently accessed; windows beyond MaxWindows are
// terminated outright.
func (a *BudgetAllocator) Allocate(windows []*Window, advised map[string]Tier, activeID string) map[string]Tier {
	ordered := append([]*Window(nil), windows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if (ordered[i].ID == activeID) != (ordered[j].ID == activeID) {
			return ordered[i].ID == activeID
		}
		return ordered[i].Lifecycle.LastAccessSeq > ordered[j].Lifecycle.LastAccessSeq
	})

	out := make(map[string]Tier, len(ordered))
	remaining := a.BudgetTokens
	for i, w := range ordered {
		if a.MaxWindows > 0 && i >= a.MaxWindows {
			out[w.ID] = TierTerminated
			continue
		}

		start := advised[w.ID]
		if start == "" {
			start = TierBackground
		}
		tier, cost := a.fit(w, start, remaining)

		// The active window may use a relaxed floor instead of terminating.
		if tier == TierTerminated && w.ID == activeID {
			floor := max(1, MinimizedTokens/2)
			if remaining >= floor {
				tier, cost = TierSuspended, floor
			}
		}
		out[w.ID] = tier
		if tier != TierTerminated {
			remaining -= cost
		}
	}
	return out
}

// fit walks the fallback chain from the advised tier and accepts the first
// tier whose render fits the remaining budget.
func (a *BudgetAllocator) fit(w *Window, start Tier, remaining int) (Tier, int) {
	started := false
	for _, tier := range tierFallback {
		if tier == start {
			started = true
		}
		if !started {
			continue
		}
		if tier == TierTerminated {
			break
		}
		cost := a.Counter.Count(a.Render(w, tier))
		if cost <= remaining {
			return tier, cost
		}
	}
	return TierTerminated, 0
}
