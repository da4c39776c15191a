package perception

import (
	"testing"
)

func TestResolveUserIntent(t *testing.T) {
	r := NewIntentResolver()

	tests := []struct {
		hint       string
		wantTag    IntentTag
		wantForced bool
	}{
		{"", "", false},
		{"   ", "", false},
		{"sum the total for each region", IntentAggregate, true},
		{"求和并汇总", IntentAggregate, true},
		{"please verify and validate the figures", IntentValidate, true},
		{"make it bold", IntentFormat, false},
	}
	for _, tt := range tests {
		tag, confidence := r.ResolveUserIntent(tt.hint)
		if tag != tt.wantTag {
			t.Errorf("ResolveUserIntent(%q) tag = %q, want %q", tt.hint, tag, tt.wantTag)
			continue
		}
		if tt.wantTag == "" {
			continue
		}
		forced := confidence >= intentForceConfidence
		if forced != tt.wantForced {
			t.Errorf("ResolveUserIntent(%q) confidence = %v, forced = %v, want %v",
				tt.hint, confidence, forced, tt.wantForced)
		}
	}
}

func TestInferToolIntent(t *testing.T) {
	r := NewIntentResolver()

	tests := []struct {
		tool string
		text string
		want IntentTag
	}{
		{"write_cells", "wrote 3 cells", IntentEntry},
		{"write_cells", "set B2 to =SUMIFS(A:A,B:B,\"x\")", IntentFormula},
		{"fill_range", "filled with VLOOKUP(", IntentFormula},
		{"style_sheet", "", IntentFormat},
		{"inspect_excel_files", "", IntentValidate},
		{"build_pivot", "", IntentAggregate},
		{"read_excel", "", ""},
	}
	for _, tt := range tests {
		if got := r.InferToolIntent(tt.tool, tt.text); got != tt.want {
			t.Errorf("InferToolIntent(%q, %q) = %q, want %q", tt.tool, tt.text, got, tt.want)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	r := NewIntentResolver()

	t.Run("empty state defaults to general", func(t *testing.T) {
		got := r.Resolve(IntentState{}, "", "read_excel", "", 1)
		if got.Tag != IntentGeneral {
			t.Errorf("tag = %q, want general", got.Tag)
		}
	})

	t.Run("tool inference switches when unlocked", func(t *testing.T) {
		current := IntentState{Tag: IntentGeneral}
		got := r.Resolve(current, "", "write_cells", "plain values", 5)
		if got.Tag != IntentEntry || got.Source != "tool" {
			t.Errorf("got %+v, want entry from tool", got)
		}
		if got.LockUntilTurn != 5+DefaultStickyTurns-1 {
			t.Errorf("lock until %d, want %d", got.LockUntilTurn, 5+DefaultStickyTurns-1)
		}
	})

	t.Run("sticky lock blocks tool inference", func(t *testing.T) {
		current := IntentState{Tag: IntentAggregate, LockUntilTurn: 6}
		got := r.Resolve(current, "", "write_cells", "plain values", 5)
		if got.Tag != IntentAggregate {
			t.Errorf("locked intent switched to %q", got.Tag)
		}
	})

	t.Run("forced user hint overrides lock", func(t *testing.T) {
		current := IntentState{Tag: IntentAggregate, LockUntilTurn: 10}
		got := r.Resolve(current, "please verify and validate this", "read_excel", "", 5)
		if got.Tag != IntentValidate || got.Source != "user" {
			t.Errorf("got %+v, want validate from user", got)
		}
	})

	t.Run("soft user hint respects lock", func(t *testing.T) {
		current := IntentState{Tag: IntentAggregate, LockUntilTurn: 10}
		got := r.Resolve(current, "make it bold", "read_excel", "", 5)
		if got.Tag != IntentAggregate {
			t.Errorf("soft hint broke the lock: %+v", got)
		}
	})

	t.Run("soft user hint switches when unlocked", func(t *testing.T) {
		current := IntentState{Tag: IntentAggregate, LockUntilTurn: 3}
		got := r.Resolve(current, "make it bold", "read_excel", "", 5)
		if got.Tag != IntentFormat {
			t.Errorf("got %+v, want format", got)
		}
	})

	t.Run("same tag carries without touching the lock", func(t *testing.T) {
		current := IntentState{Tag: IntentValidate, LockUntilTurn: 4, UpdatedTurn: 2}
		got := r.Resolve(current, "please verify and validate this", "read_excel", "", 5)
		if got != current {
			t.Errorf("matching hint must carry the state unchanged, got %+v", got)
		}
	})

	t.Run("no signal carries current", func(t *testing.T) {
		current := IntentState{Tag: IntentFormula, UpdatedTurn: 2}
		got := r.Resolve(current, "", "read_excel", "", 5)
		if got != current {
			t.Errorf("carry changed the state: %+v", got)
		}
	})
}
