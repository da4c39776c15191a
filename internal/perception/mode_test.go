package perception

import (
	"testing"
)

func TestSelectModeByModel(t *testing.T) {
	tests := []struct {
		model     string
		requested Mode
		want      Mode
	}{
		{"gpt-4o", ModeAdaptive, ModeUnified},
		{"gpt-4.1-mini", "", ModeUnified},
		{"kimi-k2", ModeAdaptive, ModeAnchored},
		{"claude-sonnet-4", ModeAdaptive, ModeAnchored},
		{"deepseek-chat", ModeAdaptive, ModeAnchored},
		{"some-unknown-model", ModeAdaptive, ModeAnchored},
		// Explicit modes pass through regardless of model.
		{"gpt-4o", ModeEnriched, ModeEnriched},
		{"kimi-k2", ModeUnified, ModeUnified},
	}
	for _, tt := range tests {
		var s AdaptiveModeSelector
		if got := s.SelectMode(tt.model, tt.requested); got != tt.want {
			t.Errorf("SelectMode(%q, %q) = %q, want %q", tt.model, tt.requested, got, tt.want)
		}
	}
}

func TestSelectModeOverridesWinOverBuiltins(t *testing.T) {
	s := AdaptiveModeSelector{Overrides: map[string]Mode{"gpt-4o": ModeEnriched}}
	if got := s.SelectMode("gpt-4o-mini", ModeAdaptive); got != ModeEnriched {
		t.Errorf("override should win: got %q", got)
	}
	if got := s.SelectMode("gpt-4.1", ModeAdaptive); got != ModeUnified {
		t.Errorf("non-matching override should fall through to builtins: got %q", got)
	}
}

func TestModeDowngradeChain(t *testing.T) {
	var s AdaptiveModeSelector
	s.SelectMode("gpt-4o", ModeAdaptive)

	if got := s.Downgrade("test"); got != ModeAnchored {
		t.Fatalf("unified downgrades to %q, want anchored", got)
	}
	if got := s.Downgrade("test"); got != ModeEnriched {
		t.Fatalf("anchored downgrades to %q, want enriched", got)
	}
	// Enriched is terminal.
	if got := s.Downgrade("test"); got != ModeEnriched {
		t.Fatalf("enriched must be terminal, got %q", got)
	}
}

func TestModeIngestFailureStreak(t *testing.T) {
	var s AdaptiveModeSelector
	s.SelectMode("gpt-4o", ModeAdaptive)

	s.MarkIngestFailure()
	if s.Current() != ModeUnified {
		t.Fatalf("one failure must not downgrade")
	}
	s.MarkIngestFailure()
	if s.Current() != ModeAnchored {
		t.Fatalf("two consecutive failures must downgrade, got %q", s.Current())
	}

	// A success in between resets the streak.
	s.MarkIngestFailure()
	s.MarkIngestSuccess()
	s.MarkIngestFailure()
	if s.Current() != ModeAnchored {
		t.Fatalf("interrupted streak must not downgrade, got %q", s.Current())
	}
}

func TestModeRepeatTripwire(t *testing.T) {
	var s AdaptiveModeSelector
	s.SelectMode("gpt-4o", ModeAdaptive)
	if got := s.MarkRepeatTripwire(); got != ModeAnchored {
		t.Fatalf("tripwire downgrades immediately, got %q", got)
	}
}
