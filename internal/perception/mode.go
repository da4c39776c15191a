package perception

import (
	"sort"
	"strings"
)

// Mode is the operational rendering mode.
type Mode string

const (
	ModeUnified  Mode = "unified"
	ModeAnchored Mode = "anchored"
	ModeEnriched Mode = "enriched"
	// ModeAdaptive asks the selector to resolve by model id.
	ModeAdaptive Mode = "adaptive"
)

// builtinModePrefixes maps model-id prefixes to initial modes; longest
// prefix wins.
var builtinModePrefixes = map[string]Mode{
	"gpt-":          ModeUnified,
	"kimi":          ModeAnchored,
	"claude-sonnet": ModeAnchored,
	"deepseek":      ModeAnchored,
}

// AdaptiveModeSelector resolves the mode per model and downgrades it when
// ingest failures or repeat tripwires suggest the richer rendering is not
// working.
type AdaptiveModeSelector struct {
	// Overrides are user-configured model-prefix -> mode entries, consulted
	// before the built-in map.
	Overrides map[string]Mode

	current             Mode
	consecutiveFailures int
}

// SelectMode resolves the initial mode. Explicit modes pass through;
// adaptive resolves by longest-prefix against overrides then built-ins,
// defaulting to anchored.
func (s *AdaptiveModeSelector) SelectMode(modelID string, requested Mode) Mode {
	var mode Mode
	switch requested {
	case ModeUnified, ModeAnchored, ModeEnriched:
		mode = requested
	default:
		mode = resolveByPrefix(modelID, s.Overrides)
		if mode == "" {
			mode = resolveByPrefix(modelID, builtinModePrefixes)
		}
		if mode == "" {
			mode = ModeAnchored
		}
	}
	s.current = mode
	s.consecutiveFailures = 0
	return mode
}

func resolveByPrefix(modelID string, table map[string]Mode) Mode {
	model := strings.ToLower(modelID)
	prefixes := make([]string, 0, len(table))
	for prefix := range table {
		prefixes = append(prefixes, prefix)
	}
	// Longest prefix wins.
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, prefix := range prefixes {
		if strings.HasPrefix(model, prefix) {
			return table[prefix]
		}
	}
	return ""
}

// Current returns the effective mode.
func (s *AdaptiveModeSelector) Current() Mode {
	if s.current == "" {
		return ModeAnchored
	}
	return s.current
}

// Downgrade moves one step along unified -> anchored -> enriched; enriched
// is terminal.
func (s *AdaptiveModeSelector) Downgrade(reason string) Mode {
	switch s.Current() {
	case ModeUnified:
		s.current = ModeAnchored
	case ModeAnchored:
		s.current = ModeEnriched
	}
	return s.current
}

// MarkIngestFailure counts consecutive ingest failures; the second in a row
// triggers a downgrade.
func (s *AdaptiveModeSelector) MarkIngestFailure() {
	s.consecutiveFailures++
	if s.consecutiveFailures >= 2 {
		s.Downgrade("ingest failures")
		s.consecutiveFailures = 0
	}
}

// MarkIngestSuccess resets the failure streak.
func (s *AdaptiveModeSelector) MarkIngestSuccess() {
	s.consecutiveFailures = 0
}

// MarkRepeatTripwire downgrades immediately.
func (s *AdaptiveModeSelector) MarkRepeatTripwire() Mode {
	return s.Downgrade("repeat tripwire")
}
