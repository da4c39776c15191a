package perception

import (
	"strings"
	"testing"

	"github.com/haasonsaas/sheetflow/internal/observability"
)

func newTestManager(t *testing.T, model string, mode Mode) *Manager {
	t.Helper()
	return NewManager(observability.Nop(), ManagerConfig{
		Model:         model,
		RequestedMode: mode,
	})
}

func readObservation(rangeRef string, rows [][]string) ToolObservation {
	return ToolObservation{
		Tool:  "read_excel",
		File:  "/data/report.xlsx",
		Sheet: "Sales",
		Range: rangeRef,
		Rows:  rows,
	}
}

func TestManagerObserveCreatesWindowAndConfirms(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)

	text, handled := m.Observe(readObservation("A1:E20", genRows(1, 20, 5, "r")))
	if !handled {
		t.Fatalf("read_excel must be handled")
	}

	rec, err := ParseConfirmation(text)
	if err != nil {
		t.Fatalf("confirmation does not parse: %v\n%s", err, text)
	}
	if rec.Rows != 20 || rec.Cols != 5 {
		t.Errorf("confirmation shape = R%d x C%d, want R20 x C5", rec.Rows, rec.Cols)
	}
	if rec.Tool != "read_excel" || rec.Range != "A1:E20" {
		t.Errorf("confirmation = %+v", rec)
	}

	ids := m.WindowIDs()
	if len(ids) != 1 {
		t.Fatalf("windows = %v, want one", ids)
	}
	w := m.Window(ids[0])
	if w == nil || w.Kind != KindSheet {
		t.Fatalf("window not created: %v", w)
	}
	if len(w.Sheet.DataBuffer) != 20 {
		t.Errorf("buffer rows = %d, want 20", len(w.Sheet.DataBuffer))
	}
	if m.ActiveID() != w.ID {
		t.Errorf("new window should become active")
	}
}

func TestManagerObserveMergesAdjacentReads(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)

	if _, handled := m.Observe(readObservation("A1:E20", genRows(1, 20, 5, "r"))); !handled {
		t.Fatalf("first read not handled")
	}
	if _, handled := m.Observe(readObservation("A21:E40", genRows(21, 20, 5, "r"))); !handled {
		t.Fatalf("second read not handled")
	}

	// Same identity resolves to the same window; adjacent reads merge.
	if ids := m.WindowIDs(); len(ids) != 1 {
		t.Fatalf("windows = %v, want one", ids)
	}
	s := m.Window(m.ActiveID()).Sheet
	if len(s.CachedRanges) != 1 || s.CachedRanges[0].Ref.Ref() != "A1:E40" {
		t.Errorf("cache = %d ranges, first %s, want one A1:E40 block",
			len(s.CachedRanges), s.CachedRanges[0].Ref.Ref())
	}
	if len(s.DataBuffer) != 40 {
		t.Errorf("buffer rows = %d, want 40", len(s.DataBuffer))
	}
}

func TestManagerObserveWriteSetsHint(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)
	m.Observe(readObservation("A1:C3", genRows(1, 3, 3, "r")))

	text, handled := m.Observe(ToolObservation{
		Tool:  "write_cells",
		File:  "/data/report.xlsx",
		Sheet: "Sales",
		Range: "F10:F12",
	})
	if !handled {
		t.Fatalf("write not handled")
	}
	rec, err := ParseConfirmation(text)
	if err != nil {
		t.Fatalf("ParseConfirmation: %v\n%s", err, text)
	}
	if !strings.Contains(rec.Hint, "F10:F12 modified") {
		t.Errorf("write outside the cache must carry the stale hint, got %q", rec.Hint)
	}

	// A covered write patches instead of hinting.
	text, _ = m.Observe(ToolObservation{
		Tool:         "write_cells",
		File:         "/data/report.xlsx",
		Sheet:        "Sales",
		Range:        "B2",
		PreviewAfter: [][]string{{"X"}},
	})
	rec, err = ParseConfirmation(text)
	if err != nil {
		t.Fatalf("ParseConfirmation: %v\n%s", err, text)
	}
	if rec.Hint != "" {
		t.Errorf("patched write must not hint, got %q", rec.Hint)
	}
	if got := m.Window(m.ActiveID()).Sheet.DataBuffer[1][1]; got != "X" {
		t.Errorf("cell B2 = %q, want X", got)
	}
}

func TestManagerObserveExplorer(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)

	text, handled := m.Observe(ToolObservation{
		Tool:      "list_directory",
		Directory: "/data",
		Entries:   []string{"report.xlsx", "costs.xlsx"},
	})
	if !handled {
		t.Fatalf("list_directory must be handled")
	}
	rec, err := ParseConfirmation(text)
	if err != nil {
		t.Fatalf("ParseConfirmation: %v\n%s", err, text)
	}
	if rec.Rows != 2 {
		t.Errorf("entries = %d, want 2", rec.Rows)
	}
	w := m.Window(m.ActiveID())
	if w.Kind != KindExplorer || len(w.Explorer.Entries) != 2 {
		t.Errorf("explorer window state wrong: %+v", w)
	}
}

func TestManagerUnknownToolPassesThrough(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)

	text, handled := m.Observe(ToolObservation{Tool: "run_code", ResultText: "done"})
	if handled {
		t.Fatalf("run_code must not be handled by perception")
	}
	if text != "done" {
		t.Errorf("pass-through text = %q, want original", text)
	}
	if len(m.WindowIDs()) != 0 {
		t.Errorf("no window may be created for unknown tools")
	}
}

func TestManagerKindConflictRecordsRejectCode(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)

	// Bind the explorer identity key under the sheet kind to force a
	// kind conflict on the next explorer observation.
	key := ExplorerIdentity("/data").Key
	if err := m.locator.Register("sheet_9", Identity{Kind: KindSheet, Key: key}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	text, handled := m.Observe(ToolObservation{
		Tool:       "list_directory",
		Directory:  "/data",
		ResultText: "raw listing",
	})
	if handled {
		t.Fatalf("conflicting observation must fall back to the raw result")
	}
	if text != "raw listing" {
		t.Errorf("fallback text = %q", text)
	}
	if m.LastRejectCode() != RejectKindConflict {
		t.Errorf("reject code = %q, want %q", m.LastRejectCode(), RejectKindConflict)
	}
}

func TestRejectCodeMapping(t *testing.T) {
	if got := rejectCode(ErrIdentityConflict); got != RejectIdentityConflict {
		t.Errorf("rejectCode(ErrIdentityConflict) = %q", got)
	}
	if got := rejectCode(ErrKindConflict); got != RejectKindConflict {
		t.Errorf("rejectCode(ErrKindConflict) = %q", got)
	}
}

func TestManagerEnrichedMode(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeEnriched)

	obs := readObservation("A1:B2", genRows(1, 2, 2, "r"))
	obs.ResultText = "raw read output"
	text, handled := m.Observe(obs)
	if !handled {
		t.Fatalf("read not handled")
	}
	if !strings.Contains(text, "raw read output") || !strings.Contains(text, "perception") {
		t.Errorf("enriched render must wrap the original text:\n%s", text)
	}
}

func TestManagerIngestFailuresDowngradeMode(t *testing.T) {
	m := newTestManager(t, "gpt-4o", ModeAdaptive)
	if m.Mode() != ModeUnified {
		t.Fatalf("gpt models start unified, got %s", m.Mode())
	}

	bad := readObservation("not-a-range", genRows(1, 2, 2, "r"))
	bad.ResultText = "raw"
	for i := 0; i < 2; i++ {
		if _, handled := m.Observe(bad); !handled {
			t.Fatalf("failed ingest still surfaces an enriched fallback")
		}
	}
	if m.Mode() != ModeAnchored {
		t.Errorf("two consecutive ingest failures must downgrade, got %s", m.Mode())
	}
}

func TestManagerBeginTurnAgesIdleWindows(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)

	m.Observe(readObservation("A1:B2", genRows(1, 2, 2, "r")))
	m.Observe(ToolObservation{Tool: "list_directory", Directory: "/data"})

	sheetID := m.WindowIDs()[0]
	m.BeginTurn(2)
	m.BeginTurn(3)

	if idle := m.Window(sheetID).Lifecycle.IdleTurns; idle != 2 {
		t.Errorf("idle sheet window aged %d turns, want 2", idle)
	}
	if idle := m.Window(m.ActiveID()).Lifecycle.IdleTurns; idle != 0 {
		t.Errorf("active window must not age, got %d", idle)
	}
}

func TestManagerAllocateTiersTerminatesStaleWindows(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)

	m.Observe(readObservation("A1:B2", genRows(1, 2, 2, "r")))
	stale := m.Window(m.WindowIDs()[0])
	m.Observe(ToolObservation{Tool: "list_directory", Directory: "/data"})
	stale.Lifecycle.IdleTurns = 9

	tiers := m.AllocateTiers()
	if tiers[stale.ID] != TierTerminated {
		t.Fatalf("stale window tier = %s, want terminated", tiers[stale.ID])
	}
	if !stale.Lifecycle.Dormant || stale.Lifecycle.DetailLevel != DetailNone {
		t.Errorf("terminated window must go dormant: %+v", stale.Lifecycle)
	}

	notice := m.Notice()
	if strings.Contains(notice, stale.ID) {
		t.Errorf("dormant window leaked into the notice:\n%s", notice)
	}
	if !strings.Contains(notice, m.ActiveID()) {
		t.Errorf("active window missing from the notice:\n%s", notice)
	}
}

func TestManagerResetDropsState(t *testing.T) {
	m := newTestManager(t, "kimi-k2", ModeAdaptive)
	m.Observe(readObservation("A1:B2", genRows(1, 2, 2, "r")))

	m.Reset()
	if len(m.WindowIDs()) != 0 || m.ActiveID() != "" {
		t.Errorf("reset must drop windows, got %v active=%q", m.WindowIDs(), m.ActiveID())
	}
	// The identity is bindable again afterwards.
	if _, handled := m.Observe(readObservation("A1:B2", genRows(1, 2, 2, "r"))); !handled {
		t.Errorf("observation after reset must succeed")
	}
}

func TestManagerWipeOnWrite(t *testing.T) {
	m := NewManager(observability.Nop(), ManagerConfig{
		Model:       "kimi-k2",
		WipeOnWrite: true,
	})
	m.Observe(readObservation("A1:C3", genRows(1, 3, 3, "r")))
	m.Observe(ToolObservation{
		Tool:         "write_cells",
		File:         "/data/report.xlsx",
		Sheet:        "Sales",
		Range:        "B2",
		PreviewAfter: [][]string{{"X"}},
	})

	s := m.Window(m.ActiveID()).Sheet
	if len(s.DataBuffer) != 0 || len(s.CachedRanges) != 0 {
		t.Errorf("wipe-on-write must drop the cache, got %d rows", len(s.DataBuffer))
	}
	if s.StaleHint == "" {
		t.Errorf("wipe-on-write must set the stale hint")
	}
}
