package perception

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/sheetflow/internal/observability"
)

// OpClass is the perception classification of a tool call.
type OpClass int

const (
	OpUnknown OpClass = iota
	OpExplorerRead
	OpSheetRead
	OpSheetWrite
	OpSheetFilter
	OpSheetStyle
	OpMetadata
)

// ClassifyTool maps a tool name to its operation class. Unknown tools skip
// perception entirely.
func ClassifyTool(name string) OpClass {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "list_directory"), strings.Contains(n, "inspect_excel_files"):
		return OpExplorerRead
	case strings.Contains(n, "filter"):
		return OpSheetFilter
	case strings.Contains(n, "style"), strings.Contains(n, "format"):
		return OpSheetStyle
	case strings.Contains(n, "write"), strings.Contains(n, "fill"), strings.Contains(n, "set_cell"):
		return OpSheetWrite
	case strings.Contains(n, "read"), strings.Contains(n, "preview"):
		return OpSheetRead
	case strings.Contains(n, "sheet_info"), strings.Contains(n, "metadata"):
		return OpMetadata
	default:
		return OpUnknown
	}
}

// ToolObservation is the structured view of one successful tool call fed
// into the perception pipeline.
type ToolObservation struct {
	Tool     string
	UserHint string

	// Explorer fields.
	Directory string
	Entries   []string

	// Sheet fields.
	File         string
	Sheet        string
	Range        string
	Rows         [][]string
	Columns      []string
	TotalRows    int
	TotalCols    int
	PreviewAfter [][]string
	FilteredRows [][]string
	FilterDesc   string
	StyleSummary string
	Summary      string

	// ResultText is the raw tool result used for enriched rendering and
	// formula-signal scanning.
	ResultText string
}

// ManagerConfig tunes a per-session perception manager.
type ManagerConfig struct {
	Model          string
	RequestedMode  Mode
	BudgetTokens   int
	MaxWindows     int
	MaxCachedRows  int
	WipeOnWrite    bool
	Thresholds     RepeatThresholds
	IntentKeywords map[IntentTag][]string
}

// Manager owns one session's windows and the perception machinery around
// them. Managers are not shared across sessions.
type Manager struct {
	logger *observability.Logger

	windows map[string]*Window
	order   []string
	locator *Locator

	intents  *IntentResolver
	repeat   *RepeatDetector
	mode     *AdaptiveModeSelector
	advisor  *SmallModelAdvisor
	rules    *RuleAdvisor
	counter  *TokenCounter
	budget   *BudgetAllocator

	wipeOnWrite   bool
	maxCachedRows int

	seq         int64
	opSeq       int
	nextID      int
	currentTurn int
	activeID    string

	// lastRejectCode records the most recent locator reject; the manager
	// falls back to id lookup when set.
	lastRejectCode string
}

// NewManager creates a perception manager for one session.
func NewManager(logger *observability.Logger, cfg ManagerConfig) *Manager {
	if cfg.BudgetTokens <= 0 {
		cfg.BudgetTokens = 8000
	}
	if cfg.MaxWindows <= 0 {
		cfg.MaxWindows = 12
	}
	m := &Manager{
		logger:      logger,
		windows:     make(map[string]*Window),
		locator:     NewLocator(),
		intents:     NewIntentResolver(),
		repeat:      NewRepeatDetector(cfg.Thresholds),
		mode:        &AdaptiveModeSelector{},
		rules:       NewRuleAdvisor(),
		counter:     NewTokenCounter(cfg.Model),
		wipeOnWrite: cfg.WipeOnWrite,
	}
	if cfg.IntentKeywords != nil {
		m.intents.Keywords = cfg.IntentKeywords
	}
	m.mode.SelectMode(cfg.Model, cfg.RequestedMode)
	m.budget = &BudgetAllocator{
		MaxWindows:   cfg.MaxWindows,
		BudgetTokens: cfg.BudgetTokens,
		Counter:      m.counter,
		Render:       RenderWindowLine,
	}
	m.maxCachedRows = cfg.MaxCachedRows
	return m
}

// BindAdvisor attaches a small-model lifecycle advisor (hybrid mode).
func (m *Manager) BindAdvisor(a *SmallModelAdvisor) {
	m.advisor = a
}

// Mode returns the effective render mode.
func (m *Manager) Mode() Mode { return m.mode.Current() }

// LastRejectCode returns the most recent locator reject code, or empty.
func (m *Manager) LastRejectCode() string { return m.lastRejectCode }

// Window returns a window by id, or nil.
func (m *Manager) Window(id string) *Window { return m.windows[id] }

// WindowIDs lists window ids in creation order.
func (m *Manager) WindowIDs() []string {
	return append([]string(nil), m.order...)
}

// Windows lists windows in creation order.
func (m *Manager) Windows() []*Window {
	out := make([]*Window, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.windows[id])
	}
	return out
}

// ActiveID returns the active window id.
func (m *Manager) ActiveID() string { return m.activeID }

// BeginTurn ages every window and advances the turn counter.
func (m *Manager) BeginTurn(turn int) {
	m.currentTurn = turn
	for _, w := range m.windows {
		if !w.Focus.IsActive {
			w.Lifecycle.IdleTurns++
		}
	}
	if m.advisor != nil && m.advisor.ShouldTrigger(m.Windows(), turn, false) {
		m.advisor.Trigger(m.Windows(), m.activeID, m.budget.BudgetTokens, turn, "")
	}
}

// Observe runs the full ingest pipeline for one successful tool call and
// returns the text to surface to the model in place of (or around) the raw
// result. handled is false for tools outside perception's scope.
func (m *Manager) Observe(obs ToolObservation) (text string, handled bool) {
	class := ClassifyTool(obs.Tool)
	if class == OpUnknown {
		return obs.ResultText, false
	}

	w, err := m.resolveWindow(class, obs)
	if err != nil {
		// Locator rejects are recorded, perception skipped for this call.
		m.lastRejectCode = rejectCode(err)
		m.logger.Debug(context.Background(), "perception reject", "code", m.lastRejectCode, "tool", obs.Tool)
		return obs.ResultText, false
	}

	m.opSeq++
	w.Audit.CurrentIteration = m.opSeq
	m.demotePreviousActive(w.ID)
	m.touch(w)
	m.setActive(w.ID)

	w.Intent = m.intents.Resolve(w.Intent, obs.UserHint, obs.Tool, obs.ResultText, m.currentTurn)

	rec, ingestErr := m.ingest(w, class, obs)
	if ingestErr != nil {
		m.mode.MarkIngestFailure()
		m.logger.Warn(context.Background(), "perception ingest failed", "tool", obs.Tool, "error", ingestErr)
		// Enriched fallback: original text plus the perception block.
		return RenderEnriched(obs.ResultText, w), true
	}
	m.mode.MarkIngestSuccess()

	w.Lifecycle.DetailLevel = DetailFull
	w.Lifecycle.IdleTurns = 0

	// Repeat tripwire downgrades the mode.
	if class == OpSheetRead && w.Kind == KindSheet {
		_, _, tripped := m.repeat.Check(w.Sheet.FilePath, w.Sheet.SheetName, obs.Range, w.Intent.Tag)
		if tripped {
			m.mode.MarkRepeatTripwire()
		}
	}
	if class == OpSheetWrite && w.Kind == KindSheet {
		m.repeat.RecordWrite(w.Sheet.FilePath, w.Sheet.SheetName)
	}

	switch m.mode.Current() {
	case ModeEnriched:
		return RenderEnriched(obs.ResultText, w), true
	default:
		return SerializeConfirmation(rec, m.mode.Current()), true
	}
}

func rejectCode(err error) string {
	if err == ErrKindConflict {
		return RejectKindConflict
	}
	return RejectIdentityConflict
}

// resolveWindow finds or creates the window for an observation.
func (m *Manager) resolveWindow(class OpClass, obs ToolObservation) (*Window, error) {
	var identity Identity
	if class == OpExplorerRead {
		identity = ExplorerIdentity(obs.Directory)
	} else {
		identity = SheetIdentity(obs.File, obs.Sheet)
	}

	id, err := m.locator.Lookup(identity)
	if err != nil {
		return nil, err
	}
	if id != "" {
		return m.windows[id], nil
	}

	m.nextID++
	var w *Window
	if class == OpExplorerRead {
		id = fmt.Sprintf("explorer_%d", m.nextID)
		w = NewExplorerWindow(id, obs.Directory)
	} else {
		id = fmt.Sprintf("sheet_%d", m.nextID)
		w = NewSheetWindow(id, obs.File, obs.Sheet)
		if m.maxCachedRows > 0 {
			w.Sheet.MaxCachedRows = m.maxCachedRows
		}
	}
	if err := m.locator.Register(id, identity); err != nil {
		return nil, err
	}
	m.windows[id] = w
	m.order = append(m.order, id)
	return w, nil
}

// ingest applies the delta and mutable step for one observation and builds
// the confirmation record.
func (m *Manager) ingest(w *Window, class OpClass, obs ToolObservation) (ConfirmationRecord, error) {
	rec := ConfirmationRecord{
		WindowLabel: w.Label(),
		Tool:        obs.Tool,
		Range:       strings.ToUpper(strings.TrimSpace(obs.Range)),
		Summary:     obs.Summary,
	}

	switch class {
	case OpExplorerRead:
		if err := ApplyDelta(w, ExplorerDelta{Directory: obs.Directory, Entries: obs.Entries}); err != nil {
			return rec, err
		}
		rec.Range = w.Explorer.Directory
		rec.Rows = len(obs.Entries)
		rec.Cols = 1
		if rec.Summary == "" {
			rec.Summary = fmt.Sprintf("%d entries", len(obs.Entries))
		}

	case OpSheetRead:
		target, err := ParseRange(obs.Range)
		if err != nil {
			return rec, err
		}
		delta := SheetReadDelta{
			Range:     target,
			Rows:      obs.Rows,
			Columns:   obs.Columns,
			Summary:   obs.Summary,
			TotalRows: obs.TotalRows,
			TotalCols: obs.TotalCols,
		}
		if err := ApplyDelta(w, delta); err != nil {
			return rec, err
		}
		if _, err := IngestRead(w.Sheet, target, obs.Rows); err != nil {
			return rec, err
		}
		rec.Rows = target.Rows()
		rec.Cols = target.Cols()
		if rec.Summary == "" {
			rec.Summary = fmt.Sprintf("%d rows cached", len(w.Sheet.DataBuffer))
		}

	case OpSheetWrite:
		target, err := ParseRange(obs.Range)
		if err != nil {
			return rec, err
		}
		if err := ApplyDelta(w, SheetWriteDelta{TargetRange: target, Summary: obs.Summary}); err != nil {
			return rec, err
		}
		if m.wipeOnWrite {
			IngestWriteWipe(w.Sheet, target)
		} else {
			IngestWrite(w.Sheet, target, obs.PreviewAfter)
		}
		rec.Rows = target.Rows()
		rec.Cols = target.Cols()
		if rec.Summary == "" {
			rec.Summary = "written"
		}
		if w.Sheet.StaleHint != "" {
			rec.Hint = w.Sheet.StaleHint
		}

	case OpSheetFilter:
		filter := FilterState{Description: obs.FilterDesc}
		if err := ApplyDelta(w, SheetFilterDelta{Filter: filter}); err != nil {
			return rec, err
		}
		IngestFilter(w.Sheet, filter, obs.FilteredRows)
		rec.Rows = len(obs.FilteredRows)
		rec.Cols = w.Sheet.Viewport.VisibleCols
		if rec.Summary == "" {
			rec.Summary = "filtered: " + obs.FilterDesc
		}

	case OpSheetStyle:
		if err := ApplyDelta(w, SheetStyleDelta{Summary: obs.StyleSummary}); err != nil {
			return rec, err
		}
		if rec.Summary == "" {
			rec.Summary = obs.StyleSummary
		}

	case OpMetadata:
		delta := SheetReadDelta{
			Range:     w.Sheet.Viewport.Range,
			Columns:   obs.Columns,
			TotalRows: obs.TotalRows,
			TotalCols: obs.TotalCols,
			Summary:   obs.Summary,
		}
		if obs.Range != "" {
			if target, err := ParseRange(obs.Range); err == nil {
				delta.Range = target
			}
		}
		if err := ApplyDelta(w, delta); err != nil {
			return rec, err
		}
		rec.Rows = w.Sheet.TotalRows
		rec.Cols = w.Sheet.TotalCols
	}

	rec.Intent = w.Intent.Tag
	return rec, nil
}

// AllocateTiers runs the lifecycle advisor and budget allocator for the
// current turn and applies the resulting lifecycle changes.
func (m *Manager) AllocateTiers() map[string]Tier {
	var advisor LifecycleAdvisor = m.rules
	if m.advisor != nil {
		advisor = &HybridAdvisor{
			Rules:        m.rules,
			Plan:         m.advisor.Plan,
			PlanTTLTurns: m.advisor.cfg.PlanTTLTurns,
		}
	}
	advised := advisor.Advise(m.Windows(), m.activeID, m.currentTurn)
	final := m.budget.Allocate(m.Windows(), advised, m.activeID)

	for id, tier := range final {
		w := m.windows[id]
		switch tier {
		case TierActive:
			w.Lifecycle.DetailLevel = DetailFull
		case TierBackground:
			w.Lifecycle.DetailLevel = DetailSummary
		case TierSuspended:
			w.Lifecycle.DetailLevel = DetailMinimal
		case TierTerminated:
			m.closeWindow(id)
		}
	}
	return final
}

// Notice renders the system notice for the current windows.
func (m *Manager) Notice() string {
	tiers := m.AllocateTiers()
	return SystemNotice(m.Windows(), tiers)
}

func (m *Manager) closeWindow(id string) {
	w := m.windows[id]
	if w == nil {
		return
	}
	w.Lifecycle.Dormant = true
	w.Lifecycle.DetailLevel = DetailNone
	w.Focus.IsActive = false
	if m.activeID == id {
		m.activeID = ""
	}
}

// Reset drops all windows and cancels advisory tasks.
func (m *Manager) Reset() {
	if m.advisor != nil {
		m.advisor.Reset()
	}
	m.windows = make(map[string]*Window)
	m.order = nil
	m.locator = NewLocator()
	m.repeat.Reset()
	m.activeID = ""
	m.lastRejectCode = ""
}

func (m *Manager) touch(w *Window) {
	m.seq++
	w.Lifecycle.LastAccessSeq = m.seq
	w.Lifecycle.IdleTurns = 0
}

func (m *Manager) setActive(id string) {
	m.activeID = id
	if w := m.windows[id]; w != nil {
		w.Focus.IsActive = true
	}
}

// demotePreviousActive downgrades the previously active window's detail one
// step when focus moves elsewhere.
func (m *Manager) demotePreviousActive(newActive string) {
	if m.activeID == "" || m.activeID == newActive {
		return
	}
	if prev := m.windows[m.activeID]; prev != nil {
		prev.Focus.IsActive = false
		if prev.Lifecycle.DetailLevel > DetailNone {
			prev.Lifecycle.DetailLevel--
		}
	}
}
