// Package perception models each open spreadsheet or directory as a live
// "window" with lifecycle, budget, and intent state that is rendered back
// into the model's context every turn.
package perception

import (
	"path/filepath"
	"strings"
)

// WindowKind discriminates the window sum type.
type WindowKind string

const (
	KindExplorer WindowKind = "explorer"
	KindSheet    WindowKind = "sheet"
)

// DetailLevel is how much of a window the renderer surfaces.
type DetailLevel int

const (
	DetailNone DetailLevel = iota
	DetailMinimal
	DetailSummary
	DetailFull
)

// String returns the detail level name.
func (d DetailLevel) String() string {
	switch d {
	case DetailFull:
		return "full"
	case DetailSummary:
		return "summary"
	case DetailMinimal:
		return "minimal"
	default:
		return "none"
	}
}

// IntentTag classifies what the agent is doing with a window.
type IntentTag string

const (
	IntentAggregate IntentTag = "aggregate"
	IntentFormat    IntentTag = "format"
	IntentValidate  IntentTag = "validate"
	IntentFormula   IntentTag = "formula"
	IntentEntry     IntentTag = "entry"
	IntentGeneral   IntentTag = "general"
)

// IntentState tracks the resolved intent on a window.
type IntentState struct {
	Tag           IntentTag
	Confidence    float64
	Source        string // "user", "tool", "carry"
	UpdatedTurn   int
	LockUntilTurn int
}

// LifecycleState tracks window ageing and render detail.
type LifecycleState struct {
	DetailLevel   DetailLevel
	IdleTurns     int
	LastAccessSeq int64
	Dormant       bool
}

// FocusState tracks the active window and the last focus action.
type FocusState struct {
	IsActive   bool
	LastAction string
}

// OpEntry is one audit entry in a window's operation history.
type OpEntry struct {
	Iteration int
	Tool      string
	Detail    string
}

// ChangeRecord is one entry in a window's change log.
type ChangeRecord struct {
	Iteration int
	Summary   string
}

const (
	maxOperationHistory = 32
	maxChangeLog        = 32
)

// AuditState holds bounded ring buffers of window activity.
type AuditState struct {
	OperationHistory []OpEntry
	ChangeLog        []ChangeRecord
	CurrentIteration int
}

func (a *AuditState) appendOp(e OpEntry) {
	a.OperationHistory = append(a.OperationHistory, e)
	if len(a.OperationHistory) > maxOperationHistory {
		a.OperationHistory = a.OperationHistory[len(a.OperationHistory)-maxOperationHistory:]
	}
}

func (a *AuditState) appendChange(c ChangeRecord) {
	a.ChangeLog = append(a.ChangeLog, c)
	if len(a.ChangeLog) > maxChangeLog {
		a.ChangeLog = a.ChangeLog[len(a.ChangeLog)-maxChangeLog:]
	}
}

// CachedRange is one contiguous block of cached sheet rows.
type CachedRange struct {
	Ref               Rect
	Rows              [][]string
	IsCurrentViewport bool
	AddedAtIteration  int
}

// FilterState describes an applied sheet filter.
type FilterState struct {
	Description string
	Column      string
	Criteria    string
}

// Viewport is the reported visible region of a sheet.
type Viewport struct {
	Range       Rect
	VisibleRows int
	VisibleCols int
}

// SheetStyle carries style metadata surfaced in enriched renders.
type SheetStyle struct {
	Summary            string
	FreezePanes        string
	ColumnWidths       map[string]float64
	RowHeights         map[int]float64
	MergedRanges       []string
	ConditionalEffects []string
	ScrollPosition     string
	StatusBar          string
}

// DefaultMaxCachedRows bounds the total cached rows per sheet window.
const DefaultMaxCachedRows = 200

// SheetData is the kind-specific container for sheet windows. It mutates only
// through deltas and the ingest pipeline.
type SheetData struct {
	FilePath  string
	SheetName string
	Viewport  Viewport
	TotalRows int
	TotalCols int

	CachedRanges []*CachedRange
	DataBuffer   [][]string
	Columns      []string

	Filter           *FilterState
	UnfilteredBuffer [][]string
	StaleHint        string

	Style         SheetStyle
	MaxCachedRows int
}

// rebuildBuffer recomputes the flattened data buffer from the cached ranges.
func (s *SheetData) rebuildBuffer() {
	var buf [][]string
	for _, c := range s.CachedRanges {
		buf = append(buf, c.Rows...)
	}
	s.DataBuffer = buf
}

// cachedRowCount is the total rows across cached ranges.
func (s *SheetData) cachedRowCount() int {
	n := 0
	for _, c := range s.CachedRanges {
		n += len(c.Rows)
	}
	return n
}

// ExplorerData is the kind-specific container for explorer windows.
type ExplorerData struct {
	Directory string
	Entries   []string
}

// Window is one live perception window.
type Window struct {
	ID        string
	Kind      WindowKind
	Lifecycle LifecycleState
	Intent    IntentState
	Audit     AuditState
	Focus     FocusState
	Summary   string

	Sheet    *SheetData
	Explorer *ExplorerData
}

// Identity returns the stable identity key for the window.
func (w *Window) Identity() Identity {
	if w.Kind == KindExplorer {
		return ExplorerIdentity(w.Explorer.Directory)
	}
	return SheetIdentity(w.Sheet.FilePath, w.Sheet.SheetName)
}

// Label is the short human-readable name used in confirmations.
func (w *Window) Label() string {
	if w.Kind == KindExplorer {
		return w.Explorer.Directory
	}
	return filepath.Base(w.Sheet.FilePath) + "/" + w.Sheet.SheetName
}

// NewExplorerWindow creates an explorer window over a directory.
func NewExplorerWindow(id, directory string) *Window {
	return &Window{
		ID:   id,
		Kind: KindExplorer,
		Lifecycle: LifecycleState{
			DetailLevel: DetailFull,
		},
		Intent:   IntentState{Tag: IntentGeneral},
		Explorer: &ExplorerData{Directory: normalizePath(directory)},
	}
}

// NewSheetWindow creates a sheet window over one sheet of a file.
func NewSheetWindow(id, filePath, sheetName string) *Window {
	return &Window{
		ID:   id,
		Kind: KindSheet,
		Lifecycle: LifecycleState{
			DetailLevel: DetailFull,
		},
		Intent: IntentState{Tag: IntentGeneral},
		Sheet: &SheetData{
			FilePath:      normalizePath(filePath),
			SheetName:     sheetName,
			MaxCachedRows: DefaultMaxCachedRows,
		},
	}
}

func normalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(strings.TrimSpace(p)))
}
