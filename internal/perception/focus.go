package perception

import (
	"fmt"
	"strings"
)

// Focus actions accepted by the focus_window tool.
const (
	FocusRestore     = "restore"
	FocusClearFilter = "clear_filter"
	FocusScroll      = "scroll"
	FocusExpand      = "expand"
)

// FocusResult is the outcome of a focus action.
type FocusResult struct {
	WindowID string `json:"window_id"`
	Action   string `json:"action"`
	Status   string `json:"status"` // "ok", "cache_hit", "needs_refill"
	Message  string `json:"message,omitempty"`
	// Target is the normalised range a refill must read.
	Target string `json:"target,omitempty"`
}

// RefillFunc performs an actual sheet read for a range the cache cannot
// serve; its result feeds back through IngestFocusReadResult.
type RefillFunc func(w *Window, target Rect) error

// FocusService handles focus_window actions against the manager's windows.
type FocusService struct {
	manager *Manager
	refill  RefillFunc
}

// NewFocusService creates a focus service. refill may be nil; needs_refill
// results are then returned to the caller to act on.
func NewFocusService(m *Manager, refill RefillFunc) *FocusService {
	return &FocusService{manager: m, refill: refill}
}

// Handle dispatches one focus action.
func (f *FocusService) Handle(windowID, action, rangeRef string, rows int) (*FocusResult, error) {
	w := f.manager.Window(windowID)
	if w == nil {
		return nil, fmt.Errorf("window %q not found; available_windows: %s",
			windowID, strings.Join(f.manager.WindowIDs(), ", "))
	}

	switch action {
	case FocusRestore:
		return f.restore(w)
	case FocusClearFilter:
		return f.clearFilter(w)
	case FocusScroll:
		if rangeRef == "" {
			return nil, fmt.Errorf("scroll requires a range")
		}
		target, err := ParseRange(rangeRef)
		if err != nil {
			return nil, err
		}
		return f.reveal(w, target, FocusScroll)
	case FocusExpand:
		if w.Kind != KindSheet {
			return nil, fmt.Errorf("expand requires a sheet window")
		}
		if rows <= 0 {
			return nil, fmt.Errorf("expand requires a positive row count")
		}
		return f.reveal(w, expandTarget(w.Sheet, rows), FocusExpand)
	default:
		return nil, fmt.Errorf("unknown focus action %q", action)
	}
}

func (f *FocusService) restore(w *Window) (*FocusResult, error) {
	f.manager.demotePreviousActive(w.ID)
	w.Lifecycle.Dormant = false
	w.Lifecycle.DetailLevel = DetailFull
	w.Focus.LastAction = FocusRestore
	f.manager.touch(w)
	f.manager.setActive(w.ID)
	return &FocusResult{WindowID: w.ID, Action: FocusRestore, Status: "ok"}, nil
}

func (f *FocusService) clearFilter(w *Window) (*FocusResult, error) {
	if w.Kind != KindSheet {
		return nil, fmt.Errorf("clear_filter requires a sheet window")
	}
	if !ClearFilter(w.Sheet) {
		return &FocusResult{
			WindowID: w.ID, Action: FocusClearFilter, Status: "ok",
			Message: "no filter applied",
		}, nil
	}
	// Clearing a filter is a data-verification move.
	w.Intent = IntentState{
		Tag:           IntentValidate,
		Confidence:    intentForceConfidence,
		Source:        "user",
		UpdatedTurn:   f.manager.currentTurn,
		LockUntilTurn: f.manager.currentTurn + DefaultStickyTurns - 1,
	}
	w.Focus.LastAction = FocusClearFilter
	f.manager.touch(w)
	return &FocusResult{WindowID: w.ID, Action: FocusClearFilter, Status: "ok"}, nil
}

// reveal serves scroll and expand: a cache hit re-anchors the viewport; a
// miss requests a refill.
func (f *FocusService) reveal(w *Window, target Rect, action string) (*FocusResult, error) {
	if w.Kind != KindSheet {
		return nil, fmt.Errorf("%s requires a sheet window", action)
	}
	f.manager.demotePreviousActive(w.ID)
	w.Focus.LastAction = action
	f.manager.touch(w)
	f.manager.setActive(w.ID)

	for _, c := range w.Sheet.CachedRanges {
		if c.Ref.Contains(target) {
			w.Sheet.Viewport = Viewport{
				Range:       target,
				VisibleRows: target.Rows(),
				VisibleCols: target.Cols(),
			}
			return &FocusResult{
				WindowID: w.ID, Action: action, Status: "cache_hit",
				Target: target.Ref(),
			}, nil
		}
	}

	if f.refill != nil {
		if err := f.refill(w, target); err != nil {
			return nil, fmt.Errorf("refill read failed: %w", err)
		}
		return &FocusResult{
			WindowID: w.ID, Action: action, Status: "ok",
			Target: target.Ref(),
		}, nil
	}
	return &FocusResult{
		WindowID: w.ID, Action: action, Status: "needs_refill",
		Target: target.Ref(),
	}, nil
}

// expandTarget extends the current viewport downward by n rows.
func expandTarget(s *SheetData, rows int) Rect {
	vp := s.Viewport.Range
	if vp == (Rect{}) {
		return Rect{StartRow: 1, StartCol: 1, EndRow: rows, EndCol: max(1, s.TotalCols)}
	}
	return Rect{
		StartRow: vp.StartRow,
		StartCol: vp.StartCol,
		EndRow:   vp.EndRow + rows,
		EndCol:   vp.EndCol,
	}
}

// IngestFocusReadResult feeds a refill read back into the window cache and
// re-anchors the viewport on the read range.
func (f *FocusService) IngestFocusReadResult(w *Window, readRange Rect, rows [][]string) error {
	if w.Kind != KindSheet {
		return fmt.Errorf("focus read requires a sheet window")
	}
	if _, err := IngestRead(w.Sheet, readRange, rows); err != nil {
		return err
	}
	w.Sheet.Viewport = Viewport{
		Range:       readRange,
		VisibleRows: readRange.Rows(),
		VisibleCols: readRange.Cols(),
	}
	return nil
}
