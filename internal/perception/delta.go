package perception

import (
	"fmt"
)

// Delta is a kind-checked immutable description of a single window mutation.
// All window state changes flow through ApplyDelta; nothing writes window
// fields directly.
type Delta interface {
	// Kind is the window kind the delta applies to.
	Kind() WindowKind
	// Describe is the audit trail entry for the delta.
	Describe() string
	apply(w *Window) error
}

// ApplyDelta validates the kind, appends the audit entry, and applies the
// mutation.
func ApplyDelta(w *Window, d Delta) error {
	if w.Kind != d.Kind() {
		return fmt.Errorf("delta kind %s does not match window kind %s", d.Kind(), w.Kind)
	}
	w.Audit.appendOp(OpEntry{
		Iteration: w.Audit.CurrentIteration,
		Detail:    d.Describe(),
	})
	return d.apply(w)
}

// ExplorerDelta replaces an explorer window's directory listing.
type ExplorerDelta struct {
	Directory string
	Entries   []string
}

func (d ExplorerDelta) Kind() WindowKind { return KindExplorer }
func (d ExplorerDelta) Describe() string {
	return fmt.Sprintf("explorer %s (%d entries)", d.Directory, len(d.Entries))
}

func (d ExplorerDelta) apply(w *Window) error {
	if d.Directory != "" {
		w.Explorer.Directory = normalizePath(d.Directory)
	}
	w.Explorer.Entries = append([]string(nil), d.Entries...)
	return nil
}

// SheetReadDelta records a read of a sheet range.
type SheetReadDelta struct {
	Range   Rect
	Rows    [][]string
	Columns []string
	Summary string
	// TotalRows/TotalCols update the sheet shape when non-zero.
	TotalRows int
	TotalCols int
}

func (d SheetReadDelta) Kind() WindowKind { return KindSheet }
func (d SheetReadDelta) Describe() string {
	return fmt.Sprintf("read %s (%d rows)", d.Range.Ref(), len(d.Rows))
}

func (d SheetReadDelta) apply(w *Window) error {
	s := w.Sheet
	s.Viewport = Viewport{Range: d.Range, VisibleRows: d.Range.Rows(), VisibleCols: d.Range.Cols()}
	if len(d.Columns) > 0 {
		s.Columns = append([]string(nil), d.Columns...)
	}
	if d.TotalRows > 0 {
		s.TotalRows = d.TotalRows
	} else if d.Range.EndRow > s.TotalRows {
		s.TotalRows = d.Range.EndRow
	}
	if d.TotalCols > 0 {
		s.TotalCols = d.TotalCols
	} else if d.Range.EndCol > s.TotalCols {
		s.TotalCols = d.Range.EndCol
	}
	if d.Summary != "" {
		w.Summary = d.Summary
	}
	return nil
}

// SheetWriteDelta records a write to a target range.
type SheetWriteDelta struct {
	TargetRange Rect
	Summary     string
}

func (d SheetWriteDelta) Kind() WindowKind { return KindSheet }
func (d SheetWriteDelta) Describe() string {
	return fmt.Sprintf("write %s", d.TargetRange.Ref())
}

func (d SheetWriteDelta) apply(w *Window) error {
	if d.Summary != "" {
		w.Summary = d.Summary
	}
	w.Audit.appendChange(ChangeRecord{
		Iteration: w.Audit.CurrentIteration,
		Summary:   fmt.Sprintf("%s: %s", d.TargetRange.Ref(), d.Summary),
	})
	return nil
}

// SheetFilterDelta records an applied filter.
type SheetFilterDelta struct {
	Filter FilterState
}

func (d SheetFilterDelta) Kind() WindowKind { return KindSheet }
func (d SheetFilterDelta) Describe() string {
	return "filter " + d.Filter.Description
}

func (d SheetFilterDelta) apply(w *Window) error {
	f := d.Filter
	w.Sheet.Filter = &f
	return nil
}

// SheetStyleDelta merges style metadata into the window.
type SheetStyleDelta struct {
	Summary            string
	FreezePanes        string
	ColumnWidths       map[string]float64
	RowHeights         map[int]float64
	MergedRanges       []string
	ConditionalEffects []string
}

func (d SheetStyleDelta) Kind() WindowKind { return KindSheet }
func (d SheetStyleDelta) Describe() string { return "style " + d.Summary }

func (d SheetStyleDelta) apply(w *Window) error {
	style := &w.Sheet.Style
	if d.Summary != "" {
		style.Summary = d.Summary
	}
	if d.FreezePanes != "" {
		style.FreezePanes = d.FreezePanes
	}
	if len(d.ColumnWidths) > 0 {
		if style.ColumnWidths == nil {
			style.ColumnWidths = make(map[string]float64)
		}
		for col, width := range d.ColumnWidths {
			style.ColumnWidths[col] = width
		}
	}
	if len(d.RowHeights) > 0 {
		if style.RowHeights == nil {
			style.RowHeights = make(map[int]float64)
		}
		for row, height := range d.RowHeights {
			style.RowHeights[row] = height
		}
	}
	if len(d.MergedRanges) > 0 {
		style.MergedRanges = append(style.MergedRanges, d.MergedRanges...)
	}
	if len(d.ConditionalEffects) > 0 {
		style.ConditionalEffects = append(style.ConditionalEffects, d.ConditionalEffects...)
	}
	return nil
}

// SheetFocusDelta records a focus action and optional state flips.
type SheetFocusDelta struct {
	Action      string
	Detail      *DetailLevel
	SetActive   *bool
	WakeDormant bool
}

func (d SheetFocusDelta) Kind() WindowKind { return KindSheet }
func (d SheetFocusDelta) Describe() string { return "focus " + d.Action }

func (d SheetFocusDelta) apply(w *Window) error {
	w.Focus.LastAction = d.Action
	if d.Detail != nil {
		w.Lifecycle.DetailLevel = *d.Detail
	}
	if d.SetActive != nil {
		w.Focus.IsActive = *d.SetActive
	}
	if d.WakeDormant {
		w.Lifecycle.Dormant = false
	}
	return nil
}

// LifecycleDelta flips lifecycle fields on any window kind. Kind is captured
// at construction so the kind check still applies.
type LifecycleDelta struct {
	WindowKind WindowKind
	Detail     *DetailLevel
	Dormant    *bool
	ResetIdle  bool
}

func (d LifecycleDelta) Kind() WindowKind { return d.WindowKind }
func (d LifecycleDelta) Describe() string { return "lifecycle" }

func (d LifecycleDelta) apply(w *Window) error {
	if d.Detail != nil {
		w.Lifecycle.DetailLevel = *d.Detail
	}
	if d.Dormant != nil {
		w.Lifecycle.Dormant = *d.Dormant
		if *d.Dormant {
			w.Lifecycle.DetailLevel = DetailNone
		}
	}
	if d.ResetIdle {
		w.Lifecycle.IdleTurns = 0
	}
	return nil
}

// IntentDelta updates a window's intent state.
type IntentDelta struct {
	WindowKind WindowKind
	Intent     IntentState
}

func (d IntentDelta) Kind() WindowKind { return d.WindowKind }
func (d IntentDelta) Describe() string {
	return fmt.Sprintf("intent %s (%.2f, %s)", d.Intent.Tag, d.Intent.Confidence, d.Intent.Source)
}

func (d IntentDelta) apply(w *Window) error {
	w.Intent = d.Intent
	return nil
}

// FieldSetDelta generically sets a named scalar field.
type FieldSetDelta struct {
	WindowKind WindowKind
	Field      string
	Value      string
}

func (d FieldSetDelta) Kind() WindowKind { return d.WindowKind }
func (d FieldSetDelta) Describe() string { return "set " + d.Field }

func (d FieldSetDelta) apply(w *Window) error {
	switch d.Field {
	case "summary":
		w.Summary = d.Value
	case "stale_hint":
		if w.Kind != KindSheet {
			return fmt.Errorf("field %s requires a sheet window", d.Field)
		}
		w.Sheet.StaleHint = d.Value
	default:
		return fmt.Errorf("unknown field %q", d.Field)
	}
	return nil
}

// FieldAppendDelta generically appends to a named list field.
type FieldAppendDelta struct {
	WindowKind WindowKind
	Field      string
	Value      string
}

func (d FieldAppendDelta) Kind() WindowKind { return d.WindowKind }
func (d FieldAppendDelta) Describe() string { return "append " + d.Field }

func (d FieldAppendDelta) apply(w *Window) error {
	switch d.Field {
	case "entries":
		if w.Kind != KindExplorer {
			return fmt.Errorf("field %s requires an explorer window", d.Field)
		}
		w.Explorer.Entries = append(w.Explorer.Entries, d.Value)
	case "change_log":
		w.Audit.appendChange(ChangeRecord{Iteration: w.Audit.CurrentIteration, Summary: d.Value})
	default:
		return fmt.Errorf("unknown field %q", d.Field)
	}
	return nil
}
