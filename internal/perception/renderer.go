package perception

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ConfirmationRecord is the structured form of a tool confirmation surfaced
// to the model in anchored and unified modes. Summaries and hints must not
// contain '|' or newlines; the serializer strips them so every serialized
// record parses back to itself.
type ConfirmationRecord struct {
	WindowLabel string
	Tool        string
	Range       string
	Rows        int
	Cols        int
	Summary     string
	Intent      IntentTag
	Hint        string
}

func sanitizeField(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// SerializeConfirmation renders a record in anchored or unified form.
func SerializeConfirmation(rec ConfirmationRecord, mode Mode) string {
	label := sanitizeField(rec.WindowLabel)
	summary := sanitizeField(rec.Summary)
	hint := sanitizeField(rec.Hint)
	header := fmt.Sprintf("[OK] [%s] %s: %s | R%d x C%d | %s",
		label, sanitizeField(rec.Tool), sanitizeField(rec.Range), rec.Rows, rec.Cols, summary)

	if mode == ModeUnified {
		line := header + fmt.Sprintf(" | intent=%s", rec.Intent)
		if hint != "" {
			line += " | hint=" + hint
		}
		return line
	}

	out := header + fmt.Sprintf("\n  intent: %s", rec.Intent)
	if hint != "" {
		out += "\n  hint: " + hint
	}
	return out
}

var confirmationHeader = regexp.MustCompile(
	`^\[OK\] \[([^\]]+)\] ([^:]+): ([^|]+) \| R(\d+) x C(\d+) \| ([^|\n]*)`)

var (
	unifiedIntent  = regexp.MustCompile(` \| intent=([a-z]+)`)
	unifiedHint    = regexp.MustCompile(` \| hint=([^|\n]+)$`)
	anchoredIntent = regexp.MustCompile(`\n  intent: ([a-z]+)`)
	anchoredHint   = regexp.MustCompile(`\n  hint: (.+)$`)
)

// ParseConfirmation parses an anchored or unified confirmation back into its
// record. The inverse of SerializeConfirmation for valid records.
func ParseConfirmation(text string) (ConfirmationRecord, error) {
	m := confirmationHeader.FindStringSubmatch(text)
	if m == nil {
		return ConfirmationRecord{}, fmt.Errorf("not a confirmation: %q", text)
	}
	rows, _ := strconv.Atoi(m[4])
	cols, _ := strconv.Atoi(m[5])
	rec := ConfirmationRecord{
		WindowLabel: m[1],
		Tool:        strings.TrimSpace(m[2]),
		Range:       strings.TrimSpace(m[3]),
		Rows:        rows,
		Cols:        cols,
		Summary:     strings.TrimSpace(m[6]),
	}

	if im := unifiedIntent.FindStringSubmatch(text); im != nil {
		rec.Intent = IntentTag(im[1])
		if hm := unifiedHint.FindStringSubmatch(text); hm != nil {
			rec.Hint = strings.TrimSpace(hm[1])
		}
		return rec, nil
	}
	if im := anchoredIntent.FindStringSubmatch(text); im != nil {
		rec.Intent = IntentTag(im[1])
		if hm := anchoredHint.FindStringSubmatch(text); hm != nil {
			rec.Hint = strings.TrimSpace(hm[1])
		}
		return rec, nil
	}
	return rec, nil
}

// RenderEnriched appends the ASCII perception block to the original tool
// result text.
func RenderEnriched(original string, w *Window) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\n")
	b.WriteString("+-- perception ")
	b.WriteString(strings.Repeat("-", 40))
	b.WriteString("\n")
	fmt.Fprintf(&b, "| window: %s (%s)\n", w.Label(), w.Kind)

	switch w.Kind {
	case KindExplorer:
		fmt.Fprintf(&b, "| directory: %s\n", w.Explorer.Directory)
		fmt.Fprintf(&b, "| entries: %d\n", len(w.Explorer.Entries))
	case KindSheet:
		s := w.Sheet
		if s.Viewport.Range != (Rect{}) {
			fmt.Fprintf(&b, "| viewport: %s (%d x %d)\n",
				s.Viewport.Range.Ref(), s.Viewport.VisibleRows, s.Viewport.VisibleCols)
		}
		fmt.Fprintf(&b, "| totals: %d rows x %d cols\n", s.TotalRows, s.TotalCols)
		if s.Style.FreezePanes != "" {
			fmt.Fprintf(&b, "| freeze: %s\n", s.Style.FreezePanes)
		}
		if s.Style.ScrollPosition != "" {
			fmt.Fprintf(&b, "| scroll: %s\n", s.Style.ScrollPosition)
		}
		if s.Style.StatusBar != "" {
			fmt.Fprintf(&b, "| status: %s\n", s.Style.StatusBar)
		}
		if len(s.Style.ColumnWidths) > 0 {
			fmt.Fprintf(&b, "| column widths: %d set\n", len(s.Style.ColumnWidths))
		}
		if len(s.Style.RowHeights) > 0 {
			fmt.Fprintf(&b, "| row heights: %d set\n", len(s.Style.RowHeights))
		}
		if len(s.Style.MergedRanges) > 0 {
			fmt.Fprintf(&b, "| merged: %s\n", strings.Join(s.Style.MergedRanges, ", "))
		}
		if len(s.Style.ConditionalEffects) > 0 {
			fmt.Fprintf(&b, "| conditional: %s\n", strings.Join(s.Style.ConditionalEffects, "; "))
		}
		if s.Filter != nil {
			fmt.Fprintf(&b, "| filter: %s\n", s.Filter.Description)
		}
		if s.StaleHint != "" {
			fmt.Fprintf(&b, "| stale: %s\n", s.StaleHint)
		}
	}
	b.WriteString("+")
	b.WriteString(strings.Repeat("-", 54))
	return b.String()
}

// RenderWindowLine renders a window at a tier for the system notice and the
// budget allocator.
func RenderWindowLine(w *Window, tier Tier) string {
	switch tier {
	case TierTerminated:
		return ""
	case TierSuspended:
		return fmt.Sprintf("[%s] %s (minimised, idle %d)", w.ID, w.Label(), w.Lifecycle.IdleTurns)
	case TierBackground:
		line := fmt.Sprintf("[%s] %s - %s", w.ID, w.Label(), w.summaryLine())
		return line
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s - %s", w.ID, w.Label(), w.summaryLine())
		if w.Kind == KindSheet && w.Sheet.StaleHint != "" {
			fmt.Fprintf(&b, "\n  stale: %s", w.Sheet.StaleHint)
		}
		fmt.Fprintf(&b, "\n  intent: %s", w.Intent.Tag)
		return b.String()
	}
}

func (w *Window) summaryLine() string {
	if w.Summary != "" {
		return w.Summary
	}
	switch w.Kind {
	case KindExplorer:
		return fmt.Sprintf("%d entries", len(w.Explorer.Entries))
	default:
		s := w.Sheet
		return fmt.Sprintf("%d x %d, %d cached rows", s.TotalRows, s.TotalCols, len(s.DataBuffer))
	}
}

// SystemNotice lists the visible windows' rendered text under a heading.
func SystemNotice(windows []*Window, tiers map[string]Tier) string {
	var lines []string
	for _, w := range windows {
		tier := tiers[w.ID]
		if tier == TierTerminated || w.Lifecycle.Dormant {
			continue
		}
		if line := RenderWindowLine(w, tier); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "## Open windows\n\n" + strings.Join(lines, "\n")
}
