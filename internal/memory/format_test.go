package memory

import (
	"strings"
	"testing"
	"time"
)

func mustEntry(t *testing.T, category Category, content string, at time.Time) *Entry {
	t.Helper()
	e, err := NewEntry(category, content, "", at)
	if err != nil {
		t.Fatalf("NewEntry error: %v", err)
	}
	return e
}

func TestFormatParseRoundTrip(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	entries := []*Entry{
		mustEntry(t, CategoryFilePattern, "sales.xlsx keeps one sheet per quarter", base),
		mustEntry(t, CategoryUserPref, "prefers EUR formatting\nwith two decimals", base.Add(time.Hour)),
		mustEntry(t, CategoryErrorSolution, "VLOOKUP #N/A fixed by exact-match flag", base.Add(2*time.Hour)),
	}

	parsed := ParseEntries(FormatEntries(entries))
	if len(parsed) != len(entries) {
		t.Fatalf("parsed %d entries, want %d", len(parsed), len(entries))
	}
	for i, want := range entries {
		got := parsed[i]
		if got.ID != want.ID {
			t.Errorf("entry %d id = %s, want %s", i, got.ID, want.ID)
		}
		if got.Category != want.Category {
			t.Errorf("entry %d category = %s, want %s", i, got.Category, want.Category)
		}
		if got.Content != want.Content {
			t.Errorf("entry %d content = %q, want %q", i, got.Content, want.Content)
		}
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("entry %d timestamp = %v, want %v", i, got.Timestamp, want.Timestamp)
		}
	}
}

func TestParseSkipsMalformedRegions(t *testing.T) {
	text := "random preamble\n" +
		"### [2026-03-14 09:26] general\n\nvalid body\n\n---\n\n" +
		"### [not-a-date] general\n\nignored\n\n---\n"
	parsed := ParseEntries(text)
	if len(parsed) != 1 {
		t.Fatalf("parsed %d entries, want 1", len(parsed))
	}
	if parsed[0].Content != "valid body" {
		t.Errorf("content = %q", parsed[0].Content)
	}
}

func TestTruncateAlignsToHeader(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var entries []*Entry
	for i := 0; i < 100; i++ {
		entries = append(entries, mustEntry(t, CategoryGeneral,
			strings.Repeat("line\n", 4)+"tail", base.Add(time.Duration(i)*time.Minute)))
	}
	text := FormatEntries(entries)
	if len(strings.Split(text, "\n")) <= 500 {
		t.Fatal("fixture too small to trigger truncation")
	}

	truncated := TruncateLines(text, 500, 400)
	lines := strings.Split(truncated, "\n")
	if len(lines) > 400 {
		t.Errorf("truncated to %d lines, want <= 400", len(lines))
	}
	// The result starts exactly at an entry header.
	if !headerPattern.MatchString(lines[0]) {
		t.Errorf("truncated text does not start at a header: %q", lines[0])
	}
	// Every surviving entry still parses.
	if parsed := ParseEntries(truncated); len(parsed) == 0 {
		t.Error("no entries parse from truncated text")
	}
}

func TestTruncateNoopUnderLimit(t *testing.T) {
	text := FormatEntries([]*Entry{
		mustEntry(t, CategoryGeneral, "short", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	if got := TruncateLines(text, 500, 400); got != text {
		t.Error("text under the limit must be unchanged")
	}
}

func TestTruncateIdempotent(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var entries []*Entry
	for i := 0; i < 120; i++ {
		entries = append(entries, mustEntry(t, CategoryGeneral,
			strings.Repeat("x\n", 3)+"end", base.Add(time.Duration(i)*time.Minute)))
	}
	once := TruncateLines(FormatEntries(entries), 500, 400)
	twice := TruncateLines(once, 500, 400)
	if once != twice {
		t.Error("truncation is not idempotent")
	}
}
