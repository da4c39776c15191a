package memory

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const headerTimeLayout = "2006-01-02 15:04"

// headerPattern matches an entry header line: "### [YYYY-MM-DD HH:MM] <category>".
var headerPattern = regexp.MustCompile(`^### \[(\d{4}-\d{2}-\d{2} \d{2}:\d{2})\] (\S+)$`)

// FormatEntries renders entries as the markdown file format: a header line
// per entry, the body, and a "---" separator.
func FormatEntries(entries []*Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "### [%s] %s\n\n%s\n\n---\n\n",
			e.Timestamp.UTC().Format(headerTimeLayout), e.Category, e.Content)
	}
	return b.String()
}

// ParseEntries parses the markdown format back into entries. Content between
// a header and the next separator becomes the body; malformed regions are
// skipped rather than failing the whole file.
func ParseEntries(text string) []*Entry {
	var out []*Entry
	lines := strings.Split(text, "\n")

	i := 0
	for i < len(lines) {
		m := headerPattern.FindStringSubmatch(lines[i])
		if m == nil {
			i++
			continue
		}
		at, err := time.Parse(headerTimeLayout, m[1])
		if err != nil {
			i++
			continue
		}

		var body []string
		i++
		for i < len(lines) && strings.TrimSpace(lines[i]) != "---" &&
			!headerPattern.MatchString(lines[i]) {
			body = append(body, lines[i])
			i++
		}
		if i < len(lines) && strings.TrimSpace(lines[i]) == "---" {
			i++
		}

		content := strings.TrimSpace(strings.Join(body, "\n"))
		if content == "" {
			continue
		}
		entry, err := NewEntry(Category(m[2]), content, "", at.UTC())
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// TruncateLines enforces the file capacity: when the rendered file exceeds
// maxLines, keep the last at most keepLines lines, aligned forward to the
// next entry header so no entry is cut in half.
func TruncateLines(text string, maxLines, keepLines int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}

	start := len(lines) - keepLines
	if start < 0 {
		start = 0
	}
	for start < len(lines) && !headerPattern.MatchString(lines[start]) {
		start++
	}
	if start >= len(lines) {
		return ""
	}
	return strings.Join(lines[start:], "\n")
}
