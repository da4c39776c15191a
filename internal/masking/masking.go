// Package masking compacts old tool observations in the message history so
// long sessions keep their token budget for recent turns.
package masking

import (
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultFreshWindow is how many most-recent user turns stay verbatim.
	DefaultFreshWindow = 3

	// DefaultFallbackChars bounds the generic observation summary.
	DefaultFallbackChars = 200
)

// Masker rewrites tool-result messages older than the fresh window into
// short per-tool summaries. User, assistant, and system messages are never
// touched, and the input slice is never mutated.
type Masker struct {
	FreshWindow   int
	FallbackChars int
}

// New creates a masker with the default window and fallback length.
func New() *Masker {
	return &Masker{FreshWindow: DefaultFreshWindow, FallbackChars: DefaultFallbackChars}
}

// Mask returns a new message slice with stale tool observations summarised.
// Messages inside the fresh window, and all non-tool messages, are carried
// over unchanged.
func (m *Masker) Mask(messages []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	fresh := m.FreshWindow
	if fresh <= 0 {
		fresh = DefaultFreshWindow
	}
	boundary := freshBoundary(messages, fresh)

	out := make([]openai.ChatCompletionMessage, len(messages))
	copy(out, messages)
	for i := range out {
		if i >= boundary {
			break
		}
		if out[i].Role != openai.ChatMessageRoleTool {
			continue
		}
		name, args := toolCallOrigin(messages[:i], out[i].ToolCallID)
		out[i].Content = m.summarize(name, args, out[i].Content)
	}
	return out
}

// freshBoundary returns the index of the oldest message that must stay
// verbatim: the n-th most recent user message.
func freshBoundary(messages []openai.ChatCompletionMessage, n int) int {
	seen := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			seen++
			if seen == n {
				return i
			}
		}
	}
	return 0
}

// toolCallOrigin finds the tool name and arguments for a tool result by
// scanning earlier assistant tool_calls for the matching id.
func toolCallOrigin(earlier []openai.ChatCompletionMessage, toolCallID string) (name, args string) {
	for i := len(earlier) - 1; i >= 0; i-- {
		if earlier[i].Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, tc := range earlier[i].ToolCalls {
			if tc.ID == toolCallID {
				return tc.Function.Name, tc.Function.Arguments
			}
		}
	}
	return "", ""
}

func (m *Masker) summarize(tool, args, content string) string {
	switch tool {
	case "read_excel":
		return summarizeRead(args, content)
	case "run_code":
		return m.summarizeRunCode(content)
	case "inspect_excel_files":
		return summarizeInspect(content)
	default:
		return m.fallback(content)
	}
}

type readArgs struct {
	File  string `json:"file_path"`
	Sheet string `json:"sheet_name"`
}

type readResult struct {
	Rows    int      `json:"rows"`
	Cols    int      `json:"cols"`
	Columns []string `json:"columns"`
}

func summarizeRead(args, content string) string {
	var a readArgs
	_ = json.Unmarshal([]byte(args), &a)
	var r readResult
	_ = json.Unmarshal([]byte(content), &r)

	cols := r.Columns
	if len(cols) > 5 {
		cols = append(append([]string(nil), cols[:5]...), "…")
	}
	return fmt.Sprintf("[read %s/%s, R%d×C%d, cols:[%s]]",
		a.File, a.Sheet, r.Rows, r.Cols, strings.Join(cols, ", "))
}

type runCodeResult struct {
	OK     *bool  `json:"ok"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func (m *Masker) summarizeRunCode(content string) string {
	var r runCodeResult
	status := "ok"
	stdout := content
	if err := json.Unmarshal([]byte(content), &r); err == nil && (r.OK != nil || r.Stdout != "" || r.Stderr != "") {
		if (r.OK != nil && !*r.OK) || r.Stderr != "" {
			status = "fail"
		}
		stdout = r.Stdout
		if stdout == "" {
			stdout = r.Stderr
		}
	} else if strings.Contains(content, "Traceback") || strings.Contains(content, "Error") {
		status = "fail"
	}
	return fmt.Sprintf("[run_code %s] %s", status, truncate(stdout, m.fallbackChars()))
}

type inspectResult struct {
	Files []struct {
		Path string `json:"path"`
		Name string `json:"name"`
	} `json:"files"`
}

func summarizeInspect(content string) string {
	var r inspectResult
	if err := json.Unmarshal([]byte(content), &r); err != nil || len(r.Files) == 0 {
		return "[inspected 0 files]"
	}
	names := make([]string, 0, 3)
	for _, f := range r.Files {
		name := f.Name
		if name == "" {
			name = f.Path
		}
		names = append(names, name)
		if len(names) == 3 {
			break
		}
	}
	suffix := ""
	if len(r.Files) > 3 {
		suffix = ", …"
	}
	return fmt.Sprintf("[inspected %d files: %s%s]", len(r.Files), strings.Join(names, ", "), suffix)
}

func (m *Masker) fallback(content string) string {
	return truncate(content, m.fallbackChars())
}

func (m *Masker) fallbackChars() int {
	if m.FallbackChars <= 0 {
		return DefaultFallbackChars
	}
	return m.FallbackChars
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
