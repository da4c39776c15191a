package llm

import (
	"regexp"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// compatKey identifies a provider deployment for the fallback cache.
type compatKey struct {
	model   string
	baseURL string
}

// FallbackCache remembers which (model, base_url) pairs need the
// system-message merge. Entries are insert-only and process-wide.
type FallbackCache struct {
	mu sync.RWMutex
	m  map[compatKey]bool
}

// NewFallbackCache creates an empty cache.
func NewFallbackCache() *FallbackCache {
	return &FallbackCache{m: make(map[compatKey]bool)}
}

// systemMergeCache is shared across all callers in the process.
var systemMergeCache = NewFallbackCache()

// Remember records that a deployment needs the fix-up.
func (c *FallbackCache) Remember(model, baseURL string) {
	c.mu.Lock()
	c.m[compatKey{model, baseURL}] = true
	c.mu.Unlock()
}

// Required reports whether a deployment is known to need the fix-up.
func (c *FallbackCache) Required(model, baseURL string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m[compatKey{model, baseURL}]
}

var paramNamePattern = regexp.MustCompile(`['"]([A-Za-z0-9_.]+)['"]`)

// needsParamStrip detects unsupported-parameter rejections and names the
// offending parameter, defaulting to prompt_cache_key.
func needsParamStrip(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unknown parameter") &&
		!strings.Contains(msg, "unsupported parameter") &&
		!strings.Contains(msg, "unrecognized request argument") {
		return "", false
	}
	if m := paramNamePattern.FindStringSubmatch(err.Error()); m != nil {
		return m[1], true
	}
	return "prompt_cache_key", true
}

// needsReasoningPatch detects providers that require reasoning_content on
// prior assistant turns.
func needsReasoningPatch(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "reasoning_content")
}

// needsSystemMerge detects providers that reject multiple or non-leading
// system messages.
func needsSystemMerge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "system") {
		return false
	}
	return strings.Contains(msg, "only one system message") ||
		strings.Contains(msg, "multiple system messages") ||
		strings.Contains(msg, "system message must be")
}

// patchReasoning returns a copy of messages with reasoning_content present
// on every assistant message.
func patchReasoning(messages []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role == openai.ChatMessageRoleAssistant && out[i].ReasoningContent == "" {
			out[i].ReasoningContent = " "
		}
	}
	return out
}

// mergeLeadingSystem collapses all leading system messages into one,
// joining their contents with blank lines.
func mergeLeadingSystem(messages []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	n := 0
	for n < len(messages) && messages[n].Role == openai.ChatMessageRoleSystem {
		n++
	}
	if n <= 1 {
		return messages
	}

	parts := make([]string, 0, n)
	for _, m := range messages[:n] {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	merged := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: strings.Join(parts, "\n\n"),
	}
	out := make([]openai.ChatCompletionMessage, 0, len(messages)-n+1)
	out = append(out, merged)
	out = append(out, messages[n:]...)
	return out
}
