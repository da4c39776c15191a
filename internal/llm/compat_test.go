package llm

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestNeedsParamStrip(t *testing.T) {
	tests := []struct {
		err       error
		wantParam string
		wantOK    bool
	}{
		{nil, "", false},
		{errors.New("unknown parameter: 'prompt_cache_key'"), "prompt_cache_key", true},
		{errors.New("Unsupported parameter 'reasoning.effort' for this model"), "reasoning.effort", true},
		{errors.New("unrecognized request argument supplied"), "prompt_cache_key", true},
		{errors.New("rate limit exceeded"), "", false},
	}
	for _, tt := range tests {
		param, ok := needsParamStrip(tt.err)
		if ok != tt.wantOK || param != tt.wantParam {
			t.Errorf("needsParamStrip(%v) = (%q, %v), want (%q, %v)",
				tt.err, param, ok, tt.wantParam, tt.wantOK)
		}
	}
}

func TestNeedsSystemMerge(t *testing.T) {
	if !needsSystemMerge(errors.New("invalid request: only one system message is allowed")) {
		t.Errorf("single-system constraint not detected")
	}
	if !needsSystemMerge(errors.New("the system message must be the first message")) {
		t.Errorf("leading-system constraint not detected")
	}
	if needsSystemMerge(errors.New("unknown parameter: 'x'")) {
		t.Errorf("false positive")
	}
}

func TestMergeLeadingSystem(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "base prompt"},
		{Role: openai.ChatMessageRoleSystem, Content: "workspace summary"},
		{Role: openai.ChatMessageRoleSystem, Content: "rules"},
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
		{Role: openai.ChatMessageRoleSystem, Content: "late system stays"},
	}

	got := mergeLeadingSystem(msgs)
	if len(got) != 3 {
		t.Fatalf("messages = %d, want 3", len(got))
	}
	if got[0].Role != openai.ChatMessageRoleSystem ||
		got[0].Content != "base prompt\n\nworkspace summary\n\nrules" {
		t.Errorf("merged system = %+v", got[0])
	}
	if got[1].Content != "hi" || got[2].Content != "late system stays" {
		t.Errorf("tail reordered: %+v", got[1:])
	}

	// Already-single system arrays pass through untouched.
	single := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "only"},
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
	}
	if out := mergeLeadingSystem(single); len(out) != 2 {
		t.Errorf("single system merged: %+v", out)
	}
}

func TestPatchReasoningCopiesInput(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
		{Role: openai.ChatMessageRoleAssistant, Content: "hello"},
		{Role: openai.ChatMessageRoleAssistant, Content: "kept", ReasoningContent: "already"},
	}

	got := patchReasoning(msgs)
	if got[1].ReasoningContent == "" {
		t.Errorf("assistant message not patched")
	}
	if got[2].ReasoningContent != "already" {
		t.Errorf("existing reasoning overwritten")
	}
	if got[0].ReasoningContent != "" {
		t.Errorf("user message patched")
	}
	if msgs[1].ReasoningContent != "" {
		t.Errorf("input slice mutated")
	}
}

func TestFallbackCache(t *testing.T) {
	c := NewFallbackCache()
	if c.Required("m", "https://api.example.com") {
		t.Fatalf("empty cache must not require")
	}
	c.Remember("m", "https://api.example.com")
	if !c.Required("m", "https://api.example.com") {
		t.Errorf("remembered entry lost")
	}
	if c.Required("m", "https://other.example.com") {
		t.Errorf("entries must be keyed by base url")
	}
}
