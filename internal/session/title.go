package session

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/sheetflow/internal/llm"
	"github.com/haasonsaas/sheetflow/internal/store"
)

const titlePrompt = "Summarise this conversation as a session title of 5 to 10 " +
	"characters. Reply with the title only, no quotes or punctuation."

// SynthesizeTitle asks the auxiliary model for a short session title from the
// opening exchange. Returns empty on failure; title synthesis is best-effort.
func SynthesizeTitle(ctx context.Context, caller *llm.Caller, userText, assistantText string) string {
	if caller == nil {
		return ""
	}
	res, err := caller.Complete(ctx, llm.Request{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titlePrompt},
			{Role: openai.ChatMessageRoleUser,
				Content: "User: " + userText + "\nAssistant: " + assistantText},
		},
	})
	if err != nil {
		return ""
	}
	return sanitizeTitle(res.Content)
}

func sanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > 40 {
		s = string(runes[:40])
	}
	return s
}

// MaybeSetTitle writes a synthesised title. The store-level guard only lets
// an auto title land while the title source is still unset, so user titles
// are never overwritten.
func MaybeSetTitle(ctx context.Context, sessions *store.SessionStore, sessionID, title string) error {
	if title == "" {
		return nil
	}
	return sessions.SetTitle(ctx, sessionID, title, store.TitleSourceAuto)
}
