package session

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/haasonsaas/sheetflow/internal/llm"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/store"
)

type scriptSource struct {
	deltas []llm.Delta
	i      int
}

func (s *scriptSource) Recv() (llm.Delta, error) {
	if s.i >= len(s.deltas) {
		return llm.Delta{}, io.EOF
	}
	d := s.deltas[s.i]
	s.i++
	return d, nil
}

// scriptedCaller answers every completion with the same text.
func scriptedCaller(text string) *llm.Caller {
	return llm.NewCaller(llm.Config{Model: "kimi-k2"}, observability.Nop(), nil).
		WithTransport(func(context.Context, llm.Payload) (llm.ChunkSource, error) {
			return &scriptSource{deltas: []llm.Delta{
				{ContentDelta: text},
				{FinishReason: "stop"},
			}}, nil
		})
}

func newTestManager(t *testing.T, stores *store.Stores, reply, title string) *Manager {
	t.Helper()
	var titler *llm.Caller
	if title != "" {
		titler = scriptedCaller(title)
	}
	return NewManager(ManagerConfig{Model: "kimi-k2"},
		scriptedCaller(reply), titler, stores, nil, nil, observability.Nop(), nil)
}

func TestSessionChatPersistsAndTitles(t *testing.T) {
	stores := newTestStores(t)
	mgr := newTestManager(t, stores, "The totals add up.", "Check totals")
	ctx := context.Background()

	sess, err := mgr.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	res, err := sess.Chat(ctx, "verify the totals in budget.xlsx", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Content != "The totals add up." {
		t.Errorf("reply = %q", res.Content)
	}

	// Lazy session row exists and carries the synthesised title.
	row, err := stores.Sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Title != "Check totals" || row.TitleSource != store.TitleSourceAuto {
		t.Errorf("session = %+v", row)
	}

	count, err := stores.Messages.Count(ctx, sess.ID)
	if err != nil || count != 2 {
		t.Errorf("persisted messages = %d, %v", count, err)
	}
}

func TestSessionTitleNeverOverwritesUserTitle(t *testing.T) {
	stores := newTestStores(t)
	mgr := newTestManager(t, stores, "done", "Auto title")
	ctx := context.Background()

	sess, err := mgr.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Persist once so the row exists, then the user renames it.
	if _, err := sess.Chat(ctx, "first", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if err := stores.Sessions.SetTitle(ctx, sess.ID, "My analysis", store.TitleSourceUser); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}

	// Another synthesis attempt against the renamed session is a no-op.
	if err := MaybeSetTitle(ctx, stores.Sessions, sess.ID, "Auto again"); err != nil {
		t.Fatalf("MaybeSetTitle: %v", err)
	}
	row, _ := stores.Sessions.Get(ctx, sess.ID)
	if row.Title != "My analysis" || row.TitleSource != store.TitleSourceUser {
		t.Errorf("session = %+v", row)
	}
}

func TestSessionResume(t *testing.T) {
	stores := newTestStores(t)
	mgr := newTestManager(t, stores, "first reply", "")
	ctx := context.Background()

	sess, err := mgr.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := sess.Chat(ctx, "remember this", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	resumed, err := mgr.Open(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	raw := resumed.Engine.RawMessages()
	if len(raw) != 2 || raw[0].Content != "remember this" || raw[1].Content != "first reply" {
		t.Errorf("resumed history = %+v", raw)
	}
	if resumed.Engine.Turn() != 1 {
		t.Errorf("resumed turn = %d", resumed.Engine.Turn())
	}

	// The next turn continues the numbering.
	if _, err := resumed.Chat(ctx, "and this", nil); err != nil {
		t.Fatalf("Chat after resume: %v", err)
	}
	if resumed.Engine.Turn() != 2 {
		t.Errorf("turn after resume = %d", resumed.Engine.Turn())
	}
}

func TestSessionResumeUnknownID(t *testing.T) {
	stores := newTestStores(t)
	mgr := newTestManager(t, stores, "x", "")

	if _, err := mgr.Open(context.Background(), "no-such-session"); err == nil {
		t.Fatalf("resuming an unknown session must fail")
	}
}

func TestSessionRollback(t *testing.T) {
	stores := newTestStores(t)
	mgr := newTestManager(t, stores, "reply", "")
	ctx := context.Background()

	sess, err := mgr.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := sess.Chat(ctx, "hello", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if err := sess.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	count, _ := stores.Messages.Count(ctx, sess.ID)
	if count != 0 {
		t.Errorf("messages after rollback = %d", count)
	}
	if sess.Engine.SnapshotIndex() != 0 {
		t.Errorf("snapshot index = %d", sess.Engine.SnapshotIndex())
	}
	if got, _ := stores.Checkpoints.Count(ctx, sess.ID); got != 0 {
		t.Errorf("checkpoints after rollback = %d", got)
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{`"Check totals"`, "Check totals"},
		{"  spaced   out  ", "spaced out"},
		{strings.Repeat("x", 60), strings.Repeat("x", 40)},
	}
	for _, tt := range tests {
		if got := sanitizeTitle(tt.in); got != tt.want {
			t.Errorf("sanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
