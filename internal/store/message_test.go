package store

import (
	"context"
	"fmt"
	"testing"
)

func TestMessageAppendOrdering(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	sessions := NewSessionStore(d, "")
	messages := NewMessageStore(d, "")

	if err := sessions.Create(ctx, &Session{ID: "sess-1"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	var lastID int64
	for i := 0; i < 5; i++ {
		id, err := messages.Append(ctx, &Message{
			SessionID: "sess-1",
			Role:      "user",
			Content:   fmt.Sprintf(`{"turn":%d}`, i),
		})
		if err != nil {
			t.Fatalf("Append error: %v", err)
		}
		if id <= lastID {
			t.Errorf("id %d not strictly increasing after %d", id, lastID)
		}
		lastID = id
	}

	listed, err := messages.List(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(listed) != 5 {
		t.Fatalf("listed %d messages, want 5", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].ID <= listed[i-1].ID {
			t.Errorf("list not id-ordered at %d", i)
		}
	}
	if listed[0].Content != `{"turn":0}` {
		t.Errorf("first message content = %q", listed[0].Content)
	}
}

func TestMessageAppendBatch(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	sessions := NewSessionStore(d, "")
	messages := NewMessageStore(d, "")

	if err := sessions.Create(ctx, &Session{ID: "sess-1"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	batch := []*Message{
		{SessionID: "sess-1", Role: "user", Content: "a"},
		{SessionID: "sess-1", Role: "assistant", Content: "b"},
		{SessionID: "sess-1", Role: "tool", Content: "c"},
	}
	if err := messages.AppendBatch(ctx, batch); err != nil {
		t.Fatalf("AppendBatch error: %v", err)
	}

	listed, err := messages.List(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("listed %d messages, want 3", len(listed))
	}
	roles := []string{"user", "assistant", "tool"}
	for i, want := range roles {
		if listed[i].Role != want {
			t.Errorf("role[%d] = %q, want %q", i, listed[i].Role, want)
		}
	}
}

func TestMessageAppendRequiresSession(t *testing.T) {
	messages := NewMessageStore(newTestDB(t), "")
	if _, err := messages.Append(context.Background(), &Message{Role: "user", Content: "x"}); err == nil {
		t.Error("expected error for missing session_id")
	}
}

func TestMessageClear(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	sessions := NewSessionStore(d, "")
	messages := NewMessageStore(d, "")

	if err := sessions.Create(ctx, &Session{ID: "sess-1"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := sessions.Create(ctx, &Session{ID: "sess-2"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	for _, sid := range []string{"sess-1", "sess-2"} {
		if _, err := messages.Append(ctx, &Message{SessionID: sid, Role: "user", Content: "x"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	if err := messages.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if n, _ := messages.Count(ctx, "sess-1"); n != 0 {
		t.Errorf("sess-1 count after clear = %d, want 0", n)
	}
	if n, _ := messages.Count(ctx, "sess-2"); n != 1 {
		t.Errorf("sess-2 count = %d, want 1 (must be untouched)", n)
	}
}
