package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/sheetflow/internal/db"
	"github.com/haasonsaas/sheetflow/internal/memory"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/store"
)

func newTestMemory(t *testing.T, opts memory.Options) *memory.Manager {
	t.Helper()
	d, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	return memory.NewManager(store.NewMemoryStore(d, ""), store.NewVectorStore(d),
		observability.Nop(), opts)
}

func execute(t *testing.T, tool Tool, ctx context.Context, args string) *Result {
	t.Helper()
	res, err := tool.Execute(ctx, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s: %v", tool.Name(), err)
	}
	return res
}

func TestMemorySaveAndReadTopic(t *testing.T) {
	m := newTestMemory(t, memory.Options{Enabled: true})
	ctx := WithMemory(context.Background(), m)

	res := execute(t, &SaveTool{}, ctx,
		`{"content":"budget.xlsx keeps totals in column F","category":"file_pattern"}`)
	if res.IsError || !strings.Contains(res.Content, "Saved note") {
		t.Fatalf("save result = %+v", res)
	}

	res = execute(t, &ReadTopicTool{}, ctx, `{"topic":"file_patterns"}`)
	if res.IsError || !strings.Contains(res.Content, "budget.xlsx keeps totals in column F") {
		t.Errorf("read result = %+v", res)
	}
}

func TestMemoryReadEmptyTopic(t *testing.T) {
	m := newTestMemory(t, memory.Options{Enabled: true})
	ctx := WithMemory(context.Background(), m)

	res := execute(t, &ReadTopicTool{}, ctx, `{"topic":"user_prefs"}`)
	if res.Content != msgTopicEmpty {
		t.Errorf("empty topic = %q, want %q", res.Content, msgTopicEmpty)
	}
}

func TestMemoryDisabled(t *testing.T) {
	m := newTestMemory(t, memory.Options{Enabled: false})
	ctx := WithMemory(context.Background(), m)

	if res := execute(t, &ReadTopicTool{}, ctx, `{"topic":"general"}`); res.Content != msgMemoryDisabled {
		t.Errorf("read = %q", res.Content)
	}
	if res := execute(t, &SaveTool{}, ctx, `{"content":"x","category":"general"}`); res.Content != msgMemoryDisabled {
		t.Errorf("save = %q", res.Content)
	}
}

func TestMemoryReadOnly(t *testing.T) {
	m := newTestMemory(t, memory.Options{Enabled: true, ReadOnly: true})
	ctx := WithMemory(context.Background(), m)

	res := execute(t, &SaveTool{}, ctx, `{"content":"x","category":"general"}`)
	if res.Content != msgMemoryReadOnly {
		t.Errorf("read-only save = %q, want %q", res.Content, msgMemoryReadOnly)
	}
}

func TestMemorySaveRejectsEmptyContent(t *testing.T) {
	m := newTestMemory(t, memory.Options{Enabled: true})
	ctx := WithMemory(context.Background(), m)

	res := execute(t, &SaveTool{}, ctx, `{"content":"   ","category":"general"}`)
	if !res.IsError {
		t.Errorf("blank content must be rejected: %+v", res)
	}
}

func TestMemoryContextBindingWinsOverFallback(t *testing.T) {
	bound := newTestMemory(t, memory.Options{Enabled: true})
	fallback := newTestMemory(t, memory.Options{Enabled: true})
	SetFallbackMemory(fallback)
	t.Cleanup(func() { SetFallbackMemory(nil) })

	ctx := WithMemory(context.Background(), bound)
	execute(t, &SaveTool{}, ctx, `{"content":"bound note","category":"general"}`)

	// The bound store has the note; the fallback stayed clean.
	if res := execute(t, &ReadTopicTool{}, ctx, `{"topic":"general"}`); !strings.Contains(res.Content, "bound note") {
		t.Errorf("bound read = %q", res.Content)
	}
	if res := execute(t, &ReadTopicTool{}, context.Background(), `{"topic":"general"}`); res.Content != msgTopicEmpty {
		t.Errorf("fallback read = %q", res.Content)
	}
}

func TestMemoryNoManagerConfigured(t *testing.T) {
	SetFallbackMemory(nil)
	res := execute(t, &ReadTopicTool{}, context.Background(), `{"topic":"general"}`)
	if res.Content != msgMemoryDisabled {
		t.Errorf("unbound read = %q", res.Content)
	}
}
