package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/sheetflow/internal/db"
	"github.com/haasonsaas/sheetflow/internal/embeddings"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/store"
)

func newTestStores(t *testing.T) (*store.MemoryStore, *store.VectorStore) {
	t.Helper()
	d, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	return store.NewMemoryStore(d, ""), store.NewVectorStore(d)
}

// hashProvider embeds a text as a 4-wide vector seeded from its first byte,
// so related strings land near each other deterministically.
type hashProvider struct{}

func (hashProvider) Name() string      { return "hash" }
func (hashProvider) Dimension() int    { return 4 }
func (hashProvider) MaxBatchSize() int { return 64 }

func (p hashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (hashProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 4)
		vec[int(text[0])%4] = 1
		out[i] = vec
	}
	return out, nil
}

func TestManagerSaveAndReadTopic(t *testing.T) {
	entriesStore, vectorsStore := newTestStores(t)
	m := NewManager(entriesStore, vectorsStore, observability.Nop(), Options{Enabled: true})
	ctx := context.Background()

	entry, err := m.Save(ctx, CategoryFilePattern, "  budget.xlsx has merged header rows  ", "tool")
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if len(entry.ID) != 12 {
		t.Errorf("entry id length = %d, want 12", len(entry.ID))
	}
	if entry.Content != "budget.xlsx has merged header rows" {
		t.Errorf("content not trimmed: %q", entry.Content)
	}

	text, err := m.ReadTopic(ctx, CategoryFilePattern)
	if err != nil {
		t.Fatalf("ReadTopic error: %v", err)
	}
	if !strings.Contains(text, "budget.xlsx has merged header rows") {
		t.Errorf("topic text missing entry: %q", text)
	}
	if !strings.Contains(text, "### [") {
		t.Errorf("topic text missing header: %q", text)
	}

	// Other topics stay empty.
	other, err := m.ReadTopic(ctx, CategoryUserPref)
	if err != nil {
		t.Fatalf("ReadTopic error: %v", err)
	}
	if other != "" {
		t.Errorf("unrelated topic not empty: %q", other)
	}
}

func TestManagerRejectsEmptyContent(t *testing.T) {
	entriesStore, vectorsStore := newTestStores(t)
	m := NewManager(entriesStore, vectorsStore, observability.Nop(), Options{Enabled: true})
	if _, err := m.Save(context.Background(), CategoryGeneral, "   ", ""); err == nil {
		t.Error("expected error for blank content")
	}
}

func TestManagerDisabledAndReadOnly(t *testing.T) {
	entriesStore, vectorsStore := newTestStores(t)
	ctx := context.Background()

	disabled := NewManager(entriesStore, vectorsStore, observability.Nop(), Options{})
	if _, err := disabled.Save(ctx, CategoryGeneral, "x", ""); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}

	readOnly := NewManager(entriesStore, vectorsStore, observability.Nop(), Options{Enabled: true, ReadOnly: true})
	if _, err := readOnly.Save(ctx, CategoryGeneral, "x", ""); !errors.Is(err, ErrReadOnly) {
		t.Errorf("err = %v, want ErrReadOnly", err)
	}
	// Reads still work in read-only mode.
	if _, err := readOnly.ReadTopic(ctx, CategoryGeneral); err != nil {
		t.Errorf("read-only ReadTopic error: %v", err)
	}
}

func TestManagerSemanticSearch(t *testing.T) {
	entriesStore, vectorsStore := newTestStores(t)
	client := embeddings.NewClient(hashProvider{}, embeddings.ClientConfig{})
	m := NewManager(entriesStore, vectorsStore, observability.Nop(), Options{
		Enabled:  true,
		Embedder: client,
	})
	ctx := context.Background()

	if _, err := m.Save(ctx, CategoryGeneral, "alpha fact", ""); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := m.Save(ctx, CategoryGeneral, "bravo fact", ""); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	matches, err := m.Search(ctx, "another alpha query", 1)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].Record.Text != "alpha fact" {
		t.Errorf("top match = %q, want alpha fact", matches[0].Record.Text)
	}
}

func TestParseCategoryTopicForms(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"file_patterns", CategoryFilePattern},
		{"file_pattern", CategoryFilePattern},
		{"user_prefs", CategoryUserPref},
		{"error_solutions", CategoryErrorSolution},
		{"general", CategoryGeneral},
		{"unknown", CategoryGeneral},
		{" FILE_PATTERNS ", CategoryFilePattern},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
