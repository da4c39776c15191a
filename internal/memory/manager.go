package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/sheetflow/internal/embeddings"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/store"
	"github.com/haasonsaas/sheetflow/internal/vector"
)

// ErrReadOnly is returned for writes while the memory layer is read-only.
var ErrReadOnly = fmt.Errorf("memory is read-only")

// ErrDisabled is returned when the memory layer is switched off.
var ErrDisabled = fmt.Errorf("memory is disabled")

// Manager is the domain layer over the memory store: categorised entries,
// markdown rendering with capacity truncation, and an optional semantic
// index fed by an embedding client.
type Manager struct {
	entries *store.MemoryStore
	vectors *store.VectorStore
	logger  *observability.Logger

	embedder *embeddings.Client
	index    *vector.Index

	enabled  bool
	readOnly bool

	maxFileLines    int
	truncateToLines int
}

// Options configures a Manager.
type Options struct {
	Enabled bool
	// ReadOnly blocks writes; set when a storage migration failed.
	ReadOnly        bool
	MaxFileLines    int
	TruncateToLines int
	// Embedder enables the semantic index when non-nil.
	Embedder *embeddings.Client
}

// NewManager creates a memory manager over the scope's stores.
func NewManager(entries *store.MemoryStore, vectors *store.VectorStore, logger *observability.Logger, opts Options) *Manager {
	if opts.MaxFileLines <= 0 {
		opts.MaxFileLines = 500
	}
	if opts.TruncateToLines <= 0 {
		opts.TruncateToLines = 400
	}
	m := &Manager{
		entries:         entries,
		vectors:         vectors,
		logger:          logger,
		embedder:        opts.Embedder,
		enabled:         opts.Enabled,
		readOnly:        opts.ReadOnly,
		maxFileLines:    opts.MaxFileLines,
		truncateToLines: opts.TruncateToLines,
	}
	if opts.Embedder != nil {
		m.index = vector.NewIndex(vectors)
	}
	return m
}

// Enabled reports whether the memory layer is active.
func (m *Manager) Enabled() bool { return m != nil && m.enabled }

// ReadOnly reports whether writes are blocked.
func (m *Manager) ReadOnly() bool { return m.readOnly }

// Save trims and persists one entry, feeding the semantic index when
// embeddings are configured. Duplicate content is a silent no-op.
func (m *Manager) Save(ctx context.Context, category Category, content, source string) (*Entry, error) {
	if !m.enabled {
		return nil, ErrDisabled
	}
	if m.readOnly {
		return nil, ErrReadOnly
	}

	entry, err := NewEntry(category, content, source, time.Now())
	if err != nil {
		return nil, err
	}

	inserted, err := m.entries.SaveEntries(ctx, []*store.MemoryEntry{{
		EntryID:   entry.ID,
		Category:  string(entry.Category),
		Content:   entry.Content,
		Source:    entry.Source,
		CreatedAt: entry.Timestamp,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to save memory entry: %w", err)
	}

	if inserted > 0 && m.embedder != nil {
		if err := m.indexEntry(ctx, entry); err != nil {
			// Semantic indexing is best-effort; the durable row already landed.
			m.logger.Warn(ctx, "failed to index memory entry", "entry_id", entry.ID, "error", err)
		}
	}
	return entry, nil
}

func (m *Manager) indexEntry(ctx context.Context, entry *Entry) error {
	vectors, err := m.embedder.EmbedAll(ctx, []string{entry.Content})
	if err != nil {
		return err
	}
	if len(vectors) != 1 {
		return fmt.Errorf("expected 1 vector, got %d", len(vectors))
	}
	_, err = m.vectors.Add(ctx, entry.Content, vectors[0], map[string]string{
		"kind":     "memory",
		"entry_id": entry.ID,
		"category": string(entry.Category),
	})
	return err
}

// ReadTopic renders the stored entries of one category as the markdown file
// format, truncated to the capacity bound.
func (m *Manager) ReadTopic(ctx context.Context, category Category) (string, error) {
	rows, err := m.entries.List(ctx, string(category), 0)
	if err != nil {
		return "", fmt.Errorf("failed to read memory topic: %w", err)
	}
	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &Entry{
			ID:        row.EntryID,
			Category:  Category(row.Category),
			Content:   row.Content,
			Timestamp: row.CreatedAt.UTC().Truncate(time.Minute),
			Source:    row.Source,
		})
	}
	text := FormatEntries(entries)
	return TruncateLines(text, m.maxFileLines, m.truncateToLines), nil
}

// Delete removes one entry by id.
func (m *Manager) Delete(ctx context.Context, entryID string) error {
	if m.readOnly {
		return ErrReadOnly
	}
	return m.entries.DeleteByEntryID(ctx, entryID)
}

// Search returns semantically similar stored texts for a query. Without an
// embedder it returns nothing.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]vector.Match, error) {
	if m.embedder == nil || m.index == nil {
		return nil, nil
	}
	vecs, err := m.embedder.EmbedAll(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, nil
	}
	return m.index.Search(ctx, vecs[0], k)
}
