package tools

import (
	"context"
	"sync"

	"github.com/haasonsaas/sheetflow/internal/memory"
)

type memoryKey struct{}

var (
	fallbackMu     sync.RWMutex
	fallbackMemory *memory.Manager
)

// WithMemory binds a memory manager to the context for the duration of one
// request. The memory tools resolve through the context first, so parallel
// sessions never see each other's stores.
func WithMemory(ctx context.Context, m *memory.Manager) context.Context {
	return context.WithValue(ctx, memoryKey{}, m)
}

// SetFallbackMemory installs the process-wide default used when a request
// carries no binding. Pass nil to clear it.
func SetFallbackMemory(m *memory.Manager) {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	fallbackMemory = m
}

// MemoryFrom resolves the memory manager for a request: the context binding
// wins, the global fallback covers unbound callers, and nil means no memory
// layer is configured.
func MemoryFrom(ctx context.Context) *memory.Manager {
	if m, ok := ctx.Value(memoryKey{}).(*memory.Manager); ok && m != nil {
		return m
	}
	fallbackMu.RLock()
	defer fallbackMu.RUnlock()
	return fallbackMemory
}
