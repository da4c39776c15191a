package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client wraps a Provider with batching, per-batch timeouts, and blank-input
// handling. Blank texts never reach the provider; they embed as zero vectors
// so output rows always align one-to-one with input texts.
type Client struct {
	provider  Provider
	batchSize int
	timeout   time.Duration
}

// ClientConfig tunes the batching client.
type ClientConfig struct {
	// BatchSize bounds texts per provider call; capped by the provider's own
	// MaxBatchSize. Zero uses 256.
	BatchSize int
	// Timeout bounds each provider call. Zero uses 30s.
	Timeout time.Duration
}

// NewClient creates a batching client over a provider.
func NewClient(p Provider, cfg ClientConfig) *Client {
	size := cfg.BatchSize
	if size <= 0 {
		size = 256
	}
	if max := p.MaxBatchSize(); max > 0 && size > max {
		size = max
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{provider: p, batchSize: size, timeout: timeout}
}

// Dimension returns the provider's embedding width.
func (c *Client) Dimension() int {
	return c.provider.Dimension()
}

// EmbedAll embeds every text, batching provider calls. The result has exactly
// one row per input; blank inputs map to zero vectors of the provider width.
func (c *Client) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Collect the non-blank texts with their original positions.
	var pending []string
	var positions []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, c.provider.Dimension())
			continue
		}
		pending = append(pending, text)
		positions = append(positions, i)
	}

	for start := 0; start < len(pending); start += c.batchSize {
		end := start + c.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		vectors, err := c.embedBatch(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), end-start)
		}
		for i, vec := range vectors {
			out[positions[start+i]] = vec
		}
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	vectors, err := c.provider.EmbedBatch(batchCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch of %d: %w", len(texts), err)
	}
	return vectors, nil
}
