package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/sheetflow/internal/observability"
)

// ErrNotConfigured is returned when the caller has no API key.
var ErrNotConfigured = errors.New("llm provider not configured")

// Payload is the provider-neutral request the transport sends. The compat
// fallback chain rewrites it between attempts.
type Payload struct {
	Model          string
	Messages       []openai.ChatCompletionMessage
	Tools          []openai.Tool
	MaxTokens      int
	PromptCacheKey string
}

// Transport opens a streaming completion for a payload. Injectable for
// tests and non-OpenAI wire formats.
type Transport func(ctx context.Context, p Payload) (ChunkSource, error)

// Config configures a Caller.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	MaxTokens      int
	PromptCacheKey string
	Retry          RetryPolicy
}

// Caller wraps a provider's streaming chat-completion API with stream
// accumulation, a provider-compat fallback chain, and one transient retry.
type Caller struct {
	transport Transport
	model     string
	baseURL   string
	cfg       Config
	policy    RetryPolicy
	logger    *observability.Logger
	metrics   *observability.Metrics
	merges    *FallbackCache
}

// NewCaller creates a caller backed by an OpenAI-compatible endpoint.
func NewCaller(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Caller {
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy
	}
	c := &Caller{
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		cfg:     cfg,
		policy:  cfg.Retry,
		logger:  logger,
		metrics: metrics,
		merges:  systemMergeCache,
	}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		client := openai.NewClientWithConfig(clientCfg)
		c.transport = openAITransport(client)
	}
	return c
}

// WithTransport swaps the transport. Test hook and custom wire formats.
func (c *Caller) WithTransport(t Transport) *Caller {
	c.transport = t
	return c
}

// Model returns the configured model id.
func (c *Caller) Model() string { return c.model }

// openAITransport maps a payload onto the go-openai streaming API.
func openAITransport(client *openai.Client) Transport {
	return func(ctx context.Context, p Payload) (ChunkSource, error) {
		req := openai.ChatCompletionRequest{
			Model:    p.Model,
			Messages: p.Messages,
			Stream:   true,
			StreamOptions: &openai.StreamOptions{
				IncludeUsage: true,
			},
		}
		if p.MaxTokens > 0 {
			req.MaxTokens = p.MaxTokens
		}
		if len(p.Tools) > 0 {
			req.Tools = p.Tools
		}
		if p.PromptCacheKey != "" {
			req.Metadata = map[string]string{"prompt_cache_key": p.PromptCacheKey}
		}
		stream, err := client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return NativeSource(stream), nil
	}
}

// Request is one completion call.
type Request struct {
	Messages []openai.ChatCompletionMessage
	Tools    []openai.Tool
	// Model overrides the caller's default when set.
	Model string
	// Sink receives typed streaming events.
	Sink EventSink
	// StreamableTools names tools whose argument deltas stream as events.
	StreamableTools map[string]bool
}

// Complete runs one completion with the fallback chain:
//  1. unsupported parameter -> strip it, retry once
//  2. missing reasoning_content -> patch assistant messages, retry once
//  3. system-message multiplicity -> merge leading system messages, retry
//     once and remember the deployment
//
// plus a single transient retry with a shortened deadline.
func (c *Caller) Complete(ctx context.Context, req Request) (*Result, error) {
	if c.transport == nil {
		return nil, ErrNotConfigured
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	p := Payload{
		Model:          model,
		Messages:       req.Messages,
		Tools:          req.Tools,
		MaxTokens:      c.cfg.MaxTokens,
		PromptCacheKey: c.cfg.PromptCacheKey,
	}
	if c.merges.Required(model, c.baseURL) {
		p.Messages = mergeLeadingSystem(p.Messages)
	}

	var strippedParam, patchedReasoning, mergedSystem, retriedTransient bool
	timeout := c.policy.Timeout
	start := time.Now()

	for {
		res, err := c.attempt(ctx, p, req, timeout, start)
		if err == nil {
			c.observe(model, "success", start, res)
			return res, nil
		}

		switch {
		case !strippedParam && c.stripParam(ctx, &p, err):
			strippedParam = true

		case !patchedReasoning && needsReasoningPatch(err):
			c.logger.Info(ctx, "patching reasoning_content on assistant turns", "model", model)
			p.Messages = patchReasoning(p.Messages)
			patchedReasoning = true

		case !mergedSystem && needsSystemMerge(err):
			c.logger.Info(ctx, "merging leading system messages", "model", model, "base_url", c.baseURL)
			p.Messages = mergeLeadingSystem(p.Messages)
			c.merges.Remember(model, c.baseURL)
			mergedSystem = true

		case !retriedTransient && IsTransient(err):
			delay := c.policy.Delay(err)
			c.logger.Warn(ctx, "transient llm error, retrying", "model", model, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			timeout = c.policy.QuickTimeout()
			retriedTransient = true

		default:
			c.observe(model, "error", start, nil)
			return nil, fmt.Errorf("completion failed: %w", err)
		}
	}
}

func (c *Caller) stripParam(ctx context.Context, p *Payload, err error) bool {
	param, ok := needsParamStrip(err)
	if !ok {
		return false
	}
	c.logger.Info(ctx, "stripping unsupported parameter", "param", param, "model", p.Model)
	// prompt_cache_key is the only optional parameter the payload carries.
	p.PromptCacheKey = ""
	return true
}

func (c *Caller) attempt(ctx context.Context, p Payload, req Request, timeout time.Duration, start time.Time) (*Result, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	src, err := c.transport(callCtx, p)
	if err != nil {
		return nil, err
	}
	return Consume(callCtx, src, ConsumeOptions{
		Sink:            req.Sink,
		StreamableTools: req.StreamableTools,
		Start:           start,
	})
}

func (c *Caller) observe(model, status string, start time.Time, res *Result) {
	if c.metrics == nil {
		return
	}
	c.metrics.LLMRequestCounter.WithLabelValues(model, status).Inc()
	c.metrics.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if res != nil && res.Usage != nil {
		c.metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(res.Usage.PromptTokens))
		c.metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(res.Usage.CompletionTokens))
	}
}
