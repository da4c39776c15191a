package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/sheetflow/internal/config"
	"github.com/haasonsaas/sheetflow/internal/embeddings"
	"github.com/haasonsaas/sheetflow/internal/engine"
	"github.com/haasonsaas/sheetflow/internal/masking"
	"github.com/haasonsaas/sheetflow/internal/llm"
	"github.com/haasonsaas/sheetflow/internal/memory"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/perception"
	"github.com/haasonsaas/sheetflow/internal/scope"
	"github.com/haasonsaas/sheetflow/internal/session"
	"github.com/haasonsaas/sheetflow/internal/workspace"
)

// runtime is the wired application: config, logging, the user's persistence
// scope, and the session manager on top.
type runtime struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	scopes  *scope.Manager
	scope   *scope.UserScope
	memory  *memory.Manager
	scanner *workspace.Scanner
	manager *session.Manager

	metricsSrv *http.Server
}

// newRuntime loads configuration and builds the full stack for one user.
func newRuntime(ctx context.Context, configPath, userID string, debug bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	var metrics *observability.Metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn(context.Background(), "metrics server stopped", "error", err)
			}
		}()
	}

	scopes := scope.NewManager(cfg, logger)
	uc, err := scope.NewUserContext(userID, "user", cfg.Workspace.Root)
	if err != nil {
		scopes.Close()
		return nil, err
	}
	sc, err := scopes.AcquireFor(ctx, uc)
	if err != nil {
		scopes.Close()
		return nil, fmt.Errorf("failed to acquire user scope: %w", err)
	}

	provider := cfg.LLM.Providers[cfg.LLM.DefaultProvider]
	apiKey := provider.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	mem := buildMemory(cfg, sc, apiKey, provider.BaseURL, logger)

	scanner := workspace.NewScanner(cfg.Workspace.Root, logger,
		workspace.WithStores(sc.Stores.Files, sc.Stores.Registry))

	caller := llm.NewCaller(llm.Config{
		APIKey:    apiKey,
		BaseURL:   provider.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	}, logger, metrics)
	titler := llm.NewCaller(llm.Config{
		APIKey:  apiKey,
		BaseURL: provider.BaseURL,
		Model:   cfg.LLM.SmallModel,
	}, logger, metrics)

	intents := make(map[perception.IntentTag][]string, len(cfg.Perception.IntentKeywords))
	for tag, words := range cfg.Perception.IntentKeywords {
		intents[perception.IntentTag(tag)] = words
	}
	masker := masking.New()
	if cfg.Masking.FallbackChars > 0 {
		masker.FallbackChars = cfg.Masking.FallbackChars
	}
	manager := session.NewManager(session.ManagerConfig{
		Model:     cfg.LLM.Model,
		UserID:    userID,
		RulesPath: cfg.Rules.GlobalPath,
		Perception: perception.ManagerConfig{
			Model:          cfg.LLM.Model,
			RequestedMode:  perception.Mode(cfg.Perception.Mode),
			BudgetTokens:   cfg.Perception.BudgetTokens,
			MaxWindows:     cfg.Perception.MaxWindows,
			IntentKeywords: intents,
		},
		EngineOpts: engine.Options{
			Masker:          masker,
			MaskingDisabled: cfg.Masking.Disabled,
		},
	}, caller, titler, sc.Stores, mem, scanner, logger, metrics)

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		scopes:     scopes,
		scope:      sc,
		memory:     mem,
		scanner:    scanner,
		manager:    manager,
		metricsSrv: metricsSrv,
	}, nil
}

// buildMemory wires the memory layer, with the semantic index attached when
// embeddings are configured and a key is available.
func buildMemory(cfg *config.Config, sc *scope.UserScope, apiKey, baseURL string,
	logger *observability.Logger) *memory.Manager {
	var embedder *embeddings.Client
	if cfg.Memory.Embedding.Enabled && apiKey != "" {
		provider, err := embeddings.NewOpenAI(embeddings.OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   cfg.Memory.Embedding.Model,
		})
		if err != nil {
			logger.Warn(context.Background(), "embedding provider unavailable", "error", err)
		} else {
			embedder = embeddings.NewClient(provider, embeddings.ClientConfig{
				BatchSize: cfg.Memory.Embedding.BatchSize,
				Timeout:   cfg.Memory.Embedding.Timeout,
			})
		}
	}
	return memory.NewManager(sc.Stores.Memory, sc.Stores.Vectors, logger, memory.Options{
		Enabled:         cfg.Memory.Enabled,
		ReadOnly:        sc.ReadOnly,
		MaxFileLines:    cfg.Memory.MaxFileLines,
		TruncateToLines: cfg.Memory.TruncateToLines,
		Embedder:        embedder,
	})
}

// Close shuts down the metrics endpoint and every open scope.
func (r *runtime) Close() error {
	if r.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		r.metricsSrv.Shutdown(ctx)
	}
	return r.scopes.Close()
}
