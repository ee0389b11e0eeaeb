// Package ideaforge assembles the workflow stack from configuration: the
// persistence backend, the provider registry, the engine, and the session
// orchestrator.
package ideaforge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ideaforge-dev/ideaforge/internal/engine"
	"github.com/ideaforge-dev/ideaforge/internal/observability"
	"github.com/ideaforge-dev/ideaforge/internal/orchestrator"
	"github.com/ideaforge-dev/ideaforge/pkg/config"
	"github.com/ideaforge-dev/ideaforge/pkg/monitor"
	"github.com/ideaforge-dev/ideaforge/pkg/notify"
	"github.com/ideaforge-dev/ideaforge/pkg/provider"
	"github.com/ideaforge-dev/ideaforge/pkg/state"
	"github.com/ideaforge-dev/ideaforge/pkg/store"
)

// App is a fully wired workflow stack.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
}

// Open wires an App from config. Callers own the returned App and must
// Close it.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := initTracing(cfg); err != nil {
		log.Printf("warning: tracing disabled: %v", err)
	}
	monitor.InitMetrics()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	var notifier notify.Notifier
	if cfg.Notify.SlackToken != "" {
		notifier, err = notify.NewSlackNotifier(cfg.Notify.SlackToken)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("slack notifier: %w", err)
		}
	}

	eng := engine.New(engine.Config{
		Registry:           registry,
		Notifier:           notifier,
		History:            state.NewHistory(cfg.Engine.HistoryCapacity),
		CallTimeout:        cfg.Engine.CallTimeout,
		MaxContextMessages: cfg.Engine.MaxContextMessages,
		MaxTokens:          cfg.MaxTokens,
		Temperature:        float32(cfg.Temperature),
		DefaultModel:       cfg.DefaultModel,
	})

	orch, err := orchestrator.New(orchestrator.Config{
		Engine:          eng,
		Store:           st,
		StageModels:     cfg.StageModels,
		SessionTTL:      cfg.Session.TTL,
		JanitorSchedule: cfg.Session.JanitorSchedule,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{Orchestrator: orch, Store: st}, nil
}

// Close flushes live sessions and releases every resource the App holds.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if err := a.Orchestrator.Close(ctx); err != nil {
		firstErr = err
	}
	if err := a.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := observability.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// initTracing prefers the configured OTLP endpoint; without one, the
// standard OTEL_* environment variables decide.
func initTracing(cfg *config.Config) error {
	if cfg.OTLPEndpoint != "" {
		return observability.Init(observability.Config{
			Enabled:      true,
			ExporterType: "otlp",
			OTLPEndpoint: cfg.OTLPEndpoint,
		})
	}
	return observability.InitFromEnv()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "file":
		return store.NewFileStore(cfg.Store.Dir)
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			Addr:       cfg.Store.RedisAddr,
			Password:   cfg.Store.RedisPassword,
			DB:         cfg.Store.RedisDB,
			SessionTTL: cfg.Store.RedisTTL,
		})
	case "firestore":
		return store.NewFirestoreStore(ctx, store.FirestoreConfig{
			ProjectID:       cfg.GCPProject,
			CredentialsFile: cfg.GCPCredentials,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildRegistry constructs every provider the configuration supplies
// credentials for, optionally wrapped with rate limiting.
func buildRegistry(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry(defaultScheme(cfg.DefaultModel), cfg.ProviderConfigs())

	wrap := func(p provider.Provider) provider.Provider {
		if cfg.Engine.RequestsPerSecond <= 0 {
			return p
		}
		burst := cfg.Engine.SessionBurst
		if burst <= 0 {
			burst = 1
		}
		return provider.NewRateLimited(p, cfg.Engine.RequestsPerSecond, burst)
	}

	if cfg.OpenAIKey != "" {
		registry.Register(wrap(provider.NewOpenAIProvider(cfg.OpenAIKey)))
	}
	if cfg.GeminiKey != "" {
		p, err := provider.NewGeminiProvider(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		registry.Register(wrap(p))
	}
	if cfg.AWSRegion != "" {
		p, err := provider.NewBedrockProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("bedrock provider: %w", err)
		}
		registry.Register(wrap(p))
	}
	return registry, nil
}

// defaultScheme extracts the provider prefix from a model id so that
// unprefixed stage models resolve against the same provider.
func defaultScheme(modelID string) string {
	if i := strings.IndexByte(modelID, '/'); i > 0 {
		return modelID[:i]
	}
	return "openai"
}
