// Package provider defines the model-invocation capability consumed by the
// workflow engine, plus implementations for OpenAI, Gemini, and Bedrock.
// The engine only knows "invoke model M with prompt P over context C and
// receive text"; everything else lives behind this interface.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Message is one turn of model context.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request carries one model invocation.
type Request struct {
	// Model is the provider-native model name (scheme prefix stripped).
	Model string
	// System is the stage instruction prompt.
	System string
	// Messages is the conversation context, oldest first.
	Messages []Message
	// MaxTokens bounds the completion length (0 = provider default).
	MaxTokens int
	// Temperature controls sampling (0 = provider default).
	Temperature float32
}

// Response is the generated completion.
type Response struct {
	Content string
	// Model echoes the model that produced the text.
	Model string
}

// Provider is the model invocation capability.
type Provider interface {
	// Invoke generates text for the request. Implementations must honor
	// ctx cancellation and deadlines.
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name (e.g. "openai", "gemini").
	Name() string
}

// ProviderError wraps a transport, quota, or auth failure from a provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Factory constructs a provider from configuration.
type Factory func(config map[string]any) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers a provider factory under a name. Providers
// register themselves in init.
func RegisterFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// New builds a provider by name.
func New(name string, config map[string]any) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return factory(config)
}

// Registry resolves model identifiers of the form "provider/model" to a
// constructed provider and the provider-native model name. Providers are
// built lazily and cached.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	configs   map[string]map[string]any
	// defaultProvider handles model ids with no scheme prefix.
	defaultProvider string
}

// NewRegistry creates a registry. configs maps provider name to its
// construction config; defaultProvider handles unprefixed model ids.
func NewRegistry(defaultProvider string, configs map[string]map[string]any) *Registry {
	return &Registry{
		providers:       make(map[string]Provider),
		configs:         configs,
		defaultProvider: defaultProvider,
	}
}

// Register installs an already-constructed provider, bypassing factories.
// Used for mocks in tests and pre-built instances.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve splits a model id into its provider and native model name and
// returns the provider instance.
func (r *Registry) Resolve(modelID string) (Provider, string, error) {
	name := r.defaultProvider
	model := modelID
	if i := strings.IndexByte(modelID, '/'); i > 0 {
		name = modelID[:i]
		model = modelID[i+1:]
	}
	if name == "" {
		return nil, "", fmt.Errorf("model id %q has no provider and no default is configured", modelID)
	}

	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if ok {
		return p, model, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		return p, model, nil
	}
	p, err := New(name, r.configs[name])
	if err != nil {
		return nil, "", fmt.Errorf("resolve model %q: %w", modelID, err)
	}
	r.providers[name] = p
	return p, model, nil
}
