package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Options configure a single gateway query. Zero values fall back to
// gateway and provider defaults.
type Options struct {
	// Provider to route to; empty means the gateway default.
	Provider string

	// Model override; empty means the provider's configured model.
	Model string

	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	Timeout      time.Duration

	// JSONMode asks OpenAI-format providers for a json_object response.
	JSONMode bool

	// FallbackProvider is tried exactly once if the primary call fails.
	// It is cleared on the retry so a failing fallback cannot recurse.
	FallbackProvider string
}

// Gateway routes queries to registered providers. Reads vastly outnumber
// configuration changes, so provider configs sit behind an RWMutex and are
// swapped whole on update.
type Gateway struct {
	mu          sync.RWMutex
	providers   map[string]ProviderConfig
	defaultName string

	client *Client
	logger *slog.Logger
}

// NewGateway creates an empty gateway. Providers must be registered before
// the first query.
func NewGateway(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		providers: make(map[string]ProviderConfig),
		client:    NewClient(logger),
		logger:    logger.With("component", "llm-gateway"),
	}
}

// Register adds or replaces a provider configuration. The first registered
// provider becomes the default.
func (g *Gateway) Register(cfg ProviderConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.providers[cfg.Name]; !exists {
		g.logger.Info("registering provider", "provider", cfg.Name, "format", cfg.APIFormat)
	}
	g.providers[cfg.Name] = cfg
	if g.defaultName == "" {
		g.defaultName = cfg.Name
	}
}

// UpdateConfig atomically swaps a provider's configuration. Queries in
// flight keep the config they already read.
func (g *Gateway) UpdateConfig(cfg ProviderConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.providers[cfg.Name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, cfg.Name)
	}
	g.providers[cfg.Name] = cfg
	return nil
}

// SetDefault changes the default provider.
func (g *Gateway) SetDefault(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	g.defaultName = name
	return nil
}

// Provider returns a copy of a provider's configuration.
func (g *Gateway) Provider(name string) (ProviderConfig, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cfg, ok := g.providers[name]
	return cfg, ok
}

// Providers returns the registered provider names, sorted.
func (g *Gateway) Providers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve picks the provider config for a query.
func (g *Gateway) resolve(name string) (ProviderConfig, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if name == "" {
		name = g.defaultName
	}
	if name == "" {
		return ProviderConfig{}, fmt.Errorf("%w: no providers registered", ErrProviderNotFound)
	}
	cfg, ok := g.providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return cfg, nil
}

// Query sends a prompt to the resolved provider. On failure with a distinct
// FallbackProvider configured, the query is retried exactly once against the
// fallback with the fallback cleared. The returned Response names the
// provider that actually answered.
func (g *Gateway) Query(ctx context.Context, prompt string, opts Options) (*Response, error) {
	cfg, err := g.resolve(opts.Provider)
	if err != nil {
		if fb := g.takeFallback(&opts, opts.Provider); fb != "" {
			g.logger.Warn("provider unavailable, using fallback",
				"provider", opts.Provider, "fallback", fb, "error", err)
			opts.Provider = fb
			return g.Query(ctx, prompt, opts)
		}
		return nil, err
	}

	resp, err := g.client.Call(ctx, cfg, prompt, opts)
	if err == nil {
		return resp, nil
	}

	gwErr := WrapError(err, cfg.Name, opts.Model)
	if fb := g.takeFallback(&opts, cfg.Name); fb != "" && gwErr.ShouldFallback {
		g.logger.Warn("provider call failed, falling back",
			"provider", cfg.Name,
			"fallback", fb,
			"category", gwErr.Category,
			"error", err,
		)
		opts.Provider = fb
		// Fallback is cleared by takeFallback; this recursion is one level deep.
		return g.Query(ctx, prompt, opts)
	}

	return nil, gwErr
}

// takeFallback consumes the fallback provider from opts if it is set and
// distinct from the provider that just failed. Returns empty otherwise.
func (g *Gateway) takeFallback(opts *Options, failed string) string {
	fb := opts.FallbackProvider
	opts.FallbackProvider = ""
	if fb == "" || fb == failed {
		return ""
	}
	return fb
}

// KeyValidation is the outcome of a provider API key check.
type KeyValidation struct {
	Valid    bool   `json:"valid"`
	Provider string `json:"provider"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ValidateAPIKey issues a minimal live call against the provider with the
// given key and classifies the outcome. Network-level failures report as
// invalid with a category rather than an error.
func (g *Gateway) ValidateAPIKey(ctx context.Context, provider, key string) KeyValidation {
	cfg, err := g.resolve(provider)
	if err != nil {
		return KeyValidation{Provider: provider, Category: "unknown_provider", Message: err.Error()}
	}
	cfg.APIKey = key

	_, err = g.client.Call(ctx, cfg, "ping", Options{
		MaxTokens: 1,
		Timeout:   15 * time.Second,
	})
	if err != nil {
		gwErr := WrapError(err, cfg.Name, cfg.Model)
		return KeyValidation{
			Provider: cfg.Name,
			Category: gwErr.Category,
			Message:  gwErr.Message,
		}
	}

	return KeyValidation{Valid: true, Provider: cfg.Name}
}
