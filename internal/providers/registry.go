package providers

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry holds named LLM clients built from configuration.
// It supports hot-reload and provides thread-safe access.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]registered
	logger  *slog.Logger
}

type registered struct {
	client LLMClient
	cfg    LLMProviderConfig
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]registered),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a client by name, replacing any previous one.
func (r *Registry) Register(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replace(name, registered{client: client})
	r.logger.Info("registered LLM client", "name", name)
}

// Unregister removes a client by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.clients[name]; ok {
		closeClient(old.client)
		delete(r.clients, name)
		r.logger.Info("unregistered LLM client", "name", name)
	}
}

// Get returns a client by name.
func (r *Registry) Get(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return entry.client, nil
}

// Has checks if a client is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[name]
	return ok
}

// List returns the registered client names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RateLimits returns the request budget of every rate-limited client.
func (r *Registry) RateLimits() map[string]RateLimit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RateLimit)
	for name, entry := range r.clients {
		if lc, ok := entry.client.(*LimitedClient); ok {
			out[name] = lc.RateLimit()
		}
	}
	return out
}

// Close releases every client that holds resources.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, entry := range r.clients {
		closeClient(entry.client)
		delete(r.clients, name)
	}
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	// LLMProviders maps provider names to their config
	LLMProviders map[string]LLMProviderConfig
}

// LLMProviderConfig matches config.ProviderCfg with a resolved API key.
type LLMProviderConfig struct {
	Type      string        // "openai", "mistral", "gemini", "openrouter", "mock"
	Model     string        // Default model name
	APIKey    string        // Resolved API key
	BaseURL   string        // Optional endpoint override
	RateLimit int           // Requests per minute, 0 = unlimited
	Timeout   time.Duration // HTTP timeout, 0 = client default
	Enabled   bool
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with an API key are registered; "mock" needs no key.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured are unregistered and providers
// whose settings changed are rebuilt.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.Enabled || (provCfg.APIKey == "" && provCfg.Type != MockClientName) {
			continue
		}
		want[name] = true

		existing, hasExisting := r.clients[name]
		if hasExisting && existing.cfg == provCfg {
			continue
		}
		client, err := createLLMClient(provCfg)
		if err != nil {
			r.logger.Warn("skipping LLM provider", "name", name, "error", err)
			delete(want, name)
			continue
		}
		r.replace(name, registered{client: client, cfg: provCfg})
		if hasExisting {
			r.logger.Info("updated LLM client", "name", name, "type", provCfg.Type)
		} else {
			r.logger.Info("registered LLM client", "name", name, "type", provCfg.Type)
		}
	}

	for name, entry := range r.clients {
		if !want[name] {
			closeClient(entry.client)
			delete(r.clients, name)
			r.logger.Info("unregistered LLM client", "name", name)
		}
	}
}

// replace must be called with the lock held.
func (r *Registry) replace(name string, entry registered) {
	if old, ok := r.clients[name]; ok && old.client != entry.client {
		closeClient(old.client)
	}
	r.clients[name] = entry
}

// createLLMClient creates an LLM client based on provider type.
func createLLMClient(cfg LLMProviderConfig) (LLMClient, error) {
	var client LLMClient
	switch cfg.Type {
	case OpenAIName:
		client = NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			BaseURL:      cfg.BaseURL,
		})
	case "mistral":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = MistralBaseURL
		}
		client = NewOpenAIClient(OpenAIConfig{
			Name:         "mistral",
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			BaseURL:      baseURL,
		})
	case GeminiName:
		client = NewGeminiClient(GeminiConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
		})
	case OpenRouterName:
		client = NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		})
	case MockClientName:
		client = NewMockClient()
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
	if cfg.RateLimit > 0 {
		client = Limited(client, cfg.RateLimit)
	}
	return client, nil
}

func closeClient(c LLMClient) {
	if closer, ok := c.(io.Closer); ok {
		_ = closer.Close()
	}
}
