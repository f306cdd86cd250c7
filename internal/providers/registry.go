package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the configured backends by name. It supports config-driven
// instantiation and hot-reload, and is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	configs  map[string]BackendConfig
	logger   *slog.Logger
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		configs:  make(map[string]BackendConfig),
		logger:   slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds or replaces a backend.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
	delete(r.configs, name)
	r.logger.Info("registered backend", "name", name)
}

// Unregister removes a backend.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, name)
	delete(r.configs, name)
	r.logger.Info("unregistered backend", "name", name)
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

// Has reports whether a backend is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[name]
	return ok
}

// List returns the registered backend names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfig defines the backends to instantiate from config.
type RegistryConfig struct {
	Backends map[string]BackendConfig
}

// BackendConfig matches config.BackendCfg with a resolved API key.
type BackendConfig struct {
	Type      string  // "ollama", "openai", "gemini"
	BaseURL   string  // OpenAI-compatible endpoint
	Model     string  // default model
	APIKey    string  // resolved API key
	RateLimit float64 // requests per second
	Enabled   bool
}

// usable reports whether the config can produce a backend. Ollama and the
// mock need no key.
func (c BackendConfig) usable() bool {
	if !c.Enabled {
		return false
	}
	return c.Type == OllamaName || c.Type == MockName || c.APIKey != ""
}

// NewRegistryFromConfig creates a registry with every enabled backend.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry from configuration. Backends no longer
// configured are removed; backends whose settings changed are recreated.
// Backends registered directly with Register are left alone.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, bc := range cfg.Backends {
		if !bc.usable() {
			continue
		}
		want[name] = true

		prev, configured := r.configs[name]
		if configured && prev == bc {
			continue
		}
		b, err := createBackend(name, bc)
		if err != nil {
			r.logger.Warn("failed to create backend", "name", name, "type", bc.Type, "error", err)
			continue
		}
		r.backends[name] = b
		r.configs[name] = bc
		if configured {
			r.logger.Info("updated backend", "name", name, "type", bc.Type)
		} else {
			r.logger.Info("registered backend", "name", name, "type", bc.Type)
		}
	}

	for name := range r.configs {
		if !want[name] {
			delete(r.backends, name)
			delete(r.configs, name)
			r.logger.Info("removed backend", "name", name)
		}
	}
}

// createBackend creates a backend based on its type.
func createBackend(name string, cfg BackendConfig) (Backend, error) {
	switch cfg.Type {
	case OllamaName, OpenAIName:
		return NewOpenAIBackend(OpenAIConfig{
			Name:      name,
			Type:      cfg.Type,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
		}), nil
	case GeminiName:
		b, err := NewGeminiBackend(context.Background(), GeminiConfig{
			Name:      name,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case MockName:
		return NewMockBackend(), nil
	default:
		return nil, fmt.Errorf("%w type %q", ErrUnknownBackend, cfg.Type)
	}
}
