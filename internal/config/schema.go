package config

import (
	"fmt"
	"time"

	"github.com/jackzampolin/honyaku/internal/epub"
	"github.com/jackzampolin/honyaku/internal/translate"
)

// Config holds honyaku configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Backends    map[string]BackendCfg `mapstructure:"backends" yaml:"backends"`
	Translation TranslationCfg        `mapstructure:"translation" yaml:"translation"`
	Retry       RetryCfg              `mapstructure:"retry" yaml:"retry"`
	Build       BuildCfg              `mapstructure:"build" yaml:"build"`
}

// BackendCfg configures a model backend.
type BackendCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "ollama", "openai", "gemini", "mock"
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`     // OpenAI-compatible endpoint
	Model     string  `mapstructure:"model" yaml:"model"`           // Preferred model, empty = first listed
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second, 0 = unlimited
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// TranslationCfg holds session defaults.
type TranslationCfg struct {
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	Method    string        `mapstructure:"method" yaml:"method"` // chain | batch | batch:N
	BatchSize int           `mapstructure:"batch_size" yaml:"batch_size"`
	Think     bool          `mapstructure:"think" yaml:"think"`
	Pause     time.Duration `mapstructure:"pause" yaml:"pause"`
	Threshold int           `mapstructure:"threshold" yaml:"threshold"`
}

// RetryCfg bounds retries of transient backend failures.
type RetryCfg struct {
	Attempts uint          `mapstructure:"attempts" yaml:"attempts"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay"`
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// BuildCfg holds EPUB reconstruction defaults.
type BuildCfg struct {
	ImageDir string `mapstructure:"image_dir" yaml:"image_dir"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	retry := translate.DefaultRetryPolicy()
	return &Config{
		Backends: map[string]BackendCfg{
			"ollama": {
				Type:    "ollama",
				BaseURL: "http://localhost:11434/v1/",
				Enabled: true,
			},
			"gemini": {
				Type:      "gemini",
				Model:     "gemini-2.5-flash",
				APIKey:    "${GEMINI_API_KEY}",
				RateLimit: 1,
				Enabled:   false,
			},
		},
		Translation: TranslationCfg{
			Backend:   "ollama",
			Method:    "batch",
			BatchSize: translate.DefaultBatchSize,
			Think:     true,
			Threshold: translate.DefaultSettings().Threshold,
		},
		Retry: RetryCfg{
			Attempts: retry.Attempts,
			Delay:    retry.Delay,
			MaxDelay: retry.MaxDelay,
		},
		Build: BuildCfg{
			ImageDir: epub.DefaultImageDir,
		},
	}
}

// GetBackend returns a backend config by name.
func (c *Config) GetBackend(name string) (BackendCfg, bool) {
	cfg, ok := c.Backends[name]
	return cfg, ok
}

// EnabledBackends returns all enabled backends.
func (c *Config) EnabledBackends() map[string]BackendCfg {
	result := make(map[string]BackendCfg)
	for name, cfg := range c.Backends {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// TranslationMethod parses the configured method. A bare "batch" uses
// BatchSize.
func (c *Config) TranslationMethod() (translate.Method, error) {
	if c.Translation.Method == "batch" {
		return translate.Batch(c.Translation.BatchSize), nil
	}
	m, err := translate.ParseMethod(c.Translation.Method)
	if err != nil {
		return translate.Method{}, fmt.Errorf("translation.method: %w", err)
	}
	return m, nil
}

// Settings returns the session settings.
func (c *Config) Settings() translate.Settings {
	s := translate.DefaultSettings()
	s.Think = c.Translation.Think
	s.Pause = c.Translation.Pause
	if c.Translation.Threshold > 0 {
		s.Threshold = c.Translation.Threshold
	}
	return s
}

// RetryPolicy returns the retry bounds, falling back to the defaults for
// unset fields.
func (c *Config) RetryPolicy() translate.RetryPolicy {
	p := translate.DefaultRetryPolicy()
	if c.Retry.Attempts > 0 {
		p.Attempts = c.Retry.Attempts
	}
	if c.Retry.Delay > 0 {
		p.Delay = c.Retry.Delay
	}
	if c.Retry.MaxDelay > 0 {
		p.MaxDelay = c.Retry.MaxDelay
	}
	return p
}
