package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/viper"
)

var (
	// ErrNoDefault is returned when no default value exists for a config key.
	ErrNoDefault = errors.New("no default exists")

	// ErrInvalidKey is returned when a config key contains invalid characters.
	ErrInvalidKey = errors.New("invalid config key")
)

// Entry is a single configuration key with its default and a description.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns the default configuration entries.
// These seed viper's defaults and document the keys for `config list`.
func DefaultEntries() []Entry {
	return []Entry{
		// ===================
		// Backends
		// ===================

		// Backends - Ollama
		{
			Key:         "backends.ollama.type",
			Value:       "ollama",
			Description: "Backend type for the local Ollama server",
		},
		{
			Key:         "backends.ollama.base_url",
			Value:       "http://localhost:11434/v1/",
			Description: "OpenAI-compatible endpoint of the Ollama server",
		},
		{
			Key:         "backends.ollama.model",
			Value:       "",
			Description: "Preferred Ollama model (empty selects the first listed)",
		},
		{
			Key:         "backends.ollama.api_key",
			Value:       "",
			Description: "Ollama API key (not required)",
		},
		{
			Key:         "backends.ollama.rate_limit",
			Value:       0.0,
			Description: "Rate limit in requests per second for Ollama (0 = unlimited)",
		},
		{
			Key:         "backends.ollama.enabled",
			Value:       true,
			Description: "Whether the Ollama backend is enabled",
		},

		// Backends - Gemini
		{
			Key:         "backends.gemini.type",
			Value:       "gemini",
			Description: "Backend type for Google Gemini",
		},
		{
			Key:         "backends.gemini.model",
			Value:       "gemini-2.5-flash",
			Description: "Preferred Gemini model",
		},
		{
			Key:         "backends.gemini.api_key",
			Value:       "${GEMINI_API_KEY}",
			Description: "Gemini API key (uses environment variable)",
		},
		{
			Key:         "backends.gemini.rate_limit",
			Value:       1.0,
			Description: "Rate limit in requests per second for Gemini",
		},
		{
			Key:         "backends.gemini.enabled",
			Value:       false,
			Description: "Whether the Gemini backend is enabled",
		},

		// ===================
		// Translation
		// ===================
		{
			Key:         "translation.backend",
			Value:       "ollama",
			Description: "Backend used by translate and extract",
		},
		{
			Key:         "translation.method",
			Value:       "batch",
			Description: "Unit scheduling: chain, batch or batch:N",
		},
		{
			Key:         "translation.batch_size",
			Value:       6,
			Description: "Units translated concurrently by a bare batch method",
		},
		{
			Key:         "translation.think",
			Value:       true,
			Description: "Let the model reason before answering",
		},
		{
			Key:         "translation.pause",
			Value:       "0s",
			Description: "Delay between auto-advanced pages",
		},
		{
			Key:         "translation.threshold",
			Value:       75,
			Description: "Percent of ASCII letters and digits above which a page counts as translated",
		},

		// ===================
		// Retry
		// ===================
		{
			Key:         "retry.attempts",
			Value:       5,
			Description: "Attempts per unit when the backend is temporarily unavailable",
		},
		{
			Key:         "retry.delay",
			Value:       "10s",
			Description: "Initial backoff between attempts",
		},
		{
			Key:         "retry.max_delay",
			Value:       "1m",
			Description: "Backoff cap",
		},

		// ===================
		// Build
		// ===================
		{
			Key:         "build.image_dir",
			Value:       "Images",
			Description: "Folder inside the rebuilt EPUB that holds images",
		},
	}
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// GetDefault returns the default entry for a config key, or nil.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// knownKey reports whether key is a documented key or a field of a
// user-defined backend.
func knownKey(key string) bool {
	if GetDefault(key) != nil {
		return true
	}
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "backends" {
		return false
	}
	return GetDefault("backends.ollama."+parts[2]) != nil
}

// seedDefaults registers every default entry with v.
func seedDefaults(v *viper.Viper) {
	for _, entry := range DefaultEntries() {
		v.SetDefault(entry.Key, entry.Value)
	}
}

// List returns every configuration key with its current value, sorted by key.
func (cm *Manager) List() []Entry {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	descriptions := make(map[string]string)
	for _, entry := range DefaultEntries() {
		descriptions[entry.Key] = entry.Description
	}

	keys := cm.v.AllKeys()
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, Entry{
			Key:         key,
			Value:       cm.v.Get(key),
			Description: descriptions[key],
		})
	}
	return entries
}
