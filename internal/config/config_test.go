package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/honyaku/internal/translate"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Translation.Backend != "ollama" {
		t.Errorf("expected ollama backend, got %s", cfg.Translation.Backend)
	}
	if cfg.Backends["gemini"].APIKey != "${GEMINI_API_KEY}" {
		t.Error("expected gemini API key placeholder")
	}
	if len(cfg.EnabledBackends()) != 1 {
		t.Errorf("expected only ollama enabled, got %v", cfg.EnabledBackends())
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "gm-key-123")

	cfg := DefaultConfig()
	cfg.Backends["gemini"] = BackendCfg{Type: "gemini", APIKey: "${TEST_GEMINI_KEY}", Enabled: true}

	rc := cfg.ToProviderRegistryConfig()
	if len(rc.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(rc.Backends))
	}
	if rc.Backends["gemini"].APIKey != "gm-key-123" {
		t.Errorf("expected resolved key, got %s", rc.Backends["gemini"].APIKey)
	}
	if rc.Backends["ollama"].BaseURL != "http://localhost:11434/v1/" {
		t.Errorf("unexpected ollama base url: %s", rc.Backends["ollama"].BaseURL)
	}
}

func TestConfigConversions(t *testing.T) {
	t.Run("bare batch uses batch size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Translation.BatchSize = 3
		m, err := cfg.TranslationMethod()
		if err != nil {
			t.Fatal(err)
		}
		if m.Size() != 3 {
			t.Errorf("expected batch of 3, got %s", m)
		}
	})

	t.Run("explicit method", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Translation.Method = "chain"
		m, err := cfg.TranslationMethod()
		if err != nil {
			t.Fatal(err)
		}
		if !m.IsChain() {
			t.Errorf("expected chain, got %s", m)
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Translation.Method = "parallel"
		if _, err := cfg.TranslationMethod(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("settings", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Translation.Think = false
		cfg.Translation.Pause = time.Second
		cfg.Translation.Threshold = 0
		s := cfg.Settings()
		if s.Think || s.Pause != time.Second || s.Threshold != translate.DefaultSettings().Threshold {
			t.Errorf("unexpected settings: %+v", s)
		}
	})

	t.Run("retry policy falls back to defaults", func(t *testing.T) {
		cfg := &Config{Retry: RetryCfg{Attempts: 2}}
		p := cfg.RetryPolicy()
		def := translate.DefaultRetryPolicy()
		if p.Attempts != 2 || p.Delay != def.Delay || p.MaxDelay != def.MaxDelay {
			t.Errorf("unexpected policy: %+v", p)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
translation:
  backend: gemini
  pause: 2s
backends:
  lan:
    type: openai
    base_url: http://10.0.0.2:8000/v1/
    enabled: true
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Translation.Backend != "gemini" {
			t.Errorf("expected gemini, got %s", cfg.Translation.Backend)
		}
		if cfg.Translation.Pause != 2*time.Second {
			t.Errorf("expected 2s pause, got %s", cfg.Translation.Pause)
		}
		if cfg.Translation.Method != "batch" {
			t.Errorf("expected default method, got %s", cfg.Translation.Method)
		}
		if cfg.Backends["lan"].BaseURL != "http://10.0.0.2:8000/v1/" {
			t.Errorf("expected lan backend, got %+v", cfg.Backends["lan"])
		}
		if _, ok := cfg.GetBackend("ollama"); !ok {
			t.Error("expected default ollama backend to remain")
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("HONYAKU_TRANSLATION_METHOD", "chain")

		mgr, err := NewManager(filepath.Join(t.TempDir(), "none.yaml"))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Translation.Method; got != "chain" {
			t.Errorf("expected chain, got %s", got)
		}
	})

	t.Run("invalid file", func(t *testing.T) {
		configFile := writeConfig(t, "translation: [unterminated")
		if _, err := NewManager(configFile); err == nil {
			t.Error("expected error for malformed config")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	cfg := mgr.Get()
	def := DefaultConfig()
	if cfg.Retry.Delay != def.Retry.Delay {
		t.Errorf("expected %s delay, got %s", def.Retry.Delay, cfg.Retry.Delay)
	}
	if cfg.Backends["gemini"].APIKey != "${GEMINI_API_KEY}" {
		t.Errorf("expected placeholder to survive, got %s", cfg.Backends["gemini"].APIKey)
	}
}

func TestManager_Set(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.Set("translation.threshold", "60"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := mgr.Get().Translation.Threshold; got != 60 {
		t.Errorf("expected 60, got %d", got)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Get().Translation.Threshold; got != 60 {
		t.Errorf("expected persisted 60, got %d", got)
	}

	if err := mgr.Set("translation.colour", "red"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := mgr.Set("translation.think", "maybe"); err == nil {
		t.Error("expected error for invalid bool")
	}
}

func TestManager_List(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	entries := mgr.List()
	if len(entries) != len(DefaultEntries()) {
		t.Fatalf("expected %d entries, got %d", len(DefaultEntries()), len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Key > entries[i].Key {
			t.Errorf("entries not sorted: %s > %s", entries[i-1].Key, entries[i].Key)
		}
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "translation:\n  backend: ollama\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "translation:\n  backend: ollama\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Translation.Backend
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "translation:\n  backend: ollama\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Translation.Backend)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("translation:\n  backend: gemini\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}
	if got := mgr.Get().Translation.Backend; got != "gemini" {
		t.Errorf("config not updated: expected gemini, got %s", got)
	}
	if v := lastValue.Load(); v != "gemini" {
		t.Errorf("callback received wrong value: expected gemini, got %v", v)
	}
}
