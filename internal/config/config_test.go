package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrPrayat/DA235X/internal/providers"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Providers["openai"].APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected openai API key placeholder")
	}
	if cfg.Extraction.Strategy != "first" || cfg.Extraction.DPI != 200 || cfg.Extraction.MinPages != 5 {
		t.Errorf("extraction defaults = %+v", cfg.Extraction)
	}
	if cfg.Evaluation.SeedPolicy != "null" {
		t.Errorf("seed policy = %q, want null", cfg.Evaluation.SeedPolicy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret123")

	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_API_KEY}", "secret123"},
		{"${DEFINITELY_NOT_SET_12345}", ""},
		{"literal-value", "literal-value"},
		{"prefix-${TEST_API_KEY}", "prefix-secret123"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ResolveEnvVars(tt.in); got != tt.want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewManager(t *testing.T) {
	t.Run("partial file keeps sibling defaults", func(t *testing.T) {
		path := writeConfig(t, `
extraction:
  workers: 4
  strategy: llm
providers:
  openai:
    model: gpt-4.1
`)
		mgr, err := NewManager(path)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		cfg := mgr.Get()
		if cfg.Extraction.Workers != 4 || cfg.Extraction.Strategy != "llm" {
			t.Errorf("extraction = %+v", cfg.Extraction)
		}
		if cfg.Extraction.DPI != 200 || cfg.Extraction.MinPages != 5 {
			t.Errorf("defaults lost: dpi=%d min_pages=%d", cfg.Extraction.DPI, cfg.Extraction.MinPages)
		}
		openai := cfg.Providers["openai"]
		if openai.Model != "gpt-4.1" || openai.Type != "openai" || !openai.Enabled {
			t.Errorf("openai = %+v", openai)
		}
		if mgr.ConfigFile() != path {
			t.Errorf("ConfigFile() = %q", mgr.ConfigFile())
		}
	})

	t.Run("missing file uses defaults", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if mgr.Get().Retry.Attempts != 5 {
			t.Errorf("retry = %+v", mgr.Get().Retry)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("BESIKTNING_EXTRACTION_WORKERS", "7")
		t.Setenv("BESIKTNING_LOG_LEVEL", "debug")
		path := writeConfig(t, "extraction:\n  workers: 2\n")

		mgr, err := NewManager(path)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if got := mgr.Get().Extraction.Workers; got != 7 {
			t.Errorf("workers = %d, want 7", got)
		}
		if got := mgr.Get().LogLevel; got != "debug" {
			t.Errorf("log level = %q, want debug", got)
		}
	})

	t.Run("dotenv next to config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BESIKTNING_TEST_DOTENV_KEY=from-dotenv\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Unsetenv("BESIKTNING_TEST_DOTENV_KEY") })

		if _, err := NewManager(path); err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if got := os.Getenv("BESIKTNING_TEST_DOTENV_KEY"); got != "from-dotenv" {
			t.Errorf("env = %q, want from-dotenv", got)
		}
	})

	t.Run("invalid strategy", func(t *testing.T) {
		path := writeConfig(t, "extraction:\n  strategy: vote\n")
		if _, err := NewManager(path); err == nil {
			t.Error("expected error for unknown strategy")
		}
	})

	t.Run("unknown extraction provider", func(t *testing.T) {
		path := writeConfig(t, "extraction:\n  provider: nowhere\n")
		if _, err := NewManager(path); err == nil {
			t.Error("expected error for unconfigured provider")
		}
	})
}

func TestConfig_ToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-123")
	cfg := &Config{Providers: map[string]ProviderCfg{
		"openai": {Type: "openai", Model: "gpt-4o", APIKey: "${TEST_OPENAI_KEY}", RateLimit: 60, TimeoutSeconds: 30, Enabled: true},
	}}

	got := cfg.ToProviderRegistryConfig().LLMProviders["openai"]
	want := providers.LLMProviderConfig{
		Type: "openai", Model: "gpt-4o", APIKey: "sk-123", RateLimit: 60, Timeout: 30 * time.Second, Enabled: true,
	}
	if got != want {
		t.Errorf("provider = %+v, want %+v", got, want)
	}
}

func TestConfig_RetryPolicy(t *testing.T) {
	cfg := &Config{Retry: RetryCfg{Attempts: 3, BaseDelaySeconds: 0.5, MaxDelaySeconds: 4, JitterSeconds: 0}}
	retryable := func(error) bool { return true }

	p := cfg.RetryPolicy(retryable)
	if p.Attempts != 3 || p.BaseDelay != 500*time.Millisecond || p.MaxDelay != 4*time.Second || p.MaxJitter != 0 {
		t.Errorf("policy = %+v", p)
	}
	if !p.Retryable(errors.New("x")) {
		t.Error("Retryable not carried over")
	}
}

func TestConfig_ModelFor(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ModelFor("openai", ""); got != "gpt-4o" {
		t.Errorf("ModelFor(openai) = %q", got)
	}
	if got := cfg.ModelFor("openai", "gpt-4.1"); got != "gpt-4.1" {
		t.Errorf("override = %q", got)
	}
	if got := cfg.ModelFor("missing", ""); got != "" {
		t.Errorf("missing provider = %q", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default does not load: %v", err)
	}
	if mgr.Get().Providers["mistral"].Model != "pixtral-large-latest" {
		t.Errorf("providers = %+v", mgr.Get().Providers)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log_level: info\n"))
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
	mgr, err := NewManager(writeConfig(t, "log_level: info\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Extraction.Workers
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "extraction:\n  workers: 1\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if mgr.Get().Extraction.Workers != 1 {
		t.Fatalf("initial workers = %d", mgr.Get().Extraction.Workers)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Int64
	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(int64(cfg.Extraction.Workers))
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("extraction:\n  workers: 6\n"), 0o644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 && lastValue.Load() == 6 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Extraction.Workers; got != 6 {
		t.Errorf("config not updated: workers = %d, want 6", got)
	}
	if got := lastValue.Load(); got != 6 {
		t.Errorf("callback received workers = %d, want 6", got)
	}
}
