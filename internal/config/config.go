// Package config loads besiktning settings from defaults, a YAML file,
// BESIKTNING_* environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/MrPrayat/DA235X/internal/backoff"
	"github.com/MrPrayat/DA235X/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. BESIKTNING_LOG_LEVEL.
const EnvPrefix = "BESIKTNING"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// cfgFile may be empty, in which case config.yaml is looked up in the
// working directory and then in searchDirs.
func NewManager(cfgFile string, searchDirs ...string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	loadDotEnv(cfgFile, searchDirs)

	if err := cm.initViper(cfgFile, searchDirs); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// loadDotEnv reads .env files next to the config and in the working
// directory. Variables already set in the environment win.
func loadDotEnv(cfgFile string, searchDirs []string) {
	candidates := []string{".env"}
	if cfgFile != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(cfgFile), ".env"))
	}
	for _, dir := range searchDirs {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("failed to load .env file", "path", path, "error", err)
		}
	}
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string, searchDirs []string) error {
	v := cm.v
	// Leaf defaults, so a file that sets one key of a section keeps the
	// defaults of its siblings.
	defaults, err := Flatten(DefaultConfig())
	if err != nil {
		return err
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Nested keys are reachable as BESIKTNING_EXTRACTION_WORKERS.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"log_level", "schema_file",
		"extraction.provider", "extraction.model", "extraction.strategy",
		"extraction.workers", "extraction.dpi", "extraction.skip_text_pdfs",
		"retry.attempts",
		"evaluation.seed_policy", "evaluation.run_log",
	} {
		_ = v.BindEnv(key)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !(cfgFile != "" && errors.Is(err, os.ErrNotExist)) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if logger != nil {
		cm.logger = logger
	}
}

// ConfigFile returns the file the config was read from, or "".
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. A reload that fails
// to parse or validate keeps the previous config.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.mu.RLock()
			logger := cm.logger
			cm.mu.RUnlock()
			logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		logger := cm.logger
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Extraction.Strategy) {
	case "", "first", "first-wins", "deterministic", "llm":
	default:
		return fmt.Errorf("invalid extraction.strategy %q: want first or llm", c.Extraction.Strategy)
	}
	switch c.Evaluation.SeedPolicy {
	case "", "null", "booleans_false":
	default:
		return fmt.Errorf("invalid evaluation.seed_policy %q: want null or booleans_false", c.Evaluation.SeedPolicy)
	}
	if c.Extraction.Workers < 0 || c.Extraction.MinPages < 0 || c.Retry.Attempts < 0 {
		return fmt.Errorf("extraction.workers, extraction.min_pages and retry.attempts must not be negative")
	}
	if c.Extraction.Provider != "" && len(c.Providers) > 0 {
		if _, ok := c.Providers[c.Extraction.Provider]; !ok {
			return fmt.Errorf("extraction.provider %q is not configured under providers", c.Extraction.Provider)
		}
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}

	for name, p := range c.Providers {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:      p.Type,
			Model:     p.Model,
			APIKey:    ResolveEnvVars(p.APIKey),
			BaseURL:   p.BaseURL,
			RateLimit: p.RateLimit,
			Timeout:   time.Duration(p.TimeoutSeconds) * time.Second,
			Enabled:   p.Enabled,
		}
	}

	return cfg
}

// RetryPolicy builds the retry policy for calls whose errors are judged by
// retryable. Unset fields keep backoff.DefaultPolicy values.
func (c *Config) RetryPolicy(retryable func(error) bool) backoff.Policy {
	p := backoff.DefaultPolicy(retryable)
	if c.Retry.Attempts > 0 {
		p.Attempts = c.Retry.Attempts
	}
	if c.Retry.BaseDelaySeconds > 0 {
		p.BaseDelay = Seconds(c.Retry.BaseDelaySeconds)
	}
	if c.Retry.MaxDelaySeconds > 0 {
		p.MaxDelay = Seconds(c.Retry.MaxDelaySeconds)
	}
	if c.Retry.JitterSeconds >= 0 {
		p.MaxJitter = Seconds(c.Retry.JitterSeconds)
	}
	return p
}

// ModelFor returns the model a stage should request from provider: the
// stage override when set, otherwise the provider's default model.
func (c *Config) ModelFor(provider, override string) string {
	if override != "" {
		return override
	}
	if p, ok := c.Providers[provider]; ok {
		return p.Model
	}
	return ""
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# besiktning configuration
# API keys use ${ENV_VAR} syntax to reference environment variables.
# Put them in your shell or in a .env file next to this config:
#   OPENAI_API_KEY=xxx GEMINI_API_KEY=xxx MISTRAL_API_KEY=xxx

`)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(path, append(header, data...), 0o644)
}
