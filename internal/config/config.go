// Package config loads the assistant's configuration from a YAML file and
// POLY_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when Load is called without an explicit path.
const DefaultPath = "polyglot.yaml"

type Config struct {
	DefaultBackend string          `koanf:"default_backend"`
	Backends       []BackendConfig `koanf:"backends"`
	Retry          RetryConfig     `koanf:"retry"`
	RequestTimeout time.Duration   `koanf:"request_timeout"`
	Log            LogConfig       `koanf:"log"`
	Telemetry      TelemetryConfig `koanf:"telemetry"`
}

// BackendConfig describes one configured LLM backend.
type BackendConfig struct {
	Name      string `koanf:"name"`
	Type      string `koanf:"type"` // openai, openai-compatible, anthropic, ollama, gemini
	APIKey    string `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	MaxTokens int    `koanf:"max_tokens"`
	Version   string `koanf:"version"` // Anthropic API version header
}

// DisplayName returns Name, falling back to Type.
func (b BackendConfig) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Type
}

type RetryConfig struct {
	MaxRetries        int           `koanf:"max_retries"`
	InitialDelay      time.Duration `koanf:"initial_delay"`
	MaxDelay          time.Duration `koanf:"max_delay"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	JitterFactor      float64       `koanf:"jitter_factor"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (or DefaultPath when empty), then applies POLY_ environment
// overrides such as POLY_RETRY__MAX_RETRIES=5. A missing default file is not
// an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("POLY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "POLY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Backends) == 0 {
		cfg.Backends = defaultBackends()
	}
	for i := range cfg.Backends {
		cfg.Backends[i].APIKey = substituteEnvVars(cfg.Backends[i].APIKey)
		cfg.Backends[i].BaseURL = substituteEnvVars(cfg.Backends[i].BaseURL)
	}
	if cfg.DefaultBackend == "" {
		cfg.DefaultBackend = cfg.Backends[0].DisplayName()
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"retry.max_retries":        3,
		"retry.initial_delay":      "1s",
		"retry.max_delay":          "30s",
		"retry.backoff_multiplier": 2.0,
		"retry.jitter_factor":      0.1,
		"request_timeout":          "5m",
		"log.level":                "info",
		"log.format":               "text",
		"telemetry.service_name":   "polyglot-chat",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}
}

// defaultBackends is used when no backends are configured.
func defaultBackends() []BackendConfig {
	return []BackendConfig{
		{Name: "openai", Type: "openai", APIKey: "${OPENAI_API_KEY}", Model: "gpt-4o-mini"},
		{Name: "anthropic", Type: "anthropic", APIKey: "${ANTHROPIC_API_KEY}", Model: "claude-3-5-haiku-latest", MaxTokens: 4096},
		{Name: "gemini", Type: "gemini", APIKey: "${GOOGLE_API_KEY}", Model: "gemini-1.5-flash"},
		{Name: "ollama", Type: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.1"},
	}
}

// Backend returns the backend configured under name.
func (c *Config) Backend(name string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.DisplayName() == name {
			return b, true
		}
	}
	return BackendConfig{}, false
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
