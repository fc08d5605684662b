package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "polyglot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")

	path := writeConfig(t, `
default_backend: claude
backends:
  - name: claude
    type: anthropic
    api_key: ${TEST_ANTHROPIC_KEY}
    model: claude-3-5-haiku-latest
    max_tokens: 2048
  - name: local
    type: ollama
    base_url: http://localhost:11434
    model: llama3.1
retry:
  max_retries: 5
  initial_delay: 250ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DefaultBackend != "claude" {
		t.Errorf("DefaultBackend = %q, want claude", cfg.DefaultBackend)
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("len(Backends) = %d, want 2", len(cfg.Backends))
	}

	claude, ok := cfg.Backend("claude")
	if !ok {
		t.Fatal("Backend(claude) not found")
	}
	if claude.APIKey != "sk-ant-test" {
		t.Errorf("api_key = %q, want substituted value", claude.APIKey)
	}
	if claude.MaxTokens != 2048 {
		t.Errorf("max_tokens = %d, want 2048", claude.MaxTokens)
	}

	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("retry.max_retries = %d, want 5", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialDelay != 250*time.Millisecond {
		t.Errorf("retry.initial_delay = %s, want 250ms", cfg.Retry.InitialDelay)
	}
	// Unset keys fall back to defaults.
	if cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("retry.max_delay = %s, want 30s", cfg.Retry.MaxDelay)
	}
	if cfg.Retry.BackoffMultiplier != 2 {
		t.Errorf("retry.backoff_multiplier = %v, want 2", cfg.Retry.BackoffMultiplier)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "retry:\n  max_retries: 5\n")
	t.Setenv("POLY_RETRY__MAX_RETRIES", "1")
	t.Setenv("POLY_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retry.MaxRetries != 1 {
		t.Errorf("retry.max_retries = %d, want 1", cfg.Retry.MaxRetries)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadDefaultBackends(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Backends) == 0 {
		t.Fatal("expected default backends")
	}
	if cfg.DefaultBackend != "openai" {
		t.Errorf("DefaultBackend = %q, want openai", cfg.DefaultBackend)
	}
	openai, _ := cfg.Backend("openai")
	if openai.APIKey != "sk-test" {
		t.Errorf("openai api_key = %q, want sk-test", openai.APIKey)
	}
	if cfg.RequestTimeout != 5*time.Minute {
		t.Errorf("request_timeout = %s, want 5m", cfg.RequestTimeout)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := substituteEnvVars(tt.input)
			if got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}
