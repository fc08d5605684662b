package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/backend/anthropic"
	"github.com/tjfontaine/polyglot-chat/internal/chat"
	"github.com/tjfontaine/polyglot-chat/internal/config"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
	"github.com/tjfontaine/polyglot-chat/internal/registration"
)

// toolBackend answers with text and one tool call.
type toolBackend struct {
	seen [][]domain.Message
}

func (b *toolBackend) Name() string { return "fake" }

func (b *toolBackend) CompletionStream(ctx context.Context, transcript []domain.Message, _ backend.Request) (<-chan backend.Event, error) {
	b.seen = append(b.seen, transcript)
	out := make(chan backend.Event)
	go func() {
		defer close(out)
		for _, c := range []domain.Chunk{
			domain.TextChunk("Looking it up."),
			{ToolCalls: []domain.ToolCallFragment{{Position: 0, ID: "c1", Name: "lookup", Arguments: domain.Args(`{"q":1}`)}}},
		} {
			if !backend.Send(ctx, out, backend.Event{Data: c}) {
				return
			}
		}
	}()
	return out, nil
}

func TestSessionSend(t *testing.T) {
	b := &toolBackend{}
	client, err := chat.New(b)
	if err != nil {
		t.Fatalf("chat.New() error = %v", err)
	}

	var out bytes.Buffer
	s := &session{
		app: &app{
			cfg:     &config.Config{RequestTimeout: time.Minute},
			backend: config.BackendConfig{Model: "m"},
			client:  client,
		},
		out: &out,
	}

	if err := s.send(context.Background(), "find q"); err != nil {
		t.Fatalf("send() error = %v", err)
	}

	if !strings.Contains(out.String(), "Looking it up.") || !strings.Contains(out.String(), "lookup") {
		t.Errorf("unexpected output: %q", out.String())
	}

	// user, assistant with tool call, tool result
	if len(s.transcript) != 3 {
		t.Fatalf("transcript length = %d, want 3", len(s.transcript))
	}
	if got := s.transcript[1]; got.Role != domain.RoleAssistant || len(got.ToolCalls) != 1 {
		t.Errorf("assistant message = %+v", got)
	}
	if got := s.transcript[2]; got.Role != domain.RoleTool || got.ToolCallID != "c1" {
		t.Errorf("tool message = %+v", got)
	}

	if err := s.send(context.Background(), "again"); err != nil {
		t.Fatalf("second send() error = %v", err)
	}
	if n := len(b.seen[1]); n != 4 {
		t.Errorf("second request carried %d messages, want 4", n)
	}
}

func TestRetryConfig(t *testing.T) {
	cfg := retryConfig(config.RetryConfig{
		MaxRetries:        5,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 3,
		JitterFactor:      0.2,
	})
	if cfg.MaxRetries != 5 || cfg.InitialDelay != time.Second || cfg.MaxDelay != 10*time.Second ||
		cfg.BackoffMultiplier != 3 || cfg.JitterFactor != 0.2 {
		t.Errorf("unexpected retry config: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("boom"), "error: boom"},
		{
			"authentication",
			domain.NewProviderError(domain.KindRequest, domain.CategoryAuthentication, "401 unauthorized"),
			"check the api key",
		},
		{
			"retryable",
			domain.NewProviderError(domain.KindRequest, domain.CategoryRateLimit, "429").WithRetryable(true),
			"retries exhausted",
		},
		{"configuration", domain.ErrConfiguration("api_key is required"), "check the backend configuration"},
		{"timeout", domain.ErrStream(context.DeadlineExceeded), "request_timeout reached"},
		{"cancelled", domain.ErrStream(context.Canceled), "(cancelled)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeError(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("describeError() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestRunBackends(t *testing.T) {
	registration.RegisterBuiltins()

	path := filepath.Join(t.TempDir(), "polyglot.yaml")
	body := `
default_backend: claude
backends:
  - name: claude
    type: anthropic
    api_key: sk-ant-test
    model: claude-3-5-haiku-latest
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := runBackends(cmd, nil); err != nil {
		t.Fatalf("runBackends() error = %v", err)
	}

	for _, want := range []string{"claude", "Backend types", "Stream formats", anthropic.StreamFormat} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
