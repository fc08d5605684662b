package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/chat"
	"github.com/tjfontaine/polyglot-chat/internal/config"
	"github.com/tjfontaine/polyglot-chat/internal/registration"
	"github.com/tjfontaine/polyglot-chat/internal/retry"
	"github.com/tjfontaine/polyglot-chat/internal/telemetry"
)

var (
	configPath  string
	backendName string
	modelName   string
)

var rootCmd = &cobra.Command{
	Use:           "polyglot",
	Short:         "Chat with OpenAI, Anthropic, Gemini and Ollama models from one CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "backend name (default from config)")
	rootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "model override")

	rootCmd.AddCommand(chatCmd, backendsCmd)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	registration.RegisterBuiltins()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

// app is the state shared by commands after configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	backend  config.BackendConfig
	client   *chat.Client
	shutdown func(context.Context) error
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	name := backendName
	if name == "" {
		name = cfg.DefaultBackend
	}
	bcfg, ok := cfg.Backend(name)
	if !ok {
		return nil, fmt.Errorf("backend %q is not configured", name)
	}
	if modelName != "" {
		bcfg.Model = modelName
	}

	b, err := backend.Create(bcfg)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.InitTracer(cfg.Telemetry, os.Stderr, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	client, err := chat.New(b,
		chat.WithRetryConfig(retryConfig(cfg.Retry)),
		chat.WithLogger(logger),
	)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, backend: bcfg, client: client, shutdown: shutdown}, nil
}

func (a *app) close() {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
	}
}

func retryConfig(rc config.RetryConfig) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = rc.MaxRetries
	cfg.InitialDelay = rc.InitialDelay
	cfg.MaxDelay = rc.MaxDelay
	cfg.BackoffMultiplier = rc.BackoffMultiplier
	cfg.JitterFactor = rc.JitterFactor
	return cfg
}

// newLogger writes to stderr so log records do not interleave with the
// streamed reply on stdout.
func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
