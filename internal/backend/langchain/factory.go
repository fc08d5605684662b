package langchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/config"
)

// Backend type identifiers used in configuration.
const (
	TypeOllama = "ollama"
	TypeGemini = "gemini"
)

// RegisterFactories registers the Ollama and Gemini backend factories.
func RegisterFactories() {
	if !backend.IsRegistered(TypeOllama) {
		backend.RegisterFactory(backend.Factory{
			Type:           TypeOllama,
			Description:    "Local Ollama server via langchaingo",
			Create:         CreateOllama,
			ValidateConfig: ValidateOllamaConfig,
		})
	}
	if !backend.IsRegistered(TypeGemini) {
		backend.RegisterFactory(backend.Factory{
			Type:           TypeGemini,
			Description:    "Google Gemini via langchaingo",
			Create:         CreateGemini,
			ValidateConfig: ValidateGeminiConfig,
		})
	}
}

// CreateOllama creates an Ollama backend from configuration.
func CreateOllama(cfg config.BackendConfig) (backend.Backend, error) {
	opts := []ollama.Option{ollama.WithHTTPClient(backend.NewHTTPClient())}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, ollama.WithModel(cfg.Model))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return New(cfg.DisplayName(), llm), nil
}

// CreateGemini creates a Gemini backend from configuration.
func CreateGemini(cfg config.BackendConfig) (backend.Backend, error) {
	opts := []googleai.Option{googleai.WithAPIKey(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(cfg.Model))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, googleai.WithDefaultMaxTokens(cfg.MaxTokens))
	}
	llm, err := googleai.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return New(cfg.DisplayName(), llm), nil
}

// ValidateOllamaConfig requires a model; the server URL defaults to the
// local daemon.
func ValidateOllamaConfig(cfg config.BackendConfig) error {
	if cfg.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// ValidateGeminiConfig requires an API key.
func ValidateGeminiConfig(cfg config.BackendConfig) error {
	if cfg.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}
