package openai

import (
	"errors"

	openaiapi "github.com/tjfontaine/polyglot-chat/internal/api/openai"
	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/config"
)

// Backend type identifiers used in configuration.
const (
	TypeOpenAI     = "openai"
	TypeCompatible = "openai-compatible"
)

// RegisterFactories registers the OpenAI and OpenAI-compatible factories.
func RegisterFactories() {
	if !backend.IsRegistered(TypeOpenAI) {
		backend.RegisterFactory(backend.Factory{
			Type:           TypeOpenAI,
			Description:    "OpenAI Chat Completions API",
			Create:         CreateFromConfig,
			ValidateConfig: ValidateConfig,
		})
	}
	if !backend.IsRegistered(TypeCompatible) {
		backend.RegisterFactory(backend.Factory{
			Type:           TypeCompatible,
			Description:    "Any server speaking the Chat Completions API (vLLM, LM Studio, Groq, ...)",
			Create:         CreateFromConfig,
			ValidateConfig: ValidateCompatibleConfig,
		})
	}
}

// CreateFromConfig creates a backend from configuration.
func CreateFromConfig(cfg config.BackendConfig) (backend.Backend, error) {
	opts := []openaiapi.ClientOption{openaiapi.WithHTTPClient(backend.NewHTTPClient())}
	if cfg.BaseURL != "" {
		opts = append(opts, openaiapi.WithBaseURL(cfg.BaseURL))
	}
	client := openaiapi.NewClient(cfg.APIKey, opts...)
	return New(client, WithName(cfg.DisplayName())), nil
}

// ValidateConfig requires an API key.
func ValidateConfig(cfg config.BackendConfig) error {
	if cfg.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}

// ValidateCompatibleConfig requires a base URL; the API key is optional.
func ValidateCompatibleConfig(cfg config.BackendConfig) error {
	if cfg.BaseURL == "" {
		return errors.New("base_url is required")
	}
	return nil
}
