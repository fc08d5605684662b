package anthropic

import (
	"errors"

	anthropicapi "github.com/tjfontaine/polyglot-chat/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/config"
	"github.com/tjfontaine/polyglot-chat/internal/stream"
)

// Type is the backend type identifier used in configuration.
const Type = "anthropic"

// Register registers the Anthropic backend factory and its stream
// translator.
func Register() {
	if !backend.IsRegistered(Type) {
		backend.RegisterFactory(backend.Factory{
			Type:           Type,
			Description:    "Anthropic Messages API (Claude models)",
			Create:         CreateFromConfig,
			ValidateConfig: ValidateConfig,
		})
	}
	if !stream.HasTranslator(StreamFormat) {
		stream.RegisterTranslator(StreamFormat, Translate)
	}
}

// CreateFromConfig creates a new Anthropic backend from configuration.
func CreateFromConfig(cfg config.BackendConfig) (backend.Backend, error) {
	opts := []anthropicapi.ClientOption{
		anthropicapi.WithHTTPClient(backend.NewHTTPClient()),
		anthropicapi.WithVersion(cfg.Version),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicapi.WithBaseURL(cfg.BaseURL))
	}
	client := anthropicapi.NewClient(cfg.APIKey, opts...)
	return New(client, WithName(cfg.DisplayName()), WithMaxTokens(cfg.MaxTokens)), nil
}

// ValidateConfig requires an API key.
func ValidateConfig(cfg config.BackendConfig) error {
	if cfg.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}
