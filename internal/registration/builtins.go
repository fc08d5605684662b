package registration

import (
	"github.com/tjfontaine/polyglot-chat/internal/backend/anthropic"
	"github.com/tjfontaine/polyglot-chat/internal/backend/langchain"
	"github.com/tjfontaine/polyglot-chat/internal/backend/openai"
)

// RegisterBuiltins registers the built-in backend factories and their
// stream translators explicitly. Call it from cmd/polyglot and from tests
// before creating backends from configuration.
func RegisterBuiltins() {
	openai.RegisterFactories()
	anthropic.Register()
	langchain.RegisterFactories()
}
