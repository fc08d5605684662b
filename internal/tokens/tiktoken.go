package tokens

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// TiktokenCounter counts tokens for OpenAI models with tiktoken.
type TiktokenCounter struct {
	matcher *ModelMatcher

	cacheMu    sync.RWMutex
	codecCache map[tokenizer.Encoding]tokenizer.Codec
}

// NewTiktokenCounter creates a counter for OpenAI model names.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		matcher: NewModelMatcher(
			// "o" prefixes cover the o-series reasoning models
			[]string{"gpt-", "o1", "o3", "o4", "text-embedding"},
			nil,
		),
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

func (c *TiktokenCounter) codec(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(mapModelName(model)); err == nil {
		return codec, nil
	}

	encoding := modelToEncoding(model)

	c.cacheMu.RLock()
	cached, ok := c.codecCache[encoding]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()
	return codec, nil
}

func mapModelName(model string) tokenizer.Model {
	model = strings.ToLower(model)
	switch {
	case model == "gpt-5-mini" || strings.HasPrefix(model, "gpt-5-mini-"):
		return tokenizer.GPT5Mini
	case model == "gpt-5-nano" || strings.HasPrefix(model, "gpt-5-nano-"):
		return tokenizer.GPT5Nano
	case strings.HasPrefix(model, "gpt-5"):
		return tokenizer.GPT5
	case strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.GPT41
	case strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.GPT4o
	case strings.HasPrefix(model, "o1"):
		if strings.Contains(model, "mini") {
			return tokenizer.O1Mini
		}
		return tokenizer.O1
	case strings.HasPrefix(model, "o3"):
		if strings.Contains(model, "mini") {
			return tokenizer.O3Mini
		}
		return tokenizer.O3
	case strings.HasPrefix(model, "o4"):
		return tokenizer.O4Mini
	case strings.HasPrefix(model, "gpt-4"):
		return tokenizer.GPT4
	case strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.GPT35Turbo
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.TextEmbeddingAda002
	default:
		return tokenizer.Model(model)
	}
}

// modelToEncoding picks the encoding when tokenizer.ForModel does not know
// the model: o200k_base for gpt-4o and newer, cl100k_base for gpt-4 and
// gpt-3.5.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// CountText counts tokens for a plain text string.
func (c *TiktokenCounter) CountText(model, text string) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountMessages counts prompt tokens using the chat format overheads
// OpenAI documents: 3 tokens per message, 1 for the role and 3 for
// assistant priming.
func (c *TiktokenCounter) CountMessages(model string, transcript []domain.Message, tools []domain.ToolDefinition) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	count := func(s string) int {
		ids, _, _ := codec.Encode(s)
		return len(ids)
	}

	const (
		tokensPerMessage = 3
		tokensPerRole    = 1
	)

	total := 0
	for _, msg := range transcript {
		total += tokensPerMessage + tokensPerRole
		total += count(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += count(tc.Function.Name) + count(tc.Function.Arguments)
			total += 3 // tool call structure
		}
	}

	for _, tool := range tools {
		total += count(tool.Function.Name) + count(tool.Function.Description)
		if tool.Function.Parameters != nil {
			params, _ := json.Marshal(tool.Function.Parameters)
			total += count(string(params))
		}
		total += 7 // tool definition
	}

	total += 3 // assistant priming
	return total, nil
}

// SupportsModel returns true for OpenAI models.
func (c *TiktokenCounter) SupportsModel(model string) bool {
	return c.matcher.Matches(model)
}
