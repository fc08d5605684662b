// Package anthropic implements the Anthropic Messages backend and the
// translator from its event stream to canonical chunks.
package anthropic

import (
	"context"
	"encoding/json"
	"log/slog"

	anthropicapi "github.com/tjfontaine/polyglot-chat/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// StreamFormat is the translator key for Anthropic event streams.
const StreamFormat = "anthropic"

const defaultMaxTokens = 4096

// Option configures a Backend.
type Option func(*Backend)

// WithName overrides the backend name (default "anthropic").
func WithName(name string) Option {
	return func(b *Backend) {
		b.name = name
	}
}

// WithMaxTokens sets the max_tokens used when a request does not set one.
func WithMaxTokens(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxTokens = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend streams messages from the Anthropic API.
type Backend struct {
	name      string
	maxTokens int
	client    *anthropicapi.Client
	logger    *slog.Logger
}

// New creates a backend on top of client.
func New(client *anthropicapi.Client, opts ...Option) *Backend {
	b := &Backend{
		name:      Type,
		maxTokens: defaultMaxTokens,
		client:    client,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string {
	return b.name
}

// StreamFormat implements backend.Formatter so the Anthropic translator is
// used whatever the backend is named.
func (b *Backend) StreamFormat() string {
	return StreamFormat
}

// CompletionStream implements backend.Backend. Each event carries an
// anthropicapi.StreamEventResult.
func (b *Backend) CompletionStream(ctx context.Context, transcript []domain.Message, req backend.Request) (<-chan backend.Event, error) {
	apiReq := b.buildRequest(transcript, req)

	b.logger.Debug("starting anthropic stream",
		slog.String("backend", b.name),
		slog.String("model", apiReq.Model),
		slog.Int("messages", len(apiReq.Messages)),
		slog.Int("tools", len(apiReq.Tools)),
	)

	stream, err := b.client.StreamMessage(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	out := make(chan backend.Event)
	go func() {
		defer close(out)
		for ev := range stream {
			if !backend.Send(ctx, out, backend.Event{Data: ev, Err: ev.Err}) {
				return
			}
		}
	}()
	return out, nil
}

func (b *Backend) buildRequest(transcript []domain.Message, req backend.Request) *anthropicapi.MessagesRequest {
	apiReq := &anthropicapi.MessagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if apiReq.MaxTokens <= 0 {
		apiReq.MaxTokens = b.maxTokens
	}

	for _, m := range transcript {
		if m.Role == domain.RoleSystem {
			if m.Content != "" {
				apiReq.System = append(apiReq.System, anthropicapi.SystemBlock{Type: anthropicapi.BlockText, Text: m.Content})
			}
			continue
		}

		role, parts := convertMessage(m)
		if len(parts) == 0 {
			continue
		}
		// Consecutive messages with the same role are merged; the API requires
		// alternating turns and tool results travel as user content.
		if n := len(apiReq.Messages); n > 0 && apiReq.Messages[n-1].Role == role {
			apiReq.Messages[n-1].Content = append(apiReq.Messages[n-1].Content, parts...)
			continue
		}
		apiReq.Messages = append(apiReq.Messages, anthropicapi.Message{Role: role, Content: parts})
	}

	for _, t := range req.Tools {
		schema := any(t.Function.Parameters)
		if t.Function.Parameters == nil {
			schema = map[string]any{"type": "object"}
		}
		apiReq.Tools = append(apiReq.Tools, anthropicapi.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}

	if tc := req.ToolChoice; tc != nil && len(apiReq.Tools) > 0 {
		switch tc.Mode {
		case domain.ToolChoiceAuto:
			apiReq.ToolChoice = &anthropicapi.ToolChoice{Type: "auto"}
		case domain.ToolChoiceRequired:
			apiReq.ToolChoice = &anthropicapi.ToolChoice{Type: "any"}
		case domain.ToolChoiceNone:
			apiReq.ToolChoice = &anthropicapi.ToolChoice{Type: "none"}
		case domain.ToolChoiceFunction:
			apiReq.ToolChoice = &anthropicapi.ToolChoice{Type: "tool", Name: tc.Name}
		}
	}

	return apiReq
}

func convertMessage(m domain.Message) (string, []anthropicapi.ContentPart) {
	switch m.Role {
	case domain.RoleTool:
		return "user", []anthropicapi.ContentPart{{
			Type:      anthropicapi.BlockToolResult,
			ToolUseID: m.ToolCallID,
			Content:   m.Content,
		}}
	case domain.RoleAssistant:
		var parts []anthropicapi.ContentPart
		if m.Content != "" {
			parts = append(parts, anthropicapi.ContentPart{Type: anthropicapi.BlockText, Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			input := json.RawMessage(tc.Function.Arguments)
			if !json.Valid(input) {
				input = json.RawMessage("{}")
			}
			parts = append(parts, anthropicapi.ContentPart{
				Type:  anthropicapi.BlockToolUse,
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}
		return "assistant", parts
	default:
		if m.Content == "" {
			return "user", nil
		}
		return "user", []anthropicapi.ContentPart{{Type: anthropicapi.BlockText, Text: m.Content}}
	}
}
