// Package openai implements the OpenAI and OpenAI-compatible backends. Their
// native chunks already follow the canonical delta layout, so they need no
// dedicated translator.
package openai

import (
	"context"
	"log/slog"

	openaiapi "github.com/tjfontaine/polyglot-chat/internal/api/openai"
	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// StreamFormat is the translator key for Chat Completions streams.
const StreamFormat = "openai"

// Option configures a Backend.
type Option func(*Backend)

// WithName overrides the backend name (default "openai").
func WithName(name string) Option {
	return func(b *Backend) {
		b.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend streams chat completions from an OpenAI-style API.
type Backend struct {
	name   string
	client *openaiapi.Client
	logger *slog.Logger
}

// New creates a backend on top of client.
func New(client *openaiapi.Client, opts ...Option) *Backend {
	b := &Backend{
		name:   TypeOpenAI,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string {
	return b.name
}

// StreamFormat implements backend.Formatter. No translator is registered
// under this key; chunks implement domain.ChunkSource and pass through the
// identity translator.
func (b *Backend) StreamFormat() string {
	return StreamFormat
}

// CompletionStream implements backend.Backend. Each event carries a
// *openaiapi.ChatCompletionChunk.
func (b *Backend) CompletionStream(ctx context.Context, transcript []domain.Message, req backend.Request) (<-chan backend.Event, error) {
	apiReq := buildRequest(transcript, req)

	b.logger.Debug("starting openai stream",
		slog.String("backend", b.name),
		slog.String("model", apiReq.Model),
		slog.Int("messages", len(apiReq.Messages)),
		slog.Int("tools", len(apiReq.Tools)),
	)

	stream, err := b.client.StreamChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	out := make(chan backend.Event)
	go func() {
		defer close(out)
		for res := range stream {
			ev := backend.Event{Err: res.Err}
			if res.Chunk != nil {
				ev.Data = res.Chunk
			}
			if !backend.Send(ctx, out, ev) {
				return
			}
		}
	}()
	return out, nil
}

func buildRequest(transcript []domain.Message, req backend.Request) *openaiapi.ChatCompletionRequest {
	apiReq := &openaiapi.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]openaiapi.ChatCompletionMessage, 0, len(transcript)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	for _, m := range transcript {
		msg := openaiapi.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openaiapi.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openaiapi.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		apiReq.Messages = append(apiReq.Messages, msg)
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openaiapi.Tool{
			Type: "function",
			Function: openaiapi.FunctionTool{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}

	if tc := req.ToolChoice; tc != nil {
		switch tc.Mode {
		case domain.ToolChoiceFunction:
			apiReq.ToolChoice = openaiapi.ToolChoiceFunction{
				Type:     "function",
				Function: openaiapi.ToolChoiceFuncName{Name: tc.Name},
			}
		case domain.ToolChoiceAuto, domain.ToolChoiceNone, domain.ToolChoiceRequired:
			apiReq.ToolChoice = string(tc.Mode)
		}
	}

	return apiReq
}
