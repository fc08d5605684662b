// Package langchain adapts langchaingo models (Ollama, Gemini) to the
// backend interface. Text arrives through the streaming callback; tool
// calls and usage are only known once generation finishes and are emitted
// as a final chunk.
package langchain

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// StreamFormat is the translator key for langchaingo streams.
const StreamFormat = "langchain"

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithIDGenerator overrides how missing tool call ids are synthesized.
func WithIDGenerator(fn func() string) Option {
	return func(b *Backend) {
		b.newID = fn
	}
}

// Backend streams completions from a langchaingo model. Its events carry
// domain.Chunk values, so the identity translator applies.
type Backend struct {
	name   string
	model  llms.Model
	logger *slog.Logger
	newID  func() string
}

// New wraps model under the given backend name.
func New(name string, model llms.Model, opts ...Option) *Backend {
	b := &Backend{
		name:   name,
		model:  model,
		logger: slog.Default(),
		newID:  func() string { return "call_" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string {
	return b.name
}

// StreamFormat implements backend.Formatter. Events already carry
// canonical chunks.
func (b *Backend) StreamFormat() string {
	return StreamFormat
}

// CompletionStream implements backend.Backend. It blocks until the model
// produces its first output or fails, so errors raised before any output
// are returned directly rather than through the event channel.
func (b *Backend) CompletionStream(ctx context.Context, transcript []domain.Message, req backend.Request) (<-chan backend.Event, error) {
	messages := convertTranscript(transcript)
	opts := callOptions(req)

	b.logger.Debug("starting langchain stream",
		slog.String("backend", b.name),
		slog.String("model", req.Model),
		slog.Int("messages", len(messages)),
		slog.Int("tools", len(req.Tools)),
	)

	out := make(chan backend.Event)
	first := make(chan error, 1)

	go func() {
		defer close(out)

		var once sync.Once
		ready := func(err error) { once.Do(func() { first <- err }) }
		var streamed atomic.Bool

		callOpts := append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed.Store(true)
			ready(nil)
			if !backend.Send(ctx, out, backend.Event{Data: domain.TextChunk(string(chunk))}) {
				return ctx.Err()
			}
			return nil
		}))

		resp, err := b.model.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			if !streamed.Load() {
				ready(err)
				return
			}
			backend.Send(ctx, out, backend.Event{Err: err})
			return
		}
		ready(nil)

		for _, c := range b.finalChunks(resp, streamed.Load()) {
			if !backend.Send(ctx, out, backend.Event{Data: c}) {
				return
			}
		}
	}()

	if err := <-first; err != nil {
		return nil, err
	}
	return out, nil
}

// finalChunks converts the completed response into chunks. Text is only
// included when nothing was streamed.
func (b *Backend) finalChunks(resp *llms.ContentResponse, streamed bool) []domain.Chunk {
	if resp == nil || len(resp.Choices) == 0 {
		return nil
	}
	choice := resp.Choices[0]

	var chunks []domain.Chunk
	if !streamed && choice.Content != "" {
		chunks = append(chunks, domain.TextChunk(choice.Content))
	}

	final := domain.Chunk{FinishReason: choice.StopReason, Usage: usageFrom(choice.GenerationInfo)}
	for i, tc := range choice.ToolCalls {
		frag := domain.ToolCallFragment{Position: i, ID: tc.ID}
		if frag.ID == "" {
			frag.ID = b.newID()
		}
		args := "{}"
		if tc.FunctionCall != nil {
			frag.Name = tc.FunctionCall.Name
			if tc.FunctionCall.Arguments != "" {
				args = tc.FunctionCall.Arguments
			}
		}
		frag.Arguments = domain.Args(args)
		final.ToolCalls = append(final.ToolCalls, frag)
	}
	if final.FinishReason != "" || final.Usage != nil || len(final.ToolCalls) > 0 {
		chunks = append(chunks, final)
	}
	return chunks
}

func convertTranscript(transcript []domain.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(transcript))
	for _, m := range transcript {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case domain.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case domain.RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextPart(m.Content))
			}
			for _, tc := range m.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			if len(mc.Parts) > 0 {
				out = append(out, mc)
			}
		case domain.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		}
	}
	return out
}

func callOptions(req backend.Request) []llms.CallOption {
	var opts []llms.CallOption
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*req.Temperature)))
	}
	if len(req.Tools) > 0 {
		tools := make([]llms.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        t.Function.Name,
					Description: t.Function.Description,
					Parameters:  t.Function.Parameters,
				},
			})
		}
		opts = append(opts, llms.WithTools(tools))

		if tc := req.ToolChoice; tc != nil {
			switch tc.Mode {
			case domain.ToolChoiceFunction:
				opts = append(opts, llms.WithToolChoice(llms.ToolChoice{
					Type:     "function",
					Function: &llms.FunctionReference{Name: tc.Name},
				}))
			default:
				opts = append(opts, llms.WithToolChoice(string(tc.Mode)))
			}
		}
	}
	return opts
}

// usageFrom reads token counts from GenerationInfo. Providers disagree on
// the numeric type.
func usageFrom(info map[string]any) *domain.Usage {
	prompt, okP := intValue(info["PromptTokens"])
	completion, okC := intValue(info["CompletionTokens"])
	total, okT := intValue(info["TotalTokens"])
	if !okP && !okC && !okT {
		return nil
	}
	if !okT {
		total = prompt + completion
	}
	return &domain.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
