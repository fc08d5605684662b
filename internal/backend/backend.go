// Package backend defines the boundary to LLM backends: a backend accepts a
// transcript and returns a channel of native stream elements.
package backend

import (
	"context"

	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// Backend streams completions from one LLM service.
type Backend interface {
	// Name identifies the backend in logs, errors and result metadata.
	Name() string

	// CompletionStream starts a streaming completion. Errors returned here
	// happen before any output was produced and may be retried. Errors
	// delivered through Event.Err happen mid-stream. The channel is closed
	// when the stream ends or ctx is cancelled.
	CompletionStream(ctx context.Context, transcript []domain.Message, req Request) (<-chan Event, error)
}

// Formatter is implemented by backends whose stream elements need a
// translator registered under a key other than Name.
type Formatter interface {
	StreamFormat() string
}

// StreamFormat returns the key used to look up the translator for b.
func StreamFormat(b Backend) string {
	if f, ok := b.(Formatter); ok {
		return f.StreamFormat()
	}
	return b.Name()
}

// Request carries per-call parameters alongside the transcript.
type Request struct {
	Model       string
	Tools       []domain.ToolDefinition
	ToolChoice  *domain.ToolChoice
	MaxTokens   int
	Temperature *float32
}

// Event is one native stream element or a mid-stream failure.
type Event struct {
	Data any
	Err  error
}

// Send delivers ev on out unless ctx is done first.
func Send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
