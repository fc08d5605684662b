// Package chat is the single entry point for chat completions. A call
// validates its input, opens a backend stream under the retry executor,
// normalizes and assembles the stream, and returns one result or a
// classified *domain.ProviderError.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/classify"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
	"github.com/tjfontaine/polyglot-chat/internal/retry"
	"github.com/tjfontaine/polyglot-chat/internal/stream"
	"github.com/tjfontaine/polyglot-chat/internal/tokens"
)

const tracerName = "github.com/tjfontaine/polyglot-chat/internal/chat"

// Phase names the step a call is in. It is attached to log records and
// span events.
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseRequesting Phase = "requesting"
	PhaseStreaming  Phase = "streaming"
	PhaseDone       Phase = "done"
)

// Option configures a Client.
type Option func(*Client)

// WithRetryConfig sets the retry schedule for opening backend streams. The
// classification policy is always the request policy, so unknown failures
// are not retried.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) {
		c.retryCfg = cfg
	}
}

// WithRetryOptions passes options through to the retry executor.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *Client) {
		c.retryOpts = append(c.retryOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer sets the tracer used for per-call spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithTokenCounter sets the registry used to estimate usage when the
// backend reports none. A nil registry disables estimation.
func WithTokenCounter(r *tokens.Registry) Option {
	return func(c *Client) {
		c.tokens = r
	}
}

// SendOptions are the per-call options for SendChat.
type SendOptions struct {
	Model       string
	Tools       []domain.ToolDefinition
	ToolChoice  *domain.ToolChoice
	MaxTokens   int
	Temperature *float32

	// OnText is called synchronously with every text fragment as it
	// arrives. It must not block for long.
	OnText func(string)
}

// Client sends chat requests to one backend. It is safe for concurrent
// use; calls share no mutable state.
type Client struct {
	backend   backend.Backend
	retryCfg  retry.Config
	retryOpts []retry.Option
	executor  *retry.Executor
	logger    *slog.Logger
	tracer    trace.Tracer
	tokens    *tokens.Registry
}

// New creates a Client for b.
func New(b backend.Backend, opts ...Option) (*Client, error) {
	if b == nil {
		return nil, domain.ErrConfiguration("backend is required")
	}

	c := &Client{
		backend:  b,
		retryCfg: retry.DefaultConfig(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		tokens:   tokens.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := c.retryCfg
	cfg.Policy = classify.RequestPolicy
	custom := cfg.ShouldRetry
	cfg.ShouldRetry = func(err error) bool {
		if domain.IsKind(err, domain.KindConfiguration) || domain.IsKind(err, domain.KindValidation) {
			return false
		}
		if custom != nil {
			return custom(err)
		}
		return classify.RequestPolicy.IsRetryable(err)
	}

	executor, err := retry.New(cfg, append([]retry.Option{retry.WithLogger(c.logger)}, c.retryOpts...)...)
	if err != nil {
		return nil, domain.ErrConfiguration(err.Error()).WithCause(err).WithBackend(b.Name())
	}
	c.executor = executor
	return c, nil
}

// BackendName returns the name of the backend this client sends to.
func (c *Client) BackendName() string {
	return c.backend.Name()
}

// SendChat sends transcript to the backend and returns the assembled
// response. The transcript is only read.
//
// Opening the stream is retried according to the retry configuration.
// Failures after the stream opened are returned as stream errors and are
// never retried. Cancelling ctx abandons the call and releases the backend
// stream.
func (c *Client) SendChat(ctx context.Context, transcript []domain.Message, opts SendOptions) (*domain.AssembledResult, error) {
	start := time.Now()
	name := c.backend.Name()
	requestID := uuid.NewString()
	logger := c.logger.With(
		slog.String("request_id", requestID),
		slog.String("backend", name),
		slog.String("model", opts.Model),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.backend", name),
		attribute.String("chat.model", opts.Model),
		attribute.String("chat.request_id", requestID),
		attribute.Int("chat.messages", len(transcript)),
	))
	defer span.End()

	attempts := 0
	fail := func(phase Phase, err error) (*domain.AssembledResult, error) {
		span.SetAttributes(attribute.Int("chat.attempts", attempts))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(phase))
		logger.Error("chat request failed",
			slog.String("phase", string(phase)),
			slog.Int("attempts", attempts),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := validate(transcript, opts); err != nil {
		return fail(PhaseValidating, domain.ErrValidation(err).WithBackend(name))
	}

	req := backend.Request{
		Model:       opts.Model,
		Tools:       opts.Tools,
		ToolChoice:  opts.ToolChoice,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	logger.Debug("sending chat request",
		slog.Int("messages", len(transcript)),
		slog.Int("tools", len(opts.Tools)),
	)

	raw, err := retry.Do(ctx, c.executor, func(ctx context.Context, attempt int) (<-chan backend.Event, error) {
		attempts = attempt + 1
		span.AddEvent(string(PhaseRequesting), trace.WithAttributes(attribute.Int("chat.attempt", attempts)))
		return c.backend.CompletionStream(ctx, transcript, req)
	})
	if err != nil {
		return fail(PhaseRequesting, c.requestError(name, err))
	}

	span.AddEvent(string(PhaseStreaming))
	asm := stream.NewAssembler(opts.OnText)
	result, err := asm.Consume(ctx, stream.Normalize(ctx, backend.StreamFormat(c.backend), raw))
	if err != nil {
		return fail(PhaseStreaming, streamError(name, err))
	}

	usage := asm.Usage()
	if usage == nil && c.tokens != nil {
		usage = c.tokens.EstimateUsage(opts.Model, transcript, opts.Tools, result)
	}
	result.Metadata = &domain.ResponseMetadata{
		Backend:      name,
		Model:        opts.Model,
		RequestID:    requestID,
		FinishReason: asm.FinishReason(),
		Usage:        usage,
		Attempts:     attempts,
		Duration:     time.Since(start),
	}

	span.SetAttributes(
		attribute.Int("chat.attempts", attempts),
		attribute.Int("chat.tool_calls", len(result.ToolCalls)),
	)
	if usage != nil {
		span.SetAttributes(
			attribute.Int("chat.usage.prompt_tokens", usage.PromptTokens),
			attribute.Int("chat.usage.completion_tokens", usage.CompletionTokens),
		)
	}
	span.SetStatus(codes.Ok, string(PhaseDone))

	logger.Info("chat request completed",
		slog.Int("attempts", attempts),
		slog.Duration("duration", result.Metadata.Duration),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.String("finish_reason", result.Metadata.FinishReason),
	)

	return &result, nil
}

func validate(transcript []domain.Message, opts SendOptions) error {
	if len(transcript) == 0 {
		return domain.ErrEmptyTranscript
	}
	if strings.TrimSpace(opts.Model) == "" {
		return domain.ErrMissingModel
	}
	for i, m := range transcript {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
	}
	if tc := opts.ToolChoice; tc != nil && tc.Mode == domain.ToolChoiceFunction && tc.Name == "" {
		return errors.New("tool choice function requires a name")
	}
	return nil
}

// requestError classifies a failure to open the stream. Configuration
// errors keep their kind. Retryable mirrors the executor's decision.
func (c *Client) requestError(name string, err error) *domain.ProviderError {
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Kind == domain.KindConfiguration {
		cp := *pe
		cp.Backend = name
		return &cp
	}

	category := classify.Error(err)
	return domain.NewProviderError(domain.KindRequest, category, err.Error()).
		WithBackend(name).
		WithCause(err).
		WithRetryable(c.executor.Retryable(err))
}

func streamError(name string, err error) *domain.ProviderError {
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.Kind != domain.KindStream {
		pe = domain.ErrStream(err)
	}
	cp := *pe
	cp.Backend = name
	cp.Retryable = false
	return &cp
}
