package domain

import (
	"errors"
	"fmt"
)

// ErrorCategory is the coarse classification of a failure, used to decide
// whether an operation is worth retrying.
type ErrorCategory string

const (
	// CategoryNetwork covers connection failures, resets and timeouts.
	CategoryNetwork ErrorCategory = "network"

	// CategoryRateLimit indicates the backend throttled the caller.
	CategoryRateLimit ErrorCategory = "rate_limit"

	// CategoryAuthentication indicates invalid or insufficient credentials.
	CategoryAuthentication ErrorCategory = "authentication"

	// CategoryServerError indicates a 5xx-style backend failure.
	CategoryServerError ErrorCategory = "server_error"

	// CategoryClientError indicates a malformed or rejected request.
	CategoryClientError ErrorCategory = "client_error"

	// CategoryUnknown is the fallback when nothing matched.
	CategoryUnknown ErrorCategory = "unknown"

	// CategoryStream marks a failure after streaming began.
	CategoryStream ErrorCategory = "stream"
)

// ErrorKind identifies which phase of a chat call produced an error.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindRequest       ErrorKind = "request"
	KindStream        ErrorKind = "stream"
	KindProvider      ErrorKind = "provider"
)

var (
	// ErrEmptyTranscript is returned when a chat call has no messages.
	ErrEmptyTranscript = errors.New("transcript is empty")

	// ErrMissingModel is returned when no model identifier was supplied.
	ErrMissingModel = errors.New("model is required")

	// ErrIncompatibleChunk is returned when a native stream element cannot
	// be translated into a canonical chunk.
	ErrIncompatibleChunk = errors.New("incompatible stream chunk")
)

// ProviderError is the classified error surfaced by the chat facade.
type ProviderError struct {
	Kind      ErrorKind
	Category  ErrorCategory
	Message   string
	Backend   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Backend != "" {
		return fmt.Sprintf("%s error (%s, %s): %s", e.Kind, e.Backend, e.Category, msg)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Kind, e.Category, msg)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a ProviderError of the given kind and category.
func NewProviderError(kind ErrorKind, category ErrorCategory, message string) *ProviderError {
	return &ProviderError{
		Kind:     kind,
		Category: category,
		Message:  message,
	}
}

// WithBackend sets the backend name.
func (e *ProviderError) WithBackend(name string) *ProviderError {
	e.Backend = name
	return e
}

// WithCause attaches the underlying error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// WithRetryable sets the retryable flag.
func (e *ProviderError) WithRetryable(retryable bool) *ProviderError {
	e.Retryable = retryable
	return e
}

// ErrValidation creates a validation error wrapping cause.
func ErrValidation(cause error) *ProviderError {
	return NewProviderError(KindValidation, CategoryClientError, cause.Error()).WithCause(cause)
}

// ErrConfiguration creates a non-retryable configuration error.
func ErrConfiguration(message string) *ProviderError {
	return NewProviderError(KindConfiguration, CategoryClientError, message)
}

// ErrStream creates a stream error wrapping cause. Stream errors are never
// retryable.
func ErrStream(cause error) *ProviderError {
	msg := "stream failed"
	if cause != nil {
		msg = cause.Error()
	}
	return NewProviderError(KindStream, CategoryStream, msg).WithCause(cause)
}

// IsKind reports whether err carries a ProviderError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}
