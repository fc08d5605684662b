// Package classify maps backend failures onto coarse error categories and
// decides which categories are worth retrying.
//
// Classification is keyword based: the lower-cased error message is matched
// against fixed keyword lists in priority order. Backends that put status
// codes or well-known phrases into their error text classify precisely;
// anything else falls through to CategoryUnknown.
package classify

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

type rule struct {
	category domain.ErrorCategory
	keywords []string
}

// rules are checked in order; the first matching category wins.
var rules = []rule{
	{domain.CategoryNetwork, []string{
		"network", "econnrefused", "econnreset", "etimedout", "enotfound",
		"socket hang up", "connection refused", "connection reset",
		"no such host", "broken pipe", "dial tcp", "i/o timeout",
		"unexpected eof", "timed out", "timeout", "deadline exceeded",
	}},
	{domain.CategoryRateLimit, []string{
		"rate limit", "rate_limit", "ratelimit", "429", "too many requests", "quota",
	}},
	{domain.CategoryAuthentication, []string{
		"401", "403", "unauthorized", "forbidden", "invalid api key",
		"invalid x-api-key", "authentication", "permission denied", "permission_error",
	}},
	{domain.CategoryServerError, []string{
		"500", "502", "503", "504", "529", "internal server error",
		"bad gateway", "service unavailable", "gateway timeout", "overloaded", "api_error",
	}},
	{domain.CategoryClientError, []string{
		"400", "404", "413", "422", "bad request", "not found",
		"invalid_request", "invalid request", "unprocessable",
	}},
}

// Message classifies a raw error message.
func Message(msg string) domain.ErrorCategory {
	lower := strings.ToLower(msg)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return domain.CategoryUnknown
}

// Error classifies err. A ProviderError already in the chain keeps its
// category, network timeouts are recognized structurally, and everything
// else goes through Message.
func Error(err error) domain.ErrorCategory {
	if err == nil {
		return domain.CategoryUnknown
	}

	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Category != "" {
		return pe.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CategoryNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.CategoryNetwork
	}

	return Message(err.Error())
}

// Policy decides which categories are retryable.
type Policy struct {
	// RetryUnknown makes CategoryUnknown retryable.
	RetryUnknown bool
}

var (
	// RequestPolicy is used for chat requests: unknown failures are not
	// retried.
	RequestPolicy = Policy{RetryUnknown: false}

	// CommandPolicy is used for generic operations where an unknown failure
	// is more likely transient.
	CommandPolicy = Policy{RetryUnknown: true}
)

// Retryable reports whether a failure of category c should be retried.
func (p Policy) Retryable(c domain.ErrorCategory) bool {
	switch c {
	case domain.CategoryNetwork, domain.CategoryRateLimit, domain.CategoryServerError:
		return true
	case domain.CategoryUnknown:
		return p.RetryUnknown
	default:
		return false
	}
}

// IsRetryable classifies err and applies p.
func (p Policy) IsRetryable(err error) bool {
	return p.Retryable(Error(err))
}
