// Package tokens counts and estimates tokens for backends that do not
// report usage.
package tokens

import (
	"strings"

	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// Counter counts tokens for the models it supports.
type Counter interface {
	CountText(model, text string) (int, error)
	CountMessages(model string, transcript []domain.Message, tools []domain.ToolDefinition) (int, error)
	SupportsModel(model string) bool
}

// Registry picks a counter by model and falls back to an Estimator.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the tiktoken counter registered and
// the character estimator as fallback.
func NewRegistry() *Registry {
	r := &Registry{fallback: NewEstimator()}
	r.Register(NewTiktokenCounter())
	return r
}

// Register adds a counter. Counters are consulted in registration order.
func (r *Registry) Register(c Counter) {
	r.counters = append(r.counters, c)
}

// SetFallback sets the counter used when no registered counter matches.
func (r *Registry) SetFallback(c Counter) {
	r.fallback = c
}

// CounterFor returns the counter for model.
func (r *Registry) CounterFor(model string) Counter {
	for _, c := range r.counters {
		if c.SupportsModel(model) {
			return c
		}
	}
	return r.fallback
}

// EstimateUsage estimates usage for a completed exchange. The result is
// marked Estimated.
func (r *Registry) EstimateUsage(model string, transcript []domain.Message, tools []domain.ToolDefinition, result domain.AssembledResult) *domain.Usage {
	c := r.CounterFor(model)
	prompt, err := c.CountMessages(model, transcript, tools)
	if err != nil {
		prompt, _ = r.fallback.CountMessages(model, transcript, tools)
	}

	var out strings.Builder
	out.WriteString(result.Text)
	for _, tc := range result.ToolCalls {
		out.WriteString(tc.Function.Name)
		out.WriteString(tc.Function.Arguments)
	}
	completion, err := c.CountText(model, out.String())
	if err != nil {
		completion, _ = r.fallback.CountText(model, out.String())
	}

	return &domain.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

func (e *Estimator) CountText(_ string, text string) (int, error) {
	return int(float64(len(text)) / e.CharsPerToken), nil
}

func (e *Estimator) CountMessages(_ string, transcript []domain.Message, tools []domain.ToolDefinition) (int, error) {
	totalChars := 0
	for _, msg := range transcript {
		totalChars += len(msg.Role) + len(msg.Content)
		for _, tc := range msg.ToolCalls {
			totalChars += len(tc.Function.Name) + len(tc.Function.Arguments)
		}
		// role tokens and separators
		totalChars += 4
	}
	for _, tool := range tools {
		totalChars += len(tool.Function.Name) + len(tool.Function.Description)
		totalChars += 50 // schema
	}
	return int(float64(totalChars) / e.CharsPerToken), nil
}

// SupportsModel returns true; the estimator accepts every model.
func (e *Estimator) SupportsModel(string) bool {
	return true
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
