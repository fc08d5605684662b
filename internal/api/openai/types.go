// Package openai provides the wire types and streaming HTTP client for the
// OpenAI Chat Completions API and compatible servers.
package openai

import (
	"encoding/json"
	"fmt"

	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// ChatCompletionRequest represents an OpenAI chat completion request.
type ChatCompletionRequest struct {
	Model         string                  `json:"model"`
	Messages      []ChatCompletionMessage `json:"messages"`
	MaxTokens     int                     `json:"max_tokens,omitempty"`
	Temperature   *float32                `json:"temperature,omitempty"`
	Stream        bool                    `json:"stream,omitempty"`
	StreamOptions *StreamOptions          `json:"stream_options,omitempty"`
	Tools         []Tool                  `json:"tools,omitempty"`
	ToolChoice    any                     `json:"tool_choice,omitempty"`
}

// StreamOptions configures streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatCompletionMessage represents a message in the conversation.
type ChatCompletionMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool represents a tool definition.
type Tool struct {
	Type     string       `json:"type"`
	Function FunctionTool `json:"function"`
}

// FunctionTool represents a function tool definition.
type FunctionTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolChoiceFunction forces a specific function.
type ToolChoiceFunction struct {
	Type     string             `json:"type"`
	Function ToolChoiceFuncName `json:"function"`
}

// ToolChoiceFuncName names the forced function.
type ToolChoiceFuncName struct {
	Name string `json:"name"`
}

// ToolCall represents a tool call in an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a function call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Streaming types

// ChatCompletionChunk represents a streaming chunk.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice represents a choice in a streaming chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta represents the delta content in a streaming chunk.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallChunk `json:"tool_calls,omitempty"`
}

// ToolCallChunk represents a partial tool call in streaming.
type ToolCallChunk struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function *FunctionCallChunk `json:"function,omitempty"`
}

// FunctionCallChunk represents a partial function call in streaming.
// Arguments is a pointer so an absent field can be told apart from "".
type FunctionCallChunk struct {
	Name      string  `json:"name,omitempty"`
	Arguments *string `json:"arguments,omitempty"`
}

// Usage represents token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CanonicalChunk maps the first choice of the chunk onto the canonical
// chunk shape. The OpenAI delta format is the canonical one, so this is a
// field-by-field copy.
func (c *ChatCompletionChunk) CanonicalChunk() domain.Chunk {
	var out domain.Chunk
	if c.Usage != nil {
		out.Usage = &domain.Usage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		}
	}
	if len(c.Choices) == 0 {
		return out
	}

	choice := c.Choices[0]
	if choice.Delta.Content != nil {
		out.Text = *choice.Delta.Content
	}
	if choice.FinishReason != nil {
		out.FinishReason = *choice.FinishReason
	}
	for _, tc := range choice.Delta.ToolCalls {
		frag := domain.ToolCallFragment{Position: tc.Index, ID: tc.ID}
		if tc.Function != nil {
			frag.Name = tc.Function.Name
			frag.Arguments = tc.Function.Arguments
		}
		out.ToolCalls = append(out.ToolCalls, frag)
	}
	return out
}

// ErrorResponse represents an OpenAI API error response.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError represents an OpenAI API error. StatusCode is filled in by the
// client from the HTTP response.
type APIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Param      any    `json:"param,omitempty"`
	Code       any    `json:"code,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("openai: status %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
}

// ParseErrorResponse attempts to parse an error response from JSON.
func ParseErrorResponse(data []byte) (*APIError, error) {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return nil, err
	}
	if errResp.Error.Message == "" {
		return nil, nil
	}
	return &errResp.Error, nil
}
