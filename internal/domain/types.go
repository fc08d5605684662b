// Package domain holds the canonical types shared by every backend:
// conversation messages, incremental chunks, assembled results and the
// classified error taxonomy.
package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry of a conversation transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a fully assembled request from the model to run a local action.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // always "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the function name and its raw JSON arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef is the callable part of a ToolDefinition.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolChoiceMode controls whether and how the model should call tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	// ToolChoiceFunction forces the function named in ToolChoice.Name.
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice is the backend-neutral tool selection directive.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Chunk is the canonical unit of incremental output. Every backend's
// native stream is translated into a sequence of chunks.
type Chunk struct {
	// Text is the incremental text fragment; empty means none.
	Text string

	// ToolCalls holds partial tool-call fragments keyed by Position.
	ToolCalls []ToolCallFragment

	// Usage and FinishReason are optional metadata some backends report.
	Usage        *Usage
	FinishReason string
}

// TextChunk returns a chunk carrying only a text fragment.
func TextChunk(text string) Chunk {
	return Chunk{Text: text}
}

// ToolCallFragment is a partial tool call. Fragments sharing a Position
// belong to the same call.
type ToolCallFragment struct {
	Position int
	ID       string
	Name     string
	// Arguments is nil when the fragment carries no arguments field.
	Arguments *string
}

// Args returns a pointer to s for use as ToolCallFragment.Arguments.
func Args(s string) *string {
	return &s
}

// ChunkSource is implemented by native stream elements that already map
// one-to-one onto the canonical chunk shape.
type ChunkSource interface {
	CanonicalChunk() Chunk
}

// Usage reports token consumption for a single call.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// AssembledResult is the complete response to one chat call.
type AssembledResult struct {
	Text      string
	ToolCalls []ToolCall
	Metadata  *ResponseMetadata
}

// ResponseMetadata describes how a result was produced.
type ResponseMetadata struct {
	Backend      string
	Model        string
	RequestID    string
	FinishReason string
	Usage        *Usage
	Attempts     int
	Duration     time.Duration
}
