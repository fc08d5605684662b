package anthropic

import (
	"encoding/json"
	"fmt"

	anthropicapi "github.com/tjfontaine/polyglot-chat/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// Translate converts one Anthropic stream event into canonical chunks.
// Content block indexes become tool-call positions: content_block_start
// opens a slot with the id and name, and each input_json_delta appends to
// its arguments.
func Translate(native any) ([]domain.Chunk, error) {
	var ev anthropicapi.StreamEventResult
	switch v := native.(type) {
	case anthropicapi.StreamEventResult:
		ev = v
	case *anthropicapi.StreamEventResult:
		if v == nil {
			return nil, fmt.Errorf("%w: nil anthropic event", domain.ErrIncompatibleChunk)
		}
		ev = *v
	default:
		return nil, fmt.Errorf("%w: %T is not an anthropic event", domain.ErrIncompatibleChunk, native)
	}

	if ev.Err != nil {
		return nil, ev.Err
	}

	eventType := ev.EventType
	if eventType == "" {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(ev.Data, &head); err != nil {
			return nil, fmt.Errorf("failed to parse event type: %w", err)
		}
		eventType = head.Type
	}

	switch eventType {
	case anthropicapi.EventMessageStart:
		var e anthropicapi.MessageStartEvent
		if err := ev.Parse(&e); err != nil {
			return nil, err
		}
		u := e.Message.Usage
		return []domain.Chunk{{Usage: &domain.Usage{
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
		}}}, nil

	case anthropicapi.EventContentBlockStart:
		var e anthropicapi.ContentBlockStartEvent
		if err := ev.Parse(&e); err != nil {
			return nil, err
		}
		switch e.ContentBlock.Type {
		case anthropicapi.BlockToolUse:
			return []domain.Chunk{{ToolCalls: []domain.ToolCallFragment{{
				Position:  e.Index,
				ID:        e.ContentBlock.ID,
				Name:      e.ContentBlock.Name,
				Arguments: domain.Args(""),
			}}}}, nil
		case anthropicapi.BlockText:
			if e.ContentBlock.Text != "" {
				return []domain.Chunk{domain.TextChunk(e.ContentBlock.Text)}, nil
			}
		}
		return nil, nil

	case anthropicapi.EventContentBlockDelta:
		var e anthropicapi.ContentBlockDeltaEvent
		if err := ev.Parse(&e); err != nil {
			return nil, err
		}
		switch e.Delta.Type {
		case anthropicapi.DeltaText:
			return []domain.Chunk{domain.TextChunk(e.Delta.Text)}, nil
		case anthropicapi.DeltaInputJSON:
			return []domain.Chunk{{ToolCalls: []domain.ToolCallFragment{{
				Position:  e.Index,
				Arguments: domain.Args(e.Delta.PartialJSON),
			}}}}, nil
		}
		return nil, nil

	case anthropicapi.EventMessageDelta:
		var e anthropicapi.MessageDeltaEvent
		if err := ev.Parse(&e); err != nil {
			return nil, err
		}
		c := domain.Chunk{FinishReason: e.Delta.StopReason}
		if e.Usage != nil {
			c.Usage = &domain.Usage{CompletionTokens: e.Usage.OutputTokens}
		}
		return []domain.Chunk{c}, nil

	case anthropicapi.EventError:
		apiErr, err := anthropicapi.ParseErrorResponse(ev.Data)
		if err != nil || apiErr == nil {
			return nil, fmt.Errorf("anthropic stream error: %s", string(ev.Data))
		}
		return nil, apiErr

	default:
		// ping, content_block_stop, message_stop and event types added later.
		return nil, nil
	}
}
