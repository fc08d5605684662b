package stream

import (
	"context"
	"sort"
	"strings"

	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// toolSlot accumulates the fragments sharing one position.
type toolSlot struct {
	id      string
	name    string
	args    strings.Builder
	hasArgs bool
}

func (s *toolSlot) complete() bool {
	return s.id != "" && s.name != "" && s.hasArgs
}

// Assembler folds canonical chunks into an AssembledResult. An Assembler
// serves a single stream and is not safe for concurrent use.
type Assembler struct {
	onText func(string)

	text         strings.Builder
	slots        map[int]*toolSlot
	usage        *domain.Usage
	finishReason string
}

// NewAssembler returns an Assembler. onText, if non-nil, is called
// synchronously with every text fragment as it arrives.
func NewAssembler(onText func(string)) *Assembler {
	return &Assembler{
		onText: onText,
		slots:  make(map[int]*toolSlot),
	}
}

// Add applies one chunk.
func (a *Assembler) Add(c domain.Chunk) {
	if c.Text != "" {
		a.text.WriteString(c.Text)
		if a.onText != nil {
			a.onText(c.Text)
		}
	}

	for _, f := range c.ToolCalls {
		s, ok := a.slots[f.Position]
		if !ok {
			s = &toolSlot{}
			a.slots[f.Position] = s
		}
		if f.ID != "" {
			s.id = f.ID
		}
		// Last non-empty name wins; names are never concatenated.
		if f.Name != "" {
			s.name = f.Name
		}
		if f.Arguments != nil {
			s.args.WriteString(*f.Arguments)
			s.hasArgs = true
		}
	}

	if c.Usage != nil {
		a.usage = mergeUsage(a.usage, c.Usage)
	}
	if c.FinishReason != "" {
		a.finishReason = c.FinishReason
	}
}

// Result returns the assembled text and the complete tool calls ordered by
// position. Slots missing an id, a name or arguments are dropped.
func (a *Assembler) Result() domain.AssembledResult {
	positions := make([]int, 0, len(a.slots))
	for p := range a.slots {
		positions = append(positions, p)
	}
	sort.Ints(positions)

	var calls []domain.ToolCall
	for _, p := range positions {
		s := a.slots[p]
		if !s.complete() {
			continue
		}
		calls = append(calls, domain.ToolCall{
			ID:   s.id,
			Type: "function",
			Function: domain.ToolCallFunction{
				Name:      s.name,
				Arguments: s.args.String(),
			},
		})
	}

	return domain.AssembledResult{
		Text:      a.text.String(),
		ToolCalls: calls,
	}
}

// Usage returns the token usage reported by the stream, if any.
func (a *Assembler) Usage() *domain.Usage {
	return a.usage
}

// FinishReason returns the last finish reason reported by the stream.
func (a *Assembler) FinishReason() string {
	return a.finishReason
}

// Consume reads in until it is closed and returns the assembled result. A
// failed element or cancellation of ctx discards everything accumulated so
// far and returns a stream error.
func (a *Assembler) Consume(ctx context.Context, in <-chan Result) (domain.AssembledResult, error) {
	for {
		select {
		case <-ctx.Done():
			a.reset()
			return domain.AssembledResult{}, domain.ErrStream(ctx.Err())
		case r, ok := <-in:
			if !ok {
				// Normalize closes its output when ctx is cancelled, so a
				// closed channel is only a clean end if ctx is still live.
				if err := ctx.Err(); err != nil {
					a.reset()
					return domain.AssembledResult{}, domain.ErrStream(err)
				}
				return a.Result(), nil
			}
			if r.Err != nil {
				a.reset()
				return domain.AssembledResult{}, domain.ErrStream(r.Err)
			}
			a.Add(r.Chunk)
		}
	}
}

func (a *Assembler) reset() {
	a.text.Reset()
	a.slots = make(map[int]*toolSlot)
	a.usage = nil
	a.finishReason = ""
}

// mergeUsage folds a usage report into the running total. Backends report
// prompt and completion counts in separate events, so non-zero fields
// overwrite and the total is derived when missing.
func mergeUsage(cur, next *domain.Usage) *domain.Usage {
	var u domain.Usage
	if cur != nil {
		u = *cur
	}
	if next.PromptTokens != 0 {
		u.PromptTokens = next.PromptTokens
	}
	if next.CompletionTokens != 0 {
		u.CompletionTokens = next.CompletionTokens
	}
	if next.TotalTokens != 0 {
		u.TotalTokens = next.TotalTokens
	} else {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	u.Estimated = next.Estimated
	return &u
}
