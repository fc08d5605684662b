package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// feed returns a closed channel holding results.
func feed(results ...Result) <-chan Result {
	ch := make(chan Result, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	return ch
}

func chunks(cs ...domain.Chunk) <-chan Result {
	rs := make([]Result, len(cs))
	for i, c := range cs {
		rs[i] = Result{Chunk: c}
	}
	return feed(rs...)
}

func frag(pos int, id, name string, args *string) domain.Chunk {
	return domain.Chunk{ToolCalls: []domain.ToolCallFragment{{Position: pos, ID: id, Name: name, Arguments: args}}}
}

func TestAssembleText(t *testing.T) {
	var seen []string
	got, err := assemble(context.Background(), chunks(
		domain.TextChunk("Hel"),
		domain.Chunk{},
		domain.TextChunk("lo"),
		domain.TextChunk(", world"),
	), func(s string) { seen = append(seen, s) })
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}

	if got.Text != "Hello, world" {
		t.Errorf("Text = %q, want %q", got.Text, "Hello, world")
	}
	if diff := cmp.Diff([]string{"Hel", "lo", ", world"}, seen); diff != "" {
		t.Errorf("onText fragments mismatch (-want +got):\n%s", diff)
	}
	if len(got.ToolCalls) != 0 {
		t.Errorf("ToolCalls = %v, want none", got.ToolCalls)
	}
}

func TestAssembleToolCalls(t *testing.T) {
	tests := []struct {
		name   string
		chunks []domain.Chunk
		want   []domain.ToolCall
	}{
		{
			name: "arguments concatenate in arrival order",
			chunks: []domain.Chunk{
				frag(0, "call_1", "lookup", domain.Args("")),
				frag(0, "", "", domain.Args(`{"q":`)),
				frag(0, "", "", domain.Args(`"x"}`)),
			},
			want: []domain.ToolCall{{
				ID: "call_1", Type: "function",
				Function: domain.ToolCallFunction{Name: "lookup", Arguments: `{"q":"x"}`},
			}},
		},
		{
			name: "id and name arrive late",
			chunks: []domain.Chunk{
				frag(0, "", "", domain.Args(`{}`)),
				frag(0, "call_9", "", nil),
				frag(0, "", "ping", nil),
			},
			want: []domain.ToolCall{{
				ID: "call_9", Type: "function",
				Function: domain.ToolCallFunction{Name: "ping", Arguments: `{}`},
			}},
		},
		{
			name: "later name overwrites",
			chunks: []domain.Chunk{
				frag(0, "call_1", "look", domain.Args("{}")),
				frag(0, "", "lookup", nil),
			},
			want: []domain.ToolCall{{
				ID: "call_1", Type: "function",
				Function: domain.ToolCallFunction{Name: "lookup", Arguments: "{}"},
			}},
		},
		{
			name: "incomplete slots are dropped",
			chunks: []domain.Chunk{
				frag(0, "call_1", "lookup", domain.Args("{}")),
				frag(1, "call_2", "", domain.Args("{}")),
				frag(2, "", "orphan", domain.Args("{}")),
				frag(3, "call_4", "no_args", nil),
			},
			want: []domain.ToolCall{{
				ID: "call_1", Type: "function",
				Function: domain.ToolCallFunction{Name: "lookup", Arguments: "{}"},
			}},
		},
		{
			name: "interleaved positions ordered by position",
			chunks: []domain.Chunk{
				frag(2, "call_c", "third", domain.Args("")),
				frag(0, "call_a", "first", domain.Args("")),
				frag(2, "", "", domain.Args(`{"n":3}`)),
				frag(0, "", "", domain.Args(`{"n":1}`)),
			},
			want: []domain.ToolCall{
				{ID: "call_a", Type: "function", Function: domain.ToolCallFunction{Name: "first", Arguments: `{"n":1}`}},
				{ID: "call_c", Type: "function", Function: domain.ToolCallFunction{Name: "third", Arguments: `{"n":3}`}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := assemble(context.Background(), chunks(tt.chunks...), nil)
			if err != nil {
				t.Fatalf("assemble() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got.ToolCalls); diff != "" {
				t.Errorf("ToolCalls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssembleTextAndToolCall(t *testing.T) {
	var seen []string
	got, err := assemble(context.Background(), chunks(
		domain.TextChunk("Hi"),
		domain.TextChunk(" there"),
		frag(0, "a1", "lookup", domain.Args("")),
		frag(0, "", "", domain.Args(`{"q":"x"}`)),
	), func(s string) { seen = append(seen, s) })
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}

	want := domain.AssembledResult{
		Text: "Hi there",
		ToolCalls: []domain.ToolCall{{
			ID: "a1", Type: "function",
			Function: domain.ToolCallFunction{Name: "lookup", Arguments: `{"q":"x"}`},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Hi", " there"}, seen); diff != "" {
		t.Errorf("onText fragments mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleStreamError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	_, err := assemble(context.Background(), feed(
		Result{Chunk: domain.TextChunk("partial")},
		Result{Err: boom},
		Result{Chunk: domain.TextChunk("never")},
	), nil)

	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapping %v", err, boom)
	}
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if pe.Kind != domain.KindStream || pe.Category != domain.CategoryStream || pe.Retryable {
		t.Errorf("unexpected classification: %+v", pe)
	}
}

func TestAssembleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan Result) // never written
	_, err := assemble(ctx, in, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if !domain.IsKind(err, domain.KindStream) {
		t.Errorf("expected stream error kind, got %v", err)
	}
}

func TestAssemblerMetadata(t *testing.T) {
	a := NewAssembler(nil)
	a.Add(domain.Chunk{Usage: &domain.Usage{PromptTokens: 12, CompletionTokens: 1}})
	a.Add(domain.TextChunk("ok"))
	a.Add(domain.Chunk{Usage: &domain.Usage{CompletionTokens: 9}, FinishReason: "end_turn"})

	want := &domain.Usage{PromptTokens: 12, CompletionTokens: 9, TotalTokens: 21}
	if diff := cmp.Diff(want, a.Usage()); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}
	if a.FinishReason() != "end_turn" {
		t.Errorf("FinishReason() = %q, want end_turn", a.FinishReason())
	}
}

func assemble(ctx context.Context, in <-chan Result, onText func(string)) (domain.AssembledResult, error) {
	return NewAssembler(onText).Consume(ctx, in)
}
