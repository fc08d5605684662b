package langchain

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/goleak"

	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeModel replays stream pieces through the streaming callback and then
// returns resp or err.
type fakeModel struct {
	stream []string
	resp   *llms.ContentResponse
	err    error

	gotMessages []llms.MessageContent
	gotOptions  llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.gotMessages = messages
	for _, opt := range options {
		opt(&f.gotOptions)
	}
	for _, s := range f.stream {
		if f.gotOptions.StreamingFunc == nil {
			break
		}
		if err := f.gotOptions.StreamingFunc(ctx, []byte(s)); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func drain(t *testing.T, ch <-chan backend.Event) ([]domain.Chunk, error) {
	t.Helper()
	var chunks []domain.Chunk
	for ev := range ch {
		if ev.Err != nil {
			return chunks, ev.Err
		}
		c, ok := ev.Data.(domain.Chunk)
		if !ok {
			t.Fatalf("event data is %T, want domain.Chunk", ev.Data)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func TestCompletionStreamText(t *testing.T) {
	m := &fakeModel{
		stream: []string{"Hi", " there"},
		resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			Content:        "Hi there",
			StopReason:     "stop",
			GenerationInfo: map[string]any{"PromptTokens": 5, "CompletionTokens": int32(2)},
		}}},
	}
	b := New("ollama", m)

	ch, err := b.CompletionStream(context.Background(),
		[]domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		backend.Request{Model: "llama3.1"},
	)
	if err != nil {
		t.Fatalf("CompletionStream() error = %v", err)
	}
	got, err := drain(t, ch)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}

	want := []domain.Chunk{
		domain.TextChunk("Hi"),
		domain.TextChunk(" there"),
		{FinishReason: "stop", Usage: &domain.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
	if m.gotOptions.Model != "llama3.1" {
		t.Errorf("model option = %q, want llama3.1", m.gotOptions.Model)
	}
}

func TestCompletionStreamToolCalls(t *testing.T) {
	m := &fakeModel{
		resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{
				{ID: "call_a", Type: "function", FunctionCall: &llms.FunctionCall{Name: "lookup", Arguments: `{"q":"x"}`}},
				{Type: "function", FunctionCall: &llms.FunctionCall{Name: "noop"}},
			},
		}}},
	}
	b := New("gemini", m, WithIDGenerator(func() string { return "call_generated" }))

	ch, err := b.CompletionStream(context.Background(),
		[]domain.Message{{Role: domain.RoleUser, Content: "look it up"}},
		backend.Request{},
	)
	if err != nil {
		t.Fatalf("CompletionStream() error = %v", err)
	}
	got, err := drain(t, ch)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}

	want := []domain.Chunk{{ToolCalls: []domain.ToolCallFragment{
		{Position: 0, ID: "call_a", Name: "lookup", Arguments: domain.Args(`{"q":"x"}`)},
		{Position: 1, ID: "call_generated", Name: "noop", Arguments: domain.Args("{}")},
	}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestCompletionStreamErrors(t *testing.T) {
	t.Run("error before output is returned directly", func(t *testing.T) {
		boom := errors.New("429 Too Many Requests")
		b := New("ollama", &fakeModel{err: boom})

		ch, err := b.CompletionStream(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, backend.Request{})
		if !errors.Is(err, boom) {
			t.Fatalf("error = %v, want %v", err, boom)
		}
		if ch != nil {
			t.Error("expected nil channel on error")
		}
	})

	t.Run("error after output travels on the channel", func(t *testing.T) {
		boom := errors.New("connection reset")
		b := New("ollama", &fakeModel{stream: []string{"partial"}, err: boom})

		ch, err := b.CompletionStream(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, backend.Request{})
		if err != nil {
			t.Fatalf("CompletionStream() error = %v", err)
		}
		got, err := drain(t, ch)
		if !errors.Is(err, boom) {
			t.Errorf("stream error = %v, want %v", err, boom)
		}
		if len(got) != 1 || got[0].Text != "partial" {
			t.Errorf("chunks before error = %+v", got)
		}
	})

	t.Run("cancellation stops the producer", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		b := New("ollama", &fakeModel{stream: []string{"a", "b", "c"}})

		ch, err := b.CompletionStream(ctx, []domain.Message{{Role: domain.RoleUser, Content: "x"}}, backend.Request{})
		if err != nil {
			t.Fatalf("CompletionStream() error = %v", err)
		}
		<-ch
		cancel()
		for range ch {
		}
	})
}

func TestConvertTranscript(t *testing.T) {
	got := convertTranscript([]domain.Message{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "weather?"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{
			ID: "call_1", Type: "function",
			Function: domain.ToolCallFunction{Name: "get_weather", Arguments: `{"city":"Paris"}`},
		}}},
		{Role: domain.RoleTool, ToolCallID: "call_1", Name: "get_weather", Content: "sunny"},
		{Role: domain.RoleAssistant},
	})

	want := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "be brief"),
		llms.TextParts(llms.ChatMessageTypeHuman, "weather?"),
		{Role: llms.ChatMessageTypeAI, Parts: []llms.ContentPart{llms.ToolCall{
			ID: "call_1", Type: "function",
			FunctionCall: &llms.FunctionCall{Name: "get_weather", Arguments: `{"city":"Paris"}`},
		}}},
		{Role: llms.ChatMessageTypeTool, Parts: []llms.ContentPart{llms.ToolCallResponse{
			ToolCallID: "call_1", Name: "get_weather", Content: "sunny",
		}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("convertTranscript mismatch (-want +got):\n%s", diff)
	}
}

func TestCallOptions(t *testing.T) {
	temp := float32(0.5)
	var o llms.CallOptions
	for _, opt := range callOptions(backend.Request{
		Model:       "gemini-1.5-flash",
		MaxTokens:   256,
		Temperature: &temp,
		Tools:       []domain.ToolDefinition{{Type: "function", Function: domain.FunctionDef{Name: "lookup"}}},
		ToolChoice:  &domain.ToolChoice{Mode: domain.ToolChoiceFunction, Name: "lookup"},
	}) {
		opt(&o)
	}

	if o.Model != "gemini-1.5-flash" || o.MaxTokens != 256 || o.Temperature != 0.5 {
		t.Errorf("unexpected options: model=%q max=%d temp=%v", o.Model, o.MaxTokens, o.Temperature)
	}
	if len(o.Tools) != 1 || o.Tools[0].Function.Name != "lookup" {
		t.Errorf("tools = %+v", o.Tools)
	}
	choice, ok := o.ToolChoice.(llms.ToolChoice)
	if !ok || choice.Function == nil || choice.Function.Name != "lookup" {
		t.Errorf("tool choice = %#v", o.ToolChoice)
	}
}

func TestUsageFrom(t *testing.T) {
	tests := []struct {
		name string
		info map[string]any
		want *domain.Usage
	}{
		{"missing", map[string]any{}, nil},
		{"int with total", map[string]any{"PromptTokens": 3, "CompletionTokens": 4, "TotalTokens": 7}, &domain.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}},
		{"int32 derives total", map[string]any{"PromptTokens": int32(3), "CompletionTokens": int32(1)}, &domain.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}},
		{"float64", map[string]any{"CompletionTokens": float64(9)}, &domain.Usage{CompletionTokens: 9, TotalTokens: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, usageFrom(tt.info)); diff != "" {
				t.Errorf("usageFrom mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
