package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// --- Provider metadata tests ---

func TestOpenAIProvider_Metadata(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o", name: "openai"}
	if p.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", p.Name())
	}
	if p.DefaultModel() != "gpt-4o" {
		t.Errorf("expected model 'gpt-4o', got %q", p.DefaultModel())
	}
}

func TestOpenAIProvider_DefaultModelFallback(t *testing.T) {
	p := NewOpenAIProvider("test-key", "", "")
	if p.DefaultModel() != "gpt-4o-mini" {
		t.Errorf("expected fallback model gpt-4o-mini, got %q", p.DefaultModel())
	}
}

func TestAnthropicProvider_Metadata(t *testing.T) {
	p := NewAnthropicProvider("test-key", "")
	if p.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", p.Name())
	}
	if p.DefaultModel() != "claude-3-5-haiku-latest" {
		t.Errorf("expected default model, got %q", p.DefaultModel())
	}
}

// --- OpenAI provider name detection ---

func TestOpenAIProvider_NameDetection(t *testing.T) {
	tests := []struct {
		baseURL  string
		expected string
	}{
		{"", "openai"},
		{"https://api.deepseek.com/v1", "deepseek"},
		{"https://generativelanguage.googleapis.com/v1beta/openai/", "gemini"},
		{"https://api.moonshot.cn/v1", "kimi"},
		{"https://dashscope.aliyuncs.com/v1", "qwen"},
		{"https://api.groq.com/openai/v1", "groq"},
		{"http://localhost:11434/v1", "ollama"},
		{"https://custom.api.com/v1", "openai"},
	}
	for _, tt := range tests {
		p := NewOpenAIProvider("test-key", tt.baseURL, "test-model")
		if p.Name() != tt.expected {
			t.Errorf("baseURL=%q: expected name %q, got %q", tt.baseURL, tt.expected, p.Name())
		}
	}
}

func TestSchemaInstruction(t *testing.T) {
	s := schemaInstruction(&ResponseSchema{
		Name:   "decision_step",
		Schema: map[string]any{"type": "object"},
	})
	if !strings.Contains(s, "decision_step") || !strings.Contains(s, `{"type":"object"}`) {
		t.Errorf("unexpected instruction: %q", s)
	}
}

// --- Collect ---

func feed(events ...Event) <-chan Event {
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestCollect(t *testing.T) {
	res := Collect(feed(
		Event{Type: EventTextDelta, TextDelta: `{"summary":`},
		Event{Type: EventTextDelta, TextDelta: `"x"}`},
		Event{Type: EventDone, Usage: &Usage{InputTokens: 10, OutputTokens: 4}},
	))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Text != `{"summary":"x"}` {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Usage.Total() != 14 {
		t.Errorf("expected 14 tokens, got %d", res.Usage.Total())
	}
}

func TestCollect_KeepsFirstError(t *testing.T) {
	first := errors.New("first")
	res := Collect(feed(
		Event{Type: EventTextDelta, TextDelta: "partial"},
		Event{Type: EventError, Error: first},
		Event{Type: EventError, Error: errors.New("second")},
	))
	if !errors.Is(res.Err, first) {
		t.Errorf("expected first error, got %v", res.Err)
	}
	if res.Text != "partial" {
		t.Errorf("expected partial text to survive, got %q", res.Text)
	}
}

// --- Token estimation ---

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"źdźbło", 2}, // runes, not bytes
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateUsage_NilCounter(t *testing.T) {
	u := EstimateUsage(nil, "12345678", "1234")
	if u.InputTokens != 2 || u.OutputTokens != 1 {
		t.Errorf("unexpected usage %+v", u)
	}
}

// --- Instrumented ---

type stubProvider struct {
	events []Event
	err    error
}

func (s *stubProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	return feed(s.events...), nil
}
func (s *stubProvider) Name() string         { return "stub" }
func (s *stubProvider) DefaultModel() string { return "stub-model" }

func TestInstrumented_PassesEventsThrough(t *testing.T) {
	before := testutil.ToFloat64(modelTokensTotal.WithLabelValues("stub", "stub-model", "output"))

	p := Instrument(&stubProvider{events: []Event{
		{Type: EventTextDelta, TextDelta: "hi"},
		{Type: EventDone, Usage: &Usage{InputTokens: 3, OutputTokens: 7}},
	}})
	ch, err := p.Chat(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := Collect(ch)
	if res.Text != "hi" || res.Usage.Total() != 10 {
		t.Errorf("unexpected result %+v", res)
	}

	after := testutil.ToFloat64(modelTokensTotal.WithLabelValues("stub", "stub-model", "output"))
	if after-before != 7 {
		t.Errorf("expected 7 output tokens recorded, got %v", after-before)
	}
}

func TestInstrumented_ChatError(t *testing.T) {
	before := testutil.ToFloat64(modelRequestsTotal.WithLabelValues("stub", "stub-model", "error"))

	p := Instrument(&stubProvider{err: errors.New("refused")})
	if _, err := p.Chat(context.Background(), &ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}

	after := testutil.ToFloat64(modelRequestsTotal.WithLabelValues("stub", "stub-model", "error"))
	if after-before != 1 {
		t.Errorf("expected one error request recorded, got %v", after-before)
	}
}
