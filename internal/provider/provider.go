// Package provider defines the unified interface and shared types for all LLM providers.
// Each provider adapter (openai.go, anthropic.go) implements the Provider interface,
// normalizing vendor-specific streaming responses into a unified Event sequence.
package provider

import (
	"context"
	"strings"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single text message in the request.
type Message struct {
	Role Role
	Text string
}

// UserMessage is shorthand for a user-role message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// ── Request types ────────────────────────────────────────────────────────────

// ResponseSchema asks the provider for a JSON reply matching Schema.
// Adapters with native structured output enforce it server side; the others
// carry it as an instruction in the system prompt.
type ResponseSchema struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ChatRequest is the unified request format sent to a provider.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int

	// Temperature is nil when the provider default should be used.
	Temperature *float64

	// ResponseSchema switches the call to structured output.
	ResponseSchema *ResponseSchema
}

// Float returns a pointer to v, for optional request parameters.
func Float(v float64) *float64 { return &v }

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the LLM.
	EventTextDelta EventType = iota

	// EventDone: end of this message turn, includes token usage.
	EventDone

	// EventError: an error occurred.
	EventError
)

// Event is the unified streaming event emitted by a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input + output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM providers.
// Implementors are responsible for:
// 1. Converting the unified ChatRequest into the provider's API request format
// 2. Converting the provider's streaming response into a unified Event sequence
// 3. Reporting token usage on EventDone
type Provider interface {
	// Chat initiates a streaming conversation.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The caller must fully consume the channel to avoid goroutine leaks.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai", "deepseek".
	Name() string

	// DefaultModel returns the default model.
	DefaultModel() string
}

// Result is a fully collected reply.
type Result struct {
	Text  string
	Usage Usage

	// Err is the first stream error, if any. Text and Usage hold whatever
	// arrived before it.
	Err error
}

// Collect drains ch into a Result. It always reads the channel to the end.
func Collect(ch <-chan Event) Result {
	var (
		res Result
		sb  strings.Builder
	)
	for ev := range ch {
		switch ev.Type {
		case EventTextDelta:
			sb.WriteString(ev.TextDelta)
		case EventDone:
			if ev.Usage != nil {
				res.Usage.InputTokens += ev.Usage.InputTokens
				res.Usage.OutputTokens += ev.Usage.OutputTokens
			}
		case EventError:
			if res.Err == nil {
				res.Err = ev.Error
			}
		}
	}
	res.Text = sb.String()
	return res
}
