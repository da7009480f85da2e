package decision

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/iad/internal/provider"
	"github.com/apexion-ai/iad/internal/session"
)

// reply is one scripted model answer.
type reply struct {
	text      string
	usage     provider.Usage
	streamErr error
	chatErr   error
}

func stepJSON(summary string, options ...string) string {
	b, _ := json.Marshal(map[string]any{"summary": summary, "options": options})
	return string(b)
}

func okStep(tokens int, summary string, options ...string) reply {
	return reply{text: stepJSON(summary, options...), usage: provider.Usage{InputTokens: tokens - tokens/4, OutputTokens: tokens / 4}}
}

// scriptedProvider answers calls from a queue and records every request.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []reply
	requests []*provider.ChatRequest

	// gate, when set, blocks Chat until closed.
	gate    chan struct{}
	entered chan struct{}
}

func (s *scriptedProvider) Chat(ctx context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	if s.entered != nil {
		close(s.entered)
		s.entered = nil
	}
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	var r reply
	if len(s.replies) > 0 {
		r = s.replies[0]
		s.replies = s.replies[1:]
	}
	s.mu.Unlock()

	if r.chatErr != nil {
		return nil, r.chatErr
	}
	ch := make(chan provider.Event, 4)
	if r.text != "" {
		ch <- provider.Event{Type: provider.EventTextDelta, TextDelta: r.text}
	}
	if r.streamErr != nil {
		ch <- provider.Event{Type: provider.EventError, Error: r.streamErr}
	} else {
		u := r.usage
		ch <- provider.Event{Type: provider.EventDone, Usage: &u}
	}
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedProvider) lastRequest() *provider.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func (s *scriptedProvider) Name() string         { return "scripted" }
func (s *scriptedProvider) DefaultModel() string { return "scripted-model" }

func newSession(soft, hard int) *session.Session {
	s, err := session.New(soft, hard)
	if err != nil {
		panic(err)
	}
	return s
}

func newEngine(p provider.Provider, soft, hard int) (*Engine, *session.Session) {
	sess := newSession(soft, hard)
	return NewEngine(sess, p, DefaultSettings(), provider.EstimateTokens, zerolog.Nop()), sess
}

func usageOf(output int) provider.Usage {
	return provider.Usage{OutputTokens: output}
}
