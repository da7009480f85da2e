package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/apexion-ai/iad/internal/provider"
)

// maxParallelSummaries bounds concurrent summary calls.
const maxParallelSummaries = 4

const summarizeSystemPrompt = `You condense source material for someone making a decision.
Keep facts, numbers, constraints, deadlines and trade-offs that bear on the decision.
Drop navigation text, boilerplate and anything unrelated to the focus.
Reply with plain prose or short bullet points, at most 200 words.`

// Source is a piece of raw text to be summarized.
type Source struct {
	Title string
	URL   string // empty for local documents
	Text  string
}

// Summary is the condensed form of a Source. Err is set when the model
// call for that source failed; other sources are unaffected.
type Summary struct {
	Source Source
	Text   string
	Err    error
}

// Summarizer condenses sources with one model call each.
type Summarizer struct {
	Provider provider.Provider
	Model    string // optional: empty = provider default
	Count    provider.TokenCounter
	MaxChars int // input clip per source; 0 = no clip
	Log      zerolog.Logger
}

// Summarize condenses a single source with respect to focus (the problem
// being decided, may be empty).
func (s *Summarizer) Summarize(ctx context.Context, src Source, focus string) (string, provider.Usage, error) {
	var prompt strings.Builder
	if focus != "" {
		fmt.Fprintf(&prompt, "Decision being considered: %s\n\n", focus)
	}
	fmt.Fprintf(&prompt, "Source: %s\n", src.Title)
	if src.URL != "" {
		fmt.Fprintf(&prompt, "URL: %s\n", src.URL)
	}
	prompt.WriteString("\n")
	prompt.WriteString(Clip(src.Text, s.MaxChars))

	model := s.Model
	if model == "" {
		model = s.Provider.DefaultModel()
	}
	req := &provider.ChatRequest{
		Model:        model,
		Messages:     []provider.Message{provider.UserMessage(prompt.String())},
		SystemPrompt: summarizeSystemPrompt,
		MaxTokens:    1024,
		Temperature:  provider.Float(0),
	}

	events, err := s.Provider.Chat(ctx, req)
	if err != nil {
		return "", provider.Usage{}, fmt.Errorf("summarize %s: %w", src.Title, err)
	}
	res := provider.Collect(events)
	usage := res.Usage
	if usage.Total() == 0 && res.Text != "" {
		usage = provider.EstimateUsage(s.Count, summarizeSystemPrompt+"\n"+prompt.String(), res.Text)
	}
	if res.Err != nil {
		return "", usage, fmt.Errorf("summarize %s: %w", src.Title, res.Err)
	}
	summary := strings.TrimSpace(res.Text)
	if summary == "" {
		return "", usage, errors.New("summarizer returned empty summary")
	}
	return summary, usage, nil
}

// SummarizeAll condenses sources in parallel and returns the summaries in
// input order together with the total usage of every call made.
func (s *Summarizer) SummarizeAll(ctx context.Context, sources []Source, focus string) ([]Summary, provider.Usage) {
	out := make([]Summary, len(sources))
	var (
		mu    sync.Mutex
		total provider.Usage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSummaries)
	for i, src := range sources {
		g.Go(func() error {
			text, usage, err := s.Summarize(gctx, src, focus)
			out[i] = Summary{Source: src, Text: text, Err: err}

			mu.Lock()
			total.InputTokens += usage.InputTokens
			total.OutputTokens += usage.OutputTokens
			mu.Unlock()

			if err != nil {
				s.Log.Warn().Err(err).Str("source", src.Title).Msg("summary failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, total
}
