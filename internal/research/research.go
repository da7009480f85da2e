package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/apexion-ai/iad/internal/config"
	"github.com/apexion-ai/iad/internal/provider"
)

// Researcher turns documents and web queries into context text.
type Researcher struct {
	Searcher   *Searcher
	Fetcher    *Fetcher
	Summarizer *Summarizer
	MaxPages   int
	MaxChars   int
	log        zerolog.Logger
}

// New builds a Researcher from configuration.
func New(cfg *config.Config, p provider.Provider, count provider.TokenCounter, log zerolog.Logger) *Researcher {
	log = log.With().Str("component", "research").Logger()
	return &Researcher{
		Searcher: NewSearcher(cfg.Web.SearchProvider, cfg.Web.SearchAPIKey),
		Fetcher:  NewFetcher(),
		Summarizer: &Summarizer{
			Provider: p,
			Model:    cfg.Model,
			Count:    count,
			MaxChars: cfg.Documents.MaxChars,
			Log:      log,
		},
		MaxPages: cfg.Web.MaxPages,
		MaxChars: cfg.Documents.MaxChars,
		log:      log,
	}
}

// Findings is the outcome of one research action.
type Findings struct {
	Summaries []Summary
	Usage     provider.Usage
}

// Context renders successful summaries as supplementary context.
func (f Findings) Context() string {
	var parts []string
	for _, s := range f.Summaries {
		if s.Err != nil || s.Text == "" {
			continue
		}
		label := s.Source.Title
		if s.Source.URL != "" {
			label = fmt.Sprintf("%s (%s)", s.Source.Title, s.Source.URL)
		}
		parts = append(parts, fmt.Sprintf("%s:\n%s", label, s.Text))
	}
	return strings.Join(parts, "\n\n")
}

// Document summarizes a local document. A document with no extractable
// text yields empty Findings and no model call.
func (r *Researcher) Document(ctx context.Context, path, focus string) (Findings, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return Findings{}, err
	}
	if doc.Text == "" {
		r.log.Warn().Str("document", doc.Name).Msg("no text extracted")
		return Findings{}, nil
	}
	src := Source{Title: "Document " + doc.Name, Text: Clip(doc.Text, r.MaxChars)}
	summaries, usage := r.Summarizer.SummarizeAll(ctx, []Source{src}, focus)
	if summaries[0].Err != nil {
		return Findings{Usage: usage}, summaries[0].Err
	}
	return Findings{Summaries: summaries, Usage: usage}, nil
}

// Web searches for query, fetches the top pages and summarizes each one.
// Pages that fail to download fall back to the search snippet.
func (r *Researcher) Web(ctx context.Context, query, focus string) (Findings, error) {
	n := r.MaxPages
	if n <= 0 {
		n = 3
	}
	results, err := r.Searcher.Search(ctx, query, n)
	if err != nil {
		return Findings{}, err
	}
	if len(results) == 0 {
		return Findings{}, nil
	}

	sources := make([]Source, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSummaries)
	for i, res := range results {
		g.Go(func() error {
			text, err := r.Fetcher.Fetch(gctx, res.URL)
			if err != nil {
				r.log.Debug().Err(err).Str("url", res.URL).Msg("fetch failed, using snippet")
				text = res.Snippet
			}
			sources[i] = Source{Title: res.Title, URL: res.URL, Text: text}
			return nil
		})
	}
	_ = g.Wait()

	var usable []Source
	for _, s := range sources {
		if strings.TrimSpace(s.Text) != "" {
			usable = append(usable, s)
		}
	}
	summaries, usage := r.Summarizer.SummarizeAll(ctx, usable, focus)
	return Findings{Summaries: summaries, Usage: usage}, nil
}
