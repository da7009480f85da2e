package decision

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/iad/internal/provider"
	"github.com/apexion-ai/iad/internal/session"
)

// ReportInput is the decision history a report is written from.
type ReportInput struct {
	Problem      string
	Steps        []string
	FinalOptions []string
}

// ReportInputFrom reads the report input from a tree.
func ReportInputFrom(t *session.Tree) ReportInput {
	return ReportInput{
		Problem:      t.Problem(),
		Steps:        t.StepsTaken(),
		FinalOptions: t.FinalOptions(),
	}
}

// ReportGenerator writes a free-text summary report of a session.
type ReportGenerator struct {
	provider provider.Provider
	settings Settings
	count    provider.TokenCounter
	log      zerolog.Logger
}

// NewReportGenerator creates a report generator over p.
func NewReportGenerator(p provider.Provider, s Settings, count provider.TokenCounter, log zerolog.Logger) *ReportGenerator {
	return &ReportGenerator{provider: p, settings: s, count: count, log: log.With().Str("component", "report").Logger()}
}

// Generate writes the report. Only the hard limit applies. A failed call
// returns a *ModelError; usage is recorded either way.
func (g *ReportGenerator) Generate(ctx context.Context, budget *session.TokenBudget, in ReportInput) (string, error) {
	if strings.TrimSpace(in.Problem) == "" {
		return "", ErrNoHistory
	}
	if err := admit(budget, false); err != nil {
		return "", err
	}

	req := &provider.ChatRequest{
		Model:        g.settings.Model,
		SystemPrompt: reportSystemPrompt(g.settings),
		Messages:     []provider.Message{provider.UserMessage(reportUserPrompt(in))},
		MaxTokens:    g.settings.MaxTokens,
		Temperature:  provider.Float(g.settings.ReportTemperature),
	}

	text, usage, err := complete(ctx, g.provider, g.count, req)
	budget.Record(usage.Total())
	if err != nil {
		g.log.Warn().Err(err).Msg("report generation failed")
		return "", &ModelError{Op: "report generation", Err: err}
	}
	g.log.Debug().Int("chars", len([]rune(text))).Int("tokens", usage.Total()).Msg("report generated")
	return strings.TrimSpace(text), nil
}
