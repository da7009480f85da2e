// Package decision turns problem descriptions and option selections into
// decision steps and reports, under a per-session token budget.
package decision

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/iad/internal/provider"
	"github.com/apexion-ai/iad/internal/session"
)

var errEmptyReply = errors.New("model returned an empty reply")

// StepRequest is the input of one step generation.
type StepRequest struct {
	UserText             string
	PreviousRestatement  string
	SupplementaryContext string
}

// StepGenerator produces the next decision step with a structured model call.
type StepGenerator struct {
	provider provider.Provider
	settings Settings
	count    provider.TokenCounter
	log      zerolog.Logger
}

// NewStepGenerator creates a generator over p.
func NewStepGenerator(p provider.Provider, s Settings, count provider.TokenCounter, log zerolog.Logger) *StepGenerator {
	return &StepGenerator{provider: p, settings: s, count: count, log: log.With().Str("component", "steps").Logger()}
}

// Generate returns the next step. Budget blocks and empty input are errors and
// cost nothing. A failed model call is not an error: it yields a degraded step.
// Reported (or estimated) usage is always recorded.
func (g *StepGenerator) Generate(ctx context.Context, budget *session.TokenBudget, req StepRequest) (*session.Step, error) {
	if strings.TrimSpace(req.UserText) == "" {
		return nil, ErrNoInput
	}
	if err := admit(budget, true); err != nil {
		return nil, err
	}

	lo, hi := g.settings.optionRange()
	chatReq := &provider.ChatRequest{
		Model:          g.settings.Model,
		SystemPrompt:   stepSystemPrompt(g.settings),
		Messages:       []provider.Message{provider.UserMessage(stepUserPrompt(req))},
		MaxTokens:      g.settings.MaxTokens,
		Temperature:    provider.Float(g.settings.Temperature),
		ResponseSchema: stepSchema(lo, hi),
	}

	text, usage, err := complete(ctx, g.provider, g.count, chatReq)
	budget.Record(usage.Total())
	if err != nil {
		g.log.Warn().Err(err).Int("tokens", usage.Total()).Msg("step generation failed")
		return session.DegradedStep(), nil
	}

	summary, options, err := parseStepReply(text, lo, hi)
	if err != nil {
		g.log.Warn().Err(err).Str("reply", truncate(text, 200)).Msg("rejected step reply")
		return session.DegradedStep(), nil
	}

	g.log.Debug().Int("options", len(options)).Int("tokens", usage.Total()).Int("used", budget.Used()).Msg("step generated")
	return session.NewStep(summary, options), nil
}

// Admit applies the hard check, then the soft check when needSoft is set.
// It returns a *BudgetError when a limit blocks the call.
func Admit(b *session.TokenBudget, needSoft bool) error {
	return admit(b, needSoft)
}

func admit(b *session.TokenBudget, needSoft bool) error {
	if b.CheckHard() == session.Blocked {
		return &BudgetError{Used: b.Used(), Limit: b.HardLimit, Err: ErrHardLimit}
	}
	if needSoft && b.CheckSoft() == session.Blocked {
		return &BudgetError{Used: b.Used(), Limit: b.SoftLimit, Err: ErrSoftLimit}
	}
	return nil
}

// complete runs one model call to the end. Usage is estimated from the
// prompt and reply when the provider reports none.
func complete(ctx context.Context, p provider.Provider, count provider.TokenCounter, req *provider.ChatRequest) (string, provider.Usage, error) {
	ch, err := p.Chat(ctx, req)
	if err != nil {
		return "", provider.Usage{}, err
	}
	res := provider.Collect(ch)

	usage := res.Usage
	if usage.Total() == 0 && res.Text != "" {
		usage = provider.EstimateUsage(count, promptText(req), res.Text)
	}
	if res.Err != nil {
		return res.Text, usage, res.Err
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", usage, errEmptyReply
	}
	return res.Text, usage, nil
}

func promptText(req *provider.ChatRequest) string {
	var sb strings.Builder
	sb.WriteString(req.SystemPrompt)
	for _, m := range req.Messages {
		sb.WriteString("\n")
		sb.WriteString(m.Text)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
