package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/apexion-ai/iad/internal/provider"
	"github.com/apexion-ai/iad/internal/session"
)

var (
	sessionTokensUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iad_session_tokens_used",
		Help: "Cumulative tokens used by the current session.",
	})
	budgetBlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iad_budget_blocks_total",
			Help: "Requests refused by the token budget, by limit (soft|hard).",
		},
		[]string{"limit"},
	)
)

// Engine is the session state machine. Each user action is one transition
// (Generate, Select, Report, Reset) that returns a snapshot of the session
// afterwards. Only one transition runs at a time; a second one started
// concurrently fails with ErrBusy instead of waiting.
type Engine struct {
	mu   sync.Mutex
	busy atomic.Bool

	sess      *session.Session
	settings  Settings
	steps     *StepGenerator
	reconcile *Reconciler
	reports   *ReportGenerator
	log       zerolog.Logger
}

// NewEngine wires the generators around sess.
func NewEngine(sess *session.Session, p provider.Provider, s Settings, count provider.TokenCounter, log zerolog.Logger) *Engine {
	steps := NewStepGenerator(p, s, count, log)
	return &Engine{
		sess:      sess,
		settings:  s,
		steps:     steps,
		reconcile: NewReconciler(steps),
		reports:   NewReportGenerator(p, s, count, log),
		log:       log.With().Str("session", sess.ID).Logger(),
	}
}

func (e *Engine) begin() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	e.mu.Lock()
	return nil
}

func (e *Engine) end(err error) {
	var be *BudgetError
	if errors.As(err, &be) {
		limit := "soft"
		if be.Fatal() {
			limit = "hard"
		}
		budgetBlocksTotal.WithLabelValues(limit).Inc()
		e.log.Info().Str("limit", limit).Int("used", be.Used).Msg("budget blocked request")
	}
	sessionTokensUsed.Set(float64(e.sess.Budget.Used()))
	e.mu.Unlock()
	e.busy.Store(false)
}

// Busy reports whether a transition is in flight.
func (e *Engine) Busy() bool { return e.busy.Load() }

// SessionID returns the ID of the underlying session.
func (e *Engine) SessionID() string { return e.sess.ID }

// Snapshot returns the current state without a transition.
func (e *Engine) Snapshot() session.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Snapshot()
}

// Generate starts from free text: a new problem when the session has no
// usable step (empty, or only failed attempts), or a follow-up building on
// the latest usable step otherwise.
func (e *Engine) Generate(ctx context.Context, text string) (snap session.Snapshot, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return e.Snapshot(), ErrNoInput
	}
	if limit := e.settings.MaxInputChars; limit > 0 {
		if n := utf8.RuneCountInString(text); n > limit {
			return e.Snapshot(), fmt.Errorf("%w: %d characters (max %d)", ErrInputTooLong, n, limit)
		}
	}

	if err := e.begin(); err != nil {
		return session.Snapshot{}, err
	}
	defer func() { e.end(err) }()

	req := StepRequest{UserText: text, SupplementaryContext: e.sess.Context}
	last := e.sess.Tree.LastUsable()
	if last != nil {
		req.PreviousRestatement = last.Restatement
	}
	step, err := e.steps.Generate(ctx, e.sess.Budget, req)
	if err != nil {
		return e.sess.Snapshot(), err
	}
	// Without a usable step there is no problem yet: the text starts over.
	if last == nil {
		e.sess.Tree.Clear()
	}
	e.sess.Tree.Append(step)
	e.sess.Touch()
	return e.sess.Snapshot(), nil
}

// Select applies an option selection at stepIndex. An empty ids slice
// changes nothing.
func (e *Engine) Select(ctx context.Context, stepIndex int, ids []string) (snap session.Snapshot, err error) {
	if err := e.begin(); err != nil {
		return session.Snapshot{}, err
	}
	defer func() { e.end(err) }()

	if _, err := e.reconcile.Reconcile(ctx, e.sess, stepIndex, ids); err != nil {
		return e.sess.Snapshot(), err
	}
	return e.sess.Snapshot(), nil
}

// Report writes a report over the whole history.
func (e *Engine) Report(ctx context.Context) (report string, snap session.Snapshot, err error) {
	if err := e.begin(); err != nil {
		return "", session.Snapshot{}, err
	}
	defer func() { e.end(err) }()

	report, err = e.reports.Generate(ctx, e.sess.Budget, ReportInputFrom(e.sess.Tree))
	return report, e.sess.Snapshot(), err
}

// Reset clears the session.
func (e *Engine) Reset() (snap session.Snapshot, err error) {
	if err := e.begin(); err != nil {
		return session.Snapshot{}, err
	}
	defer func() { e.end(nil) }()

	e.sess.Reset()
	e.log.Info().Msg("session reset")
	return e.sess.Snapshot(), nil
}

// AddContext attaches supplementary context used by later steps.
func (e *Engine) AddContext(text string) (session.Snapshot, error) {
	if err := e.begin(); err != nil {
		return session.Snapshot{}, err
	}
	defer e.end(nil)

	e.sess.AddContext(strings.TrimSpace(text))
	return e.sess.Snapshot(), nil
}

// ClearContext drops all supplementary context.
func (e *Engine) ClearContext() (session.Snapshot, error) {
	if err := e.begin(); err != nil {
		return session.Snapshot{}, err
	}
	defer e.end(nil)

	e.sess.Context = ""
	e.sess.Touch()
	return e.sess.Snapshot(), nil
}

// Spend runs fn as a transition with the session budget, for model calls
// made outside the engine (research summaries). fn should call Admit first.
func (e *Engine) Spend(fn func(b *session.TokenBudget) error) (err error) {
	if err := e.begin(); err != nil {
		return err
	}
	defer func() { e.end(err) }()
	return fn(e.sess.Budget)
}
