// Package agent runs the interactive decision session: it reads user input,
// dispatches slash commands and drives the decision engine, rendering every
// result through a tui.IO.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/iad/internal/decision"
	"github.com/apexion-ai/iad/internal/research"
	"github.com/apexion-ai/iad/internal/session"
	"github.com/apexion-ai/iad/internal/tui"
)

// Agent is the REPL around a decision engine.
type Agent struct {
	engine   *decision.Engine
	research *research.Researcher // nil disables /doc and /search
	io       tui.IO
	events   *EventLogger
	log      zerolog.Logger

	maxInputChars int
}

// Options configures an Agent.
type Options struct {
	Research      *research.Researcher
	Events        *EventLogger
	MaxInputChars int
}

// New creates an Agent.
func New(engine *decision.Engine, ui tui.IO, log zerolog.Logger, opts Options) *Agent {
	return &Agent{
		engine:        engine,
		research:      opts.Research,
		io:            ui,
		events:        opts.Events,
		log:           log.With().Str("component", "agent").Logger(),
		maxInputChars: opts.MaxInputChars,
	}
}

// Run reads input until EOF, /quit or ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.events.Log(EventSessionStart, map[string]any{"session_id": a.engine.SessionID()})
	defer a.events.Log(EventSessionEnd, nil)

	a.updateBudget(a.engine.Snapshot())

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := a.io.ReadInput()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := a.handleSlashCommand(ctx, input); quit {
				return nil
			}
			continue
		}

		a.io.UserMessage(input)
		a.Generate(ctx, input)
	}
}

// Generate turns free text into the next step.
func (a *Agent) Generate(ctx context.Context, text string) bool {
	var snap session.Snapshot
	err := a.call(ctx, "next step", func(ctx context.Context) error {
		var err error
		snap, err = a.engine.Generate(ctx, text)
		return err
	})
	if err != nil {
		a.report(err, snap)
		return false
	}
	a.showLast(snap)
	return true
}

// Select follows ids at stepIndex.
func (a *Agent) Select(ctx context.Context, stepIndex int, ids []string) bool {
	var snap session.Snapshot
	err := a.call(ctx, "next step", func(ctx context.Context) error {
		var err error
		snap, err = a.engine.Select(ctx, stepIndex, ids)
		return err
	})
	if err != nil {
		a.report(err, snap)
		return false
	}
	a.events.Log(EventOptionSelected, map[string]any{"step": stepIndex, "options": ids})
	a.showLast(snap)
	return true
}

// Report writes and shows the final report.
func (a *Agent) Report(ctx context.Context) (string, bool) {
	var (
		text string
		snap session.Snapshot
	)
	err := a.call(ctx, "report", func(ctx context.Context) error {
		var err error
		text, snap, err = a.engine.Report(ctx)
		return err
	})
	if err != nil {
		a.report(err, snap)
		return "", false
	}
	a.events.Log(EventReport, map[string]any{"chars": len([]rune(text))})
	a.io.ShowReport(text)
	a.updateBudget(snap)
	return text, true
}

// AddDocument summarizes the document at path into the session context.
func (a *Agent) AddDocument(ctx context.Context, path string) bool {
	if a.research == nil {
		a.io.SystemMessage("Document research is not available.")
		return false
	}
	return a.gather(ctx, "document "+path, func(ctx context.Context, focus string) (research.Findings, error) {
		return a.research.Document(ctx, path, focus)
	})
}

// AddSearch summarizes web results for query into the session context.
func (a *Agent) AddSearch(ctx context.Context, query string) bool {
	if a.research == nil {
		a.io.SystemMessage("Web research is not available.")
		return false
	}
	return a.gather(ctx, "search "+query, func(ctx context.Context, focus string) (research.Findings, error) {
		return a.research.Web(ctx, query, focus)
	})
}

// gather runs a research action under the session budget and attaches its
// findings as context. Usage is recorded once after all calls finish.
func (a *Agent) gather(ctx context.Context, what string, fn func(ctx context.Context, focus string) (research.Findings, error)) bool {
	focus := a.engine.Snapshot().Problem()

	var findings research.Findings
	err := a.call(ctx, "summaries", func(ctx context.Context) error {
		return a.engine.Spend(func(b *session.TokenBudget) error {
			if err := decision.Admit(b, true); err != nil {
				return err
			}
			var err error
			findings, err = fn(ctx, focus)
			b.Record(findings.Usage.Total())
			return err
		})
	})
	if err != nil {
		a.report(err, a.engine.Snapshot())
		return false
	}

	text := findings.Context()
	if text == "" {
		a.io.SystemMessage(fmt.Sprintf("Nothing usable found for %s.", what))
		a.updateBudget(a.engine.Snapshot())
		return false
	}
	snap, err := a.engine.AddContext(text)
	if err != nil {
		a.report(err, snap)
		return false
	}
	a.events.Log(EventContextAdded, map[string]any{"source": what, "sources": len(findings.Summaries), "tokens": findings.Usage.Total()})
	a.io.SystemMessage(fmt.Sprintf("Added context from %s:\n%s", what, text))
	a.updateBudget(snap)
	return true
}

// call runs fn with a cancellable context and a thinking indicator.
func (a *Agent) call(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if lc, ok := a.io.(tui.LoopCanceller); ok {
		lc.SetLoopCancel(cancel)
		defer lc.ClearLoopCancel()
	}

	a.io.ThinkingStart(label)
	defer a.io.ThinkingDone()
	return fn(callCtx)
}

func (a *Agent) showLast(snap session.Snapshot) {
	if n := len(snap.Steps); n > 0 {
		last := snap.Steps[n-1]
		a.io.ShowStep(n-1, last)
		a.events.Log(EventStepGenerated, map[string]any{
			"index":       n - 1,
			"restatement": last.Restatement,
			"options":     len(last.Options),
			"degraded":    last.Degraded,
		})
		if last.Degraded {
			if n == 1 {
				a.io.Error("The model did not return a usable step. Describe the problem again to retry.")
			} else {
				a.io.Error("The model did not return a usable step. Select an option at an earlier step to retry.")
			}
		}
	}
	a.updateBudget(snap)
}

func (a *Agent) updateBudget(snap session.Snapshot) {
	if snap.SessionID == "" {
		return
	}
	a.io.SetBudget(snap.TokensUsed, snap.SoftLimit, snap.HardLimit)
}

// report shows err to the user in the form that fits its kind.
func (a *Agent) report(err error, snap session.Snapshot) {
	a.updateBudget(snap)

	var be *decision.BudgetError
	switch {
	case errors.As(err, &be):
		limit := "soft"
		if be.Fatal() {
			limit = "hard"
		}
		a.events.Log(EventBudgetBlocked, map[string]any{"limit": limit, "used": be.Used})
		if be.Fatal() {
			a.io.Error(fmt.Sprintf("Hard token limit reached (%d/%d). Use /reset to start a new session.", be.Used, be.Limit))
		} else {
			a.io.SystemMessage(fmt.Sprintf("Token limit reached (%d/%d). No new steps; /report still works, /reset starts over.", be.Used, be.Limit))
		}
		return
	case errors.Is(err, decision.ErrNoInput):
		a.io.SystemMessage("Describe the problem first.")
		return
	case errors.Is(err, decision.ErrInputTooLong):
		a.io.SystemMessage(fmt.Sprintf("That is too long. Keep the problem under %d characters.", a.maxInputChars))
		return
	case errors.Is(err, decision.ErrNoHistory):
		a.io.SystemMessage("Nothing to report yet. Describe a problem first.")
		return
	case errors.Is(err, decision.ErrBusy):
		a.io.SystemMessage("Still working on the previous request.")
		return
	case errors.Is(err, context.Canceled):
		a.io.SystemMessage("Cancelled.")
		return
	case errors.Is(err, session.ErrStepOutOfRange), errors.Is(err, session.ErrUnknownOption):
		a.io.Error(err.Error() + ". Use /tree to see steps and options.")
		return
	}

	a.log.Warn().Err(err).Msg("request failed")
	a.events.Log(EventError, map[string]any{"error": err.Error()})
	a.io.Error(err.Error())
}
