package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Script is a non-interactive session: context first, then the problem,
// then one selection round per Picks entry, then an optional report.
type Script struct {
	Prompt   string
	Docs     []string
	Searches []string
	// Picks holds option lists for successive rounds, e.g. {"2", "1,3"}.
	// Each round selects on the latest step.
	Picks  []string
	Report bool
}

// ErrRunFailed is returned by RunOnce when any scripted action failed. The
// failure itself has already been shown through the IO.
var ErrRunFailed = errors.New("run failed")

// RunOnce executes s and returns when it finishes or ctx is cancelled.
func (a *Agent) RunOnce(ctx context.Context, s Script) error {
	a.events.Log(EventSessionStart, map[string]any{"session_id": a.engine.SessionID(), "mode": "run"})
	defer a.events.Log(EventSessionEnd, nil)

	if strings.TrimSpace(s.Prompt) == "" {
		return fmt.Errorf("a problem description is required")
	}
	rounds := make([][]string, 0, len(s.Picks))
	for _, p := range s.Picks {
		ids, err := ParseOptionIDs(strings.Fields(p))
		if err != nil {
			return fmt.Errorf("--pick %q: %w", p, err)
		}
		rounds = append(rounds, ids)
	}

	for _, path := range s.Docs {
		if !a.AddDocument(ctx, path) {
			return ErrRunFailed
		}
	}
	for _, q := range s.Searches {
		if !a.AddSearch(ctx, q) {
			return ErrRunFailed
		}
	}

	if !a.Generate(ctx, s.Prompt) {
		return ErrRunFailed
	}
	for _, ids := range rounds {
		last := len(a.engine.Snapshot().Steps) - 1
		if !a.Select(ctx, last, ids) {
			return ErrRunFailed
		}
	}
	if s.Report {
		if _, ok := a.Report(ctx); !ok {
			return ErrRunFailed
		}
	}
	return ctx.Err()
}
