package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/apexion-ai/iad/internal/session"
	"github.com/apexion-ai/iad/internal/tui"
)

const aboutText = `iad is an interactive decision assistant.

Describe a problem in a sentence. The model restates it and offers a few
different next moves (from conservative to unconventional). Pick one or
more options to go a step further, or go back and pick differently at an
earlier step: everything after that step is replaced. When the path looks
right, /report writes a summary of the whole decision.

Documents (/doc) and web findings (/search) are summarized into context
that every later step takes into account. Token use is capped per session.`

const helpText = `Available commands:
  <text>                   Describe a problem (or add detail to the latest step)
  /pick <n>...             Follow option(s) n of the latest step (e.g. /pick 2 3)
  /select <step> <n>...    Follow option(s) at an earlier step, replacing what came after
  /report                  Write the final report
  /tree                    Show every step and the chosen options
  /tokens                  Show token usage and limits
  /doc <path>              Summarize a document (.pdf, .docx, .txt, .md) into context
  /search <query>          Summarize web results into context
  /context [clear]         Show or clear the supplementary context
  /events [n]              Show recent session events
  /reset                   Start a new session
  /about                   What this tool does
  /help                    Show this help message
  /quit                    Exit`

// handleSlashCommand processes built-in commands. Returns true to quit.
func (a *Agent) handleSlashCommand(ctx context.Context, input string) bool {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/?":
		a.io.SystemMessage(helpText)
	case "/about":
		a.io.SystemMessage(aboutText)
	case "/pick":
		a.handlePick(ctx, arg)
	case "/select":
		a.handleSelect(ctx, arg)
	case "/report":
		a.Report(ctx)
	case "/tree":
		a.io.SystemMessage(tui.FormatTree(a.engine.Snapshot().Steps))
	case "/tokens":
		snap := a.engine.Snapshot()
		a.io.SystemMessage(tui.FormatBudget(snap.TokensUsed, snap.SoftLimit, snap.HardLimit))
	case "/reset":
		a.handleReset()
	case "/doc":
		if arg == "" {
			a.io.SystemMessage("Usage: /doc <path>")
			return false
		}
		a.AddDocument(ctx, arg)
	case "/search":
		if arg == "" {
			a.io.SystemMessage("Usage: /search <query>")
			return false
		}
		a.AddSearch(ctx, arg)
	case "/context":
		a.handleContext(arg)
	case "/events":
		a.handleEvents(arg)
	default:
		a.io.SystemMessage(fmt.Sprintf("Unknown command %s. /help lists commands.", cmd))
	}
	return false
}

func (a *Agent) handlePick(ctx context.Context, arg string) {
	steps := a.engine.Snapshot().Steps
	if len(steps) == 0 {
		a.io.SystemMessage("Describe the problem first.")
		return
	}
	ids, err := ParseOptionIDs(strings.Fields(arg))
	if err != nil {
		a.io.SystemMessage(err.Error() + "\nUsage: /pick <n>...")
		return
	}
	a.Select(ctx, len(steps)-1, ids)
}

func (a *Agent) handleSelect(ctx context.Context, arg string) {
	fields := strings.Fields(arg)
	if len(fields) < 2 {
		a.io.SystemMessage("Usage: /select <step> <n>...")
		return
	}
	step, err := strconv.Atoi(fields[0])
	if err != nil || step < 0 {
		a.io.SystemMessage(fmt.Sprintf("Invalid step %q.\nUsage: /select <step> <n>...", fields[0]))
		return
	}
	ids, err := ParseOptionIDs(fields[1:])
	if err != nil {
		a.io.SystemMessage(err.Error() + "\nUsage: /select <step> <n>...")
		return
	}
	a.Select(ctx, step, ids)
}

func (a *Agent) handleReset() {
	snap, err := a.engine.Reset()
	if err != nil {
		a.report(err, snap)
		return
	}
	a.events.Log(EventSessionReset, nil)
	a.io.SystemMessage("Session cleared. Describe a new problem to begin.")
	a.updateBudget(snap)
}

func (a *Agent) handleContext(arg string) {
	if arg == "clear" {
		if _, err := a.engine.ClearContext(); err != nil {
			a.report(err, session.Snapshot{})
			return
		}
		a.io.SystemMessage("Context cleared.")
		return
	}
	if text := a.engine.Snapshot().Context; text != "" {
		a.io.SystemMessage("Supplementary context:\n" + text)
	} else {
		a.io.SystemMessage("No supplementary context. Add some with /doc or /search.")
	}
}

func (a *Agent) handleEvents(arg string) {
	if a.events == nil {
		a.io.SystemMessage("Event log is disabled.")
		return
	}
	n := 20
	if arg != "" {
		if v, err := strconv.Atoi(arg); err == nil && v > 0 {
			n = v
		}
	}
	events, err := a.events.ReadRecent(n)
	if err != nil {
		a.io.Error(err.Error())
		return
	}
	a.io.SystemMessage(FormatEvents(events, "Recent events"))
}

// ParseOptionIDs turns user tokens ("2", "option 2", "2,3") into option IDs.
// Duplicates are dropped, order is kept.
func ParseOptionIDs(tokens []string) ([]string, error) {
	var (
		ids  []string
		seen = make(map[int]bool)
	)
	for _, tok := range tokens {
		for _, part := range strings.Split(tok, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if part == "" || part == "option" {
				continue
			}
			part = strings.TrimPrefix(part, "option")
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid option %q", part)
			}
			if seen[n] {
				continue
			}
			seen[n] = true
			ids = append(ids, session.OptionID(n-1))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no options given")
	}
	return ids, nil
}
