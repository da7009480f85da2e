package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apexion-ai/iad/internal/agent"
	"github.com/apexion-ai/iad/internal/tui"
)

// runChat starts the interactive decision session.
func runChat() error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if useTUI {
		sessionID := app.engine.SessionID()
		if len(sessionID) > 8 {
			sessionID = sessionID[:8]
		}
		tuiCfg := tui.TUIConfig{
			Version:     displayVersion(),
			Provider:    app.cfg.Provider,
			Model:       app.cfg.Model,
			SessionID:   sessionID,
			ShowWelcome: true,
		}

		// ctx is managed by RunTUI: cancelled on TUI exit or OS signal.
		return tui.RunTUI(tuiCfg, func(ctx context.Context, ui tui.IO) error {
			return agent.New(app.engine, ui, app.log, app.agentOptions()).Run(ctx)
		})
	}

	// Plain IO mode
	ui := tui.NewPlainIO()
	a := agent.New(app.engine, ui, app.log, app.agentOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C cancels the call in flight; when idle it ends the session.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGINT && ui.Interrupt() {
					continue
				}
				cancel()
				ui.Close()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return a.Run(ctx)
}
