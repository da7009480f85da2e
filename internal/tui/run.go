package tui

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
)

// RunTUI starts the bubbletea program and runs loopFn on a separate
// goroutine with a TuiIO. ctx is cancelled when the TUI exits or on
// SIGTERM; the TUI quits when loopFn returns.
func RunTUI(cfg TUIConfig, loopFn func(ctx context.Context, ui IO) error) error {
	inputCh := make(chan inputResult, 1)
	model := NewModel(inputCh, cfg)

	tuiIO := &TuiIO{inputCh: inputCh}
	model.cancelLoopFn = tuiIO.CancelLoop

	p := tea.NewProgram(model)
	tuiIO.program = p

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
			p.Quit()
		case <-ctx.Done():
		}
	}()

	var (
		loopErr error
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		loopErr = loopFn(ctx, tuiIO)
		p.Send(loopDoneMsg{err: loopErr})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		return fmt.Errorf("TUI error: %w", err)
	}

	// Unblock a loop waiting on input after the user quit.
	cancel()
	select {
	case inputCh <- inputResult{err: context.Canceled}:
	default:
	}
	wg.Wait()
	return loopErr
}
