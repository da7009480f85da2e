package tui

import (
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/apexion-ai/iad/internal/session"
)

// TuiIO implements the IO interface by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type TuiIO struct {
	program *tea.Program
	inputCh chan inputResult

	mu         sync.Mutex
	cancelLoop func()
}

var (
	_ IO            = (*TuiIO)(nil)
	_ LoopCanceller = (*TuiIO)(nil)
)

// send is a nil-safe helper that sends a message to the bubbletea program.
func (t *TuiIO) send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TuiIO) ReadInput() (string, error) {
	if t.program == nil {
		return "", io.EOF
	}
	t.program.Send(readInputMsg{})

	// Block until the user submits or the TUI exits
	res := <-t.inputCh
	if res.err != nil {
		return "", io.EOF
	}
	return res.text, nil
}

func (t *TuiIO) UserMessage(text string) {
	t.send(userMsg{text: text})
}

func (t *TuiIO) ThinkingStart(label string) {
	t.send(thinkingStartMsg{label: label})
}

func (t *TuiIO) ThinkingDone() {
	t.send(thinkingDoneMsg{})
}

func (t *TuiIO) ShowStep(index int, step session.Step) {
	t.send(stepMsg{index: index, step: step})
}

func (t *TuiIO) ShowReport(markdown string) {
	t.send(reportMsg{text: markdown})
}

func (t *TuiIO) SystemMessage(text string) {
	t.send(systemMsg{text: text})
}

func (t *TuiIO) Error(msg string) {
	t.send(errorMsg{text: msg})
}

func (t *TuiIO) SetBudget(used, soft, hard int) {
	t.send(budgetMsg{used: used, soft: soft, hard: hard})
}

// SetLoopCancel registers the cancel function for the in-flight model call.
func (t *TuiIO) SetLoopCancel(cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLoop = cancel
}

// ClearLoopCancel clears the cancel function when the call ends.
func (t *TuiIO) ClearLoopCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLoop = nil
}

// CancelLoop cancels the in-flight model call. Returns true if one was
// actually cancelled.
func (t *TuiIO) CancelLoop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelLoop != nil {
		t.cancelLoop()
		t.cancelLoop = nil
		return true
	}
	return false
}
