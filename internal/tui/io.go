// Package tui defines the IO interface between the session loop and the
// user interface layer, plus PlainIO (terminal fallback), PipeIO
// (non-interactive runs), BufferIO (tests) and TuiIO (bubbletea).
package tui

import "github.com/apexion-ai/iad/internal/session"

// IO is the contract between the session loop and the UI layer.
// Every method maps to a distinct visual event.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// UserMessage displays the user's submitted message in the output area.
	UserMessage(text string)

	// ThinkingStart signals that a model call has started. label says what
	// is being produced ("next step", "report", "summaries").
	ThinkingStart(label string)

	// ThinkingDone clears the indicator started by ThinkingStart.
	ThinkingDone()

	// ShowStep renders one step of the decision tree. index is the step's
	// position (0 is the problem).
	ShowStep(index int, step session.Step)

	// ShowReport renders the final markdown report.
	ShowReport(markdown string)

	// SystemMessage displays a system-level notice.
	SystemMessage(text string)

	// Error displays an error message with prominent styling.
	Error(msg string)

	// SetBudget updates the token counter shown in the status area.
	SetBudget(used, soft, hard int)
}

// LoopCanceller is implemented by UIs that can interrupt the in-flight
// model call (esc in the TUI).
type LoopCanceller interface {
	SetLoopCancel(cancel func())
	ClearLoopCancel()
}
