package tui

import (
	"io"
	"sync"

	"github.com/apexion-ai/iad/internal/session"
)

// StepEvent is one ShowStep call captured by BufferIO.
type StepEvent struct {
	Index int
	Step  session.Step
}

// BufferIO is a silent IO implementation that replays scripted input and
// records everything shown.
type BufferIO struct {
	mu      sync.Mutex
	inputs  []string
	steps   []StepEvent
	reports []string
	system  []string
	errors  []string
	budget  [3]int
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that returns inputs in order, then io.EOF.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs}
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	line := b.inputs[0]
	b.inputs = b.inputs[1:]
	return line, nil
}

func (b *BufferIO) UserMessage(_ string)   {}
func (b *BufferIO) ThinkingStart(_ string) {}
func (b *BufferIO) ThinkingDone()          {}

func (b *BufferIO) ShowStep(index int, step session.Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = append(b.steps, StepEvent{Index: index, Step: step})
}

func (b *BufferIO) ShowReport(markdown string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports = append(b.reports, markdown)
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.system = append(b.system, text)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, msg)
}

func (b *BufferIO) SetBudget(used, soft, hard int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budget = [3]int{used, soft, hard}
}

// Steps returns every step shown so far.
func (b *BufferIO) Steps() []StepEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]StepEvent(nil), b.steps...)
}

// Reports returns every report shown so far.
func (b *BufferIO) Reports() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.reports...)
}

// SystemMessages returns every system notice shown so far.
func (b *BufferIO) SystemMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.system...)
}

// Errors returns every error shown so far.
func (b *BufferIO) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}

// Budget returns the last values passed to SetBudget.
func (b *BufferIO) Budget() (used, soft, hard int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.budget[0], b.budget[1], b.budget[2]
}
