package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/apexion-ai/iad/internal/session"
)

// PlainIO implements IO using plain terminal output. It is used when TUI
// mode is disabled or stdout is not a terminal.
type PlainIO struct {
	scanner *bufio.Scanner
	out     io.Writer
	errW    io.Writer
	mu      sync.Mutex

	lines     chan lineResult
	startRead sync.Once
	closed    chan struct{}
	closeOnce sync.Once

	cancelLoop func()
}

type lineResult struct {
	text string
	err  error
}

var (
	_ IO            = (*PlainIO)(nil)
	_ LoopCanceller = (*PlainIO)(nil)
)

// NewPlainIO creates a PlainIO on stdin/stdout/stderr.
func NewPlainIO() *PlainIO {
	return NewPlainIOWith(os.Stdin, os.Stdout, os.Stderr)
}

// NewPlainIOWith creates a PlainIO on the given streams.
func NewPlainIOWith(in io.Reader, out, errW io.Writer) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &PlainIO{
		scanner: s,
		out:     out,
		errW:    errW,
		lines:   make(chan lineResult),
		closed:  make(chan struct{}),
	}
}

// readLines feeds p.lines until the input ends.
func (p *PlainIO) readLines() {
	defer close(p.lines)
	for p.scanner.Scan() {
		select {
		case p.lines <- lineResult{text: p.scanner.Text()}:
		case <-p.closed:
			return
		}
	}
	if err := p.scanner.Err(); err != nil {
		select {
		case p.lines <- lineResult{err: err}:
		case <-p.closed:
		}
	}
}

// ReadInput returns the next line. It returns io.EOF at the end of input or
// once Close has been called, even while blocked on a read.
func (p *PlainIO) ReadInput() (string, error) {
	p.startRead.Do(func() { go p.readLines() })
	fmt.Fprint(p.out, "\n> ")
	select {
	case res, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.text), nil
	case <-p.closed:
		return "", io.EOF
	}
}

// Close ends input: pending and later ReadInput calls return io.EOF.
func (p *PlainIO) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *PlainIO) SetLoopCancel(cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLoop = cancel
}

func (p *PlainIO) ClearLoopCancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLoop = nil
}

// Interrupt handles Ctrl+C: it cancels the in-flight call if there is one and
// reports true, otherwise it closes input and reports false.
func (p *PlainIO) Interrupt() bool {
	p.mu.Lock()
	cancel := p.cancelLoop
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		return true
	}
	p.Close()
	return false
}

func (p *PlainIO) UserMessage(_ string) {
	// Plain terminal: the user already sees what they typed.
}

func (p *PlainIO) ThinkingStart(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "Thinking (%s)...\n", label)
}

func (p *PlainIO) ThinkingDone() {}

func (p *PlainIO) ShowStep(index int, step session.Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n%s\n", FormatStep(index, step))
}

func (p *PlainIO) ShowReport(markdown string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n%s\n%s\n%s\n", strings.Repeat("-", 30), markdown, strings.Repeat("-", 30))
}

func (p *PlainIO) SystemMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errW, "error: %s\n", msg)
}

func (p *PlainIO) SetBudget(_, _, _ int) {}
