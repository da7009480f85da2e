package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apexion-ai/iad/internal/session"
)

// PipeIO implements IO for non-interactive runs.
// Results go to stdout, diagnostics go to stderr.
type PipeIO struct {
	format  string    // "text" or "jsonl"
	verbose bool      // show progress on stderr
	writer  io.Writer // stdout
	errW    io.Writer // stderr
}

var _ IO = (*PipeIO)(nil)

// NewPipeIO creates a PipeIO instance.
func NewPipeIO(format string, verbose bool) *PipeIO {
	return NewPipeIOWith(format, verbose, os.Stdout, os.Stderr)
}

// NewPipeIOWith creates a PipeIO on the given writers.
func NewPipeIOWith(format string, verbose bool, out, errW io.Writer) *PipeIO {
	if format == "" {
		format = "text"
	}
	return &PipeIO{format: format, verbose: verbose, writer: out, errW: errW}
}

func (p *PipeIO) ReadInput() (string, error) { return "", io.EOF }
func (p *PipeIO) UserMessage(_ string)       {}

func (p *PipeIO) ThinkingStart(label string) {
	if p.verbose {
		fmt.Fprintf(p.errW, "[model] generating %s\n", label)
	}
}

func (p *PipeIO) ThinkingDone() {}

func (p *PipeIO) ShowStep(index int, step session.Step) {
	if p.format == "jsonl" {
		p.emitJSONL("step", map[string]any{"index": index, "step": step})
		return
	}
	fmt.Fprintf(p.writer, "%s\n\n", FormatStep(index, step))
}

func (p *PipeIO) ShowReport(markdown string) {
	if p.format == "jsonl" {
		p.emitJSONL("report", map[string]string{"content": markdown})
		return
	}
	fmt.Fprintln(p.writer, markdown)
}

func (p *PipeIO) SystemMessage(text string) {
	fmt.Fprintln(p.errW, text)
}

func (p *PipeIO) Error(msg string) {
	if p.format == "jsonl" {
		p.emitJSONL("error", map[string]string{"message": msg})
	}
	fmt.Fprintf(p.errW, "error: %s\n", msg)
}

func (p *PipeIO) SetBudget(used, soft, hard int) {
	if p.format == "jsonl" {
		p.emitJSONL("budget", map[string]int{"used": used, "soft_limit": soft, "hard_limit": hard})
	}
}

// emitJSONL writes a JSON line to stdout.
func (p *PipeIO) emitJSONL(eventType string, data any) {
	line, _ := json.Marshal(map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	})
	fmt.Fprintln(p.writer, string(line))
}
