package tui

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/apexion-ai/iad/internal/session"
)

func sampleStep() session.Step {
	st := session.NewStep("Choose how to commute.", []string{"Drive", "Cycle"})
	st.Options[1].Selected = true
	return *st
}

func TestFormatStep(t *testing.T) {
	got := FormatStep(1, sampleStep())
	want := "Step 1\n  \"Choose how to commute.\"\n  [ ] 1. Drive\n  [x] 2. Cycle"
	if got != want {
		t.Fatalf("FormatStep:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatStep_ProblemAndDegraded(t *testing.T) {
	if got := FormatStep(0, sampleStep()); !strings.HasPrefix(got, "Step 0 (problem)\n") {
		t.Fatalf("problem heading missing: %q", got)
	}
	got := FormatStep(3, *session.DegradedStep())
	if !strings.Contains(got, session.DegradedRestatement) || !strings.Contains(got, "no options") {
		t.Fatalf("degraded step rendered as %q", got)
	}
	if !strings.Contains(got, "earlier step") {
		t.Fatalf("later degraded step should point at earlier steps: %q", got)
	}
	got = FormatStep(0, *session.DegradedStep())
	if !strings.Contains(got, "describe the problem again") || strings.Contains(got, "earlier step") {
		t.Fatalf("degraded step 0 should ask for the problem again: %q", got)
	}
}

func TestFormatTree(t *testing.T) {
	if got := FormatTree(nil); !strings.Contains(got, "No steps yet") {
		t.Fatalf("empty tree: %q", got)
	}
	got := FormatTree([]session.Step{sampleStep(), sampleStep()})
	if strings.Count(got, "Step ") != 2 || !strings.Contains(got, "\n\nStep 1") {
		t.Fatalf("tree: %q", got)
	}
}

func TestFormatBudget(t *testing.T) {
	tests := []struct {
		used int
		want string
	}{
		{100, ""},
		{15000, "soft limit reached"},
		{20000, "hard limit reached"},
	}
	for _, tt := range tests {
		got := FormatBudget(tt.used, 15000, 20000)
		if !strings.HasPrefix(got, "tokens: ") {
			t.Errorf("FormatBudget(%d) = %q", tt.used, got)
		}
		if tt.want != "" && !strings.Contains(got, tt.want) {
			t.Errorf("FormatBudget(%d) = %q, want %q", tt.used, got, tt.want)
		}
		if tt.want == "" && strings.Contains(got, "limit reached") {
			t.Errorf("FormatBudget(%d) unexpectedly blocked: %q", tt.used, got)
		}
	}
}

func TestPlainIO_InterruptCancelsCall(t *testing.T) {
	p := NewPlainIOWith(strings.NewReader(""), io.Discard, io.Discard)
	cancelled := false
	p.SetLoopCancel(func() { cancelled = true })
	if !p.Interrupt() || !cancelled {
		t.Fatal("Interrupt should cancel the in-flight call")
	}

	r, w := io.Pipe()
	defer w.Close()
	idle := NewPlainIOWith(r, io.Discard, io.Discard)
	done := make(chan error, 1)
	go func() {
		_, err := idle.ReadInput()
		done <- err
	}()
	if idle.Interrupt() {
		t.Fatal("Interrupt with no call in flight should report false")
	}
	select {
	case err := <-done:
		if err != io.EOF {
			t.Fatalf("expected EOF after idle interrupt, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadInput still blocked after idle interrupt")
	}
}

func TestPlainIO(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPlainIOWith(strings.NewReader("  first line \n/quit\n"), &out, &errOut)

	line, err := p.ReadInput()
	if err != nil || line != "first line" {
		t.Fatalf("ReadInput = %q, %v", line, err)
	}
	if line, _ = p.ReadInput(); line != "/quit" {
		t.Fatalf("second ReadInput = %q", line)
	}
	if _, err = p.ReadInput(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}

	p.ShowStep(1, sampleStep())
	p.Error("boom")
	if !strings.Contains(out.String(), "[x] 2. Cycle") {
		t.Fatalf("step not rendered: %q", out.String())
	}
	if errOut.String() != "error: boom\n" {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestPipeIO_JSONL(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPipeIOWith("jsonl", false, &out, &errOut)
	p.ShowStep(0, sampleStep())
	p.ShowReport("# Report")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out.String())
	}
	var ev struct {
		Type string `json:"type"`
		Data struct {
			Index int          `json:"index"`
			Step  session.Step `json:"step"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "step" || ev.Data.Step.Restatement != "Choose how to commute." || !ev.Data.Step.Options[1].Selected {
		t.Fatalf("unexpected step event: %+v", ev)
	}
	if !strings.Contains(lines[1], `"type":"report"`) {
		t.Fatalf("unexpected report line: %s", lines[1])
	}
}

func TestBufferIO(t *testing.T) {
	b := NewBufferIO("a", "b")
	if s, _ := b.ReadInput(); s != "a" {
		t.Fatalf("got %q", s)
	}
	if s, _ := b.ReadInput(); s != "b" {
		t.Fatalf("got %q", s)
	}
	if _, err := b.ReadInput(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	b.ShowStep(2, sampleStep())
	b.SetBudget(10, 20, 30)
	if steps := b.Steps(); len(steps) != 1 || steps[0].Index != 2 {
		t.Fatalf("steps = %+v", steps)
	}
	if u, s, h := b.Budget(); u != 10 || s != 20 || h != 30 {
		t.Fatalf("budget = %d %d %d", u, s, h)
	}
}

func TestModel_EnterSubmitsInput(t *testing.T) {
	inputCh := make(chan inputResult, 1)
	var m tea.Model = NewModel(inputCh, TUIConfig{Model: "gpt-4o-mini"})

	m, _ = m.Update(readInputMsg{})
	for _, r := range "hello" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	select {
	case res := <-inputCh:
		if res.err != nil || res.text != "hello" {
			t.Fatalf("got %+v", res)
		}
	default:
		t.Fatal("no input submitted")
	}
	if m.(Model).inputMode {
		t.Fatal("input mode should end after submit")
	}
}

func TestModel_SlashMenuCompletes(t *testing.T) {
	inputCh := make(chan inputResult, 1)
	var m tea.Model = NewModel(inputCh, TUIConfig{})

	m, _ = m.Update(readInputMsg{})
	for _, r := range "/rep" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if items := m.(Model).slashItems; len(items) != 1 || items[0].Name != "/report" {
		t.Fatalf("slash items = %+v", items)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if res := <-inputCh; res.text != "/report" {
		t.Fatalf("submitted %q", res.text)
	}
}

func TestModel_BudgetInStatusBar(t *testing.T) {
	var m tea.Model = NewModel(make(chan inputResult, 1), TUIConfig{Model: "m"})
	m, _ = m.Update(budgetMsg{used: 16000, soft: 15000, hard: 20000})
	view := m.View()
	if !strings.Contains(view, "16000/20000") || !strings.Contains(view, "soft limit") {
		t.Fatalf("status bar missing budget: %q", view)
	}
}

func TestFilterSlashItems(t *testing.T) {
	all := BuiltinSlashCommands()
	if got := filterSlashItems(all, "/"); len(got) != len(all) {
		t.Fatalf("'/' should list all, got %d", len(got))
	}
	got := filterSlashItems(all, "/RE")
	if len(got) != 2 {
		t.Fatalf("expected /report and /reset, got %+v", got)
	}
}
