package session

import (
	"errors"
	"fmt"
)

// DegradedRestatement is the fixed restatement of a step whose generation failed.
const DegradedRestatement = "response generation failed"

var (
	ErrStepOutOfRange = errors.New("step index out of range")
	ErrUnknownOption  = errors.New("unknown option id")
)

// Option is one candidate next action within a step.
type Option struct {
	ID       string `json:"id"` // "option N", 1-based
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// Step is one round of the decision history.
type Step struct {
	Restatement string   `json:"restatement"`
	Options     []Option `json:"options"`

	// Degraded marks a step produced by a failed model call.
	Degraded bool `json:"degraded,omitempty"`
}

// OptionID returns the positional tag of the n-th option (0-based n).
func OptionID(n int) string {
	return fmt.Sprintf("option %d", n+1)
}

// NewStep builds a step from the option texts in order, all unselected.
func NewStep(restatement string, texts []string) *Step {
	s := &Step{Restatement: restatement, Options: make([]Option, len(texts))}
	for i, t := range texts {
		s.Options[i] = Option{ID: OptionID(i), Text: t}
	}
	return s
}

// DegradedStep is the placeholder appended when generation fails.
func DegradedStep() *Step {
	return &Step{Restatement: DegradedRestatement, Degraded: true}
}

// Selected returns the selected options in positional order.
func (s *Step) Selected() []Option {
	var out []Option
	for _, o := range s.Options {
		if o.Selected {
			out = append(out, o)
		}
	}
	return out
}

func (s *Step) clone() Step {
	c := *s
	c.Options = append([]Option(nil), s.Options...)
	return c
}

// Tree is the linear decision history. Step 0 holds the problem statement.
// It is never sparse: truncation removes a contiguous suffix.
type Tree struct {
	steps []*Step
}

// Len returns the number of steps.
func (t *Tree) Len() int { return len(t.steps) }

// Append adds a step at the end.
func (t *Tree) Append(s *Step) {
	t.steps = append(t.steps, s)
}

// Step returns the step at index i.
func (t *Tree) Step(i int) (*Step, error) {
	if i < 0 || i >= len(t.steps) {
		return nil, fmt.Errorf("%w: %d (have %d steps)", ErrStepOutOfRange, i, len(t.steps))
	}
	return t.steps[i], nil
}

// Last returns the most recent step, or nil when the tree is empty.
func (t *Tree) Last() *Step {
	if len(t.steps) == 0 {
		return nil
	}
	return t.steps[len(t.steps)-1]
}

// LastUsable returns the most recent step that is not degraded, or nil.
func (t *Tree) LastUsable() *Step {
	for i := len(t.steps) - 1; i >= 0; i-- {
		if !t.steps[i].Degraded {
			return t.steps[i]
		}
	}
	return nil
}

// TruncateAfter keeps steps 0..i and drops the rest.
func (t *Tree) TruncateAfter(i int) error {
	if i < 0 || i >= len(t.steps) {
		return fmt.Errorf("%w: %d (have %d steps)", ErrStepOutOfRange, i, len(t.steps))
	}
	for j := i + 1; j < len(t.steps); j++ {
		t.steps[j] = nil
	}
	t.steps = t.steps[:i+1]
	return nil
}

// Select makes ids the exact selection at step i, clearing every other
// option of that step. Nothing changes if an id is unknown.
func (t *Tree) Select(i int, ids []string) error {
	step, err := t.Step(i)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(step.Options))
	for _, o := range step.Options {
		known[o.ID] = true
	}
	chosen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !known[id] {
			return fmt.Errorf("%w %q at step %d", ErrUnknownOption, id, i)
		}
		chosen[id] = true
	}
	for k := range step.Options {
		step.Options[k].Selected = chosen[step.Options[k].ID]
	}
	return nil
}

// Problem is the canonical problem statement: step 0's restatement. A
// degraded step 0 has no problem statement.
func (t *Tree) Problem() string {
	if len(t.steps) == 0 || t.steps[0].Degraded {
		return ""
	}
	return t.steps[0].Restatement
}

// StepsTaken returns the restatements of steps 1..n in order.
func (t *Tree) StepsTaken() []string {
	if len(t.steps) < 2 {
		return nil
	}
	out := make([]string, 0, len(t.steps)-1)
	for _, s := range t.steps[1:] {
		out = append(out, s.Restatement)
	}
	return out
}

// FinalOptions returns the option texts of the last step.
func (t *Tree) FinalOptions() []string {
	last := t.Last()
	if last == nil {
		return nil
	}
	out := make([]string, len(last.Options))
	for i, o := range last.Options {
		out[i] = o.Text
	}
	return out
}

// Steps returns a deep copy of the history.
func (t *Tree) Steps() []Step {
	out := make([]Step, len(t.steps))
	for i, s := range t.steps {
		out[i] = s.clone()
	}
	return out
}

// Clear removes every step.
func (t *Tree) Clear() {
	t.steps = nil
}
