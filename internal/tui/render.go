package tui

import (
	"fmt"
	"strings"

	"github.com/apexion-ai/iad/internal/session"
)

// StepHeading is the title line of a rendered step.
func StepHeading(index int) string {
	if index == 0 {
		return "Step 0 (problem)"
	}
	return fmt.Sprintf("Step %d", index)
}

// RetryHint tells the user how to recover from a degraded step at index.
func RetryHint(index int) string {
	if index == 0 {
		return "describe the problem again to retry"
	}
	return "re-select an option at an earlier step to retry"
}

// FormatStep renders a step as plain text. Chosen options are marked [x].
func FormatStep(index int, st session.Step) string {
	var sb strings.Builder
	sb.WriteString(StepHeading(index))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  %q\n", st.Restatement)
	if st.Degraded || len(st.Options) == 0 {
		fmt.Fprintf(&sb, "  (no options; %s)", RetryHint(index))
		return sb.String()
	}
	for i, opt := range st.Options {
		mark := "[ ]"
		if opt.Selected {
			mark = "[x]"
		}
		fmt.Fprintf(&sb, "  %s %d. %s", mark, i+1, opt.Text)
		if i < len(st.Options)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatTree renders every step, separated by blank lines.
func FormatTree(steps []session.Step) string {
	if len(steps) == 0 {
		return "No steps yet. Describe a problem to begin."
	}
	parts := make([]string, len(steps))
	for i, st := range steps {
		parts[i] = FormatStep(i, st)
	}
	return strings.Join(parts, "\n\n")
}

// FormatBudget renders token usage against both limits.
func FormatBudget(used, soft, hard int) string {
	s := fmt.Sprintf("tokens: %d used, soft limit %d, hard limit %d", used, soft, hard)
	switch {
	case hard > 0 && used >= hard:
		s += "\nhard limit reached: /reset to start a new session"
	case soft > 0 && used >= soft:
		s += "\nsoft limit reached: no new steps, /report is still available"
	}
	return s
}
