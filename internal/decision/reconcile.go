package decision

import (
	"context"

	"github.com/apexion-ai/iad/internal/session"
)

// Reconciler applies an option selection to a session: it records the
// selection, cuts the history after the selected step and generates the
// step that follows from the chosen options.
type Reconciler struct {
	steps *StepGenerator
}

// NewReconciler creates a reconciler that generates with steps.
func NewReconciler(steps *StepGenerator) *Reconciler {
	return &Reconciler{steps: steps}
}

// Reconcile selects ids at stepIndex and appends the resulting step.
//
// An empty selection is a no-op and returns (nil, nil). Budget admission
// happens before anything changes, so a blocked call leaves the session as it
// was. The new step is appended even when degraded.
func (r *Reconciler) Reconcile(ctx context.Context, sess *session.Session, stepIndex int, ids []string) (*session.Step, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := admit(sess.Budget, true); err != nil {
		return nil, err
	}

	if err := sess.Tree.Select(stepIndex, ids); err != nil {
		return nil, err
	}
	if err := sess.Tree.TruncateAfter(stepIndex); err != nil {
		return nil, err
	}
	anchor, err := sess.Tree.Step(stepIndex)
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, o := range anchor.Selected() {
		texts = append(texts, o.Text)
	}

	next, err := r.steps.Generate(ctx, sess.Budget, StepRequest{
		UserText:             combineOptions(texts),
		PreviousRestatement:  anchor.Restatement,
		SupplementaryContext: sess.Context,
	})
	if err != nil {
		return nil, err
	}
	sess.Tree.Append(next)
	sess.Touch()
	return next, nil
}
