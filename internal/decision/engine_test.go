package decision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexion-ai/iad/internal/session"
)

// New problem, then a selection, then a report.
func TestEngine_ProblemSelectReport(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		okStep(400, "Decide how to commute.", "Drive", "Cycle", "Remote work"),
		okStep(500, "Commit to cycling.", "Buy an e-bike", "Use city bikes"),
		{text: "# Commuting report", usage: usageOf(900)},
	}}
	e, _ := newEngine(p, 15000, 20000)
	ctx := context.Background()

	snap, err := e.Generate(ctx, "I spend two hours a day commuting")
	require.NoError(t, err)
	require.Len(t, snap.Steps, 1)
	assert.Equal(t, "Decide how to commute.", snap.Problem())
	assert.Equal(t, 400, snap.TokensUsed)

	snap, err = e.Select(ctx, 0, []string{"option 2"})
	require.NoError(t, err)
	require.Len(t, snap.Steps, 2)
	assert.True(t, snap.Steps[0].Options[1].Selected)
	assert.Equal(t, "Commit to cycling.", snap.Steps[1].Restatement)
	assert.Equal(t, 900, snap.TokensUsed)

	report, snap, err := e.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# Commuting report", report)
	assert.Equal(t, 1800, snap.TokensUsed)

	msg := p.lastRequest().Messages[0].Text
	assert.Contains(t, msg, "Problem: Decide how to commute.")
	assert.Contains(t, msg, "1. Commit to cycling.")
	assert.Contains(t, msg, "1. Buy an e-bike")
}

// Re-selecting at an earlier step drops the later history.
func TestEngine_ReselectEarlierStep(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		okStep(100, "root", "A", "B"),
		okStep(100, "after A", "A1", "A2"),
		okStep(100, "after A1", "x", "y"),
		okStep(100, "after B", "B1", "B2"),
	}}
	e, _ := newEngine(p, 15000, 20000)
	ctx := context.Background()

	_, err := e.Generate(ctx, "problem")
	require.NoError(t, err)
	_, err = e.Select(ctx, 0, []string{"option 1"})
	require.NoError(t, err)
	snap, err := e.Select(ctx, 1, []string{"option 1"})
	require.NoError(t, err)
	require.Len(t, snap.Steps, 3)

	snap, err = e.Select(ctx, 0, []string{"option 2"})
	require.NoError(t, err)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "after B", snap.Steps[1].Restatement)
	assert.False(t, snap.Steps[0].Options[0].Selected)
	assert.True(t, snap.Steps[0].Options[1].Selected)
	assert.Contains(t, p.lastRequest().Messages[0].Text, "Previous step: root")
}

// Soft limit blocks steps but not reports; hard limit blocks everything until reset.
// Usage exactly at the soft limit blocks new steps but not the report.
func TestEngine_ExactSoftLimit(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		okStep(1000, "root", "A", "B"),
		{text: "# Report", usage: usageOf(300)},
	}}
	e, _ := newEngine(p, 1000, 2000)
	ctx := context.Background()

	snap, err := e.Generate(ctx, "problem")
	require.NoError(t, err)
	assert.Equal(t, 1000, snap.TokensUsed)
	assert.True(t, snap.SoftBlocked)

	snap, err = e.Select(ctx, 0, []string{"option 1"})
	var be *BudgetError
	require.True(t, errors.As(err, &be))
	assert.ErrorIs(t, err, ErrSoftLimit)
	assert.Equal(t, 1000, be.Used)
	assert.Len(t, snap.Steps, 1)
	assert.Equal(t, 1, p.calls())

	report, snap, err := e.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# Report", report)
	assert.Equal(t, 1300, snap.TokensUsed)
	assert.False(t, snap.HardBlocked)
}

func TestEngine_BudgetLifecycle(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		okStep(1200, "root", "A", "B"),
		{text: "report", usage: usageOf(900)},
		okStep(100, "fresh", "C", "D"),
	}}
	e, _ := newEngine(p, 1000, 2000)
	ctx := context.Background()

	snap, err := e.Generate(ctx, "problem")
	require.NoError(t, err)
	assert.True(t, snap.SoftBlocked)
	assert.False(t, snap.HardBlocked)

	_, err = e.Generate(ctx, "another idea")
	require.ErrorIs(t, err, ErrSoftLimit)
	snap, err = e.Select(ctx, 0, []string{"option 1"})
	require.ErrorIs(t, err, ErrSoftLimit)
	assert.Len(t, snap.Steps, 1)
	assert.False(t, snap.Steps[0].Options[0].Selected)

	_, snap, err = e.Report(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HardBlocked)

	_, _, err = e.Report(ctx)
	var be *BudgetError
	require.True(t, errors.As(err, &be))
	assert.True(t, be.Fatal())
	assert.Equal(t, 2, p.calls())

	snap, err = e.Reset()
	require.NoError(t, err)
	assert.Empty(t, snap.Steps)
	assert.Zero(t, snap.TokensUsed)

	snap, err = e.Generate(ctx, "start over")
	require.NoError(t, err)
	assert.Equal(t, "fresh", snap.Problem())
}

// A failed call appends a degraded step that can be re-selected from.
func TestEngine_DegradedThenRetry(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		okStep(100, "root", "A", "B"),
		{chatErr: errors.New("timeout")},
		okStep(100, "after A", "A1", "A2"),
	}}
	e, _ := newEngine(p, 15000, 20000)
	ctx := context.Background()

	_, err := e.Generate(ctx, "problem")
	require.NoError(t, err)
	snap, err := e.Select(ctx, 0, []string{"option 1"})
	require.NoError(t, err)
	require.Len(t, snap.Steps, 2)
	assert.True(t, snap.Steps[1].Degraded)

	snap, err = e.Select(ctx, 0, []string{"option 1"})
	require.NoError(t, err)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "after A", snap.Steps[1].Restatement)
}

// A failed first step is not a problem statement: the next text starts over.
func TestEngine_FirstStepFailsThenRetry(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{chatErr: errors.New("connection reset")},
		okStep(100, "Choose a city.", "Lisbon", "Berlin"),
	}}
	e, _ := newEngine(p, 15000, 20000)
	ctx := context.Background()

	snap, err := e.Generate(ctx, "where should I move")
	require.NoError(t, err)
	require.Len(t, snap.Steps, 1)
	assert.True(t, snap.Steps[0].Degraded)
	assert.Empty(t, snap.Problem())

	_, _, err = e.Report(ctx)
	assert.ErrorIs(t, err, ErrNoHistory)

	snap, err = e.Generate(ctx, "retry problem")
	require.NoError(t, err)
	require.Len(t, snap.Steps, 1)
	assert.False(t, snap.Steps[0].Degraded)
	assert.Equal(t, "Choose a city.", snap.Problem())

	msg := p.lastRequest().Messages[0].Text
	assert.NotContains(t, msg, session.DegradedRestatement)
	assert.NotContains(t, msg, "Previous step:")
}

// Follow-up text after a failed step builds on the last usable step.
func TestEngine_FollowUpSkipsDegradedStep(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		okStep(100, "root", "A", "B"),
		{streamErr: errors.New("overloaded")},
		okStep(100, "refined", "C", "D"),
	}}
	e, _ := newEngine(p, 15000, 20000)
	ctx := context.Background()

	_, err := e.Generate(ctx, "problem")
	require.NoError(t, err)
	snap, err := e.Generate(ctx, "more detail")
	require.NoError(t, err)
	require.True(t, snap.Steps[1].Degraded)

	snap, err = e.Generate(ctx, "even more detail")
	require.NoError(t, err)
	assert.Equal(t, "root", snap.Problem())
	assert.Contains(t, p.lastRequest().Messages[0].Text, "Previous step: root")
	assert.NotContains(t, p.lastRequest().Messages[0].Text, session.DegradedRestatement)
}

func TestEngine_InputValidation(t *testing.T) {
	p := &scriptedProvider{}
	e, _ := newEngine(p, 15000, 20000)

	_, err := e.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = e.Generate(context.Background(), strings.Repeat("ż", 251))
	assert.ErrorIs(t, err, ErrInputTooLong)
	assert.Equal(t, 0, p.calls())
}

func TestEngine_FollowUpUsesLastStep(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		okStep(100, "root", "A", "B"),
		okStep(100, "refined", "C", "D"),
	}}
	e, _ := newEngine(p, 15000, 20000)
	ctx := context.Background()

	_, err := e.Generate(ctx, "problem")
	require.NoError(t, err)
	snap, err := e.Generate(ctx, "also I have a dog")
	require.NoError(t, err)
	assert.Len(t, snap.Steps, 2)
	assert.Contains(t, p.lastRequest().Messages[0].Text, "Previous step: root")
}

func TestEngine_Context(t *testing.T) {
	p := &scriptedProvider{replies: []reply{okStep(100, "root", "A", "B")}}
	e, _ := newEngine(p, 15000, 20000)

	snap, err := e.AddContext("  The offer expires Friday.  ")
	require.NoError(t, err)
	assert.Equal(t, "The offer expires Friday.", snap.Context)

	_, err = e.Generate(context.Background(), "accept the offer?")
	require.NoError(t, err)
	assert.Contains(t, p.lastRequest().Messages[0].Text, "The offer expires Friday.")

	snap, err = e.ClearContext()
	require.NoError(t, err)
	assert.Empty(t, snap.Context)
}

func TestEngine_BusyRejectsConcurrentTransition(t *testing.T) {
	p := &scriptedProvider{
		replies: []reply{okStep(100, "root", "A", "B")},
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	e, _ := newEngine(p, 15000, 20000)
	entered := p.entered

	done := make(chan error, 1)
	go func() {
		_, err := e.Generate(context.Background(), "problem")
		done <- err
	}()
	<-entered

	assert.True(t, e.Busy())
	_, err := e.Select(context.Background(), 0, []string{"option 1"})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = e.Reset()
	assert.ErrorIs(t, err, ErrBusy)
	_, _, err = e.Report(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(p.gate)
	require.NoError(t, <-done)
	assert.False(t, e.Busy())
	assert.Len(t, e.Snapshot().Steps, 1)
}

func TestEngine_Spend(t *testing.T) {
	e, sess := newEngine(&scriptedProvider{}, 1000, 2000)

	err := e.Spend(func(b *session.TokenBudget) error {
		if err := Admit(b, true); err != nil {
			return err
		}
		b.Record(1000)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, sess.Budget.Used())

	err = e.Spend(func(b *session.TokenBudget) error { return Admit(b, true) })
	assert.ErrorIs(t, err, ErrSoftLimit)
}
