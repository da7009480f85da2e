package agent

import (
	"context"
	"errors"
	"testing"
)

func TestRunOnce_PicksAndReport(t *testing.T) {
	p := &queueProvider{steps: []string{"root", "second", "third"}}
	a, ui, engine := newTestAgent(t, p, 15000, 20000)

	err := a.RunOnce(context.Background(), Script{
		Prompt: "Should I move abroad?",
		Picks:  []string{"2", "1,2"},
		Report: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := len(ui.Steps()); got != 3 {
		t.Fatalf("expected 3 steps, got %d", got)
	}
	if got := len(ui.Reports()); got != 1 {
		t.Fatalf("expected 1 report, got %d", got)
	}
	snap := engine.Snapshot()
	if !snap.Steps[0].Options[1].Selected {
		t.Error("step 0 option 2 should be selected")
	}
	if !snap.Steps[1].Options[0].Selected || !snap.Steps[1].Options[1].Selected {
		t.Error("step 1 options 1 and 2 should be selected")
	}
}

func TestRunOnce_InvalidPick(t *testing.T) {
	p := &queueProvider{}
	a, ui, _ := newTestAgent(t, p, 15000, 20000)

	err := a.RunOnce(context.Background(), Script{Prompt: "x", Picks: []string{"zero"}})
	if err == nil {
		t.Fatal("expected error for invalid pick")
	}
	if len(ui.Steps()) != 0 {
		t.Error("no step should be generated when picks are invalid")
	}
}

func TestRunOnce_EmptyPrompt(t *testing.T) {
	a, _, _ := newTestAgent(t, &queueProvider{}, 15000, 20000)
	if err := a.RunOnce(context.Background(), Script{Prompt: "  "}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestRunOnce_SoftLimitStopsPicks(t *testing.T) {
	p := &queueProvider{steps: []string{"root", "next"}, tokens: 1500}
	a, ui, _ := newTestAgent(t, p, 1000, 20000)

	err := a.RunOnce(context.Background(), Script{Prompt: "x", Picks: []string{"1"}})
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if got := len(ui.Steps()); got != 1 {
		t.Errorf("expected only the first step, got %d", got)
	}
}
