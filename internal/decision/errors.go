package decision

import (
	"errors"
	"fmt"
)

var (
	// ErrNoInput is returned for empty or whitespace-only problem text.
	ErrNoInput = errors.New("no input: describe the problem first")

	// ErrInputTooLong is returned when problem text exceeds the configured cap.
	ErrInputTooLong = errors.New("input too long")

	// ErrSoftLimit blocks new steps. Reports are still possible.
	ErrSoftLimit = errors.New("token soft limit reached")

	// ErrHardLimit blocks every model call until the session is reset.
	ErrHardLimit = errors.New("token hard limit reached")

	// ErrBusy is returned when a transition starts while another is in flight.
	ErrBusy = errors.New("a request is already in progress")

	// ErrNoHistory is returned when a report is requested for an empty session.
	ErrNoHistory = errors.New("no decision history yet")
)

// BudgetError reports which limit blocked a call. It unwraps to
// ErrSoftLimit or ErrHardLimit.
type BudgetError struct {
	Used  int
	Limit int
	Err   error
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("%v (%d/%d tokens)", e.Err, e.Used, e.Limit)
}

func (e *BudgetError) Unwrap() error { return e.Err }

// Fatal reports whether the session cannot continue without a reset.
func (e *BudgetError) Fatal() bool { return errors.Is(e.Err, ErrHardLimit) }

// ModelError is a failed model call, safe to show to the user.
type ModelError struct {
	Op  string
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }
