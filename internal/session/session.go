package session

import (
	"time"

	"github.com/google/uuid"
)

// Session holds the state of one decision session: the history, the
// token budget and any supplementary context the user attached.
// It lives in memory only.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Tree      *Tree
	Budget    *TokenBudget

	// Context is supplementary material (document and web summaries)
	// passed to every step generation.
	Context string
}

// New creates an empty session with a unique ID.
func New(soft, hard int) (*Session, error) {
	budget, err := NewTokenBudget(soft, hard)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Tree:      &Tree{},
		Budget:    budget,
	}, nil
}

// Touch marks the session as modified.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// Reset clears history, selections, budget counter and context.
// The ID is kept so the event stream stays continuous.
func (s *Session) Reset() {
	s.Tree.Clear()
	s.Budget.Reset()
	s.Context = ""
	s.Touch()
}

// AddContext appends a block of supplementary context.
func (s *Session) AddContext(text string) {
	if text == "" {
		return
	}
	if s.Context != "" {
		s.Context += "\n\n"
	}
	s.Context += text
	s.Touch()
}

// Snapshot is an immutable copy of a session at one point in time.
type Snapshot struct {
	SessionID   string `json:"session_id"`
	Steps       []Step `json:"steps"`
	TokensUsed  int    `json:"tokens_used"`
	SoftLimit   int    `json:"soft_limit"`
	HardLimit   int    `json:"hard_limit"`
	SoftBlocked bool   `json:"soft_blocked"`
	HardBlocked bool   `json:"hard_blocked"`
	Context     string `json:"context,omitempty"`
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID:   s.ID,
		Steps:       s.Tree.Steps(),
		TokensUsed:  s.Budget.Used(),
		SoftLimit:   s.Budget.SoftLimit,
		HardLimit:   s.Budget.HardLimit,
		SoftBlocked: s.Budget.CheckSoft() == Blocked,
		HardBlocked: s.Budget.CheckHard() == Blocked,
		Context:     s.Context,
	}
}

// Problem returns the problem statement of the snapshot, if any.
func (sn Snapshot) Problem() string {
	if len(sn.Steps) == 0 || sn.Steps[0].Degraded {
		return ""
	}
	return sn.Steps[0].Restatement
}
