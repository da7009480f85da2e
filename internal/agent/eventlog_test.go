package agent

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) (*EventLogger, string) {
	t.Helper()
	sessionID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	logger, err := NewEventLogger(t.TempDir(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(logger.Close)
	return logger, sessionID
}

func TestNewEventLogger(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewEventLogger(dir, "abc")
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	if logger.sessionID != "abc" {
		t.Fatalf("expected session ID %q, got %q", "abc", logger.sessionID)
	}
	if want := filepath.Join(dir, "abc.jsonl"); logger.Path() != want {
		t.Fatalf("expected log path %q, got %q", want, logger.Path())
	}
	if logger.file == nil {
		t.Fatal("expected non-nil file handle")
	}
}

func TestLogAndReadRecent(t *testing.T) {
	logger, _ := newTestLogger(t)

	logger.Log(EventSessionStart, "session started")
	logger.Log(EventStepGenerated, map[string]any{"index": 0, "restatement": "root"})
	logger.Log(EventOptionSelected, map[string]any{"step": 0, "options": []string{"option 1"}})
	logger.Log(EventBudgetBlocked, map[string]any{"limit": "soft"})
	logger.Log(EventReport, map[string]any{"chars": 1200})

	all, err := logger.ReadRecent(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 events, got %d", len(all))
	}

	recent, err := logger.ReadRecent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recent))
	}
	want := []EventType{EventOptionSelected, EventBudgetBlocked, EventReport}
	for i, typ := range want {
		if recent[i].Type != typ {
			t.Fatalf("recent[%d]: expected %s, got %s", i, typ, recent[i].Type)
		}
	}
}

func TestLogEventFields(t *testing.T) {
	logger, sessionID := newTestLogger(t)

	before := time.Now()
	logger.Log(EventContextAdded, "test data")
	after := time.Now()

	events, err := logger.ReadRecent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	evt := events[0]
	if evt.Type != EventContextAdded {
		t.Fatalf("expected type %s, got %s", EventContextAdded, evt.Type)
	}
	if evt.SessionID != sessionID {
		t.Fatalf("expected session %q, got %q", sessionID, evt.SessionID)
	}
	if evt.Timestamp.Before(before.Add(-time.Second)) || evt.Timestamp.After(after.Add(time.Second)) {
		t.Fatalf("timestamp %v not between %v and %v", evt.Timestamp, before, after)
	}
}

func TestFormatEventsEmpty(t *testing.T) {
	if s := FormatEvents(nil, "Test"); s != "No events recorded." {
		t.Fatalf("expected 'No events recorded.', got %q", s)
	}
}

func TestFormatEvents(t *testing.T) {
	now := time.Now()
	events := []Event{
		{Type: EventStepGenerated, Timestamp: now, SessionID: "s1", Data: map[string]any{"restatement": "Pick a commute"}},
		{Type: EventBudgetBlocked, Timestamp: now, SessionID: "s1", Data: map[string]any{"limit": "hard"}},
		{Type: EventError, Timestamp: now, SessionID: "s1", Data: "boom"},
		{Type: EventSessionStart, Timestamp: now, SessionID: "s1"},
	}

	output := FormatEvents(events, "Recent Events")
	for _, want := range []string{"Recent Events", "4 events", "Pick a commute", "limit=hard", "boom", string(EventSessionStart)} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q:\n%s", want, output)
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), "close")
	if err != nil {
		t.Fatal(err)
	}
	logger.Close()
	logger.Close()
	// Logging after close is dropped.
	logger.Log(EventError, "late")

	var nilLogger *EventLogger
	nilLogger.Log(EventError, "ignored")
	nilLogger.Close()
}
