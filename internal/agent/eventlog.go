package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apexion-ai/iad/internal/config"
)

// EventType classifies an event in the session event stream.
type EventType string

const (
	EventSessionStart   EventType = "session_start"
	EventSessionEnd     EventType = "session_end"
	EventStepGenerated  EventType = "step_generated"
	EventOptionSelected EventType = "option_selected"
	EventReport         EventType = "report_generated"
	EventBudgetBlocked  EventType = "budget_blocked"
	EventContextAdded   EventType = "context_added"
	EventSessionReset   EventType = "session_reset"
	EventError          EventType = "error"
)

// Event is a single structured event in the event stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data,omitempty"`
}

// EventLogger writes structured JSONL events to a file.
type EventLogger struct {
	mu        sync.Mutex
	file      *os.File
	enc       *json.Encoder
	sessionID string
	logPath   string
}

// NewEventLogger creates an event logger for the given session, writing
// {dir}/{session_id}.jsonl. An empty dir uses the default locations.
func NewEventLogger(dir, sessionID string) (*EventLogger, error) {
	var lastErr error
	for _, d := range eventLogDirs(dir) {
		if err := os.MkdirAll(d, 0755); err != nil {
			lastErr = fmt.Errorf("create events directory %s: %w", d, err)
			continue
		}

		logPath := filepath.Join(d, sessionID+".jsonl")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			lastErr = fmt.Errorf("open event log %s: %w", logPath, err)
			continue
		}

		return &EventLogger{
			file:      f,
			enc:       json.NewEncoder(f),
			sessionID: sessionID,
			logPath:   logPath,
		}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no writable events directory found")
	}
	return nil, lastErr
}

// eventLogDirs returns candidate directories in priority order.
// 1) explicit dir (events_dir / IAD_EVENTS_DIR)
// 2) ~/.local/share/iad/events (default)
// 3) $TMPDIR/iad/events (fallback for restricted environments)
func eventLogDirs(explicit string) []string {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	add(explicit)
	if data, err := config.DataDir(); err == nil {
		add(filepath.Join(data, "events"))
	}
	add(filepath.Join(os.TempDir(), "iad", "events"))
	return dirs
}

// Path returns the log file location.
func (el *EventLogger) Path() string { return el.logPath }

// Log writes an event to the JSONL file. Nil loggers discard events.
func (el *EventLogger) Log(evtType EventType, data any) {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.enc == nil {
		return
	}

	_ = el.enc.Encode(Event{
		Type:      evtType,
		Timestamp: time.Now(),
		SessionID: el.sessionID,
		Data:      data,
	})
}

// Close flushes and closes the event log file.
func (el *EventLogger) Close() {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file != nil {
		_ = el.file.Close()
		el.file = nil
		el.enc = nil
	}
}

// ReadRecent reads the last n events from the log file.
func (el *EventLogger) ReadRecent(n int) ([]Event, error) {
	el.mu.Lock()
	path := el.logPath
	el.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var evt Event
		if json.Unmarshal(scanner.Bytes(), &evt) == nil {
			events = append(events, evt)
		}
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// FormatEvents formats events for display.
func FormatEvents(events []Event, title string) string {
	if len(events) == 0 {
		return "No events recorded."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d events):\n", title, len(events))
	for _, evt := range events {
		ts := evt.Timestamp.Format("15:04:05")
		dataStr := ""
		switch d := evt.Data.(type) {
		case nil:
		case string:
			dataStr = truncate(d, 80)
		case map[string]any:
			if text, ok := d["restatement"].(string); ok {
				dataStr = truncate(text, 80)
			} else if limit, ok := d["limit"].(string); ok {
				dataStr = "limit=" + limit
			} else if msg, ok := d["error"].(string); ok {
				dataStr = truncate(msg, 80)
			} else {
				raw, _ := json.Marshal(d)
				dataStr = truncate(string(raw), 80)
			}
		default:
			raw, _ := json.Marshal(d)
			dataStr = truncate(string(raw), 80)
		}
		if dataStr != "" {
			fmt.Fprintf(&sb, "  %s  %-16s  %s\n", ts, evt.Type, dataStr)
		} else {
			fmt.Fprintf(&sb, "  %s  %s\n", ts, evt.Type)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// truncate shortens s to maxLen runes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
