package handshake

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/aurapair/logger"
)

// Event is one line of the handshake audit log.
type Event struct {
	Timestamp   int64             `json:"timestamp"` // nanoseconds since epoch
	OperationID string            `json:"operation_id"`
	Event       string            `json:"event"` // started, matched, state, soft_failure, notification_ignored, resolved
	State       string            `json:"state,omitempty"`
	Peer        string            `json:"peer,omitempty"`
	Step        string            `json:"step,omitempty"`
	Error       string            `json:"error,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

// EventLog appends handshake events to a JSONL file. A nil or disabled
// EventLog drops everything.
type EventLog struct {
	path    string
	mutex   sync.Mutex
	enabled bool
}

// NewEventLog returns a log writing to path. An empty path disables it.
func NewEventLog(path string) *EventLog {
	if path == "" {
		return &EventLog{}
	}
	return &EventLog{path: path, enabled: true}
}

// Path returns the file events are appended to.
func (l *EventLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log writes one event as a JSON line.
func (l *EventLog) Log(event Event) {
	if l == nil || !l.enabled {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixNano()
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		logger.Warn("events", "Failed to create event log directory: %v", err)
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Warn("events", "Failed to open event log: %v", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn("events", "Failed to marshal event: %v", err)
		return
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		logger.Warn("events", "Failed to write event: %v", err)
	}
}

// ReadEvents loads every event from a JSONL file written by EventLog.
func ReadEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Event
		if err := dec.Decode(&e); err != nil {
			return events, err
		}
		events = append(events, e)
	}
	return events, nil
}
