// Package eventlog records job lifecycle events as newline delimited JSON.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	Started      = "started"
	Stopped      = "stopped"
	Continued    = "continued"
	Done         = "done"
	LaunchFailed = "launch_failed"
)

// Entry is one recorded event.
type Entry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id"`
	Event           string `json:"event"`
	JobID           int    `json:"job_id,omitempty"`
	PGID            int    `json:"pgid,omitempty"`
	Status          string `json:"status,omitempty"`
	Command         string `json:"command"`
	Error           string `json:"error,omitempty"`
}

// Recorder is a callback that stores entries in an external datastore.
type Recorder func(e *Entry) error

// Logger captures job events for a shell.
type Logger struct {
	Record Recorder
	now    func() time.Time
}

// NewJSONLinesRecorder creates a Logger that writes one JSON object per line.
func NewJSONLinesRecorder(w io.Writer) *Logger {
	return &Logger{
		Record: func(e *Entry) error {
			line, err := json.Marshal(e)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(line))
			return err
		},
		now: time.Now,
	}
}

// NewSession creates a logger with a fresh session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: uuid.NewString()}
}

// SessionLogger logs events with a shared session ID. A nil SessionLogger
// drops everything.
type SessionLogger struct {
	*Logger
	sessionID string
}

func (s *SessionLogger) SessionID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// Record stamps and stores an entry.
func (s *SessionLogger) Record(e Entry) error {
	if s == nil || s.Logger == nil || s.Logger.Record == nil {
		return nil
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	e.TimestampMicros = now().UnixMicro()
	e.SessionID = s.sessionID
	return s.Logger.Record(&e)
}

// Read parses a log written by NewJSONLinesRecorder.
func Read(r io.Reader, handler func(e *Entry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var e Entry
		if err := decoder.Decode(&e); err != nil {
			return err
		}
		handler(&e)
	}
	return nil
}
