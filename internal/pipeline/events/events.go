// Package events carries run and stage notifications from the pipeline engine
// to interested observers such as the status board and the logbook. Events are
// stamped with a monotonic sequence so consumers can order them without
// trusting wall clocks.
package events

import (
	"errors"
	"strings"
	"time"
)

// Type classifies a pipeline notification.
type Type string

const (
	TypeRunStarted    Type = "run-started"
	TypeRunFinished   Type = "run-finished"
	TypeRunBlocked    Type = "run-blocked"
	TypeStageStarted  Type = "stage-started"
	TypeStageFinished Type = "stage-finished"
	TypeStageFailed   Type = "stage-failed"
	TypeStageSkipped  Type = "stage-skipped"
)

// Event captures a single notification emitted during a pipeline run.
type Event struct {
	Sequence int64     `json:"sequence"`
	Type     Type      `json:"type"`
	RunID    string    `json:"run_id"`
	StageID  string    `json:"stage_id,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// Normalize applies canonical formatting before validation.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	e.RunID = strings.TrimSpace(e.RunID)
	e.StageID = strings.TrimSpace(e.StageID)
	e.Message = strings.TrimSpace(e.Message)
}

// Validate enforces baseline requirements for events.
func (e Event) Validate() error {
	if e.Type == "" {
		return errors.New("type is required")
	}
	if e.RunID == "" {
		return errors.New("run_id is required")
	}
	return nil
}

// Sink consumes pipeline events.
type Sink interface {
	HandleEvent(Event) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(Event) error

// HandleEvent executes f(e).
func (f SinkFunc) HandleEvent(e Event) error {
	if f == nil {
		return nil
	}
	return f(e)
}

// Logger records delivery problems. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}
