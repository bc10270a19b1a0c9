// Package events publishes run progress to interested subscribers.
package events

import (
	"time"

	"dockbench/pkg/benchmark"
)

// EventType represents the type of event
type EventType string

const (
	// EventStateChanged is emitted on every run state transition
	EventStateChanged EventType = "state_changed"
	// EventStepStarted is emitted before an included step executes
	EventStepStarted EventType = "step_started"
	// EventStepFinished is emitted once the step's result is recorded
	EventStepFinished EventType = "step_finished"
	// EventWarning is emitted for non-fatal problems (teardown, store)
	EventWarning EventType = "warning"
)

// Event is one progress notification for a run.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	From        string                `json:"from,omitempty"`
	To          string                `json:"to,omitempty"`
	Step        int                   `json:"step,omitempty"`
	StepCount   int                   `json:"step_count,omitempty"`
	Description string                `json:"description,omitempty"`
	Result      *benchmark.TestResult `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
}

func NewStateChangedEvent(runID, from, to string) Event {
	return Event{
		Type:      EventStateChanged,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      EventData{From: from, To: to},
	}
}

// NewStepStartedEvent uses 1-based step numbering.
func NewStepStartedEvent(runID string, step, count int, description string) Event {
	return Event{
		Type:      EventStepStarted,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      EventData{Step: step, StepCount: count, Description: description},
	}
}

func NewStepFinishedEvent(runID string, step, count int, result benchmark.TestResult) Event {
	return Event{
		Type:      EventStepFinished,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      EventData{Step: step, StepCount: count, Result: &result},
	}
}

func NewWarningEvent(runID string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventWarning,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      EventData{Error: errMsg},
	}
}
