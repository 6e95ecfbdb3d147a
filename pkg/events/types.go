package events

import "time"

// EventType identifies the kind of event emitted during a benchmark run.
type EventType string

const (
	EventRunStart   EventType = "run.start"
	EventRunEnd     EventType = "run.end"
	EventTaskStart  EventType = "task.start"
	EventTaskEnd    EventType = "task.end"
	EventTaskFailed EventType = "task.failed"
)

// Event represents a single run event.
type Event struct {
	Type      EventType     `json:"type"`
	RunID     string        `json:"run_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Data      any           `json:"data"`
	TaskIndex int           `json:"task_index,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewEvent creates a new Event with the current timestamp.
func NewEvent(typ EventType, runID string, data any) Event {
	return Event{
		Type:      typ,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// RunInfo is the payload of run.start and run.end.
type RunInfo struct {
	Model  string   `json:"model"`
	Judges []string `json:"judges,omitempty"`
	Tasks  int      `json:"tasks"`
	Scored int      `json:"scored,omitempty"`
	Mean   float64  `json:"mean,omitempty"`
}

// TaskInfo is the payload of the task events.
type TaskInfo struct {
	TaskID string   `json:"task_id"`
	Status string   `json:"status,omitempty"`
	Final  *float64 `json:"final_score,omitempty"`
	Reason string   `json:"reason,omitempty"`
}
