// Package events publishes task lifecycle events to in-process subscribers
// such as the websocket endpoint.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// EventQueued indicates a task was persisted.
	EventQueued EventType = "queued"
	// EventPreparing indicates the task's working copy and branch are being
	// prepared.
	EventPreparing EventType = "preparing"
	// EventRunning indicates the task's CI pipeline exists.
	EventRunning EventType = "running"
	// EventSucceeded, EventFailed and EventCancelled are terminal.
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	// EventRequeued indicates a task left over from an earlier run was
	// scheduled again.
	EventRequeued EventType = "requeued"
	// EventMessage carries a message delivered to the requester.
	EventMessage EventType = "message"
)

// Event represents a published event.
type Event struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"task_id"`
	Data   any       `json:"data,omitempty"`
	Time   time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, taskID string, data any) Event {
	return Event{
		Type:   eventType,
		TaskID: taskID,
		Data:   data,
		Time:   time.Now(),
	}
}

// PipelineData identifies a created or re-attached pipeline.
type PipelineData struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	JobWebURL string `json:"job_web_url"`
	Attached  bool   `json:"attached,omitempty"`
}

// MessageData is a message sent to the requester.
type MessageData struct {
	Text string `json:"text"`
}

// FinishedData describes a task's outcome.
type FinishedData struct {
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}
