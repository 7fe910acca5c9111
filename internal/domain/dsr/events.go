package dsr

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types for task lifecycle notifications consumed by external
// collaborators (messaging dispatch is outside this engine).
const (
	EventTypeTaskSuspended = "TaskSuspended"
	EventTypeTaskCompleted = "TaskCompleted"
	EventTypeTaskFailed    = "TaskFailed"
)

// DomainEvent is implemented by all task lifecycle events.
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// DomainEventPublisher delivers task lifecycle events to whatever external
// collaborator owns privacy request bookkeeping.
type DomainEventPublisher interface {
	PublishDomainEvent(ctx context.Context, event DomainEvent) error
}

type baseEvent struct {
	eventType  string
	occurredAt time.Time
}

func (e baseEvent) EventType() string     { return e.eventType }
func (e baseEvent) OccurredAt() time.Time { return e.occurredAt }

// TaskSuspendedEvent signals a task entered AWAITING_PROCESSING.
type TaskSuspendedEvent struct {
	baseEvent
	TaskID           uuid.UUID
	PrivacyRequestID uuid.UUID
}

// NewTaskSuspendedEvent creates a TaskSuspendedEvent.
func NewTaskSuspendedEvent(taskID, privacyRequestID uuid.UUID) TaskSuspendedEvent {
	return TaskSuspendedEvent{
		baseEvent:        baseEvent{eventType: EventTypeTaskSuspended, occurredAt: time.Now()},
		TaskID:           taskID,
		PrivacyRequestID: privacyRequestID,
	}
}

// TaskCompletedEvent signals a task reached COMPLETE.
type TaskCompletedEvent struct {
	baseEvent
	TaskID           uuid.UUID
	PrivacyRequestID uuid.UUID
	ActionType       ActionType
	RowCount         int
	RowsMasked       int
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(task *Task, rowCount, rowsMasked int) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent:        baseEvent{eventType: EventTypeTaskCompleted, occurredAt: time.Now()},
		TaskID:           task.ID(),
		PrivacyRequestID: task.PrivacyRequestID(),
		ActionType:       task.ActionType(),
		RowCount:         rowCount,
		RowsMasked:       rowsMasked,
	}
}

// TaskFailedEvent signals a task reached ERROR. Reason preserves the specific
// error message for operator diagnosis in the privacy request's execution log.
type TaskFailedEvent struct {
	baseEvent
	TaskID           uuid.UUID
	PrivacyRequestID uuid.UUID
	Reason           string
}

// NewTaskFailedEvent creates a TaskFailedEvent.
func NewTaskFailedEvent(task *Task, reason string) TaskFailedEvent {
	return TaskFailedEvent{
		baseEvent:        baseEvent{eventType: EventTypeTaskFailed, occurredAt: time.Now()},
		TaskID:           task.ID(),
		PrivacyRequestID: task.PrivacyRequestID(),
		Reason:           reason,
	}
}
