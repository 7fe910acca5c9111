// Package dsr provides domain types and interfaces for executing data subject
// request tasks against connected data sources. It defines the core
// abstractions needed to drive tasks through a resumable, tick-based
// asynchronous polling protocol and to track the sub-requests each task spawns.
package dsr

import (
	"time"

	"github.com/google/uuid"

	"github.com/ethyca/fides-sub009/pkg/common/timeutil"
)

// Task tracks the full lifecycle of one logical unit of work against one
// connected data source for one privacy request. All resumability state lives
// in the task's persisted sub-requests; the task itself carries identity,
// action type, and lifecycle status.
type Task struct {
	id               uuid.UUID
	privacyRequestID uuid.UUID
	collectionName   string
	actionType       ActionType
	asyncMechanism   AsyncMechanism

	status   TaskStatus
	timeline *Timeline

	accessResult []Row
	rowsMasked   int
}

// TaskOption defines functional options for configuring a new Task.
type TaskOption func(*Task)

// WithTimeProvider sets a custom time provider for the task's timeline.
func WithTimeProvider(tp timeutil.Provider) TaskOption {
	return func(t *Task) { t.timeline = NewTimeline(tp) }
}

// NewTask creates a new Task for one collection of one privacy request.
func NewTask(
	taskID uuid.UUID,
	privacyRequestID uuid.UUID,
	collectionName string,
	actionType ActionType,
	opts ...TaskOption,
) *Task {
	task := &Task{
		id:               taskID,
		privacyRequestID: privacyRequestID,
		collectionName:   collectionName,
		actionType:       actionType,
		asyncMechanism:   AsyncMechanismPolling,
		status:           TaskStatusPending,
		timeline:         NewTimeline(timeutil.Default()),
	}

	for _, opt := range opts {
		opt(task)
	}

	return task
}

// ReconstructTask creates a Task from persisted data without enforcing
// creation-time invariants. This should only be used by repositories when
// reconstructing from storage.
func ReconstructTask(
	taskID uuid.UUID,
	privacyRequestID uuid.UUID,
	collectionName string,
	actionType ActionType,
	asyncMechanism AsyncMechanism,
	status TaskStatus,
	startTime time.Time,
	endTime time.Time,
	accessResult []Row,
	rowsMasked int,
) *Task {
	return &Task{
		id:               taskID,
		privacyRequestID: privacyRequestID,
		collectionName:   collectionName,
		actionType:       actionType,
		asyncMechanism:   asyncMechanism,
		status:           status,
		timeline:         ReconstructTimeline(startTime, endTime, time.Time{}),
		accessResult:     accessResult,
		rowsMasked:       rowsMasked,
	}
}

// ID returns the unique identifier for this task.
func (t *Task) ID() uuid.UUID { return t.id }

// PrivacyRequestID returns the identifier of the owning privacy request.
func (t *Task) PrivacyRequestID() uuid.UUID { return t.privacyRequestID }

// CollectionName returns the dataset/source name this task executes against.
func (t *Task) CollectionName() string { return t.collectionName }

// ActionType returns whether this task performs access or erasure.
func (t *Task) ActionType() ActionType { return t.actionType }

// AsyncMechanism returns how the connector reports asynchronous completion.
func (t *Task) AsyncMechanism() AsyncMechanism { return t.asyncMechanism }

// Status returns the current execution status of the task.
func (t *Task) Status() TaskStatus { return t.status }

// StartTime returns the time the task entered execution.
func (t *Task) StartTime() time.Time { return t.timeline.StartedAt() }

// EndTime returns the time the task reached a terminal state.
func (t *Task) EndTime() time.Time { return t.timeline.CompletedAt() }

// AccessResult returns the aggregated access rows recorded on completion.
func (t *Task) AccessResult() []Row { return t.accessResult }

// RowsMasked returns the total masked-row count recorded on completion.
func (t *Task) RowsMasked() int { return t.rowsMasked }

// UpdateStatus changes the task's status after validating the transition.
func (t *Task) UpdateStatus(newStatus TaskStatus) error {
	if err := t.status.validateTransition(newStatus); err != nil {
		return err
	}

	if newStatus.IsTerminal() {
		t.timeline.MarkCompleted()
	} else {
		t.timeline.UpdateLastUpdate()
	}

	t.status = newStatus
	return nil
}

// Start transitions the task from PENDING to IN_PROGRESS.
func (t *Task) Start() error {
	return t.UpdateStatus(TaskStatusInProgress)
}

// AwaitProcessing suspends the task until the next scheduling tick.
func (t *Task) AwaitProcessing() error {
	return t.UpdateStatus(TaskStatusAwaitingProcessing)
}

// Resume transitions a suspended task back to IN_PROGRESS for a new tick.
func (t *Task) Resume() error {
	return t.UpdateStatus(TaskStatusInProgress)
}

// CompleteAccess marks the task complete and records its aggregated rows.
func (t *Task) CompleteAccess(rows []Row) error {
	if t.status == TaskStatusComplete {
		return nil // already complete, idempotent
	}
	if err := t.UpdateStatus(TaskStatusComplete); err != nil {
		return err
	}
	t.accessResult = rows
	return nil
}

// CompleteErasure marks the task complete and records the masked-row total.
func (t *Task) CompleteErasure(rowsMasked int) error {
	if t.status == TaskStatusComplete {
		return nil // already complete, idempotent
	}
	if err := t.UpdateStatus(TaskStatusComplete); err != nil {
		return err
	}
	t.rowsMasked = rowsMasked
	return nil
}

// Fail marks the task as failed.
func (t *Task) Fail() error {
	return t.UpdateStatus(TaskStatusError)
}
