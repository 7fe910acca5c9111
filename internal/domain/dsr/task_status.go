package dsr

import "fmt"

// TaskStatus represents the execution state of a request task. It enables
// fine-grained tracking of task progress across scheduling ticks.
type TaskStatus string

const (
	// TaskStatusPending indicates a task is created but not yet started.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusInProgress indicates a task is actively executing a tick.
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"

	// TaskStatusAwaitingProcessing indicates a task is suspended waiting for
	// an external system; the scheduler will re-invoke it on a later tick.
	TaskStatusAwaitingProcessing TaskStatus = "AWAITING_PROCESSING"

	// TaskStatusComplete indicates a task finished successfully.
	TaskStatusComplete TaskStatus = "COMPLETE"

	// TaskStatusError indicates a task encountered an unrecoverable error.
	TaskStatusError TaskStatus = "ERROR"

	// TaskStatusUnspecified is used when a task status is unknown.
	TaskStatusUnspecified TaskStatus = "UNSPECIFIED"
)

// String returns the string representation of the TaskStatus.
func (s TaskStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusComplete || s == TaskStatusError
}

// ParseTaskStatus converts a string to a TaskStatus.
func ParseTaskStatus(s string) TaskStatus {
	switch s {
	case "PENDING":
		return TaskStatusPending
	case "IN_PROGRESS":
		return TaskStatusInProgress
	case "AWAITING_PROCESSING":
		return TaskStatusAwaitingProcessing
	case "COMPLETE":
		return TaskStatusComplete
	case "ERROR":
		return TaskStatusError
	default:
		return TaskStatusUnspecified
	}
}

// validateTransition checks if a status transition is valid and returns an
// error if not.
func (s TaskStatus) validateTransition(target TaskStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid task status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the task lifecycle rules. A suspended task may
// resume any number of times, but terminal states admit no transitions.
func (s TaskStatus) isValidTransition(target TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return target == TaskStatusInProgress || target == TaskStatusError
	case TaskStatusInProgress:
		return target == TaskStatusAwaitingProcessing || target == TaskStatusComplete || target == TaskStatusError
	case TaskStatusAwaitingProcessing:
		return target == TaskStatusInProgress || target == TaskStatusError
	case TaskStatusComplete, TaskStatusError:
		return false
	default:
		return false
	}
}
