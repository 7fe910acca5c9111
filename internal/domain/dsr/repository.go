package dsr

import (
	"context"

	"github.com/google/uuid"
)

// TaskRepository defines the persistence operations for request tasks.
// It provides an abstraction layer over the storage mechanism used to
// maintain task state across scheduling ticks.
type TaskRepository interface {
	// CreateTask persists a new task's initial state.
	CreateTask(ctx context.Context, task *Task) error

	// GetTask retrieves a task's current state.
	GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error)

	// UpdateTask persists changes to an existing task's state.
	UpdateTask(ctx context.Context, task *Task) error

	// ListTasksByStatus retrieves tasks in the given status, oldest first.
	ListTasksByStatus(ctx context.Context, status TaskStatus) ([]*Task, error)
}

// SubRequestRepository defines the persistence operations for sub-requests.
// Listing is always in stable creation order; that ordering is what makes
// aggregation output deterministic even though completion timing is not.
type SubRequestRepository interface {
	// CreateSubRequest persists a new sub-request under its task.
	CreateSubRequest(ctx context.Context, sr *SubRequest) error

	// GetSubRequest retrieves a sub-request's current state.
	GetSubRequest(ctx context.Context, id uuid.UUID) (*SubRequest, error)

	// UpdateSubRequest persists changes to an existing sub-request.
	UpdateSubRequest(ctx context.Context, sr *SubRequest) error

	// ListSubRequests retrieves all sub-requests for a task in creation order.
	ListSubRequests(ctx context.Context, taskID uuid.UUID) ([]*SubRequest, error)
}

// AttachmentStore persists binary results retrieved mid-poll. Losing a DSR
// attachment is a compliance-relevant data-loss event, so implementations
// must surface persistence failures rather than swallow them.
type AttachmentStore interface {
	// Store persists the blob and returns a durable identifier.
	Store(ctx context.Context, id uuid.UUID, fileName string, data []byte) error

	// Get retrieves a previously stored blob by identifier.
	Get(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// RequestChecker reports whether the owning privacy request of a task is
// still runnable. The scheduler consults it before re-invoking a suspended
// task; cancellation is expressed at the privacy-request level.
type RequestChecker interface {
	IsCancelled(ctx context.Context, privacyRequestID uuid.UUID) (bool, error)
}
