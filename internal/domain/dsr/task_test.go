package dsr

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	requestID := uuid.New()

	task := NewTask(taskID, requestID, "orders", ActionTypeAccess)

	assert.Equal(t, taskID, task.ID())
	assert.Equal(t, requestID, task.PrivacyRequestID())
	assert.Equal(t, "orders", task.CollectionName())
	assert.Equal(t, ActionTypeAccess, task.ActionType())
	assert.Equal(t, AsyncMechanismPolling, task.AsyncMechanism())
	assert.Equal(t, TaskStatusPending, task.Status())
	assert.False(t, task.StartTime().IsZero())
	assert.True(t, task.EndTime().IsZero())
}

func TestTaskStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    TaskStatus
		to      TaskStatus
		wantErr bool
	}{
		{name: "pending to in progress", from: TaskStatusPending, to: TaskStatusInProgress},
		{name: "pending to error", from: TaskStatusPending, to: TaskStatusError},
		{name: "pending to awaiting is invalid", from: TaskStatusPending, to: TaskStatusAwaitingProcessing, wantErr: true},
		{name: "in progress to awaiting", from: TaskStatusInProgress, to: TaskStatusAwaitingProcessing},
		{name: "in progress to complete", from: TaskStatusInProgress, to: TaskStatusComplete},
		{name: "in progress to error", from: TaskStatusInProgress, to: TaskStatusError},
		{name: "awaiting to in progress", from: TaskStatusAwaitingProcessing, to: TaskStatusInProgress},
		{name: "awaiting to error", from: TaskStatusAwaitingProcessing, to: TaskStatusError},
		{name: "awaiting to complete is invalid", from: TaskStatusAwaitingProcessing, to: TaskStatusComplete, wantErr: true},
		{name: "complete is closed", from: TaskStatusComplete, to: TaskStatusInProgress, wantErr: true},
		{name: "error is closed", from: TaskStatusError, to: TaskStatusInProgress, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			task := ReconstructTask(
				uuid.New(), uuid.New(), "orders",
				ActionTypeAccess, AsyncMechanismPolling,
				tt.from, time.Now(), time.Time{}, nil, 0,
			)

			err := task.UpdateStatus(tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.from, task.Status())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, task.Status())
		})
	}
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()

	task := NewTask(uuid.New(), uuid.New(), "orders", ActionTypeAccess)

	require.NoError(t, task.Start())
	assert.Equal(t, TaskStatusInProgress, task.Status())

	require.NoError(t, task.AwaitProcessing())
	assert.Equal(t, TaskStatusAwaitingProcessing, task.Status())

	require.NoError(t, task.Resume())
	assert.Equal(t, TaskStatusInProgress, task.Status())

	rows := []Row{{"email": "jane@example.com"}}
	require.NoError(t, task.CompleteAccess(rows))
	assert.Equal(t, TaskStatusComplete, task.Status())
	assert.Equal(t, rows, task.AccessResult())
	assert.False(t, task.EndTime().IsZero())
}

func TestTaskCompleteAccessIdempotent(t *testing.T) {
	t.Parallel()

	task := NewTask(uuid.New(), uuid.New(), "orders", ActionTypeAccess)
	require.NoError(t, task.Start())

	rows := []Row{{"id": 1}}
	require.NoError(t, task.CompleteAccess(rows))

	// A second completion must not clobber the recorded result.
	require.NoError(t, task.CompleteAccess([]Row{{"id": 99}}))
	assert.Equal(t, rows, task.AccessResult())
}

func TestTaskCompleteErasure(t *testing.T) {
	t.Parallel()

	task := NewTask(uuid.New(), uuid.New(), "orders", ActionTypeErasure)
	require.NoError(t, task.Start())
	require.NoError(t, task.CompleteErasure(3))

	assert.Equal(t, TaskStatusComplete, task.Status())
	assert.Equal(t, 3, task.RowsMasked())

	require.NoError(t, task.CompleteErasure(42))
	assert.Equal(t, 3, task.RowsMasked())
}

func TestTaskFailFromAwaiting(t *testing.T) {
	t.Parallel()

	task := NewTask(uuid.New(), uuid.New(), "orders", ActionTypeAccess)
	require.NoError(t, task.Start())
	require.NoError(t, task.AwaitProcessing())

	require.NoError(t, task.Fail())
	assert.Equal(t, TaskStatusError, task.Status())
	assert.True(t, task.Status().IsTerminal())
}
