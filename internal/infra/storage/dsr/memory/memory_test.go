package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

func newTask() *dsr.Task {
	return dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeAccess)
}

func TestTaskStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	ctx := context.Background()
	task := newTask()

	require.NoError(t, store.CreateTask(ctx, task))

	got, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, task.ID(), got.ID())
	assert.Equal(t, task.PrivacyRequestID(), got.PrivacyRequestID())
	assert.Equal(t, dsr.TaskStatusPending, got.Status())
}

func TestTaskStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	ctx := context.Background()

	_, err := store.GetTask(ctx, uuid.New())
	assert.ErrorIs(t, err, dsr.ErrTaskNotFound)

	err = store.UpdateTask(ctx, newTask())
	assert.ErrorIs(t, err, dsr.ErrTaskNotFound)
}

func TestTaskStoreSnapshotIsolation(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	ctx := context.Background()
	task := newTask()
	require.NoError(t, store.CreateTask(ctx, task))

	// Mutating the caller's aggregate after the write must not leak into
	// the store.
	require.NoError(t, task.Start())

	got, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, dsr.TaskStatusPending, got.Status())

	// Mutating a read copy must not leak either.
	require.NoError(t, got.Start())
	again, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, dsr.TaskStatusPending, again.Status())
}

func TestTaskStoreListByStatusInsertionOrder(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	ctx := context.Background()

	first := newTask()
	second := newTask()
	running := newTask()
	require.NoError(t, running.Start())

	require.NoError(t, store.CreateTask(ctx, first))
	require.NoError(t, store.CreateTask(ctx, second))
	require.NoError(t, store.CreateTask(ctx, running))

	pending, err := store.ListTasksByStatus(ctx, dsr.TaskStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID(), pending[0].ID())
	assert.Equal(t, second.ID(), pending[1].ID())

	inProgress, err := store.ListTasksByStatus(ctx, dsr.TaskStatusInProgress)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, running.ID(), inProgress[0].ID())
}

func TestSubRequestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewSubRequestStore()
	ctx := context.Background()

	taskID := uuid.New()
	sr := dsr.NewSubRequest(taskID, 0, map[string]any{dsr.ParamCorrelationID: "exp-1"})
	require.NoError(t, store.CreateSubRequest(ctx, sr))

	got, err := store.GetSubRequest(ctx, sr.ID())
	require.NoError(t, err)
	assert.Equal(t, taskID, got.TaskID())
	assert.Equal(t, "exp-1", got.CorrelationID())
	assert.Equal(t, dsr.SubRequestStatusPending, got.Status())
}

func TestSubRequestStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewSubRequestStore()
	ctx := context.Background()

	_, err := store.GetSubRequest(ctx, uuid.New())
	assert.ErrorIs(t, err, dsr.ErrSubRequestNotFound)

	err = store.UpdateSubRequest(ctx, dsr.NewSubRequest(uuid.New(), 0, nil))
	assert.ErrorIs(t, err, dsr.ErrSubRequestNotFound)
}

func TestSubRequestStoreListSeqOrder(t *testing.T) {
	t.Parallel()

	store := NewSubRequestStore()
	ctx := context.Background()
	taskID := uuid.New()

	// Create out of seq order, plus one sub-request under another task.
	require.NoError(t, store.CreateSubRequest(ctx, dsr.NewSubRequest(taskID, 2, nil)))
	require.NoError(t, store.CreateSubRequest(ctx, dsr.NewSubRequest(taskID, 0, nil)))
	require.NoError(t, store.CreateSubRequest(ctx, dsr.NewSubRequest(taskID, 1, nil)))
	require.NoError(t, store.CreateSubRequest(ctx, dsr.NewSubRequest(uuid.New(), 0, nil)))

	subs, err := store.ListSubRequests(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for i, sr := range subs {
		assert.Equal(t, i, sr.Seq())
	}
}

func TestSubRequestStoreSnapshotIsolation(t *testing.T) {
	t.Parallel()

	store := NewSubRequestStore()
	ctx := context.Background()

	sr := dsr.NewSubRequest(uuid.New(), 0, map[string]any{"k": "v"})
	require.NoError(t, store.CreateSubRequest(ctx, sr))

	require.NoError(t, sr.MarkComplete([]dsr.Row{{"a": 1}}))

	got, err := store.GetSubRequest(ctx, sr.ID())
	require.NoError(t, err)
	assert.Equal(t, dsr.SubRequestStatusPending, got.Status())
	assert.Nil(t, got.Rows())

	// Params on a read copy are an independent map.
	got.Params()["k"] = "mutated"
	again, err := store.GetSubRequest(ctx, sr.ID())
	require.NoError(t, err)
	assert.Equal(t, "v", again.Params()["k"])
}

func TestRequestCheckerCancellation(t *testing.T) {
	t.Parallel()

	checker := NewRequestChecker()
	ctx := context.Background()
	id := uuid.New()

	cancelled, err := checker.IsCancelled(ctx, id)
	require.NoError(t, err)
	assert.False(t, cancelled)

	checker.Cancel(id)

	cancelled, err = checker.IsCancelled(ctx, id)
	require.NoError(t, err)
	assert.True(t, cancelled)
}
