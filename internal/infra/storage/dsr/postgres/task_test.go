package postgres

import (
	"context"
	"testing"
	"time"

	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/internal/infra/storage"
)

func setupTaskTest(t *testing.T) (context.Context, *taskStore, func()) {
	t.Helper()

	db, cleanup := storage.SetupTestContainer(t)
	store := NewTaskStore(db, storage.NoOpTracer())
	ctx := context.Background()

	return ctx, store, cleanup
}

func TestPGTaskStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx, store, cleanup := setupTaskTest(t)
	defer cleanup()

	task := dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeAccess)
	require.NoError(t, store.CreateTask(ctx, task))

	loaded, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)

	assert.Equal(t, task.ID(), loaded.ID())
	assert.Equal(t, task.PrivacyRequestID(), loaded.PrivacyRequestID())
	assert.Equal(t, "orders", loaded.CollectionName())
	assert.Equal(t, dsr.ActionTypeAccess, loaded.ActionType())
	assert.Equal(t, dsr.AsyncMechanismPolling, loaded.AsyncMechanism())
	assert.Equal(t, dsr.TaskStatusPending, loaded.Status())
	assert.WithinDuration(t, task.StartTime(), loaded.StartTime(), time.Second)
	assert.True(t, loaded.EndTime().IsZero(), "EndTime should be unset")
}

func TestPGTaskStore_GetNonExistent(t *testing.T) {
	t.Parallel()

	ctx, store, cleanup := setupTaskTest(t)
	defer cleanup()

	_, err := store.GetTask(ctx, uuid.New())
	assert.ErrorIs(t, err, dsr.ErrTaskNotFound)
}

func TestPGTaskStore_UpdateLifecycle(t *testing.T) {
	t.Parallel()

	ctx, store, cleanup := setupTaskTest(t)
	defer cleanup()

	task := dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeAccess)
	require.NoError(t, store.CreateTask(ctx, task))

	require.NoError(t, task.Start())
	require.NoError(t, task.CompleteAccess([]dsr.Row{
		{"order": "A-1", "total": float64(100)},
		{"order": "A-2"},
	}))
	require.NoError(t, store.UpdateTask(ctx, task))

	loaded, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, dsr.TaskStatusComplete, loaded.Status())
	assert.False(t, loaded.EndTime().IsZero(), "EndTime should be set on completion")

	rows := loaded.AccessResult()
	require.Len(t, rows, 2)
	assert.Equal(t, "A-1", rows[0]["order"])
	assert.Equal(t, float64(100), rows[0]["total"])
}

func TestPGTaskStore_UpdateNonExistent(t *testing.T) {
	t.Parallel()

	ctx, store, cleanup := setupTaskTest(t)
	defer cleanup()

	task := dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeErasure)
	err := store.UpdateTask(ctx, task)
	assert.ErrorIs(t, err, dsr.ErrTaskNotFound)
}

func TestPGTaskStore_RowsMaskedRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, store, cleanup := setupTaskTest(t)
	defer cleanup()

	task := dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeErasure)
	require.NoError(t, store.CreateTask(ctx, task))

	require.NoError(t, task.Start())
	require.NoError(t, task.CompleteErasure(7))
	require.NoError(t, store.UpdateTask(ctx, task))

	loaded, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.RowsMasked())
	assert.Nil(t, loaded.AccessResult())
}

func TestPGTaskStore_ListByStatus(t *testing.T) {
	t.Parallel()

	ctx, store, cleanup := setupTaskTest(t)
	defer cleanup()

	first := dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeAccess)
	require.NoError(t, first.Start())
	require.NoError(t, first.AwaitProcessing())
	require.NoError(t, store.CreateTask(ctx, first))

	second := dsr.NewTask(uuid.New(), uuid.New(), "profiles", dsr.ActionTypeAccess)
	require.NoError(t, second.Start())
	require.NoError(t, second.AwaitProcessing())
	require.NoError(t, store.CreateTask(ctx, second))

	pending := dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeAccess)
	require.NoError(t, store.CreateTask(ctx, pending))

	suspended, err := store.ListTasksByStatus(ctx, dsr.TaskStatusAwaitingProcessing)
	require.NoError(t, err)
	require.Len(t, suspended, 2)
	assert.Equal(t, first.ID(), suspended[0].ID())
	assert.Equal(t, second.ID(), suspended[1].ID())
}
