package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/internal/infra/storage"
	"github.com/ethyca/fides-sub009/internal/infra/storage/dsr/memory"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
)

// fakeRunner returns a canned outcome per task ID and records invocations.
type fakeRunner struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]error
	runs     map[uuid.UUID]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outcomes: make(map[uuid.UUID]error), runs: make(map[uuid.UUID]int)}
}

func (r *fakeRunner) RunTask(_ context.Context, task *dsr.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[task.ID()]++
	return r.outcomes[task.ID()]
}

func (r *fakeRunner) runCount(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

// capturingPublisher records every published event.
type capturingPublisher struct {
	mu     sync.Mutex
	events []dsr.DomainEvent
}

func (p *capturingPublisher) PublishDomainEvent(_ context.Context, event dsr.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) byType(eventType string) []dsr.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []dsr.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type schedulerHarness struct {
	scheduler *Scheduler
	tasks     *memory.TaskStore
	checker   *memory.RequestChecker
	runner    *fakeRunner
	publisher *capturingPublisher
}

func newSchedulerHarness(t *testing.T) *schedulerHarness {
	t.Helper()

	tasks := memory.NewTaskStore()
	checker := memory.NewRequestChecker()
	runner := newFakeRunner()
	publisher := &capturingPublisher{}

	return &schedulerHarness{
		scheduler: New(tasks, checker, runner, "@every 30s", 4,
			logger.Noop(), storage.NoOpTracer(), WithEventPublisher(publisher)),
		tasks:     tasks,
		checker:   checker,
		runner:    runner,
		publisher: publisher,
	}
}

// suspendedTask persists a task in AWAITING_PROCESSING so Tick picks it up.
func (h *schedulerHarness) suspendedTask(t *testing.T) *dsr.Task {
	t.Helper()
	task := dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeAccess)
	require.NoError(t, task.Start())
	require.NoError(t, task.AwaitProcessing())
	require.NoError(t, h.tasks.CreateTask(context.Background(), task))
	return task
}

func TestSchedulerTickOutcomes(t *testing.T) {
	t.Parallel()

	h := newSchedulerHarness(t)
	ctx := context.Background()

	completed := h.suspendedTask(t)
	suspended := h.suspendedTask(t)
	failed := h.suspendedTask(t)

	h.runner.outcomes[suspended.ID()] = dsr.ErrAwaitingProcessing
	h.runner.outcomes[failed.ID()] = assert.AnError

	h.scheduler.Tick(ctx)

	assert.Equal(t, 1, h.runner.runCount(completed.ID()))
	assert.Equal(t, 1, h.runner.runCount(suspended.ID()))
	assert.Equal(t, 1, h.runner.runCount(failed.ID()))

	// A failed tick transitions the task to its terminal error state; the
	// others are left to the runner's own persistence.
	got, err := h.tasks.GetTask(ctx, failed.ID())
	require.NoError(t, err)
	assert.Equal(t, dsr.TaskStatusError, got.Status())

	got, err = h.tasks.GetTask(ctx, suspended.ID())
	require.NoError(t, err)
	assert.Equal(t, dsr.TaskStatusAwaitingProcessing, got.Status())

	assert.Len(t, h.publisher.byType(dsr.EventTypeTaskCompleted), 1)
	assert.Len(t, h.publisher.byType(dsr.EventTypeTaskSuspended), 1)

	failures := h.publisher.byType(dsr.EventTypeTaskFailed)
	require.Len(t, failures, 1)
	fe, ok := failures[0].(dsr.TaskFailedEvent)
	require.True(t, ok)
	assert.Equal(t, failed.ID(), fe.TaskID)
	assert.Equal(t, assert.AnError.Error(), fe.Reason)
}

func TestSchedulerTickSkipsCancelledRequests(t *testing.T) {
	t.Parallel()

	h := newSchedulerHarness(t)
	ctx := context.Background()

	task := h.suspendedTask(t)
	h.checker.Cancel(task.PrivacyRequestID())

	h.scheduler.Tick(ctx)

	assert.Zero(t, h.runner.runCount(task.ID()))
	assert.Empty(t, h.publisher.events)

	// The task stays suspended rather than being failed.
	got, err := h.tasks.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, dsr.TaskStatusAwaitingProcessing, got.Status())
}

func TestSchedulerTickIgnoresOtherStatuses(t *testing.T) {
	t.Parallel()

	h := newSchedulerHarness(t)
	ctx := context.Background()

	pending := dsr.NewTask(uuid.New(), uuid.New(), "orders", dsr.ActionTypeAccess)
	require.NoError(t, h.tasks.CreateTask(ctx, pending))

	h.scheduler.Tick(ctx)

	assert.Zero(t, h.runner.runCount(pending.ID()))
}

func TestSchedulerFailTaskSkipsTerminal(t *testing.T) {
	t.Parallel()

	h := newSchedulerHarness(t)
	ctx := context.Background()

	// The runner completes the task itself but still returns an error; the
	// scheduler must not clobber the terminal state.
	task := h.suspendedTask(t)
	h.runner.outcomes[task.ID()] = assert.AnError

	stored, err := h.tasks.GetTask(ctx, task.ID())
	require.NoError(t, err)
	require.NoError(t, stored.Resume())
	require.NoError(t, stored.CompleteAccess(nil))
	require.NoError(t, h.tasks.UpdateTask(ctx, stored))

	h.scheduler.failTask(ctx, task.ID(), logger.Noop())

	got, err := h.tasks.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, dsr.TaskStatusComplete, got.Status())
}

func TestSchedulerSelfConcurrencyGuard(t *testing.T) {
	t.Parallel()

	h := newSchedulerHarness(t)
	id := uuid.New()

	require.True(t, h.scheduler.acquire(id))
	assert.False(t, h.scheduler.acquire(id))

	h.scheduler.release(id)
	assert.True(t, h.scheduler.acquire(id))
}
