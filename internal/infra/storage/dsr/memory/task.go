// Package memory provides in-memory implementations of the task and
// sub-request repositories for testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

// Ensure TaskStore implements dsr.TaskRepository at compile time.
var _ dsr.TaskRepository = (*TaskStore)(nil)

// TaskStore provides an in-memory implementation of dsr.TaskRepository.
// Stored tasks are snapshotted on write and reconstructed on read so callers
// never share mutable aggregate state with the store.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*dsr.Task
	// order preserves insertion order for ListTasksByStatus.
	order []uuid.UUID
}

// NewTaskStore creates a new in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*dsr.Task)}
}

// CreateTask stores a snapshot of the task.
func (s *TaskStore) CreateTask(_ context.Context, task *dsr.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID()]; !exists {
		s.order = append(s.order, task.ID())
	}
	s.tasks[task.ID()] = snapshotTask(task)
	return nil
}

// GetTask returns a fresh reconstruction of the stored task.
func (s *TaskStore) GetTask(_ context.Context, taskID uuid.UUID) (*dsr.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, dsr.ErrTaskNotFound
	}
	return snapshotTask(task), nil
}

// UpdateTask replaces the stored snapshot of the task.
func (s *TaskStore) UpdateTask(_ context.Context, task *dsr.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID()]; !ok {
		return dsr.ErrTaskNotFound
	}
	s.tasks[task.ID()] = snapshotTask(task)
	return nil
}

// ListTasksByStatus returns tasks in the given status in insertion order.
func (s *TaskStore) ListTasksByStatus(_ context.Context, status dsr.TaskStatus) ([]*dsr.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*dsr.Task
	for _, id := range s.order {
		task := s.tasks[id]
		if task.Status() == status {
			out = append(out, snapshotTask(task))
		}
	}
	return out, nil
}

func snapshotTask(task *dsr.Task) *dsr.Task {
	return dsr.ReconstructTask(
		task.ID(),
		task.PrivacyRequestID(),
		task.CollectionName(),
		task.ActionType(),
		task.AsyncMechanism(),
		task.Status(),
		task.StartTime(),
		task.EndTime(),
		copyRows(task.AccessResult()),
		task.RowsMasked(),
	)
}

func copyRows(rows []dsr.Row) []dsr.Row {
	if rows == nil {
		return nil
	}
	out := make([]dsr.Row, len(rows))
	for i, row := range rows {
		copied := make(dsr.Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out[i] = copied
	}
	return out
}

// used by the sub-request store to keep listings deterministic.
func sortBySeq(subs []*dsr.SubRequest) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].Seq() < subs[j].Seq() })
}
