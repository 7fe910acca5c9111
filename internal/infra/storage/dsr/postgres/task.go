// Package postgres persists task and sub-request state in PostgreSQL,
// the durable backbone that makes the polling protocol resumable across
// worker restarts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// Ensure taskStore implements dsr.TaskRepository at compile time.
var _ dsr.TaskRepository = (*taskStore)(nil)

// taskStore implements dsr.TaskRepository using PostgreSQL. It provides the
// durable task state the scheduler inspects when deciding which suspended
// tasks to re-invoke.
type taskStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewTaskStore creates a TaskRepository backed by PostgreSQL.
func NewTaskStore(pool *pgxpool.Pool, tracer trace.Tracer) *taskStore {
	return &taskStore{pool: pool, tracer: tracer}
}

// CreateTask persists a new task's initial state.
func (s *taskStore) CreateTask(ctx context.Context, task *dsr.Task) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", task.ID().String()),
		attribute.String("collection_name", task.CollectionName()),
		attribute.String("status", string(task.Status())),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_task", dbAttrs, func(ctx context.Context) error {
		accessResult, err := marshalRows(task.AccessResult())
		if err != nil {
			return err
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO dsr_tasks (
				task_id, privacy_request_id, collection_name, action_type,
				async_mechanism, status, access_result, rows_masked,
				start_time, end_time
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			pgtype.UUID{Bytes: task.ID(), Valid: true},
			pgtype.UUID{Bytes: task.PrivacyRequestID(), Valid: true},
			task.CollectionName(),
			string(task.ActionType()),
			string(task.AsyncMechanism()),
			string(task.Status()),
			accessResult,
			task.RowsMasked(),
			pgtype.Timestamptz{Time: task.StartTime(), Valid: !task.StartTime().IsZero()},
			pgtype.Timestamptz{Time: task.EndTime(), Valid: !task.EndTime().IsZero()},
		)
		if err != nil {
			return fmt.Errorf("task insert error: %w", err)
		}
		return nil
	})
}

// GetTask retrieves a task's current state and reconstructs the domain Task.
func (s *taskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*dsr.Task, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", taskID.String()),
	)

	var task *dsr.Task

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_task", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT task_id, privacy_request_id, collection_name, action_type,
			       async_mechanism, status, access_result, rows_masked,
			       start_time, end_time
			FROM dsr_tasks
			WHERE task_id = $1`,
			pgtype.UUID{Bytes: taskID, Valid: true},
		)

		var err error
		task, err = scanTask(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return dsr.ErrTaskNotFound
			}
			return fmt.Errorf("task query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask persists changes to an existing task's state.
func (s *taskStore) UpdateTask(ctx context.Context, task *dsr.Task) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", task.ID().String()),
		attribute.String("status", string(task.Status())),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_task", dbAttrs, func(ctx context.Context) error {
		accessResult, err := marshalRows(task.AccessResult())
		if err != nil {
			return err
		}

		tag, err := s.pool.Exec(ctx, `
			UPDATE dsr_tasks
			SET status = $2,
			    access_result = $3,
			    rows_masked = $4,
			    start_time = $5,
			    end_time = $6,
			    updated_at = NOW()
			WHERE task_id = $1`,
			pgtype.UUID{Bytes: task.ID(), Valid: true},
			string(task.Status()),
			accessResult,
			task.RowsMasked(),
			pgtype.Timestamptz{Time: task.StartTime(), Valid: !task.StartTime().IsZero()},
			pgtype.Timestamptz{Time: task.EndTime(), Valid: !task.EndTime().IsZero()},
		)
		if err != nil {
			return fmt.Errorf("task update error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return dsr.ErrTaskNotFound
		}
		return nil
	})
}

// ListTasksByStatus returns every task currently in the given status, oldest
// first, which is the order the scheduler re-invokes suspended tasks in.
func (s *taskStore) ListTasksByStatus(ctx context.Context, status dsr.TaskStatus) ([]*dsr.Task, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("status", string(status)),
	)

	var tasks []*dsr.Task

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_tasks_by_status", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT task_id, privacy_request_id, collection_name, action_type,
			       async_mechanism, status, access_result, rows_masked,
			       start_time, end_time
			FROM dsr_tasks
			WHERE status = $1
			ORDER BY created_at`,
			string(status),
		)
		if err != nil {
			return fmt.Errorf("task list query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return fmt.Errorf("task scan error: %w", err)
			}
			tasks = append(tasks, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (*dsr.Task, error) {
	var (
		taskID           pgtype.UUID
		privacyRequestID pgtype.UUID
		collectionName   string
		actionType       string
		asyncMechanism   string
		status           string
		accessResultRaw  []byte
		rowsMasked       int
		startTime        pgtype.Timestamptz
		endTime          pgtype.Timestamptz
	)

	if err := row.Scan(
		&taskID, &privacyRequestID, &collectionName, &actionType,
		&asyncMechanism, &status, &accessResultRaw, &rowsMasked,
		&startTime, &endTime,
	); err != nil {
		return nil, err
	}

	accessResult, err := unmarshalRows(accessResultRaw)
	if err != nil {
		return nil, err
	}

	return dsr.ReconstructTask(
		taskID.Bytes,
		privacyRequestID.Bytes,
		collectionName,
		dsr.ActionType(actionType),
		dsr.AsyncMechanism(asyncMechanism),
		dsr.TaskStatus(status),
		startTime.Time,
		endTime.Time,
		accessResult,
		rowsMasked,
	), nil
}

func marshalRows(rows []dsr.Row) ([]byte, error) {
	if rows == nil {
		return nil, nil
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rows: %w", err)
	}
	return b, nil
}

func unmarshalRows(raw []byte) ([]dsr.Row, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []dsr.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rows: %w", err)
	}
	return rows, nil
}
