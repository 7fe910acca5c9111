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

// Ensure subRequestStore implements dsr.SubRequestRepository at compile time.
var _ dsr.SubRequestRepository = (*subRequestStore)(nil)

// subRequestStore implements dsr.SubRequestRepository using PostgreSQL. Every
// polling tick reads and writes through this store, so all protocol progress
// survives a crash between ticks.
type subRequestStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewSubRequestStore creates a SubRequestRepository backed by PostgreSQL.
func NewSubRequestStore(pool *pgxpool.Pool, tracer trace.Tracer) *subRequestStore {
	return &subRequestStore{pool: pool, tracer: tracer}
}

// CreateSubRequest persists a newly created sub-request.
func (s *subRequestStore) CreateSubRequest(ctx context.Context, sr *dsr.SubRequest) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("sub_request_id", sr.ID().String()),
		attribute.String("task_id", sr.TaskID().String()),
		attribute.Int("seq", sr.Seq()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_sub_request", dbAttrs, func(ctx context.Context) error {
		params, err := json.Marshal(sr.Params())
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		resultRows, err := marshalRows(sr.Rows())
		if err != nil {
			return err
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO dsr_sub_requests (
				sub_request_id, task_id, seq, params, status,
				result_rows, rows_masked, failure, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			pgtype.UUID{Bytes: sr.ID(), Valid: true},
			pgtype.UUID{Bytes: sr.TaskID(), Valid: true},
			sr.Seq(),
			params,
			string(sr.Status()),
			resultRows,
			sr.RowsMasked(),
			sr.Failure(),
			pgtype.Timestamptz{Time: sr.CreatedAt(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("sub-request insert error: %w", err)
		}
		return nil
	})
}

// GetSubRequest retrieves a single sub-request by ID.
func (s *subRequestStore) GetSubRequest(ctx context.Context, id uuid.UUID) (*dsr.SubRequest, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("sub_request_id", id.String()),
	)

	var sr *dsr.SubRequest

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_sub_request", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT sub_request_id, task_id, seq, params, status,
			       result_rows, rows_masked, failure, created_at
			FROM dsr_sub_requests
			WHERE sub_request_id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)

		var err error
		sr, err = scanSubRequest(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return dsr.ErrSubRequestNotFound
			}
			return fmt.Errorf("sub-request query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sr, nil
}

// UpdateSubRequest persists changes to an existing sub-request.
func (s *subRequestStore) UpdateSubRequest(ctx context.Context, sr *dsr.SubRequest) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("sub_request_id", sr.ID().String()),
		attribute.String("status", string(sr.Status())),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_sub_request", dbAttrs, func(ctx context.Context) error {
		params, err := json.Marshal(sr.Params())
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		resultRows, err := marshalRows(sr.Rows())
		if err != nil {
			return err
		}

		tag, err := s.pool.Exec(ctx, `
			UPDATE dsr_sub_requests
			SET params = $2,
			    status = $3,
			    result_rows = $4,
			    rows_masked = $5,
			    failure = $6,
			    updated_at = NOW()
			WHERE sub_request_id = $1`,
			pgtype.UUID{Bytes: sr.ID(), Valid: true},
			params,
			string(sr.Status()),
			resultRows,
			sr.RowsMasked(),
			sr.Failure(),
		)
		if err != nil {
			return fmt.Errorf("sub-request update error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return dsr.ErrSubRequestNotFound
		}
		return nil
	})
}

// ListSubRequests returns every sub-request for a task in stable creation
// order, which fixes both the polling order and the aggregation order.
func (s *subRequestStore) ListSubRequests(ctx context.Context, taskID uuid.UUID) ([]*dsr.SubRequest, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", taskID.String()),
	)

	var subs []*dsr.SubRequest

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_sub_requests", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT sub_request_id, task_id, seq, params, status,
			       result_rows, rows_masked, failure, created_at
			FROM dsr_sub_requests
			WHERE task_id = $1
			ORDER BY seq`,
			pgtype.UUID{Bytes: taskID, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("sub-request list query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			sr, err := scanSubRequest(rows)
			if err != nil {
				return fmt.Errorf("sub-request scan error: %w", err)
			}
			subs = append(subs, sr)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func scanSubRequest(row pgx.Row) (*dsr.SubRequest, error) {
	var (
		id            pgtype.UUID
		taskID        pgtype.UUID
		seq           int
		paramsRaw     []byte
		status        string
		resultRowsRaw []byte
		rowsMasked    *int
		failure       string
		createdAt     pgtype.Timestamptz
	)

	if err := row.Scan(
		&id, &taskID, &seq, &paramsRaw, &status,
		&resultRowsRaw, &rowsMasked, &failure, &createdAt,
	); err != nil {
		return nil, err
	}

	var params map[string]any
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}

	resultRows, err := unmarshalRows(resultRowsRaw)
	if err != nil {
		return nil, err
	}

	return dsr.ReconstructSubRequest(
		id.Bytes,
		taskID.Bytes,
		seq,
		params,
		dsr.SubRequestStatus(status),
		resultRows,
		rowsMasked,
		createdAt.Time,
		failure,
	), nil
}
