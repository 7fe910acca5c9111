package dsr

import (
	"time"

	"github.com/google/uuid"
)

// ParamCorrelationID is the key under which the external system's opaque
// in-progress identifier is stored in a sub-request's parameter map. It is
// set exactly once, during the initial phase, and is what lets later polling
// ticks find "their" external job without any other shared state.
const ParamCorrelationID = "correlation_id"

// SubRequest represents one outstanding "notify me when X is ready" exchange
// with an external system. It is created during a task's initial phase and
// mutated during continuation polling; it is never deleted mid-flight.
type SubRequest struct {
	id         uuid.UUID
	taskID     uuid.UUID
	seq        int
	params     map[string]any
	status     SubRequestStatus
	rows       []Row
	rowsMasked *int
	createdAt  time.Time
	failure    string
}

// NewSubRequest creates a pending SubRequest under the given task. seq fixes
// the sub-request's position in the task's stable creation order.
func NewSubRequest(taskID uuid.UUID, seq int, params map[string]any) *SubRequest {
	if params == nil {
		params = make(map[string]any)
	}
	return &SubRequest{
		id:        uuid.New(),
		taskID:    taskID,
		seq:       seq,
		params:    params,
		status:    SubRequestStatusPending,
		createdAt: time.Now(),
	}
}

// ReconstructSubRequest creates a SubRequest from persisted data. This should
// only be used by repositories when reconstructing from storage.
func ReconstructSubRequest(
	id uuid.UUID,
	taskID uuid.UUID,
	seq int,
	params map[string]any,
	status SubRequestStatus,
	rows []Row,
	rowsMasked *int,
	createdAt time.Time,
	failure string,
) *SubRequest {
	return &SubRequest{
		id:         id,
		taskID:     taskID,
		seq:        seq,
		params:     params,
		status:     status,
		rows:       rows,
		rowsMasked: rowsMasked,
		createdAt:  createdAt,
		failure:    failure,
	}
}

// ID returns the unique identifier for this sub-request.
func (s *SubRequest) ID() uuid.UUID { return s.id }

// TaskID returns the identifier of the owning task.
func (s *SubRequest) TaskID() uuid.UUID { return s.taskID }

// Seq returns this sub-request's position in the task's creation order.
func (s *SubRequest) Seq() int { return s.seq }

// Params returns the opaque parameter map used to re-issue status and result
// calls for this sub-request.
func (s *SubRequest) Params() map[string]any { return s.params }

// Status returns the current status of the sub-request.
func (s *SubRequest) Status() SubRequestStatus { return s.status }

// Rows returns the result payload, or nil if not yet available.
func (s *SubRequest) Rows() []Row { return s.rows }

// RowsMasked returns the masked-row count for erasure sub-requests, or nil.
func (s *SubRequest) RowsMasked() *int { return s.rowsMasked }

// CreatedAt returns the time the sub-request entered the async phase.
func (s *SubRequest) CreatedAt() time.Time { return s.createdAt }

// Failure returns the recorded failure message for errored sub-requests.
func (s *SubRequest) Failure() string { return s.failure }

// CorrelationID returns the external correlation identifier, if known.
func (s *SubRequest) CorrelationID() string {
	if v, ok := s.params[ParamCorrelationID].(string); ok {
		return v
	}
	return ""
}

// SetCorrelationID stamps the external correlation identifier into the
// parameter map. It may only be set while the sub-request is pending.
func (s *SubRequest) SetCorrelationID(id string) error {
	if s.status.IsTerminal() {
		return ErrSubRequestTerminal
	}
	s.params[ParamCorrelationID] = id
	return nil
}

// MarkComplete records an access result payload and moves the sub-request to
// its terminal COMPLETE state. A nil payload is valid: absence of data on a
// completed sub-request is not a failure.
func (s *SubRequest) MarkComplete(rows []Row) error {
	if s.status.IsTerminal() {
		return ErrSubRequestTerminal
	}
	s.rows = rows
	s.status = SubRequestStatusComplete
	return nil
}

// MarkCompleteMasked records a masked-row count and moves the sub-request to
// COMPLETE. The count is always 1 on successful erasure completion.
func (s *SubRequest) MarkCompleteMasked(count int) error {
	if s.status.IsTerminal() {
		return ErrSubRequestTerminal
	}
	s.rowsMasked = &count
	s.status = SubRequestStatusComplete
	return nil
}

// MarkError records a failure message and moves the sub-request to its
// terminal ERROR state so the failure remains visible in aggregated
// diagnostics after the tick is failed.
func (s *SubRequest) MarkError(reason string) error {
	if s.status.IsTerminal() {
		return ErrSubRequestTerminal
	}
	s.failure = reason
	s.status = SubRequestStatusError
	return nil
}
