package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

// Ensure SubRequestStore implements dsr.SubRequestRepository at compile time.
var _ dsr.SubRequestRepository = (*SubRequestStore)(nil)

// SubRequestStore provides an in-memory implementation of
// dsr.SubRequestRepository.
type SubRequestStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*dsr.SubRequest
}

// NewSubRequestStore creates a new in-memory sub-request store.
func NewSubRequestStore() *SubRequestStore {
	return &SubRequestStore{subs: make(map[uuid.UUID]*dsr.SubRequest)}
}

// CreateSubRequest stores a snapshot of the sub-request.
func (s *SubRequestStore) CreateSubRequest(_ context.Context, sr *dsr.SubRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[sr.ID()] = snapshotSubRequest(sr)
	return nil
}

// GetSubRequest returns a fresh reconstruction of the stored sub-request.
func (s *SubRequestStore) GetSubRequest(_ context.Context, id uuid.UUID) (*dsr.SubRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.subs[id]
	if !ok {
		return nil, dsr.ErrSubRequestNotFound
	}
	return snapshotSubRequest(sr), nil
}

// UpdateSubRequest replaces the stored snapshot of the sub-request.
func (s *SubRequestStore) UpdateSubRequest(_ context.Context, sr *dsr.SubRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sr.ID()]; !ok {
		return dsr.ErrSubRequestNotFound
	}
	s.subs[sr.ID()] = snapshotSubRequest(sr)
	return nil
}

// ListSubRequests returns the task's sub-requests in creation (seq) order.
func (s *SubRequestStore) ListSubRequests(_ context.Context, taskID uuid.UUID) ([]*dsr.SubRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*dsr.SubRequest
	for _, sr := range s.subs {
		if sr.TaskID() == taskID {
			out = append(out, snapshotSubRequest(sr))
		}
	}
	sortBySeq(out)
	return out, nil
}

func snapshotSubRequest(sr *dsr.SubRequest) *dsr.SubRequest {
	var rowsMasked *int
	if n := sr.RowsMasked(); n != nil {
		v := *n
		rowsMasked = &v
	}

	params := make(map[string]any, len(sr.Params()))
	for k, v := range sr.Params() {
		params[k] = v
	}

	return dsr.ReconstructSubRequest(
		sr.ID(),
		sr.TaskID(),
		sr.Seq(),
		params,
		sr.Status(),
		copyRows(sr.Rows()),
		rowsMasked,
		sr.CreatedAt(),
		sr.Failure(),
	)
}
