package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

// Ensure RequestChecker implements dsr.RequestChecker at compile time.
var _ dsr.RequestChecker = (*RequestChecker)(nil)

// RequestChecker tracks cancelled privacy requests in memory. Requests are
// runnable until explicitly cancelled.
type RequestChecker struct {
	mu        sync.Mutex
	cancelled map[uuid.UUID]struct{}
}

// NewRequestChecker creates a checker with no cancelled requests.
func NewRequestChecker() *RequestChecker {
	return &RequestChecker{cancelled: make(map[uuid.UUID]struct{})}
}

// Cancel marks a privacy request as cancelled.
func (c *RequestChecker) Cancel(privacyRequestID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled[privacyRequestID] = struct{}{}
}

// IsCancelled reports whether the privacy request was cancelled.
func (c *RequestChecker) IsCancelled(_ context.Context, privacyRequestID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cancelled[privacyRequestID]
	return ok, nil
}
