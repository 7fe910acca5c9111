// Package memory provides an in-memory attachment store for testing and
// development.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

// Ensure Store implements dsr.AttachmentStore at compile time.
var _ dsr.AttachmentStore = (*Store)(nil)

type blob struct {
	fileName string
	data     []byte
}

// Store keeps attachment blobs in a map.
type Store struct {
	mu    sync.Mutex
	blobs map[uuid.UUID]blob
}

// NewStore creates a new in-memory attachment store.
func NewStore() *Store {
	return &Store{blobs: make(map[uuid.UUID]blob)}
}

// Store saves a copy of the blob under the attachment's identifier.
func (s *Store) Store(_ context.Context, id uuid.UUID, fileName string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	s.blobs[id] = blob{fileName: fileName, data: copied}
	return nil
}

// Get returns a copy of a previously stored blob.
func (s *Store) Get(_ context.Context, id uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[id]
	if !ok {
		return nil, dsr.ErrAttachmentNotFound
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// FileName returns the stored file name for an attachment, for tests.
func (s *Store) FileName(id uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[id]
	return b.fileName, ok
}
