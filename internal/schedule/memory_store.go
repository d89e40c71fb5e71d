package schedule

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps templates in process, for STORAGE=memory and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]Template
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[uuid.UUID]Template)}
}

func (s *MemoryStore) Get(_ context.Context, doctorID uuid.UUID) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[doctorID]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return &t, nil
}

func (s *MemoryStore) Put(_ context.Context, t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[t.DoctorID] = t
	return nil
}
