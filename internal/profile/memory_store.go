package profile

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/auth"
)

type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[uuid.UUID]Profile)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Create(_ context.Context, p Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.ID]; ok {
		return false, nil
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	s.profiles[p.ID] = p
	return true, nil
}

func (s *MemoryStore) SearchDoctors(_ context.Context, q DoctorSearch) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := strings.ToLower(q.Name)
	var result []Profile
	for _, p := range s.profiles {
		if p.Role != auth.RoleDoctor {
			continue
		}
		if q.Specialty != "" && !strings.EqualFold(p.Specialty, q.Specialty) {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(p.FirstName+" "+p.LastName), name) {
			continue
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LastName != result[j].LastName {
			return result[i].LastName < result[j].LastName
		}
		return result[i].FirstName < result[j].FirstName
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (s *MemoryStore) CountByRole(_ context.Context) (map[auth.Role]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[auth.Role]int)
	for _, p := range s.profiles {
		counts[p.Role]++
	}
	return counts, nil
}
