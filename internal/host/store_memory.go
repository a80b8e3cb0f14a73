package host

import (
	"context"
	"sync"

	id "gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded host store for tests and single-process
// deployments.
type InMemory struct {
	mu    sync.RWMutex
	hosts map[id.HostID]*Host
}

func NewInMemory() *InMemory {
	return &InMemory{hosts: make(map[id.HostID]*Host)}
}

func (s *InMemory) FindByID(_ context.Context, hostID id.HostID) (*Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[hostID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *h
	return &copied, nil
}

func (s *InMemory) Create(_ context.Context, h *Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[h.ID]; ok {
		return sentinel.ErrConflict
	}
	copied := *h
	s.hosts[h.ID] = &copied
	return nil
}

func (s *InMemory) List(_ context.Context) ([]*Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		copied := *h
		out = append(out, &copied)
	}
	return out, nil
}
