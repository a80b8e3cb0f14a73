package visit

import (
	"context"
	"sort"
	"sync"

	id "gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded visit store. The single write lock gives the
// same read-validate-write exclusion the Postgres store gets from row
// locking, which makes it a faithful stand-in for concurrency tests.
type InMemory struct {
	mu      sync.RWMutex
	visits  map[id.VisitID]*Visit
	byToken map[string]id.VisitID
	events  []CheckEvent
}

func NewInMemory() *InMemory {
	return &InMemory{
		visits:  make(map[id.VisitID]*Visit),
		byToken: make(map[string]id.VisitID),
	}
}

func (s *InMemory) Insert(_ context.Context, v *Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byToken[v.SessionToken]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.visits[v.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *v
	s.visits[v.ID] = &copied
	s.byToken[v.SessionToken] = v.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, visitID id.VisitID) (*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(visitID)
}

func (s *InMemory) FindByToken(_ context.Context, token string) (*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visitID, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.findLocked(visitID)
}

func (s *InMemory) findLocked(visitID id.VisitID) (*Visit, error) {
	v, ok := s.visits[visitID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (s *InMemory) Execute(_ context.Context, visitID id.VisitID, validate func(*Visit) error, mutate func(*Visit)) (*Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[visitID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return executeLocked(v, validate, mutate)
}

func (s *InMemory) ExecuteByToken(_ context.Context, token string, validate func(*Visit) error, mutate func(*Visit)) (*Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visitID, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	v := s.visits[visitID]
	return executeLocked(v, validate, mutate)
}

// executeLocked runs validate against the live record and applies mutate
// under the store lock. Mutating a copy and swapping would also work; this
// keeps it simple since the lock is already exclusive.
func executeLocked(v *Visit, validate func(*Visit) error, mutate func(*Visit)) (*Visit, error) {
	if err := validate(v); err != nil {
		return nil, err
	}
	mutate(v)
	copied := *v
	return &copied, nil
}

func (s *InMemory) ListActive(_ context.Context, location id.Location) ([]*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Visit
	for _, v := range s.visits {
		if v.Status != StatusCheckedIn {
			continue
		}
		if location != "" && v.Location != location {
			continue
		}
		copied := *v
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) ListHistory(_ context.Context, filter HistoryFilter, limit int) ([]*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Visit
	for _, v := range s.visits {
		if filter.Location != "" && v.Location != filter.Location {
			continue
		}
		if filter.From != nil && v.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && v.CreatedAt.After(*filter.To) {
			continue
		}
		copied := *v
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) ListPendingForHost(_ context.Context, hostID id.HostID) ([]*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Visit
	for _, v := range s.visits {
		if v.Status != StatusPendingApproval || v.HostID != hostID {
			continue
		}
		copied := *v
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) AppendCheckEvent(_ context.Context, event CheckEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemory) ListCheckEvents(_ context.Context, visitID id.VisitID) ([]CheckEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CheckEvent
	for _, e := range s.events {
		if e.VisitID == visitID {
			out = append(out, e)
		}
	}
	return out, nil
}
