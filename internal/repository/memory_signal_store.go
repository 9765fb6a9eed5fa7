package repository

import (
	"context"
	"sync"

	"SignalGuard/internal/domain/models"
	domrepo "SignalGuard/internal/domain/repository"
)

// MemorySignalStore keeps the most recent signals in process. Oldest entries are evicted past
// capacity.
type MemorySignalStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	byID     map[string]models.Signal
}

func NewMemorySignalStore(capacity int) *MemorySignalStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemorySignalStore{capacity: capacity, byID: make(map[string]models.Signal)}
}

func (s *MemorySignalStore) Save(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[sig.ID]; !exists {
		s.order = append(s.order, sig.ID)
	}
	s.byID[sig.ID] = sig
	for len(s.order) > s.capacity {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *MemorySignalStore) Get(_ context.Context, id string) (models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.byID[id]
	if !ok {
		return models.Signal{}, domrepo.ErrNotFound
	}
	return sig, nil
}

// Recent returns up to limit signals, newest first.
func (s *MemorySignalStore) Recent(_ context.Context, limit int) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]models.Signal, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out, nil
}
