package repository

import (
	"context"
	"sync"

	"SignalGuard/internal/domain/models"
)

const defaultHistoryWindow = 100

type sampleRing struct {
	mu    sync.Mutex
	buf   []models.PerformanceSample
	next  int
	count int
}

func (r *sampleRing) push(s models.PerformanceSample) {
	r.mu.Lock()
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

func (r *sampleRing) snapshot() []models.PerformanceSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PerformanceSample, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *sampleRing) reset() {
	r.mu.Lock()
	r.next, r.count = 0, 0
	r.mu.Unlock()
}

// MemoryHistoryStore keeps one fixed-size ring per source. The outer lock only guards ring
// creation, so appends for different sources never wait on each other.
type MemoryHistoryStore struct {
	window int
	mu     sync.RWMutex
	rings  map[string]*sampleRing
}

func NewMemoryHistoryStore(window int) *MemoryHistoryStore {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &MemoryHistoryStore{window: window, rings: make(map[string]*sampleRing)}
}

func (s *MemoryHistoryStore) ring(source string) *sampleRing {
	s.mu.RLock()
	r, ok := s.rings[source]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rings[source]; !ok {
		r = &sampleRing{buf: make([]models.PerformanceSample, s.window)}
		s.rings[source] = r
	}
	return r
}

func (s *MemoryHistoryStore) Append(_ context.Context, sample models.PerformanceSample) error {
	s.ring(sample.SourceID).push(sample)
	return nil
}

func (s *MemoryHistoryStore) Window(_ context.Context, sourceID string) ([]models.PerformanceSample, error) {
	s.mu.RLock()
	r, ok := s.rings[sourceID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.snapshot(), nil
}

func (s *MemoryHistoryStore) Reset(_ context.Context, sourceID string) error {
	s.mu.RLock()
	r, ok := s.rings[sourceID]
	s.mu.RUnlock()
	if ok {
		r.reset()
	}
	return nil
}
