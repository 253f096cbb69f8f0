package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowEntry is one fixed window's counter.
type windowEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is the in-process counter backend. Expired windows are
// lazily replaced on access and reaped by a single periodic sweep, not
// per-entry timers.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryStore creates an in-memory store with a background sweep.
// Parameters:
//   - sweepEvery: interval between eviction sweeps; <=0 defaults to 1m.
// Returns:
//   - *MemoryStore: running store; call Close to stop the sweeper.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	s := &MemoryStore{
		entries:    make(map[string]*windowEntry),
		sweepEvery: sweepEvery,
		stop:       make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// CheckIncr implements Store.
func (s *MemoryStore) CheckIncr(_ context.Context, key string, max int, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(window)}
		s.entries[key] = e
	}
	if e.count >= int64(max) {
		// Deny without inflating the counter past the limit.
		return false, e.count, e.resetAt, nil
	}
	e.count++
	return true, e.count, e.resetAt, nil
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &windowEntry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return e.count, e.resetAt, nil
	}
	e.count++
	return e.count, e.resetAt, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.resetAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
