package lease

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryStore is an in-process Store for tests and single-worker runs.
type MemoryStore struct {
	clock  clockwork.Clock
	leases map[string]Record
	states map[string][]byte
	closed bool
	mu     sync.Mutex
}

// NewMemoryStore creates an empty store. A nil clock uses the real clock.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:  clock,
		leases: make(map[string]Record),
		states: make(map[string][]byte),
	}
}

// TryAcquire implements Store.
func (s *MemoryStore) TryAcquire(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error) {
	if err := validateTTL(ttl); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrBackendUnavailable
	}

	now := s.clock.Now()
	existing, ok := s.leases[key]
	switch {
	case ok && existing.HolderID == holderID:
		existing.ExpiresAt = now.Add(ttl)
		s.leases[key] = existing
		return true, nil
	case ok && !existing.Expired(now):
		return false, nil
	}

	s.leases[key] = Record{
		Key:        key,
		HolderID:   holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return true, nil
}

// Renew implements Store.
func (s *MemoryStore) Renew(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error) {
	if err := validateTTL(ttl); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrBackendUnavailable
	}

	now := s.clock.Now()
	existing, ok := s.leases[key]
	if !ok || existing.HolderID != holderID || existing.Expired(now) {
		return false, nil
	}
	existing.ExpiresAt = now.Add(ttl)
	s.leases[key] = existing
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(ctx context.Context, key, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrBackendUnavailable
	}
	if existing, ok := s.leases[key]; ok && existing.HolderID == holderID {
		delete(s.leases, key)
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrBackendUnavailable
	}
	existing, ok := s.leases[key]
	if !ok || existing.Expired(s.clock.Now()) {
		return nil, ErrNotFound
	}
	record := existing
	return &record, nil
}

// SaveState implements Store.
func (s *MemoryStore) SaveState(ctx context.Context, key, holderID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrBackendUnavailable
	}
	existing, ok := s.leases[key]
	if !ok || existing.HolderID != holderID || existing.Expired(s.clock.Now()) {
		return ErrLeaseLost
	}
	s.states[key] = append([]byte(nil), data...)
	return nil
}

// LoadState implements Store.
func (s *MemoryStore) LoadState(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrBackendUnavailable
	}
	data, ok := s.states[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Close marks the store unusable; later calls fail with ErrBackendUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
