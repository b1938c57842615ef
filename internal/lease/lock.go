package lease

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Lock binds a store to one key, holder and ttl.
type Lock struct {
	store    Store
	key      string
	holderID string
	ttl      time.Duration
	enabled  bool
}

// NewLock creates an enabled lock.
func NewLock(store Store, key, holderID string, ttl time.Duration) *Lock {
	return &Lock{
		store:    store,
		key:      key,
		holderID: holderID,
		ttl:      ttl,
		enabled:  true,
	}
}

// Disabled returns a lock whose acquisition and renewal always succeed.
// Used for single-worker and debug runs.
func Disabled(holderID string) *Lock {
	return &Lock{holderID: holderID}
}

// Enabled reports whether the lock consults a store.
func (l *Lock) Enabled() bool {
	return l.enabled
}

// Holder returns this process's holder id.
func (l *Lock) Holder() string {
	return l.holderID
}

// Key returns the lock key.
func (l *Lock) Key() string {
	return l.key
}

// TTL returns the lease duration.
func (l *Lock) TTL() time.Duration {
	return l.ttl
}

// TryAcquire attempts to take the lease.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	if !l.enabled {
		return true, nil
	}
	return l.store.TryAcquire(ctx, l.key, l.holderID, l.ttl)
}

// Renew extends the lease. It returns ErrLeaseLost when the lease is gone and
// an ErrBackendUnavailable error when the store failed.
func (l *Lock) Renew(ctx context.Context) error {
	if !l.enabled {
		return nil
	}
	ok, err := l.store.Renew(ctx, l.key, l.holderID, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s no longer held by %s", ErrLeaseLost, l.key, l.holderID)
	}
	return nil
}

// Release gives the lease up. Best effort.
func (l *Lock) Release(ctx context.Context) error {
	if !l.enabled {
		return nil
	}
	return l.store.Release(ctx, l.key, l.holderID)
}

// Current returns the live lease record.
func (l *Lock) Current(ctx context.Context) (*Record, error) {
	if !l.enabled {
		return nil, ErrNotFound
	}
	return l.store.Get(ctx, l.key)
}

// SaveLastRuns persists job last-run clocks next to the lease.
func (l *Lock) SaveLastRuns(ctx context.Context, lastRuns map[string]time.Time) error {
	if !l.enabled {
		return nil
	}
	data, err := EncodeLastRuns(lastRuns)
	if err != nil {
		return err
	}
	return l.store.SaveState(ctx, l.key, l.holderID, data)
}

// LoadLastRuns returns the persisted last-run clocks. Nothing saved yet is not
// an error and yields an empty map.
func (l *Lock) LoadLastRuns(ctx context.Context) (map[string]time.Time, error) {
	if !l.enabled {
		return map[string]time.Time{}, nil
	}
	data, err := l.store.LoadState(ctx, l.key)
	if errors.Is(err, ErrNotFound) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeLastRuns(data)
}
