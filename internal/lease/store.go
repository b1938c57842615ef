// Package lease implements the renewable leader lease that keeps exactly one
// heartbeat loop running per lock key.
package lease

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBackendUnavailable wraps any failure talking to the backing store.
	ErrBackendUnavailable = errors.New("lease backend unavailable")

	// ErrLeaseLost means the caller no longer holds the lease.
	ErrLeaseLost = errors.New("lease lost")

	// ErrNotFound is returned when no live record or no state exists for a key.
	ErrNotFound = errors.New("lease not found")

	// ErrInvalidTTL is returned for a non-positive ttl.
	ErrInvalidTTL = errors.New("lease ttl must be positive")
)

// Record is one lease as stored by a backend.
type Record struct {
	Key        string    `json:"key"`
	HolderID   string    `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease has lapsed at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store is a key-value backend with an atomic compare-and-set-with-TTL.
// Every backend guarantees at most one live record per key.
type Store interface {
	// TryAcquire takes the lease if it is free or expired. A holder calling it
	// again extends its own lease.
	TryAcquire(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error)

	// Renew extends the lease only if holderID still holds it.
	Renew(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error)

	// Release removes the lease if holderID holds it. Releasing a lease held by
	// someone else is a no-op.
	Release(ctx context.Context, key, holderID string) error

	// Get returns the live record, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// SaveState stores scheduler state for the key. Only the current holder may
	// write; anyone else gets ErrLeaseLost.
	SaveState(ctx context.Context, key, holderID string, data []byte) error

	// LoadState returns the last saved state, or ErrNotFound.
	LoadState(ctx context.Context, key string) ([]byte, error)

	Close() error
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
