package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// SQLiteStore keeps leases in the leases and lease_state tables. Several
// processes on one host can share the file; every write is a single guarded
// statement, so SQLite's write lock provides the compare-and-set.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLiteStore creates a store over a migrated database (see database.Migrate).
func NewSQLiteStore(db *sql.DB, clock clockwork.Clock) *SQLiteStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLiteStore{db: db, clock: clock}
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func backendErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrBackendUnavailable, op, key, err)
}

// TryAcquire implements Store.
func (s *SQLiteStore) TryAcquire(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error) {
	if err := validateTTL(ttl); err != nil {
		return false, err
	}

	now := s.clock.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (key, holder_id, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			acquired_at = CASE WHEN leases.holder_id = excluded.holder_id
				THEN leases.acquired_at ELSE excluded.acquired_at END,
			holder_id = excluded.holder_id,
			expires_at = excluded.expires_at
		WHERE leases.expires_at <= ? OR leases.holder_id = excluded.holder_id
	`, key, holderID, millis(now), millis(now.Add(ttl)), millis(now))
	if err != nil {
		return false, backendErr("acquire", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, backendErr("acquire", key, err)
	}
	return affected == 1, nil
}

// Renew implements Store.
func (s *SQLiteStore) Renew(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error) {
	if err := validateTTL(ttl); err != nil {
		return false, err
	}

	now := s.clock.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE leases SET expires_at = ?
		WHERE key = ? AND holder_id = ? AND expires_at > ?
	`, millis(now.Add(ttl)), key, holderID, millis(now))
	if err != nil {
		return false, backendErr("renew", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, backendErr("renew", key, err)
	}
	return affected == 1, nil
}

// Release implements Store.
func (s *SQLiteStore) Release(ctx context.Context, key, holderID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM leases WHERE key = ? AND holder_id = ?", key, holderID,
	); err != nil {
		return backendErr("release", key, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	var (
		record               = Record{Key: key}
		acquiredAt, expireAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT holder_id, acquired_at, expires_at FROM leases
		WHERE key = ? AND expires_at > ?
	`, key, millis(s.clock.Now())).Scan(&record.HolderID, &acquiredAt, &expireAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("get", key, err)
	}

	record.AcquiredAt = time.UnixMilli(acquiredAt).UTC()
	record.ExpiresAt = time.UnixMilli(expireAt).UTC()
	return &record, nil
}

// SaveState implements Store. The write only happens while holderID owns a
// live lease, checked in the same statement.
func (s *SQLiteStore) SaveState(ctx context.Context, key, holderID string, data []byte) error {
	now := millis(s.clock.Now())
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO lease_state (key, holder_id, data, updated_at)
		SELECT ?, ?, ?, ?
		WHERE EXISTS (
			SELECT 1 FROM leases WHERE key = ? AND holder_id = ? AND expires_at > ?
		)
		ON CONFLICT(key) DO UPDATE SET
			holder_id = excluded.holder_id,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, key, holderID, data, now, key, holderID, now)
	if err != nil {
		return backendErr("save state", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return backendErr("save state", key, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s not held by %s", ErrLeaseLost, key, holderID)
	}
	return nil
}

// LoadState implements Store.
func (s *SQLiteStore) LoadState(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM lease_state WHERE key = ?", key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("load state", key, err)
	}
	return data, nil
}

// Close is a no-op; the database owner closes the connection.
func (s *SQLiteStore) Close() error {
	return nil
}
