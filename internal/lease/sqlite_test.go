package lease

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/heartbeat/internal/database"
)

func openLeaseDB(t *testing.T, path string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{Path: path, Profile: database.ProfileLease, Name: "lease"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock clockwork.FakeClock) Store {
		db := openLeaseDB(t, filepath.Join(t.TempDir(), "heartbeat.db"))
		return NewSQLiteStore(db.Conn(), clock)
	})
}

func TestSQLiteStore_ConcurrentProcessesSingleWinner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.db")
	openLeaseDB(t, path)

	const processes = 8
	stores := make([]*SQLiteStore, processes)
	for i := range stores {
		stores[i] = NewSQLiteStore(openLeaseDB(t, path).Conn(), nil)
	}

	var (
		winners atomic.Int32
		wg      sync.WaitGroup
		start   = make(chan struct{})
	)
	for i, store := range stores {
		wg.Add(1)
		go func(id int, store *SQLiteStore) {
			defer wg.Done()
			<-start
			ok, err := store.TryAcquire(context.Background(), testKey, fmt.Sprintf("process-%d", id), ttl)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}(i, store)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestSQLiteStore_BackendErrors(t *testing.T) {
	ctx := context.Background()
	diskErr := errors.New("disk I/O error")

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	store := NewSQLiteStore(conn, clockwork.NewFakeClockAt(t0))

	t.Run("acquire", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO leases").WillReturnError(diskErr)

		ok, err := store.TryAcquire(ctx, testKey, "a", ttl)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, ErrBackendUnavailable))
		assert.True(t, errors.Is(err, diskErr))
	})

	t.Run("renew", func(t *testing.T) {
		mock.ExpectExec("UPDATE leases SET expires_at").WillReturnError(diskErr)

		ok, err := store.Renew(ctx, testKey, "a", ttl)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, ErrBackendUnavailable))
	})

	t.Run("release", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM leases").WillReturnError(diskErr)

		assert.True(t, errors.Is(store.Release(ctx, testKey, "a"), ErrBackendUnavailable))
	})

	t.Run("get", func(t *testing.T) {
		mock.ExpectQuery("SELECT holder_id, acquired_at, expires_at FROM leases").WillReturnError(diskErr)

		_, err := store.Get(ctx, testKey)
		assert.True(t, errors.Is(err, ErrBackendUnavailable))
	})

	t.Run("save state", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO lease_state").WillReturnError(diskErr)

		assert.True(t, errors.Is(store.SaveState(ctx, testKey, "a", []byte("x")), ErrBackendUnavailable))
	})

	t.Run("renew with no matching row", func(t *testing.T) {
		mock.ExpectExec("UPDATE leases SET expires_at").WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := store.Renew(ctx, testKey, "a", ttl)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
