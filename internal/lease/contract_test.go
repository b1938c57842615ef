package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

const (
	testKey = "heartbeat:leader"
	ttl     = 15 * time.Second
)

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T, clock clockwork.FakeClock) Store) {
	ctx := context.Background()

	t.Run("first acquirer wins", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		store := newStore(t, clock)

		ok, err := store.TryAcquire(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.TryAcquire(ctx, testKey, "b", ttl)
		require.NoError(t, err)
		assert.False(t, ok)

		record, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, "a", record.HolderID)
		assert.True(t, record.ExpiresAt.Equal(t0.Add(ttl)))
	})

	t.Run("acquire is re-entrant for the holder", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		store := newStore(t, clock)

		ok, err := store.TryAcquire(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(5 * time.Second)
		ok, err = store.TryAcquire(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		assert.True(t, ok)

		record, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		assert.True(t, record.ExpiresAt.Equal(t0.Add(5*time.Second+ttl)))
		assert.True(t, record.AcquiredAt.Equal(t0))
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		store := newStore(t, clock)

		ok, err := store.TryAcquire(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(ttl)

		_, err = store.Get(ctx, testKey)
		assert.True(t, errors.Is(err, ErrNotFound))

		ok, err = store.TryAcquire(ctx, testKey, "b", ttl)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Renew(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		assert.False(t, ok, "deposed holder cannot renew")
	})

	t.Run("renew extends only the holder's live lease", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		store := newStore(t, clock)

		ok, err := store.Renew(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		assert.False(t, ok, "nothing to renew")

		_, err = store.TryAcquire(ctx, testKey, "a", ttl)
		require.NoError(t, err)

		clock.Advance(10 * time.Second)
		ok, err = store.Renew(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		assert.True(t, ok)

		clock.Advance(10 * time.Second)
		ok, err = store.TryAcquire(ctx, testKey, "b", ttl)
		require.NoError(t, err)
		assert.False(t, ok, "renewed lease is still live")

		ok, err = store.Renew(ctx, testKey, "b", ttl)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("release frees the lease for the holder only", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		store := newStore(t, clock)

		_, err := store.TryAcquire(ctx, testKey, "a", ttl)
		require.NoError(t, err)

		require.NoError(t, store.Release(ctx, testKey, "b"))
		record, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, "a", record.HolderID)

		require.NoError(t, store.Release(ctx, testKey, "a"))
		_, err = store.Get(ctx, testKey)
		assert.True(t, errors.Is(err, ErrNotFound))

		ok, err := store.TryAcquire(ctx, testKey, "b", ttl)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("state writes are fenced to the holder", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		store := newStore(t, clock)

		_, err := store.LoadState(ctx, testKey)
		assert.True(t, errors.Is(err, ErrNotFound))

		err = store.SaveState(ctx, testKey, "a", []byte("x"))
		assert.True(t, errors.Is(err, ErrLeaseLost), "no lease yet")

		_, err = store.TryAcquire(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		require.NoError(t, store.SaveState(ctx, testKey, "a", []byte("first")))

		err = store.SaveState(ctx, testKey, "b", []byte("intruder"))
		assert.True(t, errors.Is(err, ErrLeaseLost))

		clock.Advance(ttl)
		err = store.SaveState(ctx, testKey, "a", []byte("late"))
		assert.True(t, errors.Is(err, ErrLeaseLost), "expired holder cannot write")

		data, err := store.LoadState(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), data)
	})

	t.Run("state survives release for the next holder", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		store := newStore(t, clock)

		_, err := store.TryAcquire(ctx, testKey, "a", ttl)
		require.NoError(t, err)
		require.NoError(t, store.SaveState(ctx, testKey, "a", []byte("clocks")))
		require.NoError(t, store.Release(ctx, testKey, "a"))

		ok, err := store.TryAcquire(ctx, testKey, "b", ttl)
		require.NoError(t, err)
		require.True(t, ok)

		data, err := store.LoadState(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, []byte("clocks"), data)
	})

	t.Run("non-positive ttl is rejected", func(t *testing.T) {
		store := newStore(t, clockwork.NewFakeClockAt(t0))

		_, err := store.TryAcquire(ctx, testKey, "a", 0)
		assert.True(t, errors.Is(err, ErrInvalidTTL))

		_, err = store.Renew(ctx, testKey, "a", -time.Second)
		assert.True(t, errors.Is(err, ErrInvalidTTL))
	})
}
