package lease

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLock(t *testing.T) {
	ctx := context.Background()
	lock := Disabled("solo")

	assert.False(t, lock.Enabled())
	assert.Equal(t, "solo", lock.Holder())

	ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, lock.Renew(ctx))
	assert.NoError(t, lock.Release(ctx))
	assert.NoError(t, lock.SaveLastRuns(ctx, map[string]time.Time{"prices": t0}))

	lastRuns, err := lock.LoadLastRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, lastRuns)

	_, err = lock.Current(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLock_RenewReportsLoss(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	store := NewMemoryStore(clock)

	a := NewLock(store, testKey, "a", ttl)
	b := NewLock(store, testKey, "b", ttl)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Renew(ctx))

	clock.Advance(2 * ttl)
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = a.Renew(ctx)
	assert.True(t, errors.Is(err, ErrLeaseLost))

	record, err := b.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", record.HolderID)
}

func TestLock_RenewPassesBackendErrors(t *testing.T) {
	store := NewMemoryStore(nil)
	lock := NewLock(store, testKey, "a", ttl)
	require.NoError(t, store.Close())

	err := lock.Renew(context.Background())
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.False(t, errors.Is(err, ErrLeaseLost))
}

func TestLock_LastRunsHandover(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	store := NewMemoryStore(clock)

	a := NewLock(store, testKey, "a", ttl)
	_, err := a.TryAcquire(ctx)
	require.NoError(t, err)

	empty, err := a.LoadLastRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	saved := map[string]time.Time{
		"prices":   t0.Add(time.Second),
		"balances": t0.Add(-time.Minute),
	}
	require.NoError(t, a.SaveLastRuns(ctx, saved))
	require.NoError(t, a.Release(ctx))

	b := NewLock(store, testKey, "b", ttl)
	ok, err := b.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	restored, err := b.LoadLastRuns(ctx)
	require.NoError(t, err)
	require.Len(t, restored, 2)
	assert.True(t, restored["prices"].Equal(saved["prices"]))
	assert.True(t, restored["balances"].Equal(saved["balances"]))

	assert.True(t, errors.Is(a.SaveLastRuns(ctx, saved), ErrLeaseLost), "deposed leader cannot overwrite")
}

func TestDecodeLastRuns_RejectsGarbage(t *testing.T) {
	_, err := DecodeLastRuns([]byte("not msgpack"))
	assert.Error(t, err)
}

func TestNewHolderID(t *testing.T) {
	first := NewHolderID()
	second := NewHolderID()

	assert.NotEqual(t, first, second)
	parts := strings.Split(first, "-")
	require.GreaterOrEqual(t, len(parts), 3)
	assert.Len(t, parts[len(parts)-1], 8)
}
