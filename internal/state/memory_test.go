package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryContract(t *testing.T) {
	runStateContract(t, NewMemoryStore())
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore()
	store.clock = func() time.Time { return now }

	require.NoError(t, store.SetTTL(ctx, "t1", "session", "live", time.Minute))

	val, err := store.Get(ctx, "t1", "session")
	require.NoError(t, err)
	assert.Equal(t, `"live"`, string(val))

	now = now.Add(time.Minute)

	val, err = store.Get(ctx, "t1", "session")
	assert.NoError(t, err)
	assert.Nil(t, val)
}

func TestMemoryGetReturnsDetachedBytes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "t1", "order", map[string]any{"n": 1}))

	val, err := store.Get(ctx, "t1", "order")
	require.NoError(t, err)
	for i := range val {
		val[i] = 'x'
	}

	val, err = store.Get(ctx, "t1", "order")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(val))
}

func TestMemoryCleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore()
	store.clock = func() time.Time { return now }

	require.NoError(t, store.SetTTL(ctx, "t1", "short", "x", time.Second))
	require.NoError(t, store.SetTTL(ctx, "t1", "long", "y", time.Hour))
	require.NoError(t, store.Set(ctx, "t1", "forever", "z"))

	now = now.Add(2 * time.Second)
	require.NoError(t, store.Cleanup(ctx))

	store.mu.RLock()
	keys := store.scopes["t1"]
	store.mu.RUnlock()

	assert.NotContains(t, keys, "short")
	assert.Contains(t, keys, "long")
	assert.Contains(t, keys, "forever")
}

func TestMemoryCleanupDropsEmptyScopes(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore()
	store.clock = func() time.Time { return now }

	require.NoError(t, store.SetTTL(ctx, "t1", "only", "x", time.Second))
	now = now.Add(time.Minute)
	require.NoError(t, store.Cleanup(ctx))

	store.mu.RLock()
	_, ok := store.scopes["t1"]
	store.mu.RUnlock()
	assert.False(t, ok)
}
