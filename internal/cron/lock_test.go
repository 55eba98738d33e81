package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	keys map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{keys: map[string]string{}}
}

func (m *memoryLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(ctx context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryLockStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "ais:lock:reaper", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := NewRedisLock(store, "ais:lock:reaper", time.Minute)
	require.NoError(t, err)
	ok, err = other.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(context.Background()))

	ok, err = other.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseIgnoresForeignOwner(t *testing.T) {
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "ais:lock:reaper", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// simulate TTL expiry plus takeover by another instance
	store.keys["ais:lock:reaper"] = "someone-else"
	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, "someone-else", store.keys["ais:lock:reaper"])
}
