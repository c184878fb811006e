package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, server
}

type cachedThing struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func TestCacheHelper_SetGetDelete(t *testing.T) {
	client, server := newTestClient(t)
	helper := NewCacheHelper(client, "summary:")
	ctx := context.Background()

	require.NoError(t, helper.Set(ctx, "session:1", cachedThing{ID: 1, Name: "a"}, time.Minute))
	assert.True(t, server.Exists("summary:session:1"))

	var got cachedThing
	require.NoError(t, helper.Get(ctx, "session:1", &got))
	assert.Equal(t, cachedThing{ID: 1, Name: "a"}, got)

	require.NoError(t, helper.Delete(ctx, "session:1"))
	assert.ErrorIs(t, helper.Get(ctx, "session:1", &got), ErrCacheNotFound)
}

func TestCacheHelper_WithoutClient(t *testing.T) {
	helper := NewCacheHelper(nil, "summary:")
	ctx := context.Background()

	assert.NoError(t, helper.Set(ctx, "k", 1, time.Minute))
	assert.ErrorIs(t, helper.Get(ctx, "k", new(int)), ErrCacheNotAvailable)
	assert.NoError(t, helper.Delete(ctx, "k"))

	calls := 0
	var dest cachedThing
	err := helper.CacheOrExecute(ctx, "k", &dest, time.Minute, func() (interface{}, error) {
		calls++
		return &cachedThing{ID: 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint(2), dest.ID)
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	client, server := newTestClient(t)
	helper := NewCacheHelper(client, "template:")
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return &cachedThing{ID: 9, Name: "t"}, nil
	}

	var first cachedThing
	require.NoError(t, helper.CacheOrExecute(ctx, "id:9", &first, time.Minute, fetch))
	assert.Equal(t, "t", first.Name)

	// The write-back is asynchronous
	assert.Eventually(t, func() bool { return server.Exists("template:id:9") }, time.Second, 10*time.Millisecond)

	var second cachedThing
	require.NoError(t, helper.CacheOrExecute(ctx, "id:9", &second, time.Minute, fetch))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	err := helper.CacheOrExecute(ctx, "id:10", &second, time.Minute, func() (interface{}, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestSessionLocker(t *testing.T) {
	client, server := newTestClient(t)
	locker := NewSessionLocker(NewCacheHelper(client, FastCacheConfig.Prefix), time.Second)
	locker.retries = 2
	locker.retryDelay = time.Millisecond
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 5)
	require.NoError(t, err)
	assert.True(t, server.Exists("fast:lock:session:5"))

	_, err = locker.Acquire(ctx, 5)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// Other sessions are independent
	releaseOther, err := locker.Acquire(ctx, 6)
	require.NoError(t, err)
	releaseOther()

	release()
	assert.False(t, server.Exists("fast:lock:session:5"))

	release, err = locker.Acquire(ctx, 5)
	require.NoError(t, err)
	release()
}

func TestSessionLocker_ReleaseKeepsForeignLock(t *testing.T) {
	client, server := newTestClient(t)
	locker := NewSessionLocker(NewCacheHelper(client, FastCacheConfig.Prefix), time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)

	// Lock expired and was taken by someone else
	require.NoError(t, server.Set("fast:lock:session:1", "other-token"))
	release()

	got, err := server.Get("fast:lock:session:1")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestSessionLocker_NoRedis(t *testing.T) {
	locker := NewSessionLocker(NewCacheHelper(nil, ""), time.Second)

	release, err := locker.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
}
