package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), m
}

func TestRedisCache_RefreshStoreFetchDrop(t *testing.T) {
	cache, m := newRedisCache(t)
	ctx := context.Background()

	got, err := cache.FetchRefresh(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, cache.StoreRefresh(ctx, "u1", "r1", time.Hour))
	got, err = cache.FetchRefresh(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got)
	assert.True(t, m.Exists("refresh_token:u1"))

	// a second store replaces the first
	require.NoError(t, cache.StoreRefresh(ctx, "u1", "r2", time.Hour))
	got, err = cache.FetchRefresh(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "r2", got)

	require.NoError(t, cache.DropRefresh(ctx, "u1"))
	got, err = cache.FetchRefresh(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	// dropping again is fine
	require.NoError(t, cache.DropRefresh(ctx, "u1"))
}

func TestRedisCache_RefreshExpires(t *testing.T) {
	cache, m := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.StoreRefresh(ctx, "u1", "r1", 2*time.Second))
	assert.Equal(t, 2*time.Second, m.TTL("refresh_token:u1"))

	m.FastForward(3 * time.Second)
	got, err := cache.FetchRefresh(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisCache_StoreRefreshRejectsNonPositiveTTL(t *testing.T) {
	cache, m := newRedisCache(t)
	assert.ErrorIs(t, cache.StoreRefresh(context.Background(), "u1", "r1", 0), ErrInvalidTTL)
	assert.False(t, m.Exists("refresh_token:u1"))
}

func TestRedisCache_Blacklist(t *testing.T) {
	cache, m := newRedisCache(t)
	ctx := context.Background()

	ok, err := cache.IsRevoked(ctx, "access-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.RevokeAccess(ctx, "access-1", 2*time.Second))
	ok, err = cache.IsRevoked(ctx, "access-1")
	require.NoError(t, err)
	assert.True(t, ok)

	m.FastForward(3 * time.Second)
	ok, err = cache.IsRevoked(ctx, "access-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_RevokeNonPositiveTTLIsNoop(t *testing.T) {
	cache, m := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.RevokeAccess(ctx, "expired", 0))
	require.NoError(t, cache.RevokeAccess(ctx, "expired", -time.Minute))
	assert.False(t, m.Exists("blacklist:expired"))
}

func TestRedisCache_ErrorsWhenServerDown(t *testing.T) {
	cache, m := newRedisCache(t)
	m.Close()
	ctx := context.Background()

	_, err := cache.FetchRefresh(ctx, "u1")
	assert.Error(t, err)
	_, err = cache.IsRevoked(ctx, "tok")
	assert.Error(t, err)
	assert.Error(t, cache.RevokeAccess(ctx, "tok", time.Minute))
	assert.Error(t, cache.Ping(ctx))
}
