package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache with plain string keys:
// "refresh_token:<userID>" and "blacklist:<token>".
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) StoreRefresh(ctx context.Context, userID, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return r.client.Set(ctx, refreshKey(userID), token, ttl).Err()
}

func (r *RedisCache) FetchRefresh(ctx context.Context, userID string) (string, error) {
	v, err := r.client.Get(ctx, refreshKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func (r *RedisCache) DropRefresh(ctx context.Context, userID string) error {
	return r.client.Del(ctx, refreshKey(userID)).Err()
}

func (r *RedisCache) RevokeAccess(ctx context.Context, token string, ttl time.Duration) error {
	// SET with a zero expiration would persist forever
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, blacklistKey(token), "true", ttl).Err()
}

func (r *RedisCache) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
