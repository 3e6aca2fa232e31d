package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"authmsg/internal/domain"
)

const (
	defaultRedisPrefix  = "authmsg:key:"
	defaultRedisTimeout = 2 * time.Second
	redisMaxRetries     = 3
)

// RedisKeyCache stores each key record under prefix+keyID. Records carry no
// TTL; like every key cache they live until the store itself is discarded.
type RedisKeyCache struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisKeyCache returns a RedisKeyCache using client. An empty prefix
// selects the default namespace.
func NewRedisKeyCache(client *redis.Client, prefix string) *RedisKeyCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisKeyCache{client: client, prefix: prefix, timeout: defaultRedisTimeout}
}

// Put inserts rec with SETNX, so an existing record for the key id wins.
func (c *RedisKeyCache) Put(rec domain.KeyRecord) error {
	if rec.KeyID == "" {
		return errEmptyKeyID
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = retryRedis(c.timeout, func(ctx context.Context) (bool, error) {
		return c.client.SetNX(ctx, c.key(rec.KeyID), raw, 0).Result()
	})
	return err
}

// Get fetches the record for id. A missing key is reported with ok == false.
func (c *RedisKeyCache) Get(id domain.KeyID) (domain.KeyRecord, bool, error) {
	raw, err := retryRedis(c.timeout, func(ctx context.Context) ([]byte, error) {
		b, err := c.client.Get(ctx, c.key(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, backoff.Permanent(err)
		}
		return b, err
	})
	if errors.Is(err, redis.Nil) {
		return domain.KeyRecord{}, false, nil
	}
	if err != nil {
		return domain.KeyRecord{}, false, err
	}
	var rec domain.KeyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.KeyRecord{}, false, fmt.Errorf("decode key record %s: %w", id, err)
	}
	return rec, true, nil
}

// Close releases the underlying client.
func (c *RedisKeyCache) Close() error { return c.client.Close() }

func (c *RedisKeyCache) key(id domain.KeyID) string { return c.prefix + id.String() }

// retryRedis runs op with exponential backoff so a restarting redis or a
// dropped connection does not fail the caller outright.
func retryRedis[T any](timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout*redisMaxRetries)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(policy, redisMaxRetries-1), ctx)

	return backoff.RetryWithData(func() (T, error) {
		opCtx, opCancel := context.WithTimeout(ctx, timeout)
		defer opCancel()
		return op(opCtx)
	}, b)
}

// Compile-time assertion that RedisKeyCache implements domain.KeyCache.
var _ domain.KeyCache = (*RedisKeyCache)(nil)
