package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"convertviral/pkg/platform/sentinel"
)

var commandDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "convertviral_kv_command_duration_ms",
	Help:    "Latency of key/value store commands in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 100},
}, []string{"command"})

// RedisStore is the production Store, shared by every instance.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client; its lifecycle is managed by the caller.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func observe(command string, start time.Time) {
	commandDurationMs.WithLabelValues(command).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

func unavailable(command, key string, err error) error {
	return fmt.Errorf("redis %s %s: %w: %w", command, key, sentinel.ErrUnavailable, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	defer observe("get", time.Now())
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return val, nil
}

// Set uses SET with EX so value and expiry are written atomically.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	defer observe("set", time.Now())
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	defer observe("del", time.Now())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable("del", keys[0], err)
	}
	return nil
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	defer observe("lpush", time.Now())
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := s.client.LPush(ctx, key, args...).Err(); err != nil {
		return unavailable("lpush", key, err)
	}
	return nil
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	defer observe("lrange", time.Now())
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, unavailable("lrange", key, err)
	}
	return vals, nil
}

func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	defer observe("ltrim", time.Now())
	if err := s.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return unavailable("ltrim", key, err)
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	defer observe("expire", time.Now())
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return unavailable("expire", key, err)
	}
	return nil
}
