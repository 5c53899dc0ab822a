// Package kv defines the string key/value + list contract the cache and the
// consent log persist through, and its Redis and in-process implementations.
package kv

import (
	"context"
	"time"
)

// Store is a string-oriented key/value store with expiring keys and lists.
//
// Get returns sentinel.ErrNotFound for absent or expired keys. Transport
// failures are wrapped with sentinel.ErrUnavailable. A ttl of zero on Set
// stores the key without expiry. List indexes follow Redis semantics: 0 is the
// head, negative indexes count from the tail, stop is inclusive.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
