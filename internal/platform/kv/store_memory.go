package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"convertviral/pkg/platform/sentinel"
)

type memoryValue struct {
	str       string
	list      []string
	isList    bool
	expiresAt time.Time
}

func (v *memoryValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && !now.Before(v.expiresAt)
}

// MemoryStore is an in-process Store. It keeps a single instance usable
// without Redis and backs unit tests; it is not shared across processes.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]*memoryValue
	now    func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		values: make(map[string]*memoryValue),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the value for key, dropping it if expired.
// Must be called while holding s.mu.
func (s *MemoryStore) live(key string) *memoryValue {
	v, ok := s.values[key]
	if !ok {
		return nil
	}
	if v.expired(s.now()) {
		delete(s.values, key)
		return nil
	}
	return v
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("memory get %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.live(key)
	if v == nil || v.isList {
		return "", sentinel.ErrNotFound
	}
	return v.str, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory set %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &memoryValue{str: value}
	if ttl > 0 {
		v.expiresAt = s.now().Add(ttl)
	}
	s.values[key] = v
	return nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory del: %w: %w", sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func (s *MemoryStore) LPush(ctx context.Context, key string, values ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory lpush %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.live(key)
	if v == nil {
		v = &memoryValue{isList: true}
		s.values[key] = v
	}
	if !v.isList {
		return fmt.Errorf("memory lpush %s: %w", key, sentinel.ErrInvalidState)
	}
	// LPUSH a b c leaves c at the head.
	head := make([]string, 0, len(values)+len(v.list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	v.list = append(head, v.list...)
	return nil
}

func (s *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory lrange %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.live(key)
	if v == nil {
		return []string{}, nil
	}
	if !v.isList {
		return nil, fmt.Errorf("memory lrange %s: %w", key, sentinel.ErrInvalidState)
	}
	lo, hi, ok := listBounds(int64(len(v.list)), start, stop)
	if !ok {
		return []string{}, nil
	}
	return append([]string{}, v.list[lo:hi+1]...), nil
}

func (s *MemoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory ltrim %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.live(key)
	if v == nil {
		return nil
	}
	if !v.isList {
		return fmt.Errorf("memory ltrim %s: %w", key, sentinel.ErrInvalidState)
	}
	lo, hi, ok := listBounds(int64(len(v.list)), start, stop)
	if !ok {
		delete(s.values, key)
		return nil
	}
	v.list = append([]string{}, v.list[lo:hi+1]...)
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory expire %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.live(key)
	if v == nil {
		return nil
	}
	if ttl <= 0 {
		delete(s.values, key)
		return nil
	}
	v.expiresAt = s.now().Add(ttl)
	return nil
}

// listBounds normalises Redis-style inclusive indexes against a list length.
func listBounds(n, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
