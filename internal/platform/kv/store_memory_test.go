package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"convertviral/pkg/platform/sentinel"
)

func TestMemoryStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func() Store { return NewMemoryStore() }})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, store.Set(ctx, "user:1", "alice", 60*time.Second))
	require.NoError(t, store.Set(ctx, "forever", "x", 0))

	clock.Advance(59 * time.Second)
	got, err := store.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got)

	clock.Advance(time.Second)
	_, err = store.Get(ctx, "user:1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	clock.Advance(24 * time.Hour)
	got, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	err := store.Set(ctx, "k", "v", time.Minute)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListBounds(t *testing.T) {
	cases := []struct {
		name        string
		n           int64
		start, stop int64
		lo, hi      int64
		ok          bool
	}{
		{"whole list", 5, 0, -1, 0, 4, true},
		{"stop past end", 3, 0, 99, 0, 2, true},
		{"negative start", 5, -2, -1, 3, 4, true},
		{"empty list", 0, 0, -1, 0, 0, false},
		{"start after stop", 5, 3, 1, 0, 0, false},
		{"start past end", 5, 7, 9, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lo, hi, ok := listBounds(tc.n, tc.start, tc.stop)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.lo, lo)
				assert.Equal(t, tc.hi, hi)
			}
		})
	}
}
