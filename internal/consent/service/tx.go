package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "convertviral/pkg/domain-errors"
)

const (
	ownerLockShards     = 128
	defaultOwnerTimeout = 5 * time.Second
)

// ownerLocks serializes the read-diff-write sequence of one owner inside this
// process. Owners hash onto a fixed set of mutexes, so unrelated owners may
// occasionally share one. Other instances are not coordinated.
type ownerLocks struct {
	shards  [ownerLockShards]sync.Mutex
	timeout time.Duration
}

// WithOwner runs fn holding ownerKey's lock. fn's context carries a deadline
// of timeout unless the caller already set one.
func (l *ownerLocks) WithOwner(ctx context.Context, ownerKey string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "consent write aborted")
	}
	if _, ok := ctx.Deadline(); !ok {
		timeout := l.timeout
		if timeout <= 0 {
			timeout = defaultOwnerTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	mu := &l.shards[shardFor(ownerKey)]
	mu.Lock()
	defer mu.Unlock()
	lockWaitSeconds.Observe(time.Since(start).Seconds())

	// The wait may have used up the deadline.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "consent write aborted")
	}
	return fn(ctx)
}

func shardFor(ownerKey string) int {
	if ownerKey == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerKey))
	return int(h.Sum32() % ownerLockShards)
}
