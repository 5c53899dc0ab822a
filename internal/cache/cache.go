// Package cache implements a two-tier cache: a process-local memory tier in
// front of the shared key/value store.
//
// The cache is an optimisation and never a correctness dependency. Store
// failures, expired entries and payloads that no longer decode all surface as
// misses; they are logged and counted, never returned to callers of Get.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"convertviral/internal/platform/kv"
	"convertviral/pkg/platform/outcome"
	"convertviral/pkg/platform/sentinel"
)

// TTL categories. Short suits volatile per-user data, Long near-static
// reference data such as the supported format list.
const (
	TTLShort = 60 * time.Second
	TTLLong  = 86400 * time.Second

	defaultTTL           = 5 * time.Minute
	defaultSweepInterval = 60 * time.Second
	defaultOpTimeout     = 2 * time.Second
	defaultBreakerWindow = 5 * time.Second
)

// Secondary step names reported in write outcomes.
const (
	StepPersistentSet = "persistent_set"
	StepPersistentDel = "persistent_del"
)

var errBreakerOpen = errors.New("persistent tier circuit open")

// envelope is the persistent-tier representation. Exp carries the absolute
// expiry in unix milliseconds so a memory refill keeps the original deadline.
type envelope struct {
	Value json.RawMessage `json:"v"`
	Exp   int64           `json:"exp"`
}

// Cache is safe for concurrent use. Construct it once at process start, call
// Start to run the sweep and Stop on shutdown.
type Cache struct {
	mem     *memoryTier
	store   kv.Store
	breaker *breaker
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group

	defaultTTL    time.Duration
	sweepInterval time.Duration
	opTimeout     time.Duration
	async         bool

	lifecycleMu sync.Mutex
	stopSweep   chan struct{}
	sweepDone   chan struct{}
	writes      sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock overrides the time source for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithDefaultTTL sets the TTL used when Set receives less than one second.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl >= time.Second {
			c.defaultTTL = ttl.Truncate(time.Second)
		}
	}
}

func WithSweepInterval(interval time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			c.sweepInterval = interval
		}
	}
}

// WithOpTimeout bounds every persistent-tier call.
func WithOpTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.opTimeout = timeout
		}
	}
}

// WithAsyncWrites makes persistent-tier writes fire-and-forget. Set then
// reports a pending outcome; Stop waits for in-flight writes.
func WithAsyncWrites(async bool) Option {
	return func(c *Cache) {
		c.async = async
	}
}

// WithBreaker tunes the persistent-tier circuit breaker.
func WithBreaker(failureThreshold int, cooldown time.Duration) Option {
	return func(c *Cache) {
		c.breaker = newBreaker(failureThreshold, 1, cooldown)
	}
}

// New builds a cache over the given persistent store.
func New(store kv.Store, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	c := &Cache{
		mem:           newMemoryTier(),
		store:         store,
		breaker:       newBreaker(5, 1, defaultBreakerWindow),
		logger:        slog.Default(),
		now:           time.Now,
		defaultTTL:    defaultTTL,
		sweepInterval: defaultSweepInterval,
		opTimeout:     defaultOpTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// normalizeTTL truncates to whole seconds; anything under a second falls back
// to the default TTL.
func (c *Cache) normalizeTTL(ttl time.Duration) time.Duration {
	ttl = ttl.Truncate(time.Second)
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get decodes the cached value for key into dest and reports whether it was
// found. A false result is a miss, whatever the cause.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	now := c.now()

	if entry, ok := c.mem.get(key, now); ok {
		if err := json.Unmarshal(entry.data, dest); err != nil {
			c.mem.delete(key)
			decodeErrorsTotal.Inc()
			c.logger.WarnContext(ctx, "cache memory entry undecodable, treating as miss",
				"key", key,
				"error", err,
			)
			missesTotal.Inc()
			return false
		}
		hitsTotal.WithLabelValues(tierMemory).Inc()
		return true
	}

	entry, ok := c.loadPersistent(ctx, key, now)
	if !ok {
		missesTotal.Inc()
		return false
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		decodeErrorsTotal.Inc()
		c.logger.WarnContext(ctx, "cache persistent entry undecodable, treating as miss",
			"key", key,
			"error", err,
		)
		missesTotal.Inc()
		return false
	}
	c.mem.set(key, entry)
	hitsTotal.WithLabelValues(tierPersistent).Inc()
	return true
}

// loadPersistent reads and unwraps the persistent-tier envelope.
func (c *Cache) loadPersistent(ctx context.Context, key string, now time.Time) (memoryEntry, bool) {
	if !c.breaker.allow(now) {
		return memoryEntry{}, false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.store.Get(opCtx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		c.recordStoreSuccess(ctx)
		return memoryEntry{}, false
	}
	if err != nil {
		c.recordStoreFailure(ctx, "get", key, err)
		return memoryEntry{}, false
	}
	c.recordStoreSuccess(ctx)

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || len(env.Value) == 0 {
		decodeErrorsTotal.Inc()
		c.logger.WarnContext(ctx, "cache envelope undecodable, treating as miss",
			"key", key,
			"error", err,
		)
		return memoryEntry{}, false
	}

	expiresAt := time.UnixMilli(env.Exp)
	if !now.Before(expiresAt) {
		return memoryEntry{}, false
	}
	return memoryEntry{data: env.Value, expiresAt: expiresAt}, true
}

// Set stores value under key for ttl. The memory tier is written before Set
// returns; the persistent write is best-effort and reported in the outcome.
// A value that cannot be encoded is a primary failure and nothing is stored.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) outcome.Outcome {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.ErrorContext(ctx, "cache value not serializable",
			"key", key,
			"error", err,
		)
		return outcome.Outcome{Primary: fmt.Errorf("encode %s: %w", key, err)}
	}

	ttl = c.normalizeTTL(ttl)
	expiresAt := c.now().Add(ttl)
	c.mem.set(key, memoryEntry{data: data, expiresAt: expiresAt})

	payload, err := json.Marshal(envelope{Value: data, Exp: expiresAt.UnixMilli()})
	if err != nil {
		var out outcome.Outcome
		out.Fail(StepPersistentSet, err)
		return out
	}

	if c.async {
		c.writes.Add(1)
		go func() {
			defer c.writes.Done()
			_ = c.persist(context.WithoutCancel(ctx), key, string(payload), ttl)
		}()
		return outcome.Outcome{Pending: true}
	}

	var out outcome.Outcome
	out.Fail(StepPersistentSet, c.persist(ctx, key, string(payload), ttl))
	return out
}

func (c *Cache) persist(ctx context.Context, key, payload string, ttl time.Duration) error {
	if !c.breaker.allow(c.now()) {
		storeErrorsTotal.WithLabelValues("set").Inc()
		return errBreakerOpen
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.store.Set(opCtx, key, payload, ttl); err != nil {
		c.recordStoreFailure(ctx, "set", key, err)
		return err
	}
	c.recordStoreSuccess(ctx)
	return nil
}

// Delete removes key from both tiers. The memory tier is always cleared even
// if the persistent delete fails. Deleting an absent key is a no-op.
func (c *Cache) Delete(ctx context.Context, key string) outcome.Outcome {
	c.mem.delete(key)

	var out outcome.Outcome
	if !c.breaker.allow(c.now()) {
		storeErrorsTotal.WithLabelValues("del").Inc()
		out.Fail(StepPersistentDel, errBreakerOpen)
		return out
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.store.Del(opCtx, key); err != nil {
		c.recordStoreFailure(ctx, "del", key, err)
		out.Fail(StepPersistentDel, err)
		return out
	}
	c.recordStoreSuccess(ctx)
	return out
}

func (c *Cache) recordStoreFailure(ctx context.Context, op, key string, err error) {
	storeErrorsTotal.WithLabelValues(op).Inc()
	c.logger.ErrorContext(ctx, "cache persistent tier error",
		"op", op,
		"key", key,
		"error", err,
	)
	if c.breaker.recordFailure(c.now()) {
		breakerOpenGauge.Set(1)
		c.logger.WarnContext(ctx, "cache persistent tier circuit opened, serving memory tier only")
	}
}

func (c *Cache) recordStoreSuccess(ctx context.Context) {
	if c.breaker.recordSuccess() {
		breakerOpenGauge.Set(0)
		c.logger.InfoContext(ctx, "cache persistent tier circuit closed")
	}
}

// Sweep evicts expired memory-tier entries and returns the count.
func (c *Cache) Sweep() int {
	evicted := c.mem.sweep(c.now())
	if evicted > 0 {
		sweepEvictionsTotal.Add(float64(evicted))
	}
	return evicted
}

// Len returns the number of memory-tier entries, expired ones included.
func (c *Cache) Len() int {
	return c.mem.len()
}

// Start launches the periodic sweep. Calling Start on a running cache is a
// no-op.
func (c *Cache) Start() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.stopSweep != nil {
		return
	}
	c.stopSweep = make(chan struct{})
	c.sweepDone = make(chan struct{})
	go c.runSweep(c.stopSweep, c.sweepDone)
}

func (c *Cache) runSweep(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("cache sweep evicted expired entries", "evicted", n)
			}
		}
	}
}

// Stop halts the sweep and waits for in-flight async writes, bounded by ctx.
// The cache stays usable after Stop; only the sweep is gone.
func (c *Cache) Stop(ctx context.Context) error {
	c.lifecycleMu.Lock()
	stop, done := c.stopSweep, c.sweepDone
	c.stopSweep, c.sweepDone = nil, nil
	c.lifecycleMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	flushed := make(chan struct{})
	go func() {
		c.writes.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cache stop: pending writes: %w", ctx.Err())
	}
}

// Fetch is the typed form of Get.
func Fetch[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	ok := c.Get(ctx, key, &v)
	if !ok {
		var zero T
		return zero, false
	}
	return v, true
}

// Remember returns the cached value for key or loads, caches and returns it.
// Concurrent misses on the same key share one load. Loader errors are
// returned as-is and nothing is cached.
func Remember[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := Fetch[T](ctx, c, key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := Fetch[T](ctx, c, key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if out := c.Set(ctx, key, v, ttl); !out.Committed() {
			c.logger.WarnContext(ctx, "cache remember could not store loaded value",
				"key", key,
				"error", out.Err(),
			)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		// Another caller loaded the same key as a different type.
		return load(ctx)
	}
	return v, nil
}
