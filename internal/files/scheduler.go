package files

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultDeletionTimeout = 30 * time.Second

// stopper is the part of *time.Timer the scheduler needs.
type stopper interface {
	Stop() bool
}

// Scheduler runs deferred deletions on in-process timers. Pending work is
// not durable: a restart drops every scheduled deletion.
type Scheduler struct {
	logger    *slog.Logger
	timeout   time.Duration
	afterFunc func(time.Duration, func()) stopper

	mu      sync.Mutex
	timers  map[string]stopper
	stopped bool
	running sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithDeletionTimeout bounds each deletion run.
func WithDeletionTimeout(timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// withAfterFunc replaces time.AfterFunc in tests.
func withAfterFunc(fn func(time.Duration, func()) stopper) SchedulerOption {
	return func(s *Scheduler) {
		s.afterFunc = fn
	}
}

func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:  slog.Default(),
		timeout: defaultDeletionTimeout,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		timers: make(map[string]stopper),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule runs fn for key after delay. Scheduling a key again replaces the
// earlier timer. It returns false once the scheduler is stopped.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}

	var t stopper
	t = s.afterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped || s.timers[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.running.Add(1)
		s.mu.Unlock()
		defer s.running.Done()
		scheduledDeletions.Dec()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			deletionFailuresTotal.Inc()
			s.logger.ErrorContext(ctx, "scheduled deletion failed",
				"key", key,
				"error", err,
			)
		}
	})
	if _, replaced := s.timers[key]; !replaced {
		scheduledDeletions.Inc()
	}
	s.timers[key] = t
	return true
}

// Cancel drops a pending deletion. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, key)
	scheduledDeletions.Dec()
	return true
}

// Pending returns the number of scheduled deletions not yet run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending deletion and waits for running ones until ctx
// is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	dropped := len(s.timers)
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	scheduledDeletions.Sub(float64(dropped))
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.WarnContext(ctx, "dropping scheduled file deletions on shutdown",
			"pending", dropped,
		)
	}

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
