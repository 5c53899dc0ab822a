package files

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convertviral/internal/platform/logger"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeTimers records timers instead of arming them; fire runs one inline.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) stopper {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[len(f.timers)-1]
}

func (f *fakeTimers) fire(t *fakeTimer) {
	t.fn()
}

func newTestScheduler(timers *fakeTimers) *Scheduler {
	return NewScheduler(
		WithSchedulerLogger(logger.Discard()),
		withAfterFunc(timers.afterFunc),
	)
}

func TestSchedulerRunsAfterDelay(t *testing.T) {
	timers := &fakeTimers{}
	s := newTestScheduler(timers)

	var ran []string
	ok := s.Schedule("a", time.Hour, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		ran = append(ran, "a")
		return nil
	})
	require.True(t, ok)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, time.Hour, timers.last().delay)

	timers.fire(timers.last())
	assert.Equal(t, []string{"a"}, ran)
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerReplaceKeepsLatest(t *testing.T) {
	timers := &fakeTimers{}
	s := newTestScheduler(timers)

	var ran []string
	s.Schedule("a", time.Hour, func(context.Context) error { ran = append(ran, "first"); return nil })
	first := timers.last()
	s.Schedule("a", 2*time.Hour, func(context.Context) error { ran = append(ran, "second"); return nil })
	second := timers.last()

	assert.True(t, first.stopped)
	assert.Equal(t, 1, s.Pending())

	// a stale timer that already fired must not run the replaced job
	timers.fire(first)
	assert.Empty(t, ran)

	timers.fire(second)
	assert.Equal(t, []string{"second"}, ran)
}

func TestSchedulerCancel(t *testing.T) {
	timers := &fakeTimers{}
	s := newTestScheduler(timers)

	ran := false
	s.Schedule("a", time.Hour, func(context.Context) error { ran = true; return nil })
	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))
	assert.True(t, timers.last().stopped)

	timers.fire(timers.last())
	assert.False(t, ran)
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerFailureIsLogged(t *testing.T) {
	timers := &fakeTimers{}
	s := newTestScheduler(timers)

	s.Schedule("a", time.Hour, func(context.Context) error { return errors.New("boom") })
	assert.NotPanics(t, func() { timers.fire(timers.last()) })
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerStopDropsPending(t *testing.T) {
	timers := &fakeTimers{}
	s := newTestScheduler(timers)

	ran := false
	s.Schedule("a", time.Hour, func(context.Context) error { ran = true; return nil })
	s.Schedule("b", time.Hour, func(context.Context) error { ran = true; return nil })

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 0, s.Pending())
	for _, tm := range timers.timers {
		assert.True(t, tm.stopped)
		timers.fire(tm)
	}
	assert.False(t, ran)
	assert.False(t, s.Schedule("c", time.Hour, func(context.Context) error { return nil }))
}

func TestSchedulerStopWaitsForRunning(t *testing.T) {
	timers := &fakeTimers{}
	s := newTestScheduler(timers)

	started := make(chan struct{})
	release := make(chan struct{})
	s.Schedule("a", time.Hour, func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	go timers.fire(timers.last())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestSchedulerRealTimer(t *testing.T) {
	s := NewScheduler(WithSchedulerLogger(logger.Discard()))
	done := make(chan struct{})
	s.Schedule("a", time.Millisecond, func(context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled deletion did not run")
	}
	require.NoError(t, s.Stop(context.Background()))
}
