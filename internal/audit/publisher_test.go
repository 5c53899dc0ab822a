package audit

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

func TestPublisher_SyncMode(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink)
	defer pub.Close()

	err := pub.Emit(context.Background(), Event{
		UserID: "u1",
		Action: string(EventConsentGranted),
	})
	require.NoError(t, err)

	events := sink.ListByOwner("user:u1")
	require.Len(t, events, 1)
	assert.Equal(t, string(EventConsentGranted), events[0].Action)
	assert.Equal(t, CategoryCompliance, events[0].Category)
	assert.Equal(t, SeverityInfo, events[0].Severity)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithAsyncBuffer(100), WithLogger(logger.Discard()))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), Event{
			SessionID: "s1",
			Action:    string(EventConsentUpdated),
		}))
	}
	require.NoError(t, pub.Close())

	assert.Len(t, sink.ListByOwner("session:s1"), 10, "all events should be drained on close")
}

type blockingSink struct {
	release chan struct{}
	MemorySink
}

func (s *blockingSink) Append(ctx context.Context, event Event) error {
	<-s.release
	return s.MemorySink.Append(ctx, event)
}

func TestPublisher_BufferFullDropsEvent(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	pub := NewPublisher(sink, WithAsyncBuffer(1), WithLogger(logger.Discard()))

	var full int
	for range 5 {
		if err := pub.Emit(context.Background(), Event{UserID: "u1", Action: "x"}); errors.Is(err, ErrBufferFull) {
			full++
		}
	}
	close(sink.release)
	require.NoError(t, pub.Close())

	assert.GreaterOrEqual(t, full, 3)
	assert.Equal(t, 5-full, len(sink.Events()))
}

func TestPublisher_CancelledContextInAsyncMode(t *testing.T) {
	pub := NewPublisher(NewMemorySink(), WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Emit(ctx, Event{Action: "x"}), context.Canceled)
}

func TestPublisher_Timestamps(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), Event{Action: "a"}))
	require.NoError(t, pub.Emit(context.Background(), Event{Action: "b", Timestamp: custom}))

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, custom, events[1].Timestamp)
}

type failingSink struct{ err error }

func (s failingSink) Append(context.Context, Event) error { return s.err }

func TestFanout(t *testing.T) {
	boom := errors.New("broker down")
	first, last := NewMemorySink(), NewMemorySink()
	fan := Fanout{first, failingSink{err: boom}, last}

	err := fan.Append(context.Background(), Event{Action: "a"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.Events(), 1)
	assert.Len(t, last.Events(), 1, "a failing sink must not starve later sinks")
}

func TestPublisher_SyncSinkErrorReturned(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewPublisher(failingSink{err: boom})
	assert.ErrorIs(t, pub.Emit(context.Background(), Event{Action: "a"}), boom)
}

func TestPublisher_ConcurrentEmit(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithAsyncBuffer(1000))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), Event{UserID: "u1", Action: string(EventFileUploaded)})
		}()
	}
	wg.Wait()
	require.NoError(t, pub.Close())
	assert.Len(t, sink.Events(), 50)
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	for name, opts := range map[string][]Option{
		"sync":  nil,
		"async": {WithAsyncBuffer(4), WithLogger(logger.Discard())},
	} {
		t.Run(name, func(t *testing.T) {
			sink := NewMemorySink()
			pub := NewPublisher(sink, opts...)
			require.NoError(t, pub.Close())
			require.NoError(t, pub.Close(), "second close is a no-op")

			err := pub.Emit(context.Background(), Event{SessionID: "s1", Action: string(EventConsentGranted)})
			assert.ErrorIs(t, err, ErrClosed)
			assert.Empty(t, sink.Events())
		})
	}
}

func TestPublisher_CloseRacesEmit(t *testing.T) {
	pub := NewPublisher(NewMemorySink(), WithAsyncBuffer(8), WithLogger(logger.Discard()))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				err := pub.Emit(context.Background(), Event{SessionID: "s1", Action: string(EventConsentGranted)})
				if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrBufferFull) {
					t.Errorf("unexpected emit error: %v", err)
				}
			}
		}()
	}
	require.NoError(t, pub.Close())
	wg.Wait()
}
