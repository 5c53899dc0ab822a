package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

// Publisher enriches events and hands them to a sink, either inline or
// through a bounded buffer drained by a background worker.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	inbox  chan Event
	worker *Worker
	done   chan struct{}

	// mu is held for reading while an event is handed over and for writing
	// while closing, so no send can race the close of inbox.
	mu       sync.RWMutex
	closed   bool
	once     sync.Once
	closeErr error
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking with a buffer of size n. When the
// buffer is full the event is dropped and Emit returns ErrBufferFull.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a publisher over sink. Close must be called to drain an
// async publisher.
func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.worker = NewWorker(sink, p.inbox, p.logger)
		p.done = make(chan struct{})
		go func() {
			defer close(p.done)
			p.worker.Run()
		}()
	}
	return p
}

// Emit publishes event. In async mode only a full buffer, a cancelled
// context or a closed publisher produce an error; sink failures are logged by
// the worker.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	enrich(&event)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		eventsDroppedTotal.Inc()
		return ErrClosed
	}

	if p.inbox == nil {
		if err := p.sink.Append(ctx, event); err != nil {
			sinkFailuresTotal.Inc()
			return err
		}
		eventsEmittedTotal.WithLabelValues(string(event.Category)).Inc()
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		eventsDroppedTotal.Inc()
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
		)
		return ErrBufferFull
	}
}

// Close drains buffered events and closes the sink when it supports it.
// Later calls return the first result; Emit after Close returns ErrClosed.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		if p.inbox != nil {
			close(p.inbox)
		}
		p.mu.Unlock()

		if p.done != nil {
			<-p.done
		}
		if c, ok := p.sink.(interface{ Close() error }); ok {
			p.closeErr = c.Close()
		}
	})
	return p.closeErr
}

// Fanout delivers each event to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, sink := range f {
		if c, ok := sink.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
