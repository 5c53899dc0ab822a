package audit

import (
	"context"
	"log/slog"
	"time"
)

const sinkTimeout = 5 * time.Second

// Worker consumes audit events from a channel and appends them to the sink
// until the channel is closed.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run() {
	for event := range w.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := w.sink.Append(ctx, event)
		cancel()
		if err != nil {
			sinkFailuresTotal.Inc()
			w.logger.Error("audit sink append failed",
				"action", event.Action,
				"error", err,
			)
			continue
		}
		eventsEmittedTotal.WithLabelValues(string(event.Category)).Inc()
	}
}
