package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convertviral_audit_events_emitted_total",
		Help: "Audit events delivered to the sink, by category",
	}, []string{"category"})

	eventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_audit_events_dropped_total",
		Help: "Audit events dropped because the async buffer was full",
	})

	sinkFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_audit_sink_failures_total",
		Help: "Audit events the sink failed to persist",
	})
)
