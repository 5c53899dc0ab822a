package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convertviral_consent_actions_total",
		Help: "Recorded consent decisions by derived action",
	}, []string{"action"})

	writeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convertviral_consent_write_failures_total",
		Help: "Consent write failures by step; step=current is the primary record",
	}, []string{"step"})

	erasuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_consent_erasures_total",
		Help: "Completed data-subject erasures",
	})

	lockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "convertviral_consent_owner_lock_wait_seconds",
		Help:    "Time spent waiting for the per-owner write lock",
		Buckets: []float64{.0001, .001, .01, .05, .1, .5, 1, 5},
	})
)
