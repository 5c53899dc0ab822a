package files

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_file_uploads_total",
		Help: "Files stored in object storage",
	})
	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_file_uploaded_bytes_total",
		Help: "Bytes stored in object storage",
	})
	scheduledDeletions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "convertviral_file_scheduled_deletions",
		Help: "Scheduled file deletions waiting in this process",
	})
	deletionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_file_deletion_failures_total",
		Help: "Scheduled file deletions that returned an error",
	})
)
