// Package metrics holds the prometheus collectors shared by the server and worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Compensation outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

var (
	// Compensations counts cleanup actions run after a partial failure,
	// by action (delete_video, abort_upload) and outcome.
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvod_compensations_total",
		Help: "Compensating actions after partial failures",
	}, []string{"action", "outcome"})

	UploadSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvod_upload_sessions_total",
		Help: "Multipart upload session transitions",
	}, []string{"event"})

	TranscodeSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvod_transcode_submissions_total",
		Help: "Transcode jobs submitted",
	}, []string{"result"})

	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvod_reconcile_outcomes_total",
		Help: "Job state change events by reconciliation result",
	}, []string{"status", "result"})

	ReplicationObjects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvod_replication_objects_total",
		Help: "Objects copied to the replica store",
	}, []string{"family", "result"})

	ReplicationBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamvod_replication_bytes_total",
		Help: "Bytes copied to the replica store",
	})

	ReplicationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamvod_replication_duration_seconds",
		Help:    "Time taken to replicate one video",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	InboxMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvod_inbox_messages_total",
		Help: "Notification messages by source and handling result",
	}, []string{"source", "result"})
)
