package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GuestPinAttempts records PIN verification attempts by result
	// (success|invalid_pin|invalid_token|invalid_session|rate_limited|error).
	// invalid_session counts session cookies that did not match.
	GuestPinAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blotter_guest_pin_attempts_total",
			Help: "Total number of guest PIN verification attempts",
		},
		[]string{"result"},
	)

	// GuestUploads counts guest evidence submissions by outcome.
	GuestUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blotter_guest_uploads_total",
			Help: "Total number of guest evidence uploads",
		},
		[]string{"result"},
	)

	// GuestUploadBytes observes accepted upload sizes.
	GuestUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blotter_guest_upload_bytes",
			Help:    "Size of accepted guest evidence uploads",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)

	// GuestEvidenceDeletes counts guest-initiated evidence deletions by outcome.
	GuestEvidenceDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blotter_guest_evidence_deletes_total",
			Help: "Total number of guest evidence deletions",
		},
		[]string{"result"},
	)

	// StorageOrphans counts objects left behind after a failed cleanup.
	StorageOrphans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blotter_storage_orphaned_objects_total",
			Help: "Objects whose deletion failed and were left in the object store",
		},
	)

	// RealtimeConnections tracks open staff notification sockets.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blotter_realtime_connections",
			Help: "Staff websocket connections currently open",
		},
	)

	// RequestsInFlight tracks requests currently being served.
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blotter_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)

	// APILatency measures HTTP request latencies by route template.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blotter_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
