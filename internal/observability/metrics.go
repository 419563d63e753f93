package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "scans_total",
		Help:      "Total number of tag scans handled, by classification and status",
	}, []string{"event_type", "status"})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "scan_duration_seconds",
		Help:      "Duration of scan classification and persistence",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	AttendanceMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "mutations_total",
		Help:      "Attendance records written, by action",
	}, []string{"action"})

	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "notifications_dropped_total",
		Help:      "Notifications dropped because the dispatch buffer was full or delivery failed",
	})

	ReaderRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "reader_running",
		Help:      "1 while the reader is accepting scans",
	})

	PolicyVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "policy_version",
		Help:      "Version of the active attendance policy",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
