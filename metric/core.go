package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all service-level metrics (not component-specific)
type Metrics struct {
	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter
	SessionsRemoved prometheus.Counter

	// Request metrics
	RequestsTotal      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec

	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Reaper metrics
	ReaperSweeps prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all service metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "logtest",
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Number of currently registered sessions",
			},
		),

		SessionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "logtest",
				Subsystem: "sessions",
				Name:      "created_total",
				Help:      "Total number of sessions created",
			},
		),

		SessionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "logtest",
				Subsystem: "sessions",
				Name:      "expired_total",
				Help:      "Total number of sessions evicted by the reaper",
			},
		),

		SessionsRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "logtest",
				Subsystem: "sessions",
				Name:      "removed_total",
				Help:      "Total number of sessions removed explicitly by clients",
			},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "logtest",
				Subsystem: "requests",
				Name:      "total",
				Help:      "Total number of log-test requests by response status",
			},
			[]string{"transport", "status"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "logtest",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Request processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "logtest",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and class",
			},
			[]string{"component", "class"},
		),

		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "logtest",
				Subsystem: "connections",
				Name:      "active",
				Help:      "Number of currently open client connections",
			},
		),

		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "logtest",
				Subsystem: "connections",
				Name:      "total",
				Help:      "Total number of accepted client connections",
			},
		),

		ReaperSweeps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "logtest",
				Subsystem: "reaper",
				Name:      "sweeps_total",
				Help:      "Total number of completed reaper sweep cycles",
			},
		),
	}
}
