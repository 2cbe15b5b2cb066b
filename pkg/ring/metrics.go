package ring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/logtest/metric"
)

// ringMetrics exposes window statistics as Prometheus metrics.
type ringMetrics struct {
	pushes      prometheus.Counter
	reads       prometheus.Counter
	evictions   prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

// newRingMetrics registers window metrics with the shared registry.
func newRingMetrics(registry *metric.MetricsRegistry, prefix string) (*ringMetrics, error) {
	m := &ringMetrics{
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_pushes_total",
			Help: "Total items pushed onto the window",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_reads_total",
			Help: "Total non-destructive window reads",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_evictions_total",
			Help: "Total oldest-item evictions",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_size",
			Help: "Current number of items in the window",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_utilization",
			Help: "Window utilization (0-1)",
		}),
	}

	componentName := "ring"
	if err := registry.RegisterCounter(componentName, prefix+"_pushes_total", m.pushes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(componentName, prefix+"_reads_total", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(componentName, prefix+"_evictions_total", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(componentName, prefix+"_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(componentName, prefix+"_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ringMetrics) recordPush(size, capacity int) {
	m.pushes.Inc()
	m.updateSize(size, capacity)
}

func (m *ringMetrics) recordRead() {
	m.reads.Inc()
}

func (m *ringMetrics) recordEviction() {
	m.evictions.Inc()
}

func (m *ringMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	if capacity > 0 {
		m.utilization.Set(float64(size) / float64(capacity))
	}
}
