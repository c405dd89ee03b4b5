// Package metric exposes the node's Prometheus instrumentation.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all node-level metrics.
type Metrics struct {
	LifecycleState    prometheus.Gauge
	TagReads          prometheus.Counter
	TagsAdmitted      prometheus.Counter
	TagsSuppressed    prometheus.Counter
	JoinAttempts      prometheus.Counter
	ReconnectAttempts prometheus.Counter
	NotifyResults     *prometheus.CounterVec
}

// New creates a Metrics instance with all node metrics.
func New() *Metrics {
	return &Metrics{
		LifecycleState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nodegate",
			Subsystem: "lifecycle",
			Name:      "state",
			Help:      "Lifecycle state (0=unprovisioned, 1=provisioning, 2=connecting, 3=operational, 4=reconnecting)",
		}),
		TagReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodegate",
			Subsystem: "tags",
			Name:      "reads_total",
			Help:      "Total reader polls that returned a tag",
		}),
		TagsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodegate",
			Subsystem: "tags",
			Name:      "admitted_total",
			Help:      "Tag reads admitted by the dedup gate",
		}),
		TagsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodegate",
			Subsystem: "tags",
			Name:      "suppressed_total",
			Help:      "Tag reads suppressed as repeats",
		}),
		JoinAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodegate",
			Subsystem: "net",
			Name:      "join_attempts_total",
			Help:      "Station-mode join attempts issued",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodegate",
			Subsystem: "net",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts issued while the link was down",
		}),
		NotifyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodegate",
			Subsystem: "notify",
			Name:      "results_total",
			Help:      "Outbound notification outcomes",
		}, []string{"outcome"}),
	}
}

// Register adds all metrics to the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.LifecycleState,
		m.TagReads,
		m.TagsAdmitted,
		m.TagsSuppressed,
		m.JoinAttempts,
		m.ReconnectAttempts,
		m.NotifyResults,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
