package ideasync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records sync outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts       *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	networkWarning prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideasync",
			Name:      "attempts_total",
			Help:      "Idea lines dispatched to the remote store, by category and outcome.",
		}, []string{"category", "status", "kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideasync",
			Name:      "runs_total",
			Help:      "Sync runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ideasync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of sync runs that dispatched at least one line.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		networkWarning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ideasync",
			Name:      "network_warning",
			Help:      "1 while the network advisory is raised.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.runs, m.runDuration, m.networkWarning)
	}
	return m
}

func (m *Metrics) observeAttempt(category Category, status Status, kind ErrorKind) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(category.Key(), string(status), string(kind)).Inc()
}

func (m *Metrics) observeRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	if result == "completed" {
		m.runDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) setNetworkWarning(raised bool) {
	if m == nil {
		return
	}
	if raised {
		m.networkWarning.Set(1)
		return
	}
	m.networkWarning.Set(0)
}
