package checker

import (
	"github.com/ejacobg/link-validator/validator"
	"github.com/prometheus/client_golang/prometheus"
	"time"
)

const metricsNamespace = "linkvalidator"

// Metrics exposes link checker activity to Prometheus. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	linksChecked  *prometheus.CounterVec
	newLinks      prometheus.Counter
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	updates       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		linksChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "links_checked_total",
			Help:      "Links classified, partitioned by resulting status.",
		}, []string{"status"}),
		newLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "new_bad_links_total",
			Help:      "Bad-link records inserted by sweeps and updates.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sweeps_total",
			Help:      "Full sweeps, partitioned by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of completed full sweeps.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_total",
			Help:      "Incremental updates, partitioned by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.linksChecked, m.newLinks, m.sweeps, m.sweepDuration, m.updates)
	}
	return m
}

func (m *Metrics) linkChecked(status validator.Status) {
	if m == nil {
		return
	}
	m.linksChecked.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) linksInserted(n int) {
	if m == nil {
		return
	}
	m.newLinks.Add(float64(n))
}

func (m *Metrics) sweepFinished(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(outcome).Inc()
	if outcome == outcomeSuccess {
		m.sweepDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) updateFinished(outcome string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(outcome).Inc()
}
