// Package metrics exports envelope activity to Prometheus.
package metrics

import (
	"net/http"

	"storefront-sync/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Collector is a store.Observer that records envelope counts, durations and
// in-flight requests per domain.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	registry *prometheus.Registry

	issued   *prometheus.CounterVec
	settled  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
	errors   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry. Go runtime and
// process metrics are registered alongside.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_issued_total",
			Help:      "Envelopes opened, by domain and operation.",
		}, []string{"domain", "operation"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_settled_total",
			Help:      "Envelopes settled, by domain, operation and outcome.",
		}, []string{"domain", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "envelope_duration_seconds",
			Help:      "Time from issue to settlement.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain", "outcome"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "envelopes_inflight",
			Help:      "Envelopes issued but not yet settled.",
		}, []string{"domain"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_errors_total",
			Help:      "Failed settlements by domain and error kind.",
		}, []string{"domain", "kind"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.issued, c.settled, c.duration, c.inflight, c.errors,
	)
	for _, d := range store.AllDomains {
		c.inflight.WithLabelValues(string(d)).Set(0)
	}
	return c
}

// Issued implements store.Observer.
func (c *Collector) Issued(operation string, d store.Domain) {
	c.issued.WithLabelValues(string(d), operation).Inc()
	c.inflight.WithLabelValues(string(d)).Inc()
}

// Settled implements store.Observer.
func (c *Collector) Settled(s store.Settlement) {
	domain, outcome := string(s.Domain), string(s.Outcome)
	c.settled.WithLabelValues(domain, s.Operation, outcome).Inc()
	c.duration.WithLabelValues(domain, outcome).Observe(s.Duration.Seconds())
	c.inflight.WithLabelValues(domain).Dec()
	if s.Err != nil {
		c.errors.WithLabelValues(domain, string(s.Err.Kind)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ store.Observer = (*Collector)(nil)
