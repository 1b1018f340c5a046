/*
Package metrics exposes calendar activity as Prometheus collectors.

PURPOSE:
  Metrics implements calendar.Observer. Every collector lives on the
  Metrics' own registry so tests and multiple servers never collide on the
  global default registry.

COLLECTORS:
  <ns>_classifications_total{kind, verdict}
  <ns>_presses_total{kind, outcome, reason}
  <ns>_refreshes_total{kind, result}
  <ns>_refresh_duration_seconds{kind}
  <ns>_snapshot_generation{kind}

  A nil *Metrics is valid and records nothing.
*/
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/leave-calendar/calendar"
)

type Metrics struct {
	registry        *prometheus.Registry
	classifications *prometheus.CounterVec
	presses         *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	generation      *prometheus.GaugeVec
}

var _ calendar.Observer = (*Metrics)(nil)

// New registers every collector under namespace (dashes become underscores).
func New(namespace string) *Metrics {
	ns := strings.ReplaceAll(namespace, "-", "_")
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "classifications_total",
			Help:      "Date keys classified, by verdict.",
		}, []string{"kind", "verdict"}),
		presses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "presses_total",
			Help:      "Day presses handled, by outcome and reason.",
		}, []string{"kind", "outcome", "reason"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "refreshes_total",
			Help:      "Snapshot refreshes, by result.",
		}, []string{"kind", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "refresh_duration_seconds",
			Help:      "Time to fetch and index one snapshot.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		generation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "snapshot_generation",
			Help:      "Generation of the last refresh attempt.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.classifications,
		m.presses,
		m.refreshes,
		m.refreshDuration,
		m.generation,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveClassification(kind calendar.Kind, verdict calendar.Verdict) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(string(kind), string(verdict)).Inc()
}

func (m *Metrics) ObservePress(kind calendar.Kind, out calendar.Outcome) {
	if m == nil {
		return
	}
	reason := string(out.Reason)
	if reason == "" {
		reason = "none"
	}
	m.presses.WithLabelValues(string(kind), string(out.Kind), reason).Inc()
}

func (m *Metrics) ObserveRefresh(kind calendar.Kind, generation uint64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(string(kind), result).Inc()
	m.refreshDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	m.generation.WithLabelValues(string(kind)).Set(float64(generation))
}
