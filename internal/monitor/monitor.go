// Package monitor exports the event-selection counters as Prometheus metrics.
package monitor

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/usnistgov/evsel"
)

// Monitor is an evsel.Counter backed by Prometheus metrics.
type Monitor struct {
	registry *prometheus.Registry

	// counts holds every named counter, labelled by counter name and run.
	counts *prometheus.CounterVec

	// batchSeconds measures batch processing time.
	batchSeconds prometheus.Histogram

	// records counts the BC and event records produced, per kind.
	records *prometheus.CounterVec
}

// New registers the metrics on a fresh registry.
func New() *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Monitor{
		registry: reg,
		counts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evsel",
			Name:      "counter_total",
			Help:      "Event-selection diagnostic counters by name and run",
		}, []string{"name", "run"}),
		batchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evsel",
			Name:      "batch_duration_seconds",
			Help:      "Time to classify and associate one batch",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evsel",
			Name:      "records_total",
			Help:      "Selection records produced, by kind",
		}, []string{"kind"}),
	}
}

// Inc implements evsel.Counter.
func (m *Monitor) Inc(name string, run int) {
	m.counts.WithLabelValues(name, strconv.Itoa(run)).Inc()
}

// Count returns the current value of counter name for run.
func (m *Monitor) Count(name string, run int) (float64, error) {
	c, err := m.counts.GetMetricWithLabelValues(name, strconv.Itoa(run))
	if err != nil {
		return 0, err
	}
	return readCounter(c)
}

// ObserveBatch records the size and duration of a processed batch.
func (m *Monitor) ObserveBatch(r *evsel.BatchResult) {
	m.batchSeconds.Observe(r.Finish.Sub(r.Start).Seconds())
	m.records.WithLabelValues("bc").Add(float64(len(r.BCs)))
	m.records.WithLabelValues("event").Add(float64(len(r.Events)))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry holding the metrics.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

func readCounter(c prometheus.Counter) (float64, error) {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0, err
	}
	return pb.GetCounter().GetValue(), nil
}
