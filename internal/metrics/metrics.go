// Package metrics bundles the Prometheus collectors of a run. Every method
// is safe on a nil *Metrics so callers never need to check.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the acquisition engine.
type Metrics struct {
	Registry *prometheus.Registry

	FetchesTotal      *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	AttemptsTotal     *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	BreakerTripsTotal *prometheus.CounterVec
	RecordsTotal      *prometheus.CounterVec
	Completeness      *prometheus.GaugeVec
	PricesFound       *prometheus.GaugeVec
	RunDuration       prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campwatch_fetches_total",
			Help: "Page fetches by driver and outcome.",
		},
		[]string{"driver", "outcome"},
	)
	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campwatch_fetch_duration_seconds",
			Help:    "Page fetch latency by driver.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"driver"},
	)
	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campwatch_adapter_attempts_total",
			Help: "Adapter invocations by failure class.",
		},
		[]string{"adapter", "class"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campwatch_retries_total",
			Help: "Retries scheduled by the resilience controller.",
		},
		[]string{"adapter"},
	)
	trips := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campwatch_breaker_open_total",
			Help: "Calls rejected because the adapter's circuit was open.",
		},
		[]string{"adapter"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campwatch_records_total",
			Help: "Emitted competitor records by success.",
		},
		[]string{"adapter", "success"},
	)
	completeness := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "campwatch_data_completeness_pct",
			Help: "Data completeness of the adapter's record.",
		},
		[]string{"adapter"},
	)
	prices := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "campwatch_prices_found",
			Help: "Distinct in-band prices in the adapter's record.",
		},
		[]string{"adapter"},
	)
	runDuration := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "campwatch_run_duration_seconds",
			Help: "Wall time of the run.",
		},
	)

	registry.MustRegister(fetches, fetchDuration, attempts, retries, trips, records, completeness, prices, runDuration)

	return &Metrics{
		Registry:          registry,
		FetchesTotal:      fetches,
		FetchDuration:     fetchDuration,
		AttemptsTotal:     attempts,
		RetriesTotal:      retries,
		BreakerTripsTotal: trips,
		RecordsTotal:      records,
		Completeness:      completeness,
		PricesFound:       prices,
		RunDuration:       runDuration,
	}
}

// ObserveFetch records one fetch.
func (m *Metrics) ObserveFetch(driver, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(driver, outcome).Inc()
	m.FetchDuration.WithLabelValues(driver).Observe(d.Seconds())
}

// IncAttempt counts an adapter invocation with its failure class ("ok" on success).
func (m *Metrics) IncAttempt(adapter, class string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(adapter, class).Inc()
}

// IncRetry increments the retries counter.
func (m *Metrics) IncRetry(adapter string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(adapter).Inc()
}

// IncBreakerOpen counts a breaker trip.
func (m *Metrics) IncBreakerOpen(adapter string) {
	if m == nil {
		return
	}
	m.BreakerTripsTotal.WithLabelValues(adapter).Inc()
}

// ObserveRecord records the outcome of an emitted record.
func (m *Metrics) ObserveRecord(adapter string, success bool, completeness float64, prices int) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.RecordsTotal.WithLabelValues(adapter, label).Inc()
	m.Completeness.WithLabelValues(adapter).Set(completeness)
	m.PricesFound.WithLabelValues(adapter).Set(float64(prices))
}

// SetRunDuration records the run's wall time.
func (m *Metrics) SetRunDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Set(d.Seconds())
}

// WriteTextfile writes the registry in the Prometheus text format, suitable
// for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
