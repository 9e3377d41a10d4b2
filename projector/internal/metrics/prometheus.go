// Package metrics exposes projector metrics on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "pointsbot"
	subsystem = "projector"
)

// Metrics holds the projector's collectors.
type Metrics struct {
	registry *prometheus.Registry

	fits              *prometheus.CounterVec
	fitDuration       prometheus.Histogram
	stageFailures     *prometheus.CounterVec
	divergences       prometheus.Counter
	maxRhat           *prometheus.GaugeVec
	projectionsStored prometheus.Counter
	batchDuration     prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)
	return &Metrics{
		registry: reg,
		fits: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fits_total",
			Help:      "Model fits by result (ok, failed)",
		}, []string{"result"}),
		fitDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fit_duration_seconds",
			Help:      "Wall time of one posterior fit",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		stageFailures: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_failures_total",
			Help:      "Per-player failures by pipeline stage",
		}, []string{"stage"}),
		divergences: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "divergent_transitions_total",
			Help:      "Divergent HMC transitions among retained draws",
		}),
		maxRhat: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "max_rhat",
			Help:      "Largest split R-hat of the player's latest fit",
		}, []string{"player"}),
		projectionsStored: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "projections_stored_total",
			Help:      "Artifacts written to the store",
		}),
		batchDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one batch over all players",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFit records one fit's outcome and duration.
func (m *Metrics) ObserveFit(ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.fits.WithLabelValues(result).Inc()
	m.fitDuration.Observe(d.Seconds())
}

// ObserveDiagnostics records sampler health for player.
func (m *Metrics) ObserveDiagnostics(player string, divergences int, maxRhat float64) {
	m.divergences.Add(float64(divergences))
	m.maxRhat.WithLabelValues(player).Set(maxRhat)
}

// StageFailed counts a per-player failure at stage.
func (m *Metrics) StageFailed(stage string) {
	m.stageFailures.WithLabelValues(stage).Inc()
}

// ProjectionStored counts a saved artifact.
func (m *Metrics) ProjectionStored() { m.projectionsStored.Inc() }

// ObserveBatch records the duration of a whole batch.
func (m *Metrics) ObserveBatch(d time.Duration) { m.batchDuration.Observe(d.Seconds()) }
