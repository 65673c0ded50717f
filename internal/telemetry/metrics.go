// Package telemetry exposes Prometheus metrics for collection runs and jobs.
package telemetry

import (
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "visibility"
	MetricsSubsystem = "collector"
)

// Metrics holds all collector metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChecksTotal           *prometheus.CounterVec
	CollectionErrorsTotal *prometheus.CounterVec
	CheckDurationSeconds  *prometheus.HistogramVec
	PersistedTotal        prometheus.Counter
	PersistFailuresTotal  prometheus.Counter
	JobsTotal             *prometheus.CounterVec
	JobsRunning           prometheus.Gauge
}

// NewMetrics creates and registers the metrics on reg (the default registerer when nil)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "checks_total",
				Help:      "Visibility checks by engine and outcome (present, absent, failed)",
			},
			[]string{"engine", "outcome"},
		),
		CollectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "collection_errors_total",
				Help:      "Failed check attempts by engine and cause",
			},
			[]string{"engine", "cause"},
		),
		CheckDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "check_duration_seconds",
				Help:      "Duration of a single engine check including retries",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"engine"},
		),
		PersistedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "observations_persisted_total",
				Help:      "Observations written to storage",
			},
		),
		PersistFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "persist_batch_failures_total",
				Help:      "Bulk write batches that failed",
			},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "jobs",
				Name:      "finished_total",
				Help:      "Asynchronous check jobs by final status",
			},
			[]string{"status"},
		),
		JobsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: MetricsNamespace,
				Subsystem: "jobs",
				Name:      "running",
				Help:      "Asynchronous check jobs currently running",
			},
		),
	}
}

// RecordCheck counts one finished (keyword, engine) check
func (m *Metrics) RecordCheck(engine models.Engine, obs *models.Observation, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "failed"
	if obs != nil {
		outcome = "absent"
		if obs.Presence {
			outcome = "present"
		}
	}
	m.ChecksTotal.WithLabelValues(engine.String(), outcome).Inc()
	m.CheckDurationSeconds.WithLabelValues(engine.String()).Observe(duration.Seconds())
}

func (m *Metrics) RecordCollectionError(engine models.Engine, cause models.CollectionCause) {
	if m == nil {
		return
	}
	m.CollectionErrorsTotal.WithLabelValues(engine.String(), string(cause)).Inc()
}

func (m *Metrics) RecordPersist(size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PersistFailuresTotal.Inc()
		m.PersistedTotal.Add(float64(models.WrittenBefore(err)))
		return
	}
	m.PersistedTotal.Add(float64(size))
}

func (m *Metrics) RecordJobStarted() {
	if m == nil {
		return
	}
	m.JobsRunning.Inc()
}

func (m *Metrics) RecordJobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsRunning.Dec()
	m.JobsTotal.WithLabelValues(status).Inc()
}
