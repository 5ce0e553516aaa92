package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maraichr/creditlens/pkg/models"
)

// Metrics holds pipeline instrumentation. A nil *Metrics records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	retries       prometheus.Counter
	indexCache    *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "creditlens",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage executions.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditlens",
			Name:      "runs_total",
			Help:      "Finished analyses by terminal status.",
		}, []string{"status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creditlens",
			Name:      "validation_retries_total",
			Help:      "Scoring attempts repeated after a rejected validation.",
		}),
		indexCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditlens",
			Name:      "index_cache_lookups_total",
			Help:      "Embedding index cache lookups by cache tier and result.",
		}, []string{"cache", "result"}),
	}
	reg.MustRegister(m.stageDuration, m.runs, m.retries, m.indexCache)
	return m
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) observeRun(status models.RunStatus) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// ObserveIndexCache matches index.Observer.
func (m *Metrics) ObserveIndexCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.indexCache.WithLabelValues(cache, result).Inc()
}
