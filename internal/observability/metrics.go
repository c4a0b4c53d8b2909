package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aqi_forecast"

// Metrics holds the Prometheus counters, histograms, and gauges for the pipelines.
type Metrics struct {
	PipelineRuns     *prometheus.CounterVec   // labels: pipeline={ingest,backfill,train,infer}, outcome={ok,<reason>}
	PipelineDuration *prometheus.HistogramVec // labels: pipeline
	RowsUpserted     *prometheus.CounterVec   // labels: store={observations,features}

	// Training metrics.
	CandidateRMSE *prometheus.GaugeVec // labels: candidate

	// Inference metrics.
	ForecastCacheHits    prometheus.Counter
	ForecastDaysComputed prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by pipeline and outcome.",
		}, []string{"pipeline", "outcome"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"pipeline"}),
		RowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_upserted_total",
			Help:      "Rows written to the row stores.",
		}, []string{"store"}),
		CandidateRMSE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidate_rmse_avg",
			Help:      "Average test RMSE across horizons of the last trained candidate.",
		}, []string{"candidate"}),
		ForecastCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_hits_total",
			Help:      "Inference runs answered entirely from stored forecasts.",
		}),
		ForecastDaysComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_days_computed_total",
			Help:      "Forecast days predicted and inserted.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRuns,
		m.PipelineDuration,
		m.RowsUpserted,
		m.CandidateRMSE,
		m.ForecastCacheHits,
		m.ForecastDaysComputed,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
