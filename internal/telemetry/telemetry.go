// Package telemetry exposes the service's own operational counters through a
// Prometheus registry. Recording is fire-and-forget; nothing in the pipeline
// blocks on telemetry.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry holds the Prometheus registry and instruments
type Telemetry struct {
	registry *prometheus.Registry

	ValuesRecorded      *prometheus.CounterVec
	AggregationsTotal   *prometheus.CounterVec
	AggregationDuration prometheus.Histogram
	KPICalculations     *prometheus.CounterVec
	KPIFailures         prometheus.Counter
	TrendAnalyses       prometheus.Counter
	AnomaliesDetected   prometheus.Counter
	InsightsEmitted     *prometheus.CounterVec
	SyncConflicts       prometheus.Counter
	SyncResolutions     *prometheus.CounterVec
	CacheHitRate        prometheus.Gauge
	BackgroundRestarts  *prometheus.CounterVec
}

// New creates a telemetry registry with all instruments registered
func New() *Telemetry {
	registry := prometheus.NewRegistry()

	t := &Telemetry{
		registry: registry,
		ValuesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "einvoice_analytics_metric_values_recorded_total",
			Help: "Total metric observations recorded, by source role",
		}, []string{"role"}),
		AggregationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "einvoice_analytics_aggregations_total",
			Help: "Total aggregation queries served, by method",
		}, []string{"method"}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "einvoice_analytics_aggregation_duration_seconds",
			Help:    "Duration of aggregation queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		KPICalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "einvoice_analytics_kpi_calculations_total",
			Help: "Total KPI calculations, by resulting status",
		}, []string{"status"}),
		KPIFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "einvoice_analytics_kpi_failures_total",
			Help: "Total KPI calculations that returned an error",
		}),
		TrendAnalyses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "einvoice_analytics_trend_analyses_total",
			Help: "Total trend analyses performed",
		}),
		AnomaliesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "einvoice_analytics_anomalies_detected_total",
			Help: "Total anomalies flagged across trend analyses",
		}),
		InsightsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "einvoice_analytics_insights_emitted_total",
			Help: "Total business insights emitted, by severity",
		}, []string{"severity"}),
		SyncConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "einvoice_analytics_sync_conflicts_total",
			Help: "Total cross-role sync conflicts detected",
		}),
		SyncResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "einvoice_analytics_sync_resolutions_total",
			Help: "Total conflict resolutions applied, by policy",
		}, []string{"policy"}),
		CacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "einvoice_analytics_cache_hit_rate",
			Help: "Current cache coordinator hit rate",
		}),
		BackgroundRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "einvoice_analytics_background_restarts_total",
			Help: "Total supervised background loop restarts, by loop",
		}, []string{"loop"}),
	}

	registry.MustRegister(
		t.ValuesRecorded,
		t.AggregationsTotal,
		t.AggregationDuration,
		t.KPICalculations,
		t.KPIFailures,
		t.TrendAnalyses,
		t.AnomaliesDetected,
		t.InsightsEmitted,
		t.SyncConflicts,
		t.SyncResolutions,
		t.CacheHitRate,
		t.BackgroundRestarts,
	)
	return t
}

// Handler returns the /metrics HTTP handler for this registry
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
