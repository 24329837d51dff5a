// Package trends implements statistical trend analysis over bucketed metric
// series: pattern detection (linear, exponential, seasonal, cyclical), anomaly
// detection, seasonality profiling, forecasting, and cross-metric comparison.
package trends

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"einvoice-analytics/internal/config"
	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/events"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/notify"
	"einvoice-analytics/internal/telemetry"
	"einvoice-analytics/pkg/types"
)

// Analyzer runs the trend detectors against the metrics store
type Analyzer struct {
	store    *metrics.Store
	cfg      config.TrendsConfig
	notifier notify.Notifier
	bus      *events.Bus
	tel      *telemetry.Telemetry
	logger   logging.Logger

	mu       sync.RWMutex
	analyses map[string]types.TrendAnalysis
}

// Option configures optional collaborators on the analyzer
type Option func(*Analyzer)

// WithNotifier attaches an alert sink
func WithNotifier(n notify.Notifier) Option {
	return func(a *Analyzer) { a.notifier = n }
}

// WithBus attaches the event bus for trend.alert notifications
func WithBus(bus *events.Bus) Option {
	return func(a *Analyzer) { a.bus = bus }
}

// WithTelemetry attaches the Prometheus instruments
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(a *Analyzer) { a.tel = tel }
}

// WithLogger attaches a logger
func WithLogger(logger logging.Logger) Option {
	return func(a *Analyzer) { a.logger = logger.WithComponent("trend_analyzer") }
}

// NewAnalyzer creates a trend analyzer over the given metrics store
func NewAnalyzer(store *metrics.Store, cfg config.TrendsConfig, opts ...Option) *Analyzer {
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = 10
	}
	if cfg.AnomalyZScore <= 0 {
		cfg.AnomalyZScore = 2.5
	}
	if cfg.MaxSeasonalLag <= 0 {
		cfg.MaxSeasonalLag = 24
	}
	if cfg.BacktestFraction <= 0 || cfg.BacktestFraction >= 1 {
		cfg.BacktestFraction = 0.2
	}
	a := &Analyzer{
		store:    store,
		cfg:      cfg,
		logger:   logging.NewNoOp(),
		analyses: make(map[string]types.TrendAnalysis),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze buckets the metric over the range and runs every pattern detector,
// anomaly detector, and the seasonality profile. Needs at least the configured
// minimum number of non-empty buckets.
func (a *Analyzer) Analyze(ctx context.Context, metricID string, tr types.TimeRange, granularity types.Granularity) (types.TrendAnalysis, error) {
	series, err := a.store.Trends(ctx, metricID, tr, granularity)
	if err != nil {
		return types.TrendAnalysis{}, err
	}
	points := make([]types.DataPoint, len(series))
	for i, aggregate := range series {
		points[i] = types.DataPoint{Timestamp: aggregate.PeriodStart, Value: aggregate.Value}
	}
	if len(points) < a.cfg.MinDataPoints {
		return types.TrendAnalysis{}, apperrors.NewInsufficientData("trend_analyzer",
			a.cfg.MinDataPoints, len(points))
	}

	analysis := types.TrendAnalysis{
		MetricID:    metricID,
		Range:       tr,
		Granularity: granularity,
		DataPoints:  points,
		AnalyzedAt:  time.Now().UTC(),
	}

	for _, pattern := range []*types.TrendPattern{
		detectLinear(points, tr),
		detectExponential(points, tr),
		detectSeasonal(points, tr, a.cfg.MaxSeasonalLag),
		detectCyclical(points, tr),
	} {
		if pattern != nil {
			analysis.Patterns = append(analysis.Patterns, *pattern)
		}
	}
	if len(analysis.Patterns) > 0 {
		best := 0
		for i := 1; i < len(analysis.Patterns); i++ {
			if primaryScore(&analysis.Patterns[i]) > primaryScore(&analysis.Patterns[best]) {
				best = i
			}
		}
		primary := analysis.Patterns[best]
		analysis.Primary = &primary
	}

	analysis.Anomalies = a.detectAnomalies(points, analysis.Primary)
	analysis.Seasonality = seasonalityProfile(points)
	analysis.ForecastAccuracy = a.backtest(points, analysis.Primary)

	a.mu.Lock()
	a.analyses[metricID] = analysis
	a.mu.Unlock()

	if a.tel != nil {
		a.tel.TrendAnalyses.Inc()
		a.tel.AnomaliesDetected.Add(float64(len(analysis.Anomalies)))
	}
	a.emitAlerts(ctx, &analysis)
	a.logger.DebugContext(ctx, "trend analysis complete",
		"metric_id", metricID,
		"patterns", len(analysis.Patterns),
		"anomalies", len(analysis.Anomalies))
	return analysis, nil
}

// LastAnalysis returns the most recent cached analysis for a metric
func (a *Analyzer) LastAnalysis(metricID string) (types.TrendAnalysis, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	analysis, ok := a.analyses[metricID]
	return analysis, ok
}

// detectAnomalies flags z-score outliers and, when a sloped primary pattern
// exists, points deviating far from the fitted trend line
func (a *Analyzer) detectAnomalies(points []types.DataPoint, primary *types.TrendPattern) []types.TrendAnomaly {
	values := pointValues(points)
	m := mean(values)
	sd := stdDev(values)

	var anomalies []types.TrendAnomaly
	if sd > 0 {
		for i, p := range points {
			z := math.Abs(values[i]-m) / sd
			if z > a.cfg.AnomalyZScore {
				anomalies = append(anomalies, types.TrendAnomaly{
					Kind:      types.AnomalyZScore,
					Timestamp: p.Timestamp,
					Value:     p.Value,
					Expected:  m,
					Score:     z,
				})
			}
		}
	}

	if primary != nil && primary.Kind == types.PatternLinear {
		fit := fitOLS(values)
		residuals := make([]float64, len(values))
		for i, v := range values {
			residuals[i] = v - fit.at(float64(i))
		}
		residSD := stdDev(residuals)
		if residSD > 0 {
			for i, p := range points {
				score := math.Abs(residuals[i]) / residSD
				if score > a.cfg.AnomalyZScore {
					anomalies = append(anomalies, types.TrendAnomaly{
						Kind:      types.AnomalyTrendDeviation,
						Timestamp: p.Timestamp,
						Value:     p.Value,
						Expected:  fit.at(float64(i)),
						Score:     score,
					})
				}
			}
		}
	}
	return anomalies
}

// seasonalityProfile averages values by hour of day and day of week. The
// strength is the coefficient of variation across hourly averages.
func seasonalityProfile(points []types.DataPoint) types.SeasonalitySummary {
	hourly := make(map[int][]float64)
	daily := make(map[int][]float64)
	for _, p := range points {
		hourly[p.Timestamp.Hour()] = append(hourly[p.Timestamp.Hour()], p.Value)
		daily[int(p.Timestamp.Weekday())] = append(daily[int(p.Timestamp.Weekday())], p.Value)
	}

	summary := types.SeasonalitySummary{
		HourlyAverages: make(map[int]float64, len(hourly)),
		DailyAverages:  make(map[int]float64, len(daily)),
	}
	hourMeans := make([]float64, 0, len(hourly))
	for hour, vals := range hourly {
		m := mean(vals)
		summary.HourlyAverages[hour] = m
		hourMeans = append(hourMeans, m)
	}
	for day, vals := range daily {
		summary.DailyAverages[day] = mean(vals)
	}

	overall := mean(hourMeans)
	if overall != 0 && len(hourMeans) >= 3 {
		summary.Strength = stdDev(hourMeans) / math.Abs(overall)
		summary.Detected = summary.Strength > 0.15
	}
	return summary
}

// backtest refits a line on the leading points and scores 1-MAPE on the
// trailing fraction. Falls back to the primary pattern's R-squared when the
// test window contains zeros.
func (a *Analyzer) backtest(points []types.DataPoint, primary *types.TrendPattern) float64 {
	values := pointValues(points)
	testSize := int(math.Ceil(float64(len(values)) * a.cfg.BacktestFraction))
	if testSize < 2 {
		testSize = 2
	}
	trainSize := len(values) - testSize
	fallback := 0.0
	if primary != nil {
		fallback = primary.RSquared
	}
	if trainSize < 5 {
		return fallback
	}

	fit := fitOLS(values[:trainSize])
	var apeSum float64
	for i := trainSize; i < len(values); i++ {
		actual := values[i]
		if actual == 0 {
			return fallback
		}
		predicted := fit.at(float64(i))
		apeSum += math.Abs(actual-predicted) / math.Abs(actual)
	}
	accuracy := 1 - apeSum/float64(testSize)
	if accuracy < 0 {
		return 0
	}
	return accuracy
}

// emitAlerts sends informational alerts for the conditions worth an operator's
// attention: a strong decline, high volatility, or an anomaly cluster
func (a *Analyzer) emitAlerts(ctx context.Context, analysis *types.TrendAnalysis) {
	if a.notifier == nil {
		return
	}
	if p := analysis.Primary; p != nil &&
		p.Direction == types.DirectionDownward && p.Strength == types.StrengthStrong {
		a.notify(ctx, notify.Alert{
			Source:   "trend_analyzer",
			Severity: types.SeverityWarning,
			Title:    "strong downward trend",
			Message:  fmt.Sprintf("metric %s shows a strong downward %s trend", analysis.MetricID, p.Kind),
			Data:     map[string]float64{"r_squared": p.RSquared, "slope": p.Slope},
		})
	}

	values := pointValues(analysis.DataPoints)
	if m := mean(values); m != 0 && a.cfg.VolatilityCV > 0 {
		if cv := stdDev(values) / math.Abs(m); cv > a.cfg.VolatilityCV {
			a.notify(ctx, notify.Alert{
				Source:   "trend_analyzer",
				Severity: types.SeverityWarning,
				Title:    "high volatility",
				Message:  fmt.Sprintf("metric %s volatility exceeds the alert threshold", analysis.MetricID),
				Data:     map[string]float64{"cv": cv},
			})
		}
	}

	if a.cfg.AnomalyAlertMin > 0 && len(analysis.Anomalies) > a.cfg.AnomalyAlertMin {
		a.notify(ctx, notify.Alert{
			Source:   "trend_analyzer",
			Severity: types.SeverityWarning,
			Title:    "anomaly cluster",
			Message:  fmt.Sprintf("metric %s has %d anomalies in the analyzed window", analysis.MetricID, len(analysis.Anomalies)),
			Data:     map[string]float64{"count": float64(len(analysis.Anomalies))},
		})
	}
}

func (a *Analyzer) notify(ctx context.Context, alert notify.Alert) {
	if err := a.notifier.Notify(ctx, alert); err != nil {
		a.logger.Warn("trend alert delivery failed", "title", alert.Title, "error", err.Error())
	}
	if a.bus != nil {
		a.bus.Publish(events.TopicTrendAlert, map[string]any{
			"source":  alert.Source,
			"title":   alert.Title,
			"message": alert.Message,
		})
	}
}

// MetricIDs lists metrics with a cached analysis, sorted
func (a *Analyzer) MetricIDs() []string {
	a.mu.RLock()
	ids := make([]string, 0, len(a.analyses))
	for id := range a.analyses {
		ids = append(ids, id)
	}
	a.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
