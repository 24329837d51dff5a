package background

import (
	"context"
	"time"

	"einvoice-analytics/internal/cache"
	"einvoice-analytics/internal/config"
	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/insights"
	"einvoice-analytics/internal/kpi"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/syncro"
	"einvoice-analytics/internal/telemetry"
	"einvoice-analytics/pkg/types"
)

// insightRetention is how long resolved and dismissed insights are kept
// before the cleanup loop drops them
const insightRetention = 7 * 24 * time.Hour

// Services are the analytics components the standard loops drive. Nil
// members simply skip their loop.
type Services struct {
	Store       *metrics.Store
	Calculator  *kpi.Calculator
	Analyzer    trendAnalyzer
	Generator   *insights.Generator
	Coordinator *cache.Coordinator
	Monitor     *syncro.SyncMonitor
	Telemetry   *telemetry.Telemetry
}

// trendAnalyzer is the slice of trends.Analyzer the loops need
type trendAnalyzer interface {
	Analyze(ctx context.Context, metricID string, tr types.TimeRange, granularity types.Granularity) (types.TrendAnalysis, error)
}

// RegisterStandardLoops attaches the periodic analytics jobs to the runner
func RegisterStandardLoops(runner *Runner, cfg config.BackgroundConfig, syncInterval time.Duration, svc Services) error {
	type candidate struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context) error
	}
	candidates := []candidate{
		{"aggregation", cfg.AggregationInterval, aggregationLoop(svc)},
		{"kpi", cfg.KPIInterval, kpiLoop(svc)},
		{"trends", cfg.TrendInterval, trendLoop(svc)},
		{"cache_stats", cfg.CacheStatsInterval, cacheStatsLoop(svc)},
		{"cleanup", cfg.CleanupInterval, cleanupLoop(svc)},
		{"sync_check", syncInterval, syncCheckLoop(svc)},
	}
	for _, c := range candidates {
		if c.run == nil {
			continue
		}
		if err := runner.Add(c.name, c.interval, c.run); err != nil {
			return err
		}
	}
	return nil
}

// aggregationLoop pre-warms the shared cache with trailing-hour aggregates
// so dashboard reads stay off the hot store path
func aggregationLoop(svc Services) func(ctx context.Context) error {
	if svc.Store == nil || svc.Coordinator == nil {
		return nil
	}
	return func(ctx context.Context) error {
		tr := trailing(time.Hour)
		for _, metricID := range svc.Store.MetricIDs() {
			def, err := svc.Store.Definition(metricID)
			if err != nil {
				continue
			}
			aggregates, err := svc.Store.Aggregate(ctx, []string{metricID}, tr, def.DefaultMethod, nil)
			if err != nil {
				return err
			}
			if len(aggregates) == 0 {
				continue
			}
			key := cache.AggregateKey(metricID, def.DefaultMethod, tr, nil)
			if err := svc.Coordinator.PutAggregate(ctx, key, aggregates[0]); err != nil {
				return err
			}
		}
		return nil
	}
}

// kpiLoop recalculates every registered KPI, feeding the history that trend
// direction is judged against
func kpiLoop(svc Services) func(ctx context.Context) error {
	if svc.Calculator == nil {
		return nil
	}
	return func(ctx context.Context) error {
		tr := trailing(24 * time.Hour)
		for _, kpiID := range svc.Calculator.KPIIDs() {
			if _, err := svc.Calculator.Calculate(ctx, kpiID, tr, "daily"); err != nil {
				if apperrors.IsNoData(err) || apperrors.CodeOf(err) == apperrors.ErrorCodeComputationFailed {
					continue
				}
				return err
			}
		}
		return nil
	}
}

// trendLoop analyzes the trailing week for every metric, then lets the rule
// engine turn fresh analyses into insights
func trendLoop(svc Services) func(ctx context.Context) error {
	if svc.Analyzer == nil {
		return nil
	}
	return func(ctx context.Context) error {
		tr := trailing(7 * 24 * time.Hour)
		if svc.Store != nil {
			for _, metricID := range svc.Store.MetricIDs() {
				_, err := svc.Analyzer.Analyze(ctx, metricID, tr, types.GranularityHour)
				if err != nil && !apperrors.IsNoData(err) &&
					apperrors.CodeOf(err) != apperrors.ErrorCodeInsufficientData {
					return err
				}
			}
		}
		if svc.Generator != nil {
			if _, err := svc.Generator.Generate(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	}
}

// cacheStatsLoop logs cache counters and exports the hit-rate gauge
func cacheStatsLoop(svc Services) func(ctx context.Context) error {
	if svc.Coordinator == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if svc.Telemetry != nil {
			svc.Telemetry.CacheHitRate.Set(svc.Coordinator.Snapshot().HitRate())
		}
		return svc.Coordinator.LogStats(ctx)
	}
}

// cleanupLoop drops terminal insights past their retention window
func cleanupLoop(svc Services) func(ctx context.Context) error {
	if svc.Generator == nil {
		return nil
	}
	return func(context.Context) error {
		svc.Generator.Prune(insightRetention)
		return nil
	}
}

// syncCheckLoop surfaces conflict backlog alerts
func syncCheckLoop(svc Services) func(ctx context.Context) error {
	if svc.Monitor == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return svc.Monitor.CheckAlerts(ctx)
	}
}

func trailing(window time.Duration) types.TimeRange {
	now := time.Now().UTC()
	return types.TimeRange{Start: now.Add(-window), End: now}
}
