package trends

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"einvoice-analytics/internal/config"
	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/notify"
	"einvoice-analytics/pkg/types"
)

var seriesStart = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

// newSeriesStore records one observation per hourly bucket and returns the
// range covering them all
func newSeriesStore(t *testing.T, metricID string, values []float64) (*metrics.Store, types.TimeRange) {
	t.Helper()
	store := metrics.NewStore(10_000, 1_000_000, time.Hour)
	require.NoError(t, store.RegisterDefinition(types.MetricDefinition{
		MetricID:      metricID,
		Name:          metricID,
		Type:          types.MetricTypeThroughput,
		Scope:         types.ScopeSystemWide,
		DefaultMethod: types.AggregationAverage,
		Unit:          "units",
	}))
	ctx := context.Background()
	for i, v := range values {
		err := store.RecordValue(ctx, types.MetricValue{
			MetricID:   metricID,
			Value:      v,
			Timestamp:  seriesStart.Add(time.Duration(i)*time.Hour + 30*time.Minute),
			SourceRole: types.RoleSystem,
		})
		require.NoError(t, err)
	}
	return store, types.TimeRange{
		Start: seriesStart,
		End:   seriesStart.Add(time.Duration(len(values)) * time.Hour),
	}
}

func newAnalyzer(store *metrics.Store, opts ...Option) *Analyzer {
	return NewAnalyzer(store, config.DefaultConfig().Trends, opts...)
}

func TestAnalyze_LinearUpward(t *testing.T) {
	values := make([]float64, 31)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}
	store, tr := newSeriesStore(t, "m", values)

	analysis, err := newAnalyzer(store).Analyze(context.Background(), "m", tr, types.GranularityHour)
	require.NoError(t, err)
	require.NotNil(t, analysis.Primary)
	assert.Equal(t, types.PatternLinear, analysis.Primary.Kind)
	assert.Equal(t, types.DirectionUpward, analysis.Primary.Direction)
	assert.Greater(t, analysis.Primary.RSquared, 0.95)
	assert.Equal(t, types.StrengthStrong, analysis.Primary.Strength)
	assert.InDelta(t, 2.0, analysis.Primary.Slope, 1e-9)
}

func TestAnalyze_LinearDownward(t *testing.T) {
	values := make([]float64, 31)
	for i := range values {
		values[i] = 100 - 3*float64(i)
	}
	store, tr := newSeriesStore(t, "m", values)

	analysis, err := newAnalyzer(store).Analyze(context.Background(), "m", tr, types.GranularityHour)
	require.NoError(t, err)
	require.NotNil(t, analysis.Primary)
	assert.Equal(t, types.DirectionDownward, analysis.Primary.Direction)
}

func TestAnalyze_InsufficientData(t *testing.T) {
	store, tr := newSeriesStore(t, "m", []float64{1, 2, 3, 4, 5})

	_, err := newAnalyzer(store).Analyze(context.Background(), "m", tr, types.GranularityHour)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeInsufficientData, apperrors.CodeOf(err))
}

func TestAnalyze_ZScoreAnomaly(t *testing.T) {
	values := make([]float64, 31)
	for i := range values {
		values[i] = 100
	}
	values[15] = 500

	store, tr := newSeriesStore(t, "m", values)
	analysis, err := newAnalyzer(store).Analyze(context.Background(), "m", tr, types.GranularityHour)
	require.NoError(t, err)

	require.Len(t, analysis.Anomalies, 1)
	anomaly := analysis.Anomalies[0]
	assert.Equal(t, types.AnomalyZScore, anomaly.Kind)
	assert.Equal(t, 500.0, anomaly.Value)
	assert.Greater(t, anomaly.Score, 2.5)
}

func TestAnalyze_SeasonalPattern(t *testing.T) {
	values := make([]float64, 48)
	for i := range values {
		values[i] = 100 + 50*math.Sin(2*math.Pi*float64(i)/12)
	}
	store, tr := newSeriesStore(t, "m", values)

	analysis, err := newAnalyzer(store).Analyze(context.Background(), "m", tr, types.GranularityHour)
	require.NoError(t, err)

	var seasonal *types.TrendPattern
	for i := range analysis.Patterns {
		if analysis.Patterns[i].Kind == types.PatternSeasonal {
			seasonal = &analysis.Patterns[i]
		}
	}
	require.NotNil(t, seasonal)
	assert.Equal(t, 12, seasonal.SeasonalLag)
	assert.Greater(t, seasonal.SeasonalScore, 0.5)
}

func TestAnalyze_ExponentialGrowth(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 10 * math.Pow(1.2, float64(i))
	}
	store, tr := newSeriesStore(t, "m", values)

	analysis, err := newAnalyzer(store).Analyze(context.Background(), "m", tr, types.GranularityHour)
	require.NoError(t, err)

	var exponential *types.TrendPattern
	for i := range analysis.Patterns {
		if analysis.Patterns[i].Kind == types.PatternExponential {
			exponential = &analysis.Patterns[i]
		}
	}
	require.NotNil(t, exponential)
	assert.Equal(t, types.DirectionUpward, exponential.Direction)
	assert.InDelta(t, 20.0, exponential.GrowthRate, 1.0)
}

func TestAnalyze_DownwardAlert(t *testing.T) {
	values := make([]float64, 31)
	for i := range values {
		values[i] = 100 - 3*float64(i)
	}
	store, tr := newSeriesStore(t, "m", values)
	recorder := notify.NewRecorder()

	_, err := newAnalyzer(store, WithNotifier(recorder)).Analyze(context.Background(), "m", tr, types.GranularityHour)
	require.NoError(t, err)

	alerts := recorder.Alerts()
	require.NotEmpty(t, alerts)
	var titles []string
	for _, alert := range alerts {
		titles = append(titles, alert.Title)
	}
	assert.Contains(t, titles, "strong downward trend")
}

func TestBacktestAccuracy(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}
	store, tr := newSeriesStore(t, "m", values)

	analysis, err := newAnalyzer(store).Analyze(context.Background(), "m", tr, types.GranularityHour)
	require.NoError(t, err)
	// A perfectly linear series backtests with near-perfect accuracy.
	assert.Greater(t, analysis.ForecastAccuracy, 0.95)
}

func TestPredict_Linear(t *testing.T) {
	values := make([]float64, 31)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}
	store, tr := newSeriesStore(t, "m", values)
	analyzer := newAnalyzer(store)

	prediction, err := analyzer.Predict(context.Background(), "m", tr, 2, types.ModelAuto)
	require.NoError(t, err)
	assert.Equal(t, types.ModelLinear, prediction.Model)
	require.Len(t, prediction.Steps, 48)

	first := prediction.Steps[0]
	assert.InDelta(t, 72.0, first.Value, 1e-6)
	assert.InDelta(t, 64.8, first.Lower, 1e-6)
	assert.InDelta(t, 79.2, first.Upper, 1e-6)
	assert.Equal(t, types.ConfidenceHigh, prediction.Confidence)
}

func TestPredict_RequiresPrimary(t *testing.T) {
	// Structureless series: no slope, irregular extrema spacing, weak
	// autocorrelation at every lag.
	values := []float64{5, 9, 3, 8, 2, 4, 4.5, 5, 5.5, 6, 6.5, 2, 7, 7.5, 5}
	store, tr := newSeriesStore(t, "m", values)

	_, err := newAnalyzer(store).Predict(context.Background(), "m", tr, 1, types.ModelLinear)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeComputationFailed, apperrors.CodeOf(err))
}

func TestCompare_Divergence(t *testing.T) {
	up := make([]float64, 24)
	down := make([]float64, 24)
	for i := range up {
		up[i] = 10 + 2*float64(i)
		down[i] = 100 - 2*float64(i)
	}

	store := metrics.NewStore(10_000, 1_000_000, time.Hour)
	ctx := context.Background()
	for _, id := range []string{"up_metric", "down_metric"} {
		require.NoError(t, store.RegisterDefinition(types.MetricDefinition{
			MetricID:      id,
			Name:          id,
			Type:          types.MetricTypeThroughput,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationAverage,
			Unit:          "units",
		}))
	}
	for i := 0; i < 24; i++ {
		ts := seriesStart.Add(time.Duration(i)*time.Hour + 30*time.Minute)
		require.NoError(t, store.RecordValue(ctx, types.MetricValue{
			MetricID: "up_metric", Value: up[i], Timestamp: ts, SourceRole: types.RoleSystem,
		}))
		require.NoError(t, store.RecordValue(ctx, types.MetricValue{
			MetricID: "down_metric", Value: down[i], Timestamp: ts, SourceRole: types.RoleSystem,
		}))
	}
	tr := types.TimeRange{Start: seriesStart, End: seriesStart.Add(24 * time.Hour)}

	comparison, err := newAnalyzer(store).Compare(context.Background(), []string{"up_metric", "down_metric"}, tr)
	require.NoError(t, err)

	require.Len(t, comparison.Similarities, 1)
	assert.InDelta(t, -1.0, comparison.Similarities[0].Correlation, 1e-6)
	require.Len(t, comparison.Divergences, 1)
	assert.Equal(t, types.DirectionUpward, comparison.Divergences[0].DirectionA)
	assert.Equal(t, types.DirectionDownward, comparison.Divergences[0].DirectionB)
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, pearson([]float64{1, 2, 3}, []float64{6, 4, 2}), 1e-9)
	assert.Equal(t, 0.0, pearson([]float64{1, 1, 1}, []float64{2, 4, 6}))
}
