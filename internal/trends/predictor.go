package trends

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/pkg/types"
)

// bandPct is the naive uncertainty band applied to each forecast step
const bandPct = 0.10

// Predict extrapolates the metric hourly for horizonDays ahead. A primary
// pattern over the historical range is required; the analysis is rerun when no
// cached result covers the metric.
func (a *Analyzer) Predict(ctx context.Context, metricID string, historical types.TimeRange, horizonDays int, model types.ForecastModel) (types.TrendPrediction, error) {
	if horizonDays <= 0 {
		return types.TrendPrediction{}, apperrors.NewValidation("trend_analyzer",
			"forecast horizon must be at least one day")
	}
	switch model {
	case types.ModelLinear, types.ModelExponential, types.ModelAuto:
	default:
		return types.TrendPrediction{}, apperrors.NewValidation("trend_analyzer",
			fmt.Sprintf("unknown forecast model: %s", model))
	}

	analysis, ok := a.LastAnalysis(metricID)
	if !ok || !analysis.Range.Start.Equal(historical.Start) || !analysis.Range.End.Equal(historical.End) {
		fresh, err := a.Analyze(ctx, metricID, historical, types.GranularityHour)
		if err != nil {
			return types.TrendPrediction{}, err
		}
		analysis = fresh
	}
	if analysis.Primary == nil {
		return types.TrendPrediction{}, apperrors.New(apperrors.ErrorCodeComputationFailed,
			"trend_analyzer", fmt.Sprintf("metric %s has no primary trend to extrapolate", metricID))
	}

	if model == types.ModelAuto {
		model = types.ModelLinear
		if analysis.Primary.Kind == types.PatternExponential {
			model = types.ModelExponential
		}
	}

	values := pointValues(analysis.DataPoints)
	var fit olsFit
	expSpace := false
	if model == types.ModelExponential {
		logs := make([]float64, len(values))
		for i, v := range values {
			if v <= 0 {
				return types.TrendPrediction{}, apperrors.New(apperrors.ErrorCodeComputationFailed,
					"trend_analyzer", "exponential forecast requires a strictly positive series")
			}
			logs[i] = math.Log(v)
		}
		fit = fitOLS(logs)
		expSpace = true
	} else {
		fit = fitOLS(values)
	}

	last := analysis.DataPoints[len(analysis.DataPoints)-1].Timestamp
	stepCount := horizonDays * 24
	steps := make([]types.ForecastStep, 0, stepCount)
	for i := 1; i <= stepCount; i++ {
		x := float64(len(values) - 1 + i)
		predicted := fit.at(x)
		if expSpace {
			predicted = math.Exp(predicted)
		}
		band := math.Abs(predicted) * bandPct
		steps = append(steps, types.ForecastStep{
			Timestamp: last.Add(time.Duration(i) * time.Hour),
			Value:     predicted,
			Lower:     predicted - band,
			Upper:     predicted + band,
		})
	}

	prediction := types.TrendPrediction{
		MetricID:   metricID,
		Model:      model,
		Steps:      steps,
		Confidence: forecastConfidence(&analysis),
		Assumptions: []string{
			"historical pattern continues over the horizon",
			"band is a fixed ten percent of each predicted value",
		},
		GeneratedAt: time.Now().UTC(),
	}
	return prediction, nil
}

// forecastConfidence blends five weighted factors of the underlying analysis
// into a qualitative tier
func forecastConfidence(analysis *types.TrendAnalysis) types.ConfidenceTier {
	p := analysis.Primary
	score := 0.0

	switch p.Strength {
	case types.StrengthStrong:
		score += 0.25
	case types.StrengthModerate:
		score += 0.15
	default:
		score += 0.05
	}

	score += p.RSquared * 0.25

	volume := float64(len(analysis.DataPoints)) / 100
	if volume > 1 {
		volume = 1
	}
	score += volume * 0.2

	anomalyRatio := float64(len(analysis.Anomalies)) / float64(len(analysis.DataPoints))
	score += (1 - math.Min(1, anomalyRatio*5)) * 0.15

	switch p.Significance {
	case types.SignificanceHigh:
		score += 0.15
	case types.SignificanceMedium:
		score += 0.1
	default:
		score += 0.03
	}

	switch {
	case score >= 0.7:
		return types.ConfidenceHigh
	case score >= 0.45:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}
