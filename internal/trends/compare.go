package trends

import (
	"context"
	"math"
	"time"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/pkg/types"
)

// Compare analyzes several metrics over the same range and scores every pair
// by correlation and a weighted similarity. Pairs whose primary directions
// disagree are reported as divergences.
func (a *Analyzer) Compare(ctx context.Context, metricIDs []string, tr types.TimeRange) (types.TrendComparison, error) {
	if len(metricIDs) < 2 {
		return types.TrendComparison{}, apperrors.NewValidation("trend_analyzer",
			"comparison needs at least two metrics")
	}

	analyses := make(map[string]types.TrendAnalysis, len(metricIDs))
	for _, id := range metricIDs {
		analysis, err := a.Analyze(ctx, id, tr, types.GranularityHour)
		if err != nil {
			return types.TrendComparison{}, err
		}
		analyses[id] = analysis
	}

	comparison := types.TrendComparison{
		MetricIDs:  metricIDs,
		Range:      tr,
		ComparedAt: time.Now().UTC(),
	}
	for i := 0; i < len(metricIDs); i++ {
		for j := i + 1; j < len(metricIDs); j++ {
			first, second := analyses[metricIDs[i]], analyses[metricIDs[j]]
			correlation := pearson(pointValues(first.DataPoints), pointValues(second.DataPoints))
			comparison.Similarities = append(comparison.Similarities, types.TrendPairSimilarity{
				MetricA:     metricIDs[i],
				MetricB:     metricIDs[j],
				Correlation: correlation,
				Similarity:  pairSimilarity(&first, &second, correlation),
			})
			if da, db := primaryDirection(&first), primaryDirection(&second); da != db &&
				da != types.DirectionFlat && db != types.DirectionFlat {
				comparison.Divergences = append(comparison.Divergences, types.TrendDivergence{
					MetricA:    metricIDs[i],
					MetricB:    metricIDs[j],
					DirectionA: da,
					DirectionB: db,
				})
			}
		}
	}
	return comparison, nil
}

func primaryDirection(analysis *types.TrendAnalysis) types.PatternDirection {
	if analysis.Primary == nil {
		return types.DirectionFlat
	}
	return analysis.Primary.Direction
}

// pairSimilarity blends direction agreement, slope closeness, seasonality
// agreement, and correlation into one score in [0, 1]
func pairSimilarity(first, second *types.TrendAnalysis, correlation float64) float64 {
	score := 0.0

	if primaryDirection(first) == primaryDirection(second) {
		score += 0.3
	}

	if first.Primary != nil && second.Primary != nil {
		sa, sb := first.Primary.Slope, second.Primary.Slope
		scale := math.Max(math.Abs(sa), math.Abs(sb))
		if scale == 0 {
			score += 0.2
		} else {
			score += (1 - math.Min(1, math.Abs(sa-sb)/scale)) * 0.2
		}
	}

	if first.Seasonality.Detected == second.Seasonality.Detected {
		score += 0.2
	}

	score += math.Abs(correlation) * 0.3
	return score
}

// pearson computes the correlation over the overlapping prefix of two series
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a, b = a[:n], b[:n]
	meanA, meanB := mean(a), mean(b)
	var num, denA, denB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		num += da * db
		denA += da * da
		denB += db * db
	}
	if denA == 0 || denB == 0 {
		return 0
	}
	return num / math.Sqrt(denA*denB)
}
