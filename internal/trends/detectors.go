package trends

import (
	"math"

	"einvoice-analytics/pkg/types"
)

// olsFit is an ordinary least squares fit of y against x
type olsFit struct {
	slope     float64
	intercept float64
	rSquared  float64
	tStat     float64
	slopeSE   float64
	n         int
}

func (f olsFit) at(x float64) float64 {
	return f.intercept + f.slope*x
}

// fitOLS regresses values against their index positions
func fitOLS(values []float64) olsFit {
	n := len(values)
	if n < 2 {
		return olsFit{n: n}
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return olsFit{n: n}
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	meanY := sumY / fn
	var ssRes, ssTot float64
	for i, y := range values {
		fitted := intercept + slope*float64(i)
		ssRes += (y - fitted) * (y - fitted)
		ssTot += (y - meanY) * (y - meanY)
	}
	rSquared := 0.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
		if rSquared < 0 {
			rSquared = 0
		}
	} else if ssRes == 0 {
		// A flat series is a perfect flat fit.
		rSquared = 1
	}

	fit := olsFit{slope: slope, intercept: intercept, rSquared: rSquared, n: n}
	if n > 2 {
		meanX := sumX / fn
		var sxx float64
		for i := range values {
			dx := float64(i) - meanX
			sxx += dx * dx
		}
		residVar := ssRes / float64(n-2)
		if sxx > 0 && residVar > 0 {
			fit.slopeSE = math.Sqrt(residVar / sxx)
			fit.tStat = slope / fit.slopeSE
		} else if ssRes == 0 && slope != 0 {
			// Perfect fit with nonzero slope is maximally significant.
			fit.tStat = math.Inf(1)
		}
	}
	return fit
}

func strengthTier(rSquared float64) types.PatternStrength {
	switch {
	case rSquared >= 0.7:
		return types.StrengthStrong
	case rSquared >= 0.4:
		return types.StrengthModerate
	default:
		return types.StrengthWeak
	}
}

// significanceTier buckets the two-sided t statistic into qualitative tiers
// using the standard normal critical values (p<0.001 and p<0.05).
func significanceTier(tStat float64) types.PatternSignificance {
	abs := math.Abs(tStat)
	switch {
	case abs >= 3.29:
		return types.SignificanceHigh
	case abs >= 1.96:
		return types.SignificanceMedium
	default:
		return types.SignificanceLow
	}
}

// slopeDirection classifies the slope relative to the series scale so that
// tiny drifts on large-valued series still count as flat
func slopeDirection(slope, meanValue float64, n int) types.PatternDirection {
	span := slope * float64(n-1)
	threshold := math.Abs(meanValue) * 0.01
	if threshold == 0 {
		threshold = 1e-9
	}
	switch {
	case span > threshold:
		return types.DirectionUpward
	case span < -threshold:
		return types.DirectionDownward
	default:
		return types.DirectionFlat
	}
}

// detectLinear fits a straight line; the pattern passes when the fit explains
// at least a quarter of the variance
func detectLinear(points []types.DataPoint, span types.TimeRange) *types.TrendPattern {
	values := pointValues(points)
	fit := fitOLS(values)
	if fit.n < 2 || fit.rSquared < 0.25 {
		return nil
	}
	return &types.TrendPattern{
		Kind:         types.PatternLinear,
		Direction:    slopeDirection(fit.slope, mean(values), fit.n),
		Strength:     strengthTier(fit.rSquared),
		Significance: significanceTier(fit.tStat),
		Span:         span,
		Slope:        fit.slope,
		RSquared:     fit.rSquared,
		Interval: types.ConfidenceInterval{
			Lower: fit.slope - 1.96*fit.slopeSE,
			Upper: fit.slope + 1.96*fit.slopeSE,
		},
	}
}

// detectExponential fits a line in log space. Only defined for strictly
// positive series; the per-step growth rate must be at least one percent.
func detectExponential(points []types.DataPoint, span types.TimeRange) *types.TrendPattern {
	values := pointValues(points)
	logs := make([]float64, len(values))
	for i, v := range values {
		if v <= 0 {
			return nil
		}
		logs[i] = math.Log(v)
	}
	fit := fitOLS(logs)
	if fit.n < 2 || fit.rSquared < 0.6 {
		return nil
	}
	growth := math.Exp(fit.slope) - 1
	if math.Abs(growth) < 0.01 {
		return nil
	}
	direction := types.DirectionUpward
	if growth < 0 {
		direction = types.DirectionDownward
	}
	return &types.TrendPattern{
		Kind:         types.PatternExponential,
		Direction:    direction,
		Strength:     strengthTier(fit.rSquared),
		Significance: significanceTier(fit.tStat),
		Span:         span,
		Slope:        fit.slope,
		RSquared:     fit.rSquared,
		GrowthRate:   growth * 100,
		Interval: types.ConfidenceInterval{
			Lower: fit.slope - 1.96*fit.slopeSE,
			Upper: fit.slope + 1.96*fit.slopeSE,
		},
	}
}

// autocorrelation at the given lag for a demeaned series
func autocorrelation(values []float64, lag int) float64 {
	n := len(values)
	if lag <= 0 || lag >= n {
		return 0
	}
	m := mean(values)
	var num, den float64
	for i := 0; i < n; i++ {
		den += (values[i] - m) * (values[i] - m)
	}
	if den == 0 {
		return 0
	}
	for i := 0; i < n-lag; i++ {
		num += (values[i] - m) * (values[i+lag] - m)
	}
	return num / den
}

// detectSeasonal scans autocorrelation over lags 2..maxLag and keeps the best
// lag when its score clears 0.5
func detectSeasonal(points []types.DataPoint, span types.TimeRange, maxLag int) *types.TrendPattern {
	values := pointValues(points)
	limit := maxLag
	if half := len(values) / 2; half < limit {
		limit = half
	}
	bestLag, bestScore := 0, 0.0
	for lag := 2; lag <= limit; lag++ {
		if score := autocorrelation(values, lag); score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 || bestScore < 0.5 {
		return nil
	}
	significance := types.SignificanceLow
	if bestScore >= 0.8 {
		significance = types.SignificanceHigh
	} else if bestScore >= 0.65 {
		significance = types.SignificanceMedium
	}
	return &types.TrendPattern{
		Kind:          types.PatternSeasonal,
		Direction:     types.DirectionFlat,
		Strength:      strengthTier(bestScore),
		Significance:  significance,
		Span:          span,
		RSquared:      bestScore,
		SeasonalLag:   bestLag,
		SeasonalScore: bestScore,
	}
}

// detectCyclical looks for regularly spaced local extrema. Requires at least
// four turning points; regularity is one minus the spacing coefficient of
// variation.
func detectCyclical(points []types.DataPoint, span types.TimeRange) *types.TrendPattern {
	values := pointValues(points)
	var extrema []int
	for i := 1; i < len(values)-1; i++ {
		if (values[i] > values[i-1] && values[i] > values[i+1]) ||
			(values[i] < values[i-1] && values[i] < values[i+1]) {
			extrema = append(extrema, i)
		}
	}
	if len(extrema) < 4 {
		return nil
	}
	spacings := make([]float64, 0, len(extrema)-1)
	for i := 1; i < len(extrema); i++ {
		spacings = append(spacings, float64(extrema[i]-extrema[i-1]))
	}
	meanSpacing := mean(spacings)
	if meanSpacing == 0 {
		return nil
	}
	regularity := 1 - stdDev(spacings)/meanSpacing
	if regularity < 0.6 {
		return nil
	}
	significance := types.SignificanceLow
	if regularity >= 0.85 {
		significance = types.SignificanceHigh
	} else if regularity >= 0.7 {
		significance = types.SignificanceMedium
	}
	return &types.TrendPattern{
		Kind:         types.PatternCyclical,
		Direction:    types.DirectionFlat,
		Strength:     strengthTier(regularity),
		Significance: significance,
		Span:         span,
		RSquared:     regularity,
		// Full cycle covers a peak and a trough.
		CycleLength: meanSpacing * 2,
	}
}

// primaryScore ranks detected patterns. Linear gets a small preference so a
// clean straight line beats an equally good exponential refit of itself.
func primaryScore(p *types.TrendPattern) float64 {
	score := 0.0
	switch p.Significance {
	case types.SignificanceHigh:
		score += 3
	case types.SignificanceMedium:
		score += 2
	default:
		score += 1
	}
	switch p.Strength {
	case types.StrengthStrong:
		score += 3
	case types.StrengthModerate:
		score += 2
	default:
		score += 1
	}
	score += p.RSquared * 2
	if p.Kind == types.PatternLinear {
		score += 0.5
	}
	return score
}

func pointValues(points []types.DataPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}
