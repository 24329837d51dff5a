// Package kpi implements KPI definition registration, method-dispatched
// calculation over aggregated source metrics, status tier classification,
// trend tracking against calculation history, and dashboard assembly.
package kpi

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/events"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/telemetry"
	"einvoice-analytics/pkg/types"
)

// Calculator evaluates KPIs against the unified metrics store
type Calculator struct {
	store           *metrics.Store
	bus             *events.Bus
	tel             *telemetry.Telemetry
	logger          logging.Logger
	historyCapacity int
	trendLookback   time.Duration
	stableBandPct   float64

	mu          sync.RWMutex
	definitions map[string]types.KPIDefinition
	targets     map[string]types.KPITarget
	history     map[string][]types.KPICalculation
}

// Option configures optional collaborators on the calculator
type Option func(*Calculator)

// WithBus attaches the event bus for kpi.calculated notifications
func WithBus(bus *events.Bus) Option {
	return func(c *Calculator) { c.bus = bus }
}

// WithTelemetry attaches the Prometheus instruments
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(c *Calculator) { c.tel = tel }
}

// WithLogger attaches a logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Calculator) { c.logger = logger.WithComponent("kpi_calculator") }
}

// NewCalculator creates a KPI calculator over the given metrics store
func NewCalculator(store *metrics.Store, historyCapacity int, trendLookback time.Duration, opts ...Option) *Calculator {
	if historyCapacity <= 0 {
		historyCapacity = 1000
	}
	if trendLookback <= 0 {
		trendLookback = 7 * 24 * time.Hour
	}
	c := &Calculator{
		store:           store,
		logger:          logging.NewNoOp(),
		historyCapacity: historyCapacity,
		trendLookback:   trendLookback,
		stableBandPct:   2.0,
		definitions:     make(map[string]types.KPIDefinition),
		targets:         make(map[string]types.KPITarget),
		history:         make(map[string][]types.KPICalculation),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterDefinition stores or overwrites a KPI definition by id
func (c *Calculator) RegisterDefinition(def types.KPIDefinition) error {
	if err := def.Validate(); err != nil {
		return apperrors.NewValidation("kpi_calculator", err.Error())
	}
	c.mu.Lock()
	c.definitions[def.KPIID] = def
	c.mu.Unlock()
	c.logger.Debug("kpi definition registered", "kpi_id", def.KPIID, "method", string(def.Method))
	return nil
}

// Definition returns a registered KPI definition
func (c *Calculator) Definition(kpiID string) (types.KPIDefinition, error) {
	c.mu.RLock()
	def, ok := c.definitions[kpiID]
	c.mu.RUnlock()
	if !ok {
		return types.KPIDefinition{}, apperrors.NewNotFound("kpi_calculator", "kpi", kpiID)
	}
	return def, nil
}

// KPIIDs lists all registered KPI ids, sorted
func (c *Calculator) KPIIDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.definitions))
	for id := range c.definitions {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// SetTarget registers an operator goal for a KPI
func (c *Calculator) SetTarget(target types.KPITarget) error {
	if target.KPIID == "" {
		return apperrors.NewValidation("kpi_calculator", "target requires a kpi id")
	}
	if target.SetAt.IsZero() {
		target.SetAt = time.Now().UTC()
	}
	c.mu.Lock()
	_, known := c.definitions[target.KPIID]
	if known {
		c.targets[target.KPIID] = target
	}
	c.mu.Unlock()
	if !known {
		return apperrors.NewNotFound("kpi_calculator", "kpi", target.KPIID)
	}
	return nil
}

// History returns a copy of the calculation history for a KPI
func (c *Calculator) History(kpiID string) []types.KPICalculation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := c.history[kpiID]
	out := make([]types.KPICalculation, len(entries))
	copy(out, entries)
	return out
}

// Calculate evaluates a KPI over a time range. A failed computation returns a
// typed error; it never degrades into a silent zero.
func (c *Calculator) Calculate(ctx context.Context, kpiID string, tr types.TimeRange, period string) (types.KPICalculation, error) {
	def, err := c.Definition(kpiID)
	if err != nil {
		return types.KPICalculation{}, err
	}
	if err := tr.Validate(); err != nil {
		return types.KPICalculation{}, apperrors.NewValidation("kpi_calculator", err.Error())
	}

	aggregates, err := c.store.Aggregate(ctx, def.SourceMetrics, tr, "", nil)
	if err != nil {
		return types.KPICalculation{}, err
	}
	if len(aggregates) == 0 {
		return types.KPICalculation{}, apperrors.NewNoData("kpi_calculator",
			fmt.Sprintf("no source metric data for kpi %s in range", kpiID))
	}

	sourceValues := make(map[string]float64, len(aggregates))
	confidenceSum := 0.0
	for _, aggregate := range aggregates {
		sourceValues[aggregate.MetricID] = aggregate.Value
		confidenceSum += aggregate.Confidence
	}

	value, err := c.dispatch(&def, sourceValues)
	if err != nil {
		if c.tel != nil {
			c.tel.KPIFailures.Inc()
		}
		return types.KPICalculation{}, err
	}

	calculation := types.KPICalculation{
		KPIID:        kpiID,
		Value:        value,
		Period:       period,
		Range:        tr,
		Status:       determineStatus(&def, value),
		Confidence:   confidenceSum / float64(len(aggregates)),
		SourceValues: sourceValues,
		CalculatedAt: time.Now().UTC(),
	}
	calculation.Trend = c.determineTrend(&def, kpiID, value, calculation.CalculatedAt)

	c.mu.Lock()
	if target, ok := c.targets[kpiID]; ok {
		calculation.Target = compareTarget(&def, value, target)
	}
	entries := append(c.history[kpiID], calculation)
	if len(entries) > c.historyCapacity {
		entries = entries[len(entries)-c.historyCapacity:]
	}
	c.history[kpiID] = entries
	c.mu.Unlock()

	if c.tel != nil {
		c.tel.KPICalculations.WithLabelValues(string(calculation.Status)).Inc()
	}
	if c.bus != nil {
		c.bus.Publish(events.TopicKPICalculated, map[string]any{
			"kpi_id": kpiID,
			"value":  value,
			"status": string(calculation.Status),
		})
	}
	return calculation, nil
}

// dispatch routes to the calculator matching the definition's method.
// All calculators are pure functions of the flat source-value map.
func (c *Calculator) dispatch(def *types.KPIDefinition, values map[string]float64) (float64, error) {
	ordered, err := orderedValues(def, values)
	if err != nil {
		return 0, err
	}

	switch def.Method {
	case types.CalculationDivision, types.CalculationRatio:
		return safeDivide(def, ordered)
	case types.CalculationAddition:
		total := 0.0
		for _, v := range ordered {
			total += v
		}
		return total, nil
	case types.CalculationWeightedAverage:
		// Equal weights until per-source weights exist in the definition.
		total := 0.0
		for _, v := range ordered {
			total += v
		}
		return total / float64(len(ordered)), nil
	case types.CalculationComposite:
		return compositeScore(values), nil
	case types.CalculationSLA, types.CalculationComplianceRate,
		types.CalculationAvailability, types.CalculationChurnRate,
		types.CalculationSIContribution, types.CalculationAPPContribution,
		types.CalculationMilestoneRate:
		ratio, err := safeDivide(def, ordered)
		if err != nil {
			return 0, err
		}
		return ratio * 100, nil
	case types.CalculationSatisfaction:
		total := 0.0
		for _, v := range ordered {
			total += v
		}
		return clamp(total/float64(len(ordered)), 0, 5), nil
	case types.CalculationGrowthRate:
		if len(ordered) < 2 {
			return 0, calcFailed(def, "growth rate needs current and previous values")
		}
		current, previous := ordered[0], ordered[1]
		if previous == 0 {
			return 0, calcFailed(def, "growth rate previous value is zero")
		}
		return (current - previous) / previous * 100, nil
	case types.CalculationAcquisitionCost, types.CalculationRevenuePerUser:
		return safeDivide(def, ordered)
	case types.CalculationGrantROI:
		if len(ordered) < 2 {
			return 0, calcFailed(def, "grant roi needs benefit and cost values")
		}
		benefit, cost := ordered[0], ordered[1]
		if cost == 0 {
			return 0, calcFailed(def, "grant roi cost is zero")
		}
		return (benefit - cost) / cost * 100, nil
	case types.CalculationMilestone:
		return milestoneProgress(def, ordered)
	case types.CalculationFormula:
		value, err := evalFormula(def.Formula, values)
		if err != nil {
			return 0, apperrors.NewComputationFailed("kpi_calculator",
				fmt.Sprintf("kpi %s formula failed", def.KPIID), err)
		}
		return value, nil
	default:
		return 0, apperrors.NewValidation("kpi_calculator",
			fmt.Sprintf("unknown calculation method: %s", def.Method))
	}
}

// orderedValues resolves source values in the declared source-metric order;
// positional methods (division, growth rate, milestone) rely on it
func orderedValues(def *types.KPIDefinition, values map[string]float64) ([]float64, error) {
	ordered := make([]float64, 0, len(def.SourceMetrics))
	for _, metricID := range def.SourceMetrics {
		value, ok := values[metricID]
		if !ok {
			return nil, apperrors.NewNoData("kpi_calculator",
				fmt.Sprintf("kpi %s is missing source metric %s", def.KPIID, metricID))
		}
		ordered = append(ordered, value)
	}
	if len(ordered) == 0 {
		return nil, apperrors.NewNoData("kpi_calculator",
			fmt.Sprintf("kpi %s resolved no source values", def.KPIID))
	}
	return ordered, nil
}

func safeDivide(def *types.KPIDefinition, ordered []float64) (float64, error) {
	if len(ordered) < 2 {
		return 0, calcFailed(def, "division needs a numerator and denominator")
	}
	if ordered[1] == 0 {
		return 0, calcFailed(def, "division denominator is zero")
	}
	return ordered[0] / ordered[1], nil
}

// calcFailed builds the standard computation failure for a definition
func calcFailed(def *types.KPIDefinition, message string) error {
	return apperrors.NewComputationFailed("kpi_calculator",
		fmt.Sprintf("kpi %s: %s", def.KPIID, message), nil)
}

// compositeWeights maps field-name fragments to blend weights
var compositeWeights = []struct {
	fragment string
	weight   float64
}{
	{"accuracy", 0.4},
	{"speed", 0.3},
	{"latency", 0.3},
	{"quality", 0.3},
	{"satisfaction", 0.3},
}

// compositeScore blends fields by fragment-matched weights; unmatched fields
// share an equal residual weight
func compositeScore(values map[string]float64) float64 {
	weighted := 0.0
	weightTotal := 0.0
	var unmatched []float64
	for name, value := range values {
		matched := false
		for _, cw := range compositeWeights {
			if strings.Contains(name, cw.fragment) {
				weighted += value * cw.weight
				weightTotal += cw.weight
				matched = true
				break
			}
		}
		if !matched {
			unmatched = append(unmatched, value)
		}
	}
	if len(unmatched) > 0 {
		residual := 1.0 - weightTotal
		if residual < 0 {
			residual = 0
		}
		share := residual / float64(len(unmatched))
		for _, value := range unmatched {
			weighted += value * share
			weightTotal += share
		}
	}
	if weightTotal == 0 {
		return 0
	}
	return weighted / weightTotal
}

// milestoneProgress computes grant milestone completion from the structured
// spec: the product of the taxpayer and transmission-rate completion ratios,
// each capped at 1, scaled to a percentage
func milestoneProgress(def *types.KPIDefinition, ordered []float64) (float64, error) {
	if def.Milestone == nil {
		return 0, calcFailed(def, "milestone method without a milestone spec")
	}
	if len(ordered) < 2 {
		return 0, calcFailed(def, "milestone needs taxpayer count and transmission rate")
	}
	taxpayerRatio := math.Min(1, ordered[0]/def.Milestone.RequiredTaxpayers)
	rateRatio := math.Min(1, ordered[1]/def.Milestone.RequiredTransmissionRate)
	return taxpayerRatio * rateRatio * 100, nil
}

// determineStatus walks the threshold ladder according to direction.
// Anything past the poor bound is critical; missing thresholds are unknown.
func determineStatus(def *types.KPIDefinition, value float64) types.KPIStatus {
	th := def.Thresholds
	if th == nil {
		return types.KPIStatusUnknown
	}
	if def.IsHigherBetter {
		switch {
		case value >= th.Excellent:
			return types.KPIStatusExcellent
		case value >= th.Good:
			return types.KPIStatusGood
		case value >= th.Fair:
			return types.KPIStatusFair
		case value >= th.Poor:
			return types.KPIStatusPoor
		default:
			return types.KPIStatusCritical
		}
	}
	switch {
	case value <= th.Excellent:
		return types.KPIStatusExcellent
	case value <= th.Good:
		return types.KPIStatusGood
	case value <= th.Fair:
		return types.KPIStatusFair
	case value <= th.Poor:
		return types.KPIStatusPoor
	default:
		return types.KPIStatusCritical
	}
}

// determineTrend compares the new value to the mean of history entries at
// least trendLookback old. Within the stable band the trend is stable;
// otherwise the direction that is better for this KPI counts as improving.
func (c *Calculator) determineTrend(def *types.KPIDefinition, kpiID string, value float64, now time.Time) types.TrendDirection {
	cutoff := now.Add(-c.trendLookback)

	c.mu.RLock()
	var baseline []float64
	for _, entry := range c.history[kpiID] {
		if !entry.CalculatedAt.After(cutoff) {
			baseline = append(baseline, entry.Value)
		}
	}
	c.mu.RUnlock()

	if len(baseline) == 0 {
		return types.TrendStable
	}
	mean := 0.0
	for _, v := range baseline {
		mean += v
	}
	mean /= float64(len(baseline))

	if mean == 0 {
		if value == 0 {
			return types.TrendStable
		}
	} else if math.Abs(value-mean)/math.Abs(mean)*100 <= c.stableBandPct {
		return types.TrendStable
	}

	higher := value > mean
	if higher == def.IsHigherBetter {
		return types.TrendImproving
	}
	return types.TrendDeclining
}

func compareTarget(def *types.KPIDefinition, value float64, target types.KPITarget) *types.TargetComparison {
	delta := value - target.Value
	comparison := &types.TargetComparison{
		TargetValue: target.Value,
		Delta:       delta,
	}
	if target.Value != 0 {
		comparison.DeltaPct = delta / math.Abs(target.Value) * 100
	}
	if def.IsHigherBetter {
		comparison.Met = value >= target.Value
	} else {
		comparison.Met = value <= target.Value
	}
	return comparison
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
