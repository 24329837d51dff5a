// Package insights evaluates condition rules against gathered metric, KPI,
// and trend data and emits business insight records with a managed lifecycle.
package insights

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/events"
	"einvoice-analytics/internal/kpi"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/telemetry"
	"einvoice-analytics/internal/trends"
	"einvoice-analytics/pkg/types"
)

// AIService enriches generated insights with narrative text. Implementations
// are optional collaborators; failures fall back to the templated text.
type AIService interface {
	EnrichInsight(ctx context.Context, insight *types.BusinessInsight) error
}

// NoOpAI leaves insights unchanged
type NoOpAI struct{}

// EnrichInsight does nothing
func (NoOpAI) EnrichInsight(context.Context, *types.BusinessInsight) error { return nil }

// Generator evaluates the rule table and manages insight lifecycles
type Generator struct {
	store      *metrics.Store
	calculator *kpi.Calculator
	analyzer   *trends.Analyzer
	ai         AIService
	bus        *events.Bus
	tel        *telemetry.Telemetry
	logger     logging.Logger

	mu        sync.RWMutex
	rules     map[string]types.InsightRule
	insights  map[string]types.BusinessInsight
	lastFired map[string]time.Time
}

// Option configures optional collaborators on the generator
type Option func(*Generator)

// WithAI attaches a narrative enrichment service
func WithAI(ai AIService) Option {
	return func(g *Generator) { g.ai = ai }
}

// WithBus attaches the event bus for insight.created notifications
func WithBus(bus *events.Bus) Option {
	return func(g *Generator) { g.bus = bus }
}

// WithTelemetry attaches the Prometheus instruments
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(g *Generator) { g.tel = tel }
}

// WithLogger attaches a logger
func WithLogger(logger logging.Logger) Option {
	return func(g *Generator) { g.logger = logger.WithComponent("insight_generator") }
}

// NewGenerator creates an insight generator wired to the three analytics
// services and seeds the built-in rule table
func NewGenerator(store *metrics.Store, calculator *kpi.Calculator, analyzer *trends.Analyzer, opts ...Option) *Generator {
	g := &Generator{
		store:      store,
		calculator: calculator,
		analyzer:   analyzer,
		ai:         NoOpAI{},
		logger:     logging.NewNoOp(),
		rules:      make(map[string]types.InsightRule),
		insights:   make(map[string]types.BusinessInsight),
		lastFired:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, rule := range BuiltinRules() {
		g.rules[rule.RuleID] = rule
	}
	return g
}

// RegisterRule stores or overwrites a rule
func (g *Generator) RegisterRule(rule types.InsightRule) error {
	if err := rule.Validate(); err != nil {
		return apperrors.NewValidation("insight_generator", err.Error())
	}
	g.mu.Lock()
	g.rules[rule.RuleID] = rule
	g.mu.Unlock()
	return nil
}

// Rules returns the rule table sorted by id
func (g *Generator) Rules() []types.InsightRule {
	g.mu.RLock()
	rules := make([]types.InsightRule, 0, len(g.rules))
	for _, rule := range g.rules {
		rules = append(rules, rule)
	}
	g.mu.RUnlock()
	sort.Slice(rules, func(i, j int) bool { return rules[i].RuleID < rules[j].RuleID })
	return rules
}

// Generate evaluates every enabled rule against data gathered over the range
// and returns the newly created insights. Rules inside their cooldown window
// and rules whose subjects have no data are skipped.
func (g *Generator) Generate(ctx context.Context, tr types.TimeRange) ([]types.BusinessInsight, error) {
	if err := tr.Validate(); err != nil {
		return nil, apperrors.NewValidation("insight_generator", err.Error())
	}
	gathered := newDataContext(g, tr)
	now := time.Now().UTC()

	var created []types.BusinessInsight
	for _, rule := range g.Rules() {
		if !rule.Enabled {
			continue
		}
		g.mu.RLock()
		last, fired := g.lastFired[rule.RuleID]
		g.mu.RUnlock()
		if fired && rule.Cooldown > 0 && now.Sub(last) < rule.Cooldown {
			continue
		}

		matched, data := g.evaluateRule(ctx, &rule, gathered)
		if !matched {
			continue
		}

		insight := g.buildInsight(&rule, data, now)
		if err := g.ai.EnrichInsight(ctx, &insight); err != nil {
			g.logger.Warn("insight enrichment failed", "rule_id", rule.RuleID, "error", err.Error())
		}

		g.mu.Lock()
		g.insights[insight.InsightID] = insight
		g.lastFired[rule.RuleID] = now
		g.mu.Unlock()

		if g.tel != nil {
			g.tel.InsightsEmitted.WithLabelValues(string(insight.Severity)).Inc()
		}
		if g.bus != nil {
			g.bus.Publish(events.TopicInsightCreated, map[string]any{
				"insight_id": insight.InsightID,
				"rule_id":    rule.RuleID,
				"severity":   string(insight.Severity),
			})
		}
		created = append(created, insight)
	}
	g.logger.DebugContext(ctx, "insight generation pass complete", "created", len(created))
	return created, nil
}

// evaluateRule checks every condition; all must match. The supporting data
// map collects the observed values keyed by subject id.
func (g *Generator) evaluateRule(ctx context.Context, rule *types.InsightRule, gathered *dataContext) (bool, map[string]float64) {
	data := make(map[string]float64, len(rule.Conditions))
	for _, condition := range rule.Conditions {
		observed, ok := gathered.resolve(ctx, condition)
		if !ok {
			return false, nil
		}
		if !condition.Operator.Compare(observed, condition.Threshold) {
			return false, nil
		}
		key := condition.SubjectID
		if condition.Field != "" {
			key = condition.SubjectID + "." + condition.Field
		}
		data[key] = observed
	}
	return true, data
}

// Insight returns one insight by id
func (g *Generator) Insight(insightID string) (types.BusinessInsight, error) {
	g.mu.RLock()
	insight, ok := g.insights[insightID]
	g.mu.RUnlock()
	if !ok {
		return types.BusinessInsight{}, apperrors.NewNotFound("insight_generator", "insight", insightID)
	}
	return insight, nil
}

// Insights lists stored insights, optionally filtered by status and category,
// newest first
func (g *Generator) Insights(status types.InsightStatus, category types.InsightCategory) []types.BusinessInsight {
	g.mu.RLock()
	out := make([]types.BusinessInsight, 0, len(g.insights))
	for _, insight := range g.insights {
		if status != "" && insight.Status != status {
			continue
		}
		if category != "" && insight.Category != category {
			continue
		}
		out = append(out, insight)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// UpdateStatus moves an insight through its lifecycle. Resolved and dismissed
// are terminal.
func (g *Generator) UpdateStatus(insightID string, status types.InsightStatus) (types.BusinessInsight, error) {
	if !status.Valid() {
		return types.BusinessInsight{}, apperrors.NewValidation("insight_generator",
			fmt.Sprintf("invalid insight status: %s", status))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	insight, ok := g.insights[insightID]
	if !ok {
		return types.BusinessInsight{}, apperrors.NewNotFound("insight_generator", "insight", insightID)
	}
	if insight.Status == types.InsightStatusResolved || insight.Status == types.InsightStatusDismissed {
		return types.BusinessInsight{}, apperrors.NewValidation("insight_generator",
			fmt.Sprintf("insight %s is already %s", insightID, insight.Status))
	}
	insight.Status = status
	insight.UpdatedAt = time.Now().UTC()
	g.insights[insightID] = insight
	return insight, nil
}

// Prune removes resolved and dismissed insights whose last update is older
// than the retention window. Returns how many were removed.
func (g *Generator) Prune(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for id, insight := range g.insights {
		if insight.Status != types.InsightStatusResolved && insight.Status != types.InsightStatusDismissed {
			continue
		}
		if insight.UpdatedAt.Before(cutoff) {
			delete(g.insights, id)
			removed++
		}
	}
	return removed
}

// dataContext caches gathered subject values for one generation pass
type dataContext struct {
	generator *Generator
	tr        types.TimeRange

	metricValues map[string]float64
	metricMisses map[string]bool
	kpiResults   map[string]types.KPICalculation
	kpiMisses    map[string]bool
	trendResults map[string]types.TrendAnalysis
	trendMisses  map[string]bool
}

func newDataContext(g *Generator, tr types.TimeRange) *dataContext {
	return &dataContext{
		generator:    g,
		tr:           tr,
		metricValues: make(map[string]float64),
		metricMisses: make(map[string]bool),
		kpiResults:   make(map[string]types.KPICalculation),
		kpiMisses:    make(map[string]bool),
		trendResults: make(map[string]types.TrendAnalysis),
		trendMisses:  make(map[string]bool),
	}
}

// resolve fetches the observed value for a condition, caching per subject
func (dc *dataContext) resolve(ctx context.Context, condition types.InsightCondition) (float64, bool) {
	switch condition.Source {
	case types.SourceMetric:
		return dc.metricValue(ctx, condition.SubjectID)
	case types.SourceKPI:
		calc, ok := dc.kpiResult(ctx, condition.SubjectID)
		if !ok {
			return 0, false
		}
		switch condition.Field {
		case "", "value":
			return calc.Value, true
		case "confidence":
			return calc.Confidence, true
		default:
			return 0, false
		}
	case types.SourceTrend:
		analysis, ok := dc.trendResult(ctx, condition.SubjectID)
		if !ok {
			return 0, false
		}
		switch condition.Field {
		case "anomaly_count":
			return float64(len(analysis.Anomalies)), true
		case "slope":
			if analysis.Primary == nil {
				return 0, false
			}
			return analysis.Primary.Slope, true
		case "r_squared":
			if analysis.Primary == nil {
				return 0, false
			}
			return analysis.Primary.RSquared, true
		case "forecast_accuracy":
			return analysis.ForecastAccuracy, true
		default:
			return 0, false
		}
	}
	return 0, false
}

func (dc *dataContext) metricValue(ctx context.Context, metricID string) (float64, bool) {
	if v, ok := dc.metricValues[metricID]; ok {
		return v, true
	}
	if dc.metricMisses[metricID] {
		return 0, false
	}
	aggregates, err := dc.generator.store.Aggregate(ctx, []string{metricID}, dc.tr, "", nil)
	if err != nil || len(aggregates) == 0 {
		dc.metricMisses[metricID] = true
		return 0, false
	}
	dc.metricValues[metricID] = aggregates[0].Value
	return aggregates[0].Value, true
}

func (dc *dataContext) kpiResult(ctx context.Context, kpiID string) (types.KPICalculation, bool) {
	if calc, ok := dc.kpiResults[kpiID]; ok {
		return calc, true
	}
	if dc.kpiMisses[kpiID] {
		return types.KPICalculation{}, false
	}
	calc, err := dc.generator.calculator.Calculate(ctx, kpiID, dc.tr, "insight")
	if err != nil {
		dc.kpiMisses[kpiID] = true
		return types.KPICalculation{}, false
	}
	dc.kpiResults[kpiID] = calc
	return calc, true
}

func (dc *dataContext) trendResult(ctx context.Context, metricID string) (types.TrendAnalysis, bool) {
	if analysis, ok := dc.trendResults[metricID]; ok {
		return analysis, true
	}
	if dc.trendMisses[metricID] {
		return types.TrendAnalysis{}, false
	}
	analysis, err := dc.generator.analyzer.Analyze(ctx, metricID, dc.tr, types.GranularityHour)
	if err != nil {
		dc.trendMisses[metricID] = true
		return types.TrendAnalysis{}, false
	}
	dc.trendResults[metricID] = analysis
	return analysis, true
}

func newInsightID() string {
	return "ins_" + uuid.NewString()
}
