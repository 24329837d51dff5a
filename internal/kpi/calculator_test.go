package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/pkg/types"
)

func newTestStore(t *testing.T) (*metrics.Store, types.TimeRange) {
	t.Helper()
	store := metrics.NewStore(1000, 1_000_000, time.Hour)
	require.NoError(t, store.RegisterBuiltins())
	now := time.Now().UTC()
	return store, types.TimeRange{Start: now.Add(-time.Hour), End: now.Add(time.Minute)}
}

func record(t *testing.T, store *metrics.Store, metricID string, role types.Role, values ...float64) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-30 * time.Minute)
	for i, v := range values {
		err := store.RecordValue(ctx, types.MetricValue{
			MetricID:   metricID,
			Value:      v,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			SourceRole: role,
		})
		require.NoError(t, err)
	}
}

func TestCalculate_Division(t *testing.T) {
	store, tr := newTestStore(t)
	record(t, store, "total_revenue", types.RoleSystem, 500, 500, 500)
	record(t, store, "total_transactions", types.RoleSystem, 10, 10, 10)

	calc := NewCalculator(store, 100, 7*24*time.Hour)
	require.NoError(t, calc.RegisterBuiltins())

	result, err := calc.Calculate(context.Background(), "average_invoice_value", tr, "test")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, result.Value, 1e-9)
	assert.Equal(t, "average_invoice_value", result.KPIID)
	assert.Equal(t, 1500.0, result.SourceValues["total_revenue"])
	assert.Equal(t, 30.0, result.SourceValues["total_transactions"])
}

func TestCalculate_MilestoneProgress(t *testing.T) {
	t.Run("fully met", func(t *testing.T) {
		store, tr := newTestStore(t)
		record(t, store, "active_taxpayers", types.RoleSystem, 20)
		record(t, store, "transmission_success_rate", types.RoleAPP, 80)

		calc := NewCalculator(store, 100, 7*24*time.Hour)
		require.NoError(t, calc.RegisterBuiltins())

		result, err := calc.Calculate(context.Background(), "milestone_1_progress", tr, "test")
		require.NoError(t, err)
		assert.InDelta(t, 100.0, result.Value, 1e-9)
	})

	t.Run("half taxpayers half rate", func(t *testing.T) {
		store, tr := newTestStore(t)
		record(t, store, "active_taxpayers", types.RoleSystem, 10)
		record(t, store, "transmission_success_rate", types.RoleAPP, 40)

		calc := NewCalculator(store, 100, 7*24*time.Hour)
		require.NoError(t, calc.RegisterBuiltins())

		result, err := calc.Calculate(context.Background(), "milestone_1_progress", tr, "test")
		require.NoError(t, err)
		assert.InDelta(t, 25.0, result.Value, 1e-9)
	})

	t.Run("overshoot is capped", func(t *testing.T) {
		store, tr := newTestStore(t)
		record(t, store, "active_taxpayers", types.RoleSystem, 200)
		record(t, store, "transmission_success_rate", types.RoleAPP, 99)

		calc := NewCalculator(store, 100, 7*24*time.Hour)
		require.NoError(t, calc.RegisterBuiltins())

		result, err := calc.Calculate(context.Background(), "milestone_1_progress", tr, "test")
		require.NoError(t, err)
		assert.InDelta(t, 100.0, result.Value, 1e-9)
	})
}

func TestCalculate_FormulaMethod(t *testing.T) {
	store, tr := newTestStore(t)
	record(t, store, "total_revenue", types.RoleSystem, 1500)
	record(t, store, "total_transactions", types.RoleSystem, 30)

	calc := NewCalculator(store, 100, 7*24*time.Hour)
	require.NoError(t, calc.RegisterDefinition(types.KPIDefinition{
		KPIID:          "formula_avg",
		Name:           "Formula Average",
		Category:       types.KPICategoryFinancial,
		Method:         types.CalculationFormula,
		SourceMetrics:  []string{"total_revenue", "total_transactions"},
		Formula:        "total_revenue / total_transactions",
		Unit:           "NGN",
		IsHigherBetter: true,
	}))

	result, err := calc.Calculate(context.Background(), "formula_avg", tr, "test")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, result.Value, 1e-9)
}

func TestCalculate_TypedFailures(t *testing.T) {
	store, tr := newTestStore(t)
	calc := NewCalculator(store, 100, 7*24*time.Hour)
	require.NoError(t, calc.RegisterBuiltins())
	ctx := context.Background()

	t.Run("unknown kpi", func(t *testing.T) {
		_, err := calc.Calculate(ctx, "does_not_exist", tr, "test")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("no source data", func(t *testing.T) {
		_, err := calc.Calculate(ctx, "average_invoice_value", tr, "test")
		assert.True(t, apperrors.IsNoData(err))
	})

	t.Run("zero denominator fails loudly", func(t *testing.T) {
		record(t, store, "total_revenue", types.RoleSystem, 100)
		record(t, store, "total_transactions", types.RoleSystem, 0)
		_, err := calc.Calculate(ctx, "average_invoice_value", tr, "test")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorCodeComputationFailed, apperrors.CodeOf(err))
	})
}

func TestDetermineStatus_ThresholdLadder(t *testing.T) {
	higher := &types.KPIDefinition{
		IsHigherBetter: true,
		Thresholds:     &types.KPIThresholds{Excellent: 98, Good: 95, Fair: 90, Poor: 85},
	}
	lower := &types.KPIDefinition{
		IsHigherBetter: false,
		Thresholds:     &types.KPIThresholds{Excellent: 85, Good: 90, Fair: 95, Poor: 98},
	}

	tests := []struct {
		name  string
		def   *types.KPIDefinition
		value float64
		want  types.KPIStatus
	}{
		{"higher excellent", higher, 99, types.KPIStatusExcellent},
		{"higher good", higher, 96, types.KPIStatusGood},
		{"higher fair", higher, 91, types.KPIStatusFair},
		{"higher poor", higher, 86, types.KPIStatusPoor},
		{"higher critical", higher, 80, types.KPIStatusCritical},
		{"higher boundary is inclusive", higher, 98, types.KPIStatusExcellent},
		{"lower excellent", lower, 80, types.KPIStatusExcellent},
		{"lower good", lower, 88, types.KPIStatusGood},
		{"lower fair", lower, 93, types.KPIStatusFair},
		{"lower poor", lower, 97, types.KPIStatusPoor},
		{"lower critical", lower, 99, types.KPIStatusCritical},
		{"no thresholds", &types.KPIDefinition{}, 50, types.KPIStatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineStatus(tt.def, tt.value))
		})
	}
}

func TestDetermineTrend(t *testing.T) {
	store, _ := newTestStore(t)
	calc := NewCalculator(store, 100, 7*24*time.Hour)
	def := &types.KPIDefinition{KPIID: "k", IsHigherBetter: true}
	now := time.Now().UTC()
	old := now.Add(-8 * 24 * time.Hour)

	calc.history["k"] = []types.KPICalculation{
		{KPIID: "k", Value: 100, CalculatedAt: old},
		{KPIID: "k", Value: 100, CalculatedAt: old.Add(time.Hour)},
	}

	assert.Equal(t, types.TrendImproving, calc.determineTrend(def, "k", 110, now))
	assert.Equal(t, types.TrendDeclining, calc.determineTrend(def, "k", 90, now))
	assert.Equal(t, types.TrendStable, calc.determineTrend(def, "k", 101, now))

	lowerDef := &types.KPIDefinition{KPIID: "k", IsHigherBetter: false}
	assert.Equal(t, types.TrendDeclining, calc.determineTrend(lowerDef, "k", 110, now))
	assert.Equal(t, types.TrendImproving, calc.determineTrend(lowerDef, "k", 90, now))

	// No baseline old enough means stable.
	calc.history["fresh"] = []types.KPICalculation{{KPIID: "fresh", Value: 5, CalculatedAt: now}}
	assert.Equal(t, types.TrendStable, calc.determineTrend(def, "fresh", 50, now))
}

func TestSetTargetAndComparison(t *testing.T) {
	store, tr := newTestStore(t)
	record(t, store, "total_revenue", types.RoleSystem, 1500)
	record(t, store, "total_transactions", types.RoleSystem, 30)

	calc := NewCalculator(store, 100, 7*24*time.Hour)
	require.NoError(t, calc.RegisterBuiltins())

	err := calc.SetTarget(types.KPITarget{KPIID: "nope", Value: 1})
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, calc.SetTarget(types.KPITarget{KPIID: "average_invoice_value", Value: 40}))

	result, err := calc.Calculate(context.Background(), "average_invoice_value", tr, "test")
	require.NoError(t, err)
	require.NotNil(t, result.Target)
	assert.True(t, result.Target.Met)
	assert.InDelta(t, 10.0, result.Target.Delta, 1e-9)
	assert.InDelta(t, 25.0, result.Target.DeltaPct, 1e-9)
}

func TestCalculate_HistoryBounded(t *testing.T) {
	store, tr := newTestStore(t)
	record(t, store, "total_revenue", types.RoleSystem, 1500)
	record(t, store, "total_transactions", types.RoleSystem, 30)

	calc := NewCalculator(store, 3, 7*24*time.Hour)
	require.NoError(t, calc.RegisterBuiltins())

	for i := 0; i < 5; i++ {
		_, err := calc.Calculate(context.Background(), "average_invoice_value", tr, "test")
		require.NoError(t, err)
	}
	assert.Len(t, calc.History("average_invoice_value"), 3)
}

func TestDashboard(t *testing.T) {
	store, tr := newTestStore(t)
	record(t, store, "invoices_transmitted", types.RoleAPP, 70)
	record(t, store, "invoices_processed", types.RoleSI, 100)
	record(t, store, "active_taxpayers", types.RoleSystem, 20)
	record(t, store, "transmission_success_rate", types.RoleAPP, 80)

	calc := NewCalculator(store, 100, 7*24*time.Hour)
	require.NoError(t, calc.RegisterBuiltins())

	dashboard, err := calc.Dashboard(context.Background(), nil, "", tr)
	require.NoError(t, err)

	// transmission_sla = 70% which is below the poor bound of 85.
	sla, ok := dashboard.Calculations["transmission_sla"]
	require.True(t, ok)
	assert.Equal(t, types.KPIStatusCritical, sla.Status)
	assert.GreaterOrEqual(t, dashboard.StatusCounts[string(types.KPIStatusCritical)], 1)

	var kinds []string
	for _, insight := range dashboard.Insights {
		kinds = append(kinds, insight.Kind)
	}
	assert.Contains(t, kinds, "critical_performance")

	// KPIs whose source metrics have no data are skipped, not reported as zero.
	_, ok = dashboard.Calculations["grant_roi"]
	assert.False(t, ok)
}

func TestDashboard_CategoryFilter(t *testing.T) {
	store, tr := newTestStore(t)
	record(t, store, "active_taxpayers", types.RoleSystem, 10)
	record(t, store, "transmission_success_rate", types.RoleAPP, 40)
	record(t, store, "total_revenue", types.RoleSystem, 1500)
	record(t, store, "total_transactions", types.RoleSystem, 30)

	calc := NewCalculator(store, 100, 7*24*time.Hour)
	require.NoError(t, calc.RegisterBuiltins())

	dashboard, err := calc.Dashboard(context.Background(), nil, types.KPICategoryMilestone, tr)
	require.NoError(t, err)
	require.NotEmpty(t, dashboard.Calculations)
	for id := range dashboard.Calculations {
		def, defErr := calc.Definition(id)
		require.NoError(t, defErr)
		assert.Equal(t, types.KPICategoryMilestone, def.Category)
	}

	_, err = calc.Dashboard(context.Background(), nil, types.KPICategory("bogus"), tr)
	assert.Error(t, err)
}
