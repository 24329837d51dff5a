package kpi

import (
	"context"
	"fmt"
	"time"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/pkg/types"
)

// Dashboard evaluates a set of KPIs over one time range and summarizes the
// status and trend distributions. An empty id list selects every registered
// KPI; a category narrows the selection further. KPIs that fail to calculate
// are logged and left out of the result rather than reported as zero.
func (c *Calculator) Dashboard(ctx context.Context, kpiIDs []string, category types.KPICategory, tr types.TimeRange) (types.KPIDashboard, error) {
	if err := tr.Validate(); err != nil {
		return types.KPIDashboard{}, apperrors.NewValidation("kpi_calculator", err.Error())
	}
	if category != "" && !category.Valid() {
		return types.KPIDashboard{}, apperrors.NewValidation("kpi_calculator",
			fmt.Sprintf("invalid kpi category: %s", category))
	}
	if len(kpiIDs) == 0 {
		kpiIDs = c.KPIIDs()
	}

	dashboard := types.KPIDashboard{
		GeneratedAt:  time.Now().UTC(),
		Range:        tr,
		Calculations: make(map[string]types.KPICalculation),
		StatusCounts: make(map[string]int),
		TrendCounts:  make(map[string]int),
	}

	for _, kpiID := range kpiIDs {
		def, err := c.Definition(kpiID)
		if err != nil {
			c.logger.Warn("dashboard skipping unknown kpi", "kpi_id", kpiID)
			continue
		}
		if category != "" && def.Category != category {
			continue
		}

		calculation, err := c.Calculate(ctx, kpiID, tr, "dashboard")
		if err != nil {
			c.logger.Warn("dashboard kpi calculation failed",
				"kpi_id", kpiID, "error", err.Error())
			continue
		}

		dashboard.Calculations[kpiID] = calculation
		dashboard.StatusCounts[string(calculation.Status)]++
		dashboard.TrendCounts[string(calculation.Trend)]++
		dashboard.Insights = append(dashboard.Insights,
			dashboardInsights(&def, &calculation, dashboard.GeneratedAt)...)
	}

	return dashboard, nil
}

// dashboardInsights produces the fixed templated callouts for one calculation
func dashboardInsights(def *types.KPIDefinition, calc *types.KPICalculation, now time.Time) []types.DashboardInsight {
	var out []types.DashboardInsight
	if calc.Status == types.KPIStatusCritical {
		out = append(out, types.DashboardInsight{
			Kind:  "critical_performance",
			KPIID: def.KPIID,
			Message: fmt.Sprintf("%s is at a critical level (%.2f %s); immediate attention required",
				def.Name, calc.Value, def.Unit),
			Severity:    types.SeverityCritical,
			GeneratedAt: now,
		})
	}
	if calc.Trend == types.TrendDeclining {
		out = append(out, types.DashboardInsight{
			Kind:  "declining_trend",
			KPIID: def.KPIID,
			Message: fmt.Sprintf("%s is trending downward relative to the prior week (currently %.2f %s)",
				def.Name, calc.Value, def.Unit),
			Severity:    types.SeverityWarning,
			GeneratedAt: now,
		})
	}
	if calc.Status == types.KPIStatusExcellent && calc.Trend == types.TrendImproving {
		out = append(out, types.DashboardInsight{
			Kind:  "excellent_performance",
			KPIID: def.KPIID,
			Message: fmt.Sprintf("%s is excellent and still improving (%.2f %s)",
				def.Name, calc.Value, def.Unit),
			Severity:    types.SeverityInfo,
			GeneratedAt: now,
		})
	}
	return out
}
