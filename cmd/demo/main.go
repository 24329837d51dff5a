// Command demo seeds the analytics stack with a synthetic week of SI and APP
// activity and prints the resulting dashboards to the terminal.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/fatih/color"

	"einvoice-analytics/internal/config"
	"einvoice-analytics/internal/insights"
	"einvoice-analytics/internal/kpi"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/trends"
	"einvoice-analytics/pkg/types"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
)

func main() {
	headerColor.Println("e-invoice analytics demo")
	headerColor.Println("========================")

	cfg := config.DefaultConfig()
	store := metrics.NewStore(
		cfg.Metrics.ValueRingCapacity,
		cfg.Metrics.RefreshEvery,
		cfg.Metrics.SnapshotWindow,
	)
	if err := store.RegisterBuiltins(); err != nil {
		log.Fatalf("register metrics: %v", err)
	}
	calculator := kpi.NewCalculator(store, cfg.KPI.HistoryCapacity, cfg.KPI.TrendLookback)
	if err := calculator.RegisterBuiltins(); err != nil {
		log.Fatalf("register kpis: %v", err)
	}
	analyzer := trends.NewAnalyzer(store, cfg.Trends)
	generator := insights.NewGenerator(store, calculator, analyzer)

	ctx := context.Background()
	seed(ctx, store)

	now := time.Now().UTC()
	tr := types.TimeRange{Start: now.Add(-7 * 24 * time.Hour), End: now}

	printDashboard(ctx, calculator, tr)
	printTrend(ctx, analyzer, "invoices_processed", tr)
	printInsights(ctx, generator, tr)
}

// seed writes a week of hourly observations for both roles. Volumes grow
// through the week with a mild daily cycle and a little noise.
func seed(ctx context.Context, store *metrics.Store) {
	rng := rand.New(rand.NewSource(42))
	start := time.Now().UTC().Add(-7 * 24 * time.Hour).Truncate(time.Hour)

	record := func(metricID string, role types.Role, value float64, ts time.Time) {
		_ = store.RecordValue(ctx, types.MetricValue{
			MetricID:   metricID,
			Value:      value,
			Timestamp:  ts,
			SourceRole: role,
		})
	}

	for i := 0; i < 7*24; i++ {
		ts := start.Add(time.Duration(i)*time.Hour + 15*time.Minute)
		daily := 1 + 0.3*math.Sin(2*math.Pi*float64(i%24)/24)
		growth := 1 + float64(i)/400

		invoices := 120 * daily * growth * (0.9 + 0.2*rng.Float64())
		record("invoices_processed", types.RoleSI, invoices, ts)
		record("invoices_transmitted", types.RoleAPP, invoices*0.97, ts)
		record("transmission_success_rate", types.RoleAPP, 95+4*rng.Float64(), ts)
		record("api_response_time", types.RoleSystem, 150+100*rng.Float64(), ts)

		record("total_revenue", types.RoleSI, invoices*450, ts)
		record("si_revenue", types.RoleSI, invoices*300, ts)
		record("app_revenue", types.RoleAPP, invoices*150, ts)
		record("total_transactions", types.RoleSI, invoices, ts)

		record("compliance_checks_passed", types.RoleAPP, 96+3*rng.Float64(), ts)
		record("compliance_checks_total", types.RoleAPP, 100, ts)
		record("active_taxpayers", types.RoleSystem, 180+float64(i)/4, ts)
	}
}

func printDashboard(ctx context.Context, calculator *kpi.Calculator, tr types.TimeRange) {
	headerColor.Println("\nKPI dashboard")
	dashboard, err := calculator.Dashboard(ctx, nil, "", tr)
	if err != nil {
		log.Fatalf("dashboard: %v", err)
	}
	for kpiID, calc := range dashboard.Calculations {
		line := fmt.Sprintf("  %-28s %10.2f  [%s, %s]", kpiID, calc.Value, calc.Status, calc.Trend)
		switch calc.Status {
		case types.KPIStatusCritical, types.KPIStatusPoor:
			badColor.Println(line)
		case types.KPIStatusFair:
			warnColor.Println(line)
		default:
			goodColor.Println(line)
		}
	}
}

func printTrend(ctx context.Context, analyzer *trends.Analyzer, metricID string, tr types.TimeRange) {
	headerColor.Printf("\nTrend: %s\n", metricID)
	analysis, err := analyzer.Analyze(ctx, metricID, tr, types.GranularityHour)
	if err != nil {
		warnColor.Printf("  analysis unavailable: %v\n", err)
		return
	}
	if analysis.Primary != nil {
		fmt.Printf("  primary pattern: %s (%s, r2=%.2f)\n",
			analysis.Primary.Kind,
			analysis.Primary.Direction,
			analysis.Primary.RSquared)
	}
	fmt.Printf("  anomalies: %d, forecast accuracy: %.0f%%\n",
		len(analysis.Anomalies), analysis.ForecastAccuracy*100)

	prediction, err := analyzer.Predict(ctx, metricID, tr, 2, types.ModelAuto)
	if err != nil {
		warnColor.Printf("  forecast unavailable: %v\n", err)
		return
	}
	last := prediction.Steps[len(prediction.Steps)-1]
	fmt.Printf("  48h forecast: %.0f (%.0f..%.0f), confidence %s\n",
		last.Value, last.Lower, last.Upper, prediction.Confidence)
}

func printInsights(ctx context.Context, generator *insights.Generator, tr types.TimeRange) {
	headerColor.Println("\nInsights")
	generated, err := generator.Generate(ctx, tr)
	if err != nil {
		log.Fatalf("insights: %v", err)
	}
	if len(generated) == 0 {
		goodColor.Println("  nothing to report")
		return
	}
	for _, insight := range generated {
		line := fmt.Sprintf("  [%s] %s", insight.Severity, insight.Title)
		if insight.Severity == types.SeverityCritical {
			badColor.Println(line)
		} else {
			warnColor.Println(line)
		}
	}
}
