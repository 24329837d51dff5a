package metrics

import (
	"time"

	"einvoice-analytics/pkg/types"
)

// BuiltinDefinitions returns the metric catalog registered at service start.
// It covers the SI invoice pipeline, the APP transmission pipeline, the
// unified revenue stream, and the FIRS grant tracking inputs.
func BuiltinDefinitions() []types.MetricDefinition {
	now := time.Now().UTC()
	defs := []types.MetricDefinition{
		// SI pipeline
		{
			MetricID:      "invoices_processed",
			Name:          "Invoices Processed",
			Type:          types.MetricTypeThroughput,
			Scope:         types.ScopePerRole,
			DefaultMethod: types.AggregationSum,
			Unit:          "invoices",
			Tags:          []string{"si", "pipeline"},
		},
		{
			MetricID:      "invoice_validation_rate",
			Name:          "Invoice Validation Success Rate",
			Type:          types.MetricTypeSuccessRate,
			Scope:         types.ScopePerRole,
			DefaultMethod: types.AggregationAverage,
			Unit:          "%",
			Thresholds:    map[string]float64{"warning": 95, "critical": 90},
			Tags:          []string{"si", "quality"},
		},
		{
			MetricID:      "invoice_processing_latency",
			Name:          "Invoice Processing Latency",
			Type:          types.MetricTypeLatency,
			Scope:         types.ScopePerRole,
			DefaultMethod: types.AggregationP95,
			Unit:          "ms",
			Thresholds:    map[string]float64{"warning": 500, "critical": 2000},
			Tags:          []string{"si", "performance"},
		},

		// APP transmission pipeline
		{
			MetricID:      "invoices_transmitted",
			Name:          "Invoices Transmitted to FIRS",
			Type:          types.MetricTypeThroughput,
			Scope:         types.ScopePerRole,
			DefaultMethod: types.AggregationSum,
			Unit:          "invoices",
			Tags:          []string{"app", "pipeline"},
		},
		{
			MetricID:      "transmission_success_rate",
			Name:          "Transmission Success Rate",
			Type:          types.MetricTypeSuccessRate,
			Scope:         types.ScopePerRole,
			DefaultMethod: types.AggregationAverage,
			Unit:          "%",
			Thresholds:    map[string]float64{"warning": 95, "critical": 85},
			Tags:          []string{"app", "compliance"},
		},
		{
			MetricID:      "transmission_failures",
			Name:          "Transmission Failures",
			Type:          types.MetricTypeThroughput,
			Scope:         types.ScopePerRole,
			DefaultMethod: types.AggregationCount,
			Unit:          "failures",
			Tags:          []string{"app", "reliability"},
		},
		{
			MetricID:      "api_response_time",
			Name:          "API Response Time",
			Type:          types.MetricTypeLatency,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationP95,
			Unit:          "ms",
			Thresholds:    map[string]float64{"warning": 300, "critical": 1000},
			Tags:          []string{"platform", "performance"},
		},

		// Compliance
		{
			MetricID:      "compliance_checks_passed",
			Name:          "Compliance Checks Passed",
			Type:          types.MetricTypeCompliance,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "checks",
			Tags:          []string{"compliance"},
		},
		{
			MetricID:      "compliance_checks_total",
			Name:          "Compliance Checks Total",
			Type:          types.MetricTypeCompliance,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "checks",
			Tags:          []string{"compliance"},
		},

		// Unified revenue
		{
			MetricID:      "total_revenue",
			Name:          "Total Revenue",
			Type:          types.MetricTypeRevenue,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "NGN",
			Tags:          []string{"revenue"},
		},
		{
			MetricID:      "si_revenue",
			Name:          "SI Revenue",
			Type:          types.MetricTypeRevenue,
			Scope:         types.ScopePerRole,
			DefaultMethod: types.AggregationSum,
			Unit:          "NGN",
			Tags:          []string{"revenue", "si"},
		},
		{
			MetricID:      "app_revenue",
			Name:          "APP Revenue",
			Type:          types.MetricTypeRevenue,
			Scope:         types.ScopePerRole,
			DefaultMethod: types.AggregationSum,
			Unit:          "NGN",
			Tags:          []string{"revenue", "app"},
		},
		{
			MetricID:      "total_transactions",
			Name:          "Total Transactions",
			Type:          types.MetricTypeThroughput,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "transactions",
			Tags:          []string{"revenue"},
		},
		{
			MetricID:      "active_users",
			Name:          "Active Users",
			Type:          types.MetricTypeAdoption,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationMax,
			Unit:          "users",
			Tags:          []string{"adoption"},
		},
		{
			MetricID:      "customers_acquired",
			Name:          "Customers Acquired",
			Type:          types.MetricTypeAdoption,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "customers",
			Tags:          []string{"growth"},
		},
		{
			MetricID:      "marketing_spend",
			Name:          "Marketing Spend",
			Type:          types.MetricTypeRevenue,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "NGN",
			Tags:          []string{"growth"},
		},

		// FIRS grant tracking
		{
			MetricID:      "active_taxpayers",
			Name:          "Active Taxpayers Onboarded",
			Type:          types.MetricTypeAdoption,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationMax,
			Unit:          "taxpayers",
			Tags:          []string{"grant", "milestone"},
		},
		{
			MetricID:      "grant_benefit",
			Name:          "Grant Benefit Realized",
			Type:          types.MetricTypeRevenue,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "NGN",
			Tags:          []string{"grant"},
		},
		{
			MetricID:      "grant_cost",
			Name:          "Grant Program Cost",
			Type:          types.MetricTypeRevenue,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "NGN",
			Tags:          []string{"grant"},
		},

		// Platform utilization
		{
			MetricID:      "uptime_checks_passed",
			Name:          "Uptime Checks Passed",
			Type:          types.MetricTypeUtilization,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "checks",
			Tags:          []string{"platform", "availability"},
		},
		{
			MetricID:      "uptime_checks_total",
			Name:          "Uptime Checks Total",
			Type:          types.MetricTypeUtilization,
			Scope:         types.ScopeSystemWide,
			DefaultMethod: types.AggregationSum,
			Unit:          "checks",
			Tags:          []string{"platform", "availability"},
		},
	}
	for i := range defs {
		defs[i].RegisteredAt = now
	}
	return defs
}

// RegisterBuiltins registers the full built-in catalog on the store
func (s *Store) RegisterBuiltins() error {
	for _, def := range BuiltinDefinitions() {
		if err := s.RegisterDefinition(def); err != nil {
			return err
		}
	}
	return nil
}
