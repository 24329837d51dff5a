package kpi

import "einvoice-analytics/pkg/types"

// BuiltinDefinitions returns the KPI catalog registered at service start,
// covering SI delivery quality, APP transmission compliance, the unified
// revenue stream, and the FIRS grant milestone tiers.
func BuiltinDefinitions() []types.KPIDefinition {
	return []types.KPIDefinition{
		{
			KPIID:          "average_invoice_value",
			Name:           "Average Invoice Value",
			Category:       types.KPICategoryFinancial,
			Method:         types.CalculationDivision,
			SourceMetrics:  []string{"total_revenue", "total_transactions"},
			Unit:           "NGN",
			IsHigherBetter: true,
		},
		{
			KPIID:          "transmission_sla",
			Name:           "Transmission SLA",
			Category:       types.KPICategoryCompliance,
			Method:         types.CalculationSLA,
			SourceMetrics:  []string{"invoices_transmitted", "invoices_processed"},
			Unit:           "%",
			IsHigherBetter: true,
			Thresholds:     &types.KPIThresholds{Excellent: 98, Good: 95, Fair: 90, Poor: 85},
		},
		{
			KPIID:          "compliance_rate",
			Name:           "Compliance Check Pass Rate",
			Category:       types.KPICategoryCompliance,
			Method:         types.CalculationComplianceRate,
			SourceMetrics:  []string{"compliance_checks_passed", "compliance_checks_total"},
			Unit:           "%",
			IsHigherBetter: true,
			Thresholds:     &types.KPIThresholds{Excellent: 99, Good: 97, Fair: 94, Poor: 90},
		},
		{
			KPIID:          "system_availability",
			Name:           "System Availability",
			Category:       types.KPICategoryOperational,
			Method:         types.CalculationAvailability,
			SourceMetrics:  []string{"uptime_checks_passed", "uptime_checks_total"},
			Unit:           "%",
			IsHigherBetter: true,
			Thresholds:     &types.KPIThresholds{Excellent: 99.9, Good: 99.5, Fair: 99, Poor: 98},
		},
		{
			KPIID:          "processing_latency_p95",
			Name:           "Processing Latency",
			Category:       types.KPICategoryOperational,
			Method:         types.CalculationWeightedAverage,
			SourceMetrics:  []string{"invoice_processing_latency"},
			Unit:           "ms",
			IsHigherBetter: false,
			Thresholds:     &types.KPIThresholds{Excellent: 200, Good: 500, Fair: 1000, Poor: 2000},
		},
		{
			KPIID:          "si_contribution",
			Name:           "SI Revenue Contribution",
			Category:       types.KPICategoryFinancial,
			Method:         types.CalculationSIContribution,
			SourceMetrics:  []string{"si_revenue", "total_revenue"},
			Unit:           "%",
			IsHigherBetter: true,
		},
		{
			KPIID:          "app_contribution",
			Name:           "APP Revenue Contribution",
			Category:       types.KPICategoryFinancial,
			Method:         types.CalculationAPPContribution,
			SourceMetrics:  []string{"app_revenue", "total_revenue"},
			Unit:           "%",
			IsHigherBetter: true,
		},
		{
			KPIID:          "revenue_per_user",
			Name:           "Revenue Per User",
			Category:       types.KPICategoryFinancial,
			Method:         types.CalculationRevenuePerUser,
			SourceMetrics:  []string{"total_revenue", "active_users"},
			Unit:           "NGN",
			IsHigherBetter: true,
		},
		{
			KPIID:          "customer_acquisition_cost",
			Name:           "Customer Acquisition Cost",
			Category:       types.KPICategoryGrowth,
			Method:         types.CalculationAcquisitionCost,
			SourceMetrics:  []string{"marketing_spend", "customers_acquired"},
			Unit:           "NGN",
			IsHigherBetter: false,
		},
		{
			KPIID:          "grant_roi",
			Name:           "Grant Return on Investment",
			Category:       types.KPICategoryFinancial,
			Method:         types.CalculationGrantROI,
			SourceMetrics:  []string{"grant_benefit", "grant_cost"},
			Unit:           "%",
			IsHigherBetter: true,
		},
		{
			KPIID:          "milestone_1_progress",
			Name:           "FIRS Milestone 1 Progress",
			Category:       types.KPICategoryMilestone,
			Method:         types.CalculationMilestone,
			SourceMetrics:  []string{"active_taxpayers", "transmission_success_rate"},
			Unit:           "%",
			IsHigherBetter: true,
			Milestone:      &types.MilestoneSpec{Tier: 1, RequiredTaxpayers: 20, RequiredTransmissionRate: 80},
			Thresholds:     &types.KPIThresholds{Excellent: 100, Good: 75, Fair: 50, Poor: 25},
		},
		{
			KPIID:          "milestone_2_progress",
			Name:           "FIRS Milestone 2 Progress",
			Category:       types.KPICategoryMilestone,
			Method:         types.CalculationMilestone,
			SourceMetrics:  []string{"active_taxpayers", "transmission_success_rate"},
			Unit:           "%",
			IsHigherBetter: true,
			Milestone:      &types.MilestoneSpec{Tier: 2, RequiredTaxpayers: 100, RequiredTransmissionRate: 85},
			Thresholds:     &types.KPIThresholds{Excellent: 100, Good: 75, Fair: 50, Poor: 25},
		},
		{
			KPIID:          "milestone_3_progress",
			Name:           "FIRS Milestone 3 Progress",
			Category:       types.KPICategoryMilestone,
			Method:         types.CalculationMilestone,
			SourceMetrics:  []string{"active_taxpayers", "transmission_success_rate"},
			Unit:           "%",
			IsHigherBetter: true,
			Milestone:      &types.MilestoneSpec{Tier: 3, RequiredTaxpayers: 500, RequiredTransmissionRate: 90},
			Thresholds:     &types.KPIThresholds{Excellent: 100, Good: 75, Fair: 50, Poor: 25},
		},
	}
}

// RegisterBuiltins registers the full built-in KPI catalog
func (c *Calculator) RegisterBuiltins() error {
	for _, def := range BuiltinDefinitions() {
		if err := c.RegisterDefinition(def); err != nil {
			return err
		}
	}
	return nil
}
