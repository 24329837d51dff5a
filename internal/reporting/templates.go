package reporting

import "einvoice-analytics/pkg/types"

// BuiltinTemplates returns the report layouts registered at engine start
func BuiltinTemplates() []ReportTemplate {
	return []ReportTemplate{
		{
			TemplateID:  "executive_summary",
			Name:        "Executive Summary",
			Description: "Platform-wide health across both roles",
			Sections: []SectionSpec{
				{Kind: SectionMetricSummary, Title: "Metric Overview"},
				{Kind: SectionKPIDashboard, Title: "KPI Dashboard"},
				{Kind: SectionInsightDigest, Title: "Active Insights"},
				{Kind: SectionMilestoneStatus, Title: "Grant Milestones"},
			},
		},
		{
			TemplateID:  "si_operations",
			Name:        "SI Operations Report",
			Description: "Invoice pipeline health for system integrators",
			Audience:    types.RoleSI,
			Sections: []SectionSpec{
				{
					Kind:      SectionMetricSummary,
					Title:     "Pipeline Metrics",
					MetricIDs: []string{"invoices_processed", "invoice_validation_rate", "invoice_processing_latency"},
				},
				{
					Kind:   SectionKPIDashboard,
					Title:  "Delivery KPIs",
					KPIIDs: []string{"transmission_sla", "processing_latency_p95", "si_contribution"},
				},
				{
					Kind:      SectionTrendOutlook,
					Title:     "Volume Trends",
					MetricIDs: []string{"invoices_processed"},
				},
			},
		},
		{
			TemplateID:  "app_compliance",
			Name:        "APP Compliance Report",
			Description: "Transmission and regulatory posture for access point providers",
			Audience:    types.RoleAPP,
			Sections: []SectionSpec{
				{
					Kind:      SectionMetricSummary,
					Title:     "Transmission Metrics",
					MetricIDs: []string{"invoices_transmitted", "transmission_success_rate", "transmission_failures"},
				},
				{
					Kind:   SectionKPIDashboard,
					Title:  "Compliance KPIs",
					KPIIDs: []string{"compliance_rate", "system_availability", "app_contribution"},
				},
				{Kind: SectionInsightDigest, Title: "Compliance Insights"},
			},
		},
		{
			TemplateID:  "grant_milestones",
			Name:        "FIRS Grant Milestone Report",
			Description: "Progress against the grant milestone tiers",
			Sections: []SectionSpec{
				{Kind: SectionMilestoneStatus, Title: "Milestone Progress"},
				{
					Kind:      SectionTrendOutlook,
					Title:     "Onboarding Trajectory",
					MetricIDs: []string{"active_taxpayers", "transmission_success_rate"},
				},
			},
		},
	}
}
