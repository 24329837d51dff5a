package insights

import (
	"fmt"
	"time"

	"einvoice-analytics/pkg/types"
)

// Built-in rule ids. Insight construction dispatches on these explicitly so
// an unrecognized rule still yields a generic insight instead of failing.
const (
	RulePerformanceDegradation   = "performance_degradation"
	RuleCapacityUtilization      = "capacity_utilization"
	RuleComplianceRisk           = "compliance_risk"
	RuleMilestoneStall           = "milestone_stall"
	RuleRevenueConcentration     = "revenue_concentration"
	RuleTransmissionFailureSpike = "transmission_failure_spike"
)

// BuiltinRules returns the rule table evaluated on every generation pass
func BuiltinRules() []types.InsightRule {
	return []types.InsightRule{
		{
			RuleID:   RulePerformanceDegradation,
			Name:     "Performance Degradation",
			Category: types.InsightCategoryPerformance,
			Severity: types.SeverityWarning,
			Conditions: []types.InsightCondition{
				{Source: types.SourceMetric, SubjectID: "api_response_time", Operator: types.OperatorGT, Threshold: 500},
			},
			Cooldown: time.Hour,
			Enabled:  true,
		},
		{
			RuleID:   RuleCapacityUtilization,
			Name:     "High Capacity Utilization",
			Category: types.InsightCategoryCapacity,
			Severity: types.SeverityWarning,
			Conditions: []types.InsightCondition{
				{Source: types.SourceMetric, SubjectID: "invoices_processed", Operator: types.OperatorGT, Threshold: 100_000},
			},
			Cooldown: 6 * time.Hour,
			Enabled:  true,
		},
		{
			RuleID:   RuleComplianceRisk,
			Name:     "Compliance Risk",
			Category: types.InsightCategoryCompliance,
			Severity: types.SeverityCritical,
			Conditions: []types.InsightCondition{
				{Source: types.SourceKPI, SubjectID: "compliance_rate", Operator: types.OperatorLT, Threshold: 94},
			},
			Cooldown: time.Hour,
			Enabled:  true,
		},
		{
			RuleID:   RuleMilestoneStall,
			Name:     "Milestone Progress Stalled",
			Category: types.InsightCategoryMilestone,
			Severity: types.SeverityWarning,
			Conditions: []types.InsightCondition{
				{Source: types.SourceKPI, SubjectID: "milestone_1_progress", Operator: types.OperatorLT, Threshold: 50},
			},
			Cooldown: 24 * time.Hour,
			Enabled:  true,
		},
		{
			RuleID:   RuleRevenueConcentration,
			Name:     "Revenue Concentration",
			Category: types.InsightCategoryRevenue,
			Severity: types.SeverityInfo,
			Conditions: []types.InsightCondition{
				{Source: types.SourceKPI, SubjectID: "si_contribution", Operator: types.OperatorGT, Threshold: 80},
			},
			Cooldown: 24 * time.Hour,
			Enabled:  true,
		},
		{
			RuleID:   RuleTransmissionFailureSpike,
			Name:     "Transmission Failure Spike",
			Category: types.InsightCategoryCompliance,
			Severity: types.SeverityCritical,
			Conditions: []types.InsightCondition{
				{Source: types.SourceMetric, SubjectID: "transmission_failures", Operator: types.OperatorGT, Threshold: 50},
			},
			Cooldown: time.Hour,
			Enabled:  true,
		},
	}
}

// buildInsight constructs the templated insight for a fired rule
func (g *Generator) buildInsight(rule *types.InsightRule, data map[string]float64, now time.Time) types.BusinessInsight {
	insight := types.BusinessInsight{
		InsightID:      newInsightID(),
		RuleID:         rule.RuleID,
		Category:       rule.Category,
		Severity:       rule.Severity,
		Confidence:     types.ConfidenceMedium,
		SupportingData: data,
		Sensitivity:    types.SensitivityShortTerm,
		Status:         types.InsightStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch rule.RuleID {
	case RulePerformanceDegradation:
		insight.Title = "API response times are degrading"
		insight.Description = fmt.Sprintf(
			"The p95 API response time reached %.0f ms over the evaluated window, above the acceptable bound.",
			data["api_response_time"])
		insight.Recommendations = []string{
			"profile the invoice validation path for slow queries",
			"check downstream FIRS endpoint latency",
		}
		insight.PotentialImpact = map[string]string{
			"sla": "sustained latency puts the transmission SLA at risk",
		}
		insight.Sensitivity = types.SensitivityImmediate
	case RuleCapacityUtilization:
		insight.Title = "Invoice volume approaching capacity"
		insight.Description = fmt.Sprintf(
			"%.0f invoices were processed in the window; current capacity planning assumed less.",
			data["invoices_processed"])
		insight.Recommendations = []string{
			"review worker pool sizing before the next filing deadline",
		}
	case RuleComplianceRisk:
		insight.Title = "Compliance pass rate below target"
		insight.Description = fmt.Sprintf(
			"The compliance check pass rate fell to %.1f%%, below the regulatory comfort band.",
			data["compliance_rate"])
		insight.Recommendations = []string{
			"audit recent validation failures by taxpayer segment",
			"confirm FIRS schema version alignment",
		}
		insight.PotentialImpact = map[string]string{
			"regulatory": "continued decline risks FIRS penalty exposure",
		}
		insight.Sensitivity = types.SensitivityImmediate
		insight.Confidence = types.ConfidenceHigh
	case RuleMilestoneStall:
		insight.Title = "Grant milestone progress is stalling"
		insight.Description = fmt.Sprintf(
			"Milestone 1 progress is at %.1f%%; onboarding or transmission rates need attention to stay on schedule.",
			data["milestone_1_progress"])
		insight.Recommendations = []string{
			"prioritize taxpayer onboarding pipeline reviews",
			"investigate transmission rate shortfalls by integrator",
		}
		insight.Sensitivity = types.SensitivityLongTerm
	case RuleRevenueConcentration:
		insight.Title = "Revenue concentrated on the SI side"
		insight.Description = fmt.Sprintf(
			"SI integrations contribute %.1f%% of revenue; APP-side growth is lagging.",
			data["si_contribution"])
		insight.Recommendations = []string{
			"assess APP pricing and adoption incentives",
		}
		insight.Sensitivity = types.SensitivityLongTerm
	case RuleTransmissionFailureSpike:
		insight.Title = "Spike in FIRS transmission failures"
		insight.Description = fmt.Sprintf(
			"%.0f transmission failures were recorded in the window, well above the normal baseline.",
			data["transmission_failures"])
		insight.Recommendations = []string{
			"check FIRS endpoint availability and certificate validity",
			"inspect retry queue depth",
		}
		insight.Sensitivity = types.SensitivityImmediate
		insight.Confidence = types.ConfidenceHigh
	default:
		insight.Title = rule.Name
		insight.Description = fmt.Sprintf("Rule %s matched all of its conditions.", rule.RuleID)
	}
	return insight
}
