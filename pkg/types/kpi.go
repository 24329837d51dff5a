package types

import (
	"errors"
	"fmt"
	"time"
)

// KPICategory groups KPIs for dashboard filtering
type KPICategory string

const (
	KPICategoryOperational KPICategory = "operational"
	KPICategoryFinancial   KPICategory = "financial"
	KPICategoryCompliance  KPICategory = "compliance"
	KPICategoryGrowth      KPICategory = "growth"
	KPICategoryMilestone   KPICategory = "milestone"
)

// Valid returns true if the category is valid
func (kc KPICategory) Valid() bool {
	switch kc {
	case KPICategoryOperational, KPICategoryFinancial, KPICategoryCompliance,
		KPICategoryGrowth, KPICategoryMilestone:
		return true
	}
	return false
}

// CalculationMethod is the closed set of KPI calculators. Every KPI must name
// one of these; there is no dynamic-formula escape hatch outside
// CalculationFormula, which runs a whitelisted arithmetic expression against
// the source metric values.
type CalculationMethod string

const (
	CalculationDivision        CalculationMethod = "division"
	CalculationAddition        CalculationMethod = "addition"
	CalculationRatio           CalculationMethod = "ratio"
	CalculationWeightedAverage CalculationMethod = "weighted_average"
	CalculationComposite       CalculationMethod = "composite"
	CalculationSLA             CalculationMethod = "sla"
	CalculationComplianceRate  CalculationMethod = "compliance_rate"
	CalculationSatisfaction    CalculationMethod = "satisfaction_index"
	CalculationGrowthRate      CalculationMethod = "growth_rate"
	CalculationAvailability    CalculationMethod = "availability"
	CalculationChurnRate       CalculationMethod = "churn_rate"
	CalculationMilestone       CalculationMethod = "milestone_progress"
	CalculationSIContribution  CalculationMethod = "si_contribution"
	CalculationAPPContribution CalculationMethod = "app_contribution"
	CalculationAcquisitionCost CalculationMethod = "customer_acquisition_cost"
	CalculationGrantROI        CalculationMethod = "grant_roi"
	CalculationRevenuePerUser  CalculationMethod = "revenue_per_user"
	CalculationMilestoneRate   CalculationMethod = "milestone_achievement"
	CalculationFormula         CalculationMethod = "formula"
)

// Valid returns true if the calculation method is valid
func (cm CalculationMethod) Valid() bool {
	switch cm {
	case CalculationDivision, CalculationAddition, CalculationRatio,
		CalculationWeightedAverage, CalculationComposite, CalculationSLA,
		CalculationComplianceRate, CalculationSatisfaction, CalculationGrowthRate,
		CalculationAvailability, CalculationChurnRate, CalculationMilestone,
		CalculationSIContribution, CalculationAPPContribution,
		CalculationAcquisitionCost, CalculationGrantROI,
		CalculationRevenuePerUser, CalculationMilestoneRate, CalculationFormula:
		return true
	}
	return false
}

// KPIStatus is the tier a calculated value falls into
type KPIStatus string

const (
	KPIStatusExcellent KPIStatus = "excellent"
	KPIStatusGood      KPIStatus = "good"
	KPIStatusFair      KPIStatus = "fair"
	KPIStatusPoor      KPIStatus = "poor"
	KPIStatusCritical  KPIStatus = "critical"
	KPIStatusUnknown   KPIStatus = "unknown"
)

// TrendDirection is the qualitative movement of a KPI against its history
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDeclining TrendDirection = "declining"
)

// KPIThresholds is the tier ladder for status classification. For a
// higher-is-better KPI the values descend from Excellent to Poor; the
// ordering is inverted when lower values are better.
type KPIThresholds struct {
	Excellent float64 `json:"excellent"`
	Good      float64 `json:"good"`
	Fair      float64 `json:"fair"`
	Poor      float64 `json:"poor"`
}

// MilestoneSpec is the structured definition of a FIRS grant milestone tier.
// Progress is the product of the taxpayer-onboarding and transmission-rate
// completion ratios, each capped at 1.
type MilestoneSpec struct {
	Tier                     int     `json:"tier"`
	RequiredTaxpayers        float64 `json:"required_taxpayers"`
	RequiredTransmissionRate float64 `json:"required_transmission_rate"`
}

// Validate checks the milestone spec is usable
func (ms *MilestoneSpec) Validate() error {
	if ms.RequiredTaxpayers <= 0 {
		return errors.New("milestone requires a positive taxpayer target")
	}
	if ms.RequiredTransmissionRate <= 0 {
		return errors.New("milestone requires a positive transmission rate target")
	}
	return nil
}

// KPIDefinition describes a registered KPI
type KPIDefinition struct {
	KPIID          string            `json:"kpi_id"`
	Name           string            `json:"name"`
	Category       KPICategory       `json:"category"`
	Method         CalculationMethod `json:"method"`
	SourceMetrics  []string          `json:"source_metrics"`
	Formula        string            `json:"formula,omitempty"`
	Unit           string            `json:"unit"`
	TargetValue    *float64          `json:"target_value,omitempty"`
	Thresholds     *KPIThresholds    `json:"thresholds,omitempty"`
	IsHigherBetter bool              `json:"is_higher_better"`
	Milestone      *MilestoneSpec    `json:"milestone,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
}

// Validate checks the KPI definition is usable
func (kd *KPIDefinition) Validate() error {
	if kd.KPIID == "" {
		return errors.New("kpi id is required")
	}
	if !kd.Category.Valid() {
		return fmt.Errorf("invalid kpi category: %s", kd.Category)
	}
	if !kd.Method.Valid() {
		return fmt.Errorf("invalid calculation method: %s", kd.Method)
	}
	if len(kd.SourceMetrics) == 0 {
		return errors.New("kpi requires at least one source metric")
	}
	if kd.Method == CalculationFormula && kd.Formula == "" {
		return errors.New("formula method requires a formula")
	}
	if kd.Method == CalculationMilestone {
		if kd.Milestone == nil {
			return errors.New("milestone method requires a milestone spec")
		}
		if err := kd.Milestone.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// KPITarget is an operator-set goal for a KPI
type KPITarget struct {
	KPIID    string    `json:"kpi_id"`
	Value    float64   `json:"value"`
	Deadline time.Time `json:"deadline,omitempty"`
	SetBy    string    `json:"set_by,omitempty"`
	SetAt    time.Time `json:"set_at"`
}

// TargetComparison reports progress against a registered target
type TargetComparison struct {
	TargetValue float64 `json:"target_value"`
	Delta       float64 `json:"delta"`
	DeltaPct    float64 `json:"delta_pct"`
	Met         bool    `json:"met"`
}

// KPICalculation is one evaluation of a KPI over a time range. Appended to a
// bounded per-KPI history list.
type KPICalculation struct {
	KPIID        string             `json:"kpi_id"`
	Value        float64            `json:"value"`
	Period       string             `json:"period"`
	Range        TimeRange          `json:"range"`
	Status       KPIStatus          `json:"status"`
	Trend        TrendDirection     `json:"trend"`
	Target       *TargetComparison  `json:"target,omitempty"`
	Confidence   float64            `json:"confidence"`
	SourceValues map[string]float64 `json:"source_values,omitempty"`
	CalculatedAt time.Time          `json:"calculated_at"`
}

// DashboardInsight is a templated callout attached to a KPI dashboard
type DashboardInsight struct {
	Kind        string    `json:"kind"`
	KPIID       string    `json:"kpi_id"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	GeneratedAt time.Time `json:"generated_at"`
}

// KPIDashboard is a bulk evaluation of many KPIs with distributions
type KPIDashboard struct {
	GeneratedAt  time.Time                 `json:"generated_at"`
	Range        TimeRange                 `json:"range"`
	Calculations map[string]KPICalculation `json:"calculations"`
	StatusCounts map[string]int            `json:"status_counts"`
	TrendCounts  map[string]int            `json:"trend_counts"`
	Insights     []DashboardInsight        `json:"insights"`
}
