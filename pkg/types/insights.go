package types

import (
	"errors"
	"fmt"
	"time"
)

// Severity grades how urgent an insight or alert is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid returns true if the severity is valid
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// InsightCategory groups insights for filtering
type InsightCategory string

const (
	InsightCategoryPerformance InsightCategory = "performance"
	InsightCategoryCapacity    InsightCategory = "capacity"
	InsightCategoryCompliance  InsightCategory = "compliance"
	InsightCategoryRevenue     InsightCategory = "revenue"
	InsightCategoryMilestone   InsightCategory = "milestone"
)

// InsightStatus is the lifecycle state of an insight
type InsightStatus string

const (
	InsightStatusActive       InsightStatus = "active"
	InsightStatusAcknowledged InsightStatus = "acknowledged"
	InsightStatusActedUpon    InsightStatus = "acted_upon"
	InsightStatusResolved     InsightStatus = "resolved"
	InsightStatusDismissed    InsightStatus = "dismissed"
)

// Valid returns true if the status is valid
func (is InsightStatus) Valid() bool {
	switch is {
	case InsightStatusActive, InsightStatusAcknowledged, InsightStatusActedUpon,
		InsightStatusResolved, InsightStatusDismissed:
		return true
	}
	return false
}

// TimeSensitivity labels how quickly an insight loses relevance
type TimeSensitivity string

const (
	SensitivityImmediate TimeSensitivity = "immediate"
	SensitivityShortTerm TimeSensitivity = "short_term"
	SensitivityLongTerm  TimeSensitivity = "long_term"
)

// ConditionSource names which service a rule condition reads from
type ConditionSource string

const (
	SourceMetric ConditionSource = "metric"
	SourceKPI    ConditionSource = "kpi"
	SourceTrend  ConditionSource = "trend"
)

// ConditionOperator compares an observed value to a rule threshold
type ConditionOperator string

const (
	OperatorGT  ConditionOperator = "gt"
	OperatorGTE ConditionOperator = "gte"
	OperatorLT  ConditionOperator = "lt"
	OperatorLTE ConditionOperator = "lte"
	OperatorEQ  ConditionOperator = "eq"
)

// Compare applies the operator
func (op ConditionOperator) Compare(observed, threshold float64) bool {
	switch op {
	case OperatorGT:
		return observed > threshold
	case OperatorGTE:
		return observed >= threshold
	case OperatorLT:
		return observed < threshold
	case OperatorLTE:
		return observed <= threshold
	case OperatorEQ:
		return observed == threshold
	default:
		return false
	}
}

// InsightCondition is one comparison inside a rule. Every condition in a rule
// must match for the rule to fire.
type InsightCondition struct {
	Source    ConditionSource   `json:"source"`
	SubjectID string            `json:"subject_id"`
	Field     string            `json:"field,omitempty"`
	Operator  ConditionOperator `json:"operator"`
	Threshold float64           `json:"threshold"`
}

// InsightRule maps a condition list to an insight constructor
type InsightRule struct {
	RuleID     string             `json:"rule_id"`
	Name       string             `json:"name"`
	Category   InsightCategory    `json:"category"`
	Severity   Severity           `json:"severity"`
	Conditions []InsightCondition `json:"conditions"`
	Cooldown   time.Duration      `json:"cooldown"`
	Enabled    bool               `json:"enabled"`
}

// Validate checks the rule is usable
func (ir *InsightRule) Validate() error {
	if ir.RuleID == "" {
		return errors.New("rule id is required")
	}
	if len(ir.Conditions) == 0 {
		return fmt.Errorf("rule %s has no conditions", ir.RuleID)
	}
	return nil
}

// BusinessInsight is a rule-trigger result surfaced to operators
type BusinessInsight struct {
	InsightID       string             `json:"insight_id"`
	RuleID          string             `json:"rule_id"`
	Category        InsightCategory    `json:"category"`
	Severity        Severity           `json:"severity"`
	Confidence      ConfidenceTier     `json:"confidence"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	SupportingData  map[string]float64 `json:"supporting_data,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	PotentialImpact map[string]string  `json:"potential_impact,omitempty"`
	Sensitivity     TimeSensitivity    `json:"sensitivity"`
	Status          InsightStatus      `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
