// Package types provides the shared data structures for the e-invoicing
// analytics platform: metric definitions and observations, KPI definitions and
// calculations, trend analysis results, business insights, and the sync
// bookkeeping records exchanged between the SI and APP roles.
package types

import (
	"errors"
	"fmt"
	"time"
)

// Role identifies which side of the platform produced a value
type Role string

const (
	// RoleSI is the System Integrator side (invoice-originating client integrations)
	RoleSI Role = "si"
	// RoleAPP is the Access Point Provider side (regulatory transmission intermediary)
	RoleAPP Role = "app"
	// RoleSystem is used for platform-wide values not owned by either role
	RoleSystem Role = "system"
)

// Valid returns true if the role is valid
func (r Role) Valid() bool {
	switch r {
	case RoleSI, RoleAPP, RoleSystem:
		return true
	}
	return false
}

// MetricType classifies what a metric measures
type MetricType string

const (
	MetricTypePerformance MetricType = "performance"
	MetricTypeThroughput  MetricType = "throughput"
	MetricTypeSuccessRate MetricType = "success_rate"
	MetricTypeLatency     MetricType = "latency"
	MetricTypeRevenue     MetricType = "revenue"
	MetricTypeCompliance  MetricType = "compliance"
	MetricTypeAdoption    MetricType = "adoption"
	MetricTypeUtilization MetricType = "utilization"
)

// Valid returns true if the metric type is valid
func (mt MetricType) Valid() bool {
	switch mt {
	case MetricTypePerformance, MetricTypeThroughput, MetricTypeSuccessRate,
		MetricTypeLatency, MetricTypeRevenue, MetricTypeCompliance,
		MetricTypeAdoption, MetricTypeUtilization:
		return true
	}
	return false
}

// MetricScope determines whether a metric is tracked per role or platform-wide
type MetricScope string

const (
	// ScopePerRole tracks the metric separately for SI and APP
	ScopePerRole MetricScope = "per_role"
	// ScopeSystemWide tracks a single platform-wide series
	ScopeSystemWide MetricScope = "system_wide"
)

// Valid returns true if the scope is valid
func (ms MetricScope) Valid() bool {
	return ms == ScopePerRole || ms == ScopeSystemWide
}

// AggregationMethod is the closed set of reductions the metrics store supports.
// Unknown methods are rejected at aggregation time rather than silently
// falling back to a default.
type AggregationMethod string

const (
	AggregationSum             AggregationMethod = "sum"
	AggregationAverage         AggregationMethod = "average"
	AggregationCount           AggregationMethod = "count"
	AggregationMax             AggregationMethod = "max"
	AggregationMin             AggregationMethod = "min"
	AggregationMedian          AggregationMethod = "median"
	AggregationP95             AggregationMethod = "p95"
	AggregationRate            AggregationMethod = "rate"
	AggregationWeightedAverage AggregationMethod = "weighted_average"
)

// Valid returns true if the aggregation method is valid
func (am AggregationMethod) Valid() bool {
	switch am {
	case AggregationSum, AggregationAverage, AggregationCount, AggregationMax,
		AggregationMin, AggregationMedian, AggregationP95, AggregationRate,
		AggregationWeightedAverage:
		return true
	}
	return false
}

// Granularity is the bucket size used when splitting a time range into a series
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
)

// Valid returns true if the granularity is valid
func (g Granularity) Valid() bool {
	switch g {
	case GranularityMinute, GranularityHour, GranularityDay:
		return true
	}
	return false
}

// Duration returns the bucket width for the granularity
func (g Granularity) Duration() time.Duration {
	switch g {
	case GranularityMinute:
		return time.Minute
	case GranularityHour:
		return time.Hour
	case GranularityDay:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// TimeRange is a closed interval; both bounds are inclusive
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the range, bounds included
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration returns the span of the range
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Validate checks that the range is well-formed
func (tr TimeRange) Validate() error {
	if tr.Start.IsZero() || tr.End.IsZero() {
		return errors.New("time range bounds must be set")
	}
	if tr.End.Before(tr.Start) {
		return fmt.Errorf("time range end %s before start %s", tr.End.Format(time.RFC3339), tr.Start.Format(time.RFC3339))
	}
	return nil
}

// LastRange returns the range covering the trailing d up to now
func LastRange(d time.Duration) TimeRange {
	now := time.Now().UTC()
	return TimeRange{Start: now.Add(-d), End: now}
}

// MetricDefinition describes a registered metric. Definitions are immutable
// once registered except by explicit re-registration with the same id.
type MetricDefinition struct {
	MetricID      string             `json:"metric_id"`
	Name          string             `json:"name"`
	Type          MetricType         `json:"type"`
	Scope         MetricScope        `json:"scope"`
	DefaultMethod AggregationMethod  `json:"default_method"`
	Unit          string             `json:"unit"`
	SourceMetrics []string           `json:"source_metrics,omitempty"`
	Formula       string             `json:"formula,omitempty"`
	Thresholds    map[string]float64 `json:"thresholds,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	RegisteredAt  time.Time          `json:"registered_at"`
}

// Validate checks the definition is usable
func (md *MetricDefinition) Validate() error {
	if md.MetricID == "" {
		return errors.New("metric id is required")
	}
	if !md.Type.Valid() {
		return fmt.Errorf("invalid metric type: %s", md.Type)
	}
	if !md.Scope.Valid() {
		return fmt.Errorf("invalid metric scope: %s", md.Scope)
	}
	if !md.DefaultMethod.Valid() {
		return fmt.Errorf("invalid default aggregation method: %s", md.DefaultMethod)
	}
	return nil
}

// MetricValue is a single observation. Values are never mutated after
// creation; the store retains a bounded ring of the most recent entries.
type MetricValue struct {
	MetricID   string            `json:"metric_id"`
	Value      float64           `json:"value"`
	Timestamp  time.Time         `json:"timestamp"`
	SourceRole Role              `json:"source_role"`
	Service    string            `json:"service,omitempty"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate checks the observation is well-formed
func (mv *MetricValue) Validate() error {
	if mv.MetricID == "" {
		return errors.New("metric id is required")
	}
	if mv.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if !mv.SourceRole.Valid() {
		return fmt.Errorf("invalid source role: %s", mv.SourceRole)
	}
	return nil
}

// DistributionStats summarizes the spread of the values behind an aggregate
type DistributionStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// AggregateBreakdown slices an aggregate by role, service, and dimension
type AggregateBreakdown struct {
	ByRole       map[string]float64 `json:"by_role,omitempty"`
	ByService    map[string]float64 `json:"by_service,omitempty"`
	ByDimension  map[string]float64 `json:"by_dimension,omitempty"`
	Distribution *DistributionStats `json:"distribution,omitempty"`
}

// AggregatedMetric is the result of reducing a window of observations with a
// single method. Created per query and only persisted through the short-TTL
// aggregate cache.
type AggregatedMetric struct {
	MetricID    string              `json:"metric_id"`
	Value       float64             `json:"value"`
	Method      AggregationMethod   `json:"method"`
	Period      string              `json:"period"`
	PeriodStart time.Time           `json:"period_start"`
	PeriodEnd   time.Time           `json:"period_end"`
	SampleCount int                 `json:"sample_count"`
	Confidence  float64             `json:"confidence"`
	Breakdown   *AggregateBreakdown `json:"breakdown,omitempty"`
}

// MetricSnapshot is a point-in-time aggregation of every metric in a scope
type MetricSnapshot struct {
	SnapshotID string                      `json:"snapshot_id"`
	Scope      MetricScope                 `json:"scope"`
	TakenAt    time.Time                   `json:"taken_at"`
	Window     TimeRange                   `json:"window"`
	Metrics    map[string]AggregatedMetric `json:"metrics"`
	Summary    SnapshotSummary             `json:"summary"`
}

// SnapshotSummary aggregates snapshot-level counts
type SnapshotSummary struct {
	MetricCount    int                `json:"metric_count"`
	CountsByType   map[string]int     `json:"counts_by_type"`
	MeanConfidence float64            `json:"mean_confidence"`
	TypeBreakdown  map[string]float64 `json:"type_breakdown,omitempty"`
}
