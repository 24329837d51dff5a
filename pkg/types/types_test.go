package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregationMethod_Valid(t *testing.T) {
	tests := []struct {
		name     string
		method   AggregationMethod
		expected bool
	}{
		{"valid sum", AggregationSum, true},
		{"valid average", AggregationAverage, true},
		{"valid p95", AggregationP95, true},
		{"valid rate", AggregationRate, true},
		{"valid weighted average", AggregationWeightedAverage, true},
		{"invalid empty", AggregationMethod(""), false},
		{"invalid random", AggregationMethod("mode"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.method.Valid())
		})
	}
}

func TestCalculationMethod_Valid(t *testing.T) {
	tests := []struct {
		name     string
		method   CalculationMethod
		expected bool
	}{
		{"valid division", CalculationDivision, true},
		{"valid milestone", CalculationMilestone, true},
		{"valid grant roi", CalculationGrantROI, true},
		{"valid formula", CalculationFormula, true},
		{"invalid empty", CalculationMethod(""), false},
		{"invalid random", CalculationMethod("eval"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.method.Valid())
		})
	}
}

func TestTimeRange_Contains(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	tr := TimeRange{Start: start, End: end}

	// Both bounds are inclusive.
	assert.True(t, tr.Contains(start))
	assert.True(t, tr.Contains(end))
	assert.True(t, tr.Contains(start.Add(30*time.Minute)))
	assert.False(t, tr.Contains(start.Add(-time.Nanosecond)))
	assert.False(t, tr.Contains(end.Add(time.Nanosecond)))
}

func TestTimeRange_Validate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, TimeRange{Start: now.Add(-time.Hour), End: now}.Validate())
	assert.Error(t, TimeRange{}.Validate())
	assert.Error(t, TimeRange{Start: now, End: now.Add(-time.Hour)}.Validate())
}

func TestMetricDefinition_Validate(t *testing.T) {
	def := MetricDefinition{
		MetricID:      "invoice_transmission_latency",
		Name:          "Invoice Transmission Latency",
		Type:          MetricTypeLatency,
		Scope:         ScopePerRole,
		DefaultMethod: AggregationAverage,
		Unit:          "ms",
	}
	require.NoError(t, def.Validate())

	invalid := def
	invalid.MetricID = ""
	assert.Error(t, invalid.Validate())

	invalid = def
	invalid.Type = MetricType("bogus")
	assert.Error(t, invalid.Validate())

	invalid = def
	invalid.DefaultMethod = AggregationMethod("mode")
	assert.Error(t, invalid.Validate())
}

func TestKPIDefinition_Validate(t *testing.T) {
	def := KPIDefinition{
		KPIID:          "revenue_per_invoice",
		Name:           "Revenue per Invoice",
		Category:       KPICategoryFinancial,
		Method:         CalculationDivision,
		SourceMetrics:  []string{"total_revenue", "total_transactions"},
		Unit:           "NGN",
		IsHigherBetter: true,
	}
	require.NoError(t, def.Validate())

	invalid := def
	invalid.SourceMetrics = nil
	assert.Error(t, invalid.Validate())

	invalid = def
	invalid.Method = CalculationFormula
	assert.Error(t, invalid.Validate(), "formula method without a formula must fail")

	invalid = def
	invalid.Method = CalculationMilestone
	assert.Error(t, invalid.Validate(), "milestone method without a spec must fail")

	invalid.Milestone = &MilestoneSpec{Tier: 1, RequiredTaxpayers: 20, RequiredTransmissionRate: 80}
	assert.NoError(t, invalid.Validate())
}

func TestMetricValue_JSONRoundTrip(t *testing.T) {
	original := MetricValue{
		MetricID:   "invoices_transmitted",
		Value:      42.5,
		Timestamp:  time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
		SourceRole: RoleAPP,
		Service:    "transmission-gateway",
		Dimensions: map[string]string{"taxpayer_segment": "large"},
		Metadata:   map[string]string{"batch": "b-120"},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored MetricValue
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, original, restored)
}

func TestAggregatedMetric_JSONRoundTrip(t *testing.T) {
	original := AggregatedMetric{
		MetricID:    "invoices_transmitted",
		Value:       1250,
		Method:      AggregationSum,
		Period:      "2026-03-15T00:00:00Z/2026-03-15T23:59:59Z",
		PeriodStart: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 15, 23, 59, 59, 0, time.UTC),
		SampleCount: 250,
		Confidence:  1.0,
		Breakdown: &AggregateBreakdown{
			ByRole: map[string]float64{"si": 700, "app": 550},
			Distribution: &DistributionStats{
				Min: 1, Max: 20, Mean: 5, Median: 4, StdDev: 2.5,
			},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored AggregatedMetric
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, original, restored)
}

func TestKPICalculation_JSONRoundTrip(t *testing.T) {
	original := KPICalculation{
		KPIID:  "transmission_sla",
		Value:  99.2,
		Period: "daily",
		Range: TimeRange{
			Start: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		Status:       KPIStatusExcellent,
		Trend:        TrendImproving,
		Target:       &TargetComparison{TargetValue: 99.0, Delta: 0.2, DeltaPct: 0.202, Met: true},
		Confidence:   0.9,
		SourceValues: map[string]float64{"transmitted": 992, "submitted": 1000},
		CalculatedAt: time.Date(2026, 3, 15, 0, 5, 0, 0, time.UTC),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored KPICalculation
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, original, restored)
}

func TestBusinessInsight_JSONRoundTrip(t *testing.T) {
	original := BusinessInsight{
		InsightID:       "ins-001",
		RuleID:          "compliance_risk",
		Category:        InsightCategoryCompliance,
		Severity:        SeverityCritical,
		Confidence:      ConfidenceHigh,
		Title:           "Compliance rate below regulatory floor",
		Description:     "Transmission compliance dropped under 90% for the APP role.",
		SupportingData:  map[string]float64{"compliance_rate": 87.5},
		Recommendations: []string{"Review failed transmissions", "Escalate to APP operations"},
		PotentialImpact: map[string]string{"grant": "milestone eligibility at risk"},
		Sensitivity:     SensitivityImmediate,
		Status:          InsightStatusActive,
		CreatedAt:       time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored BusinessInsight
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, original, restored)
}

func TestSyncConflict_Validate(t *testing.T) {
	conflict := SyncConflict{
		ConflictID: "c-1",
		EntityKind: "invoice",
		EntityID:   "inv-100",
		Versions: []EntityVersion{
			{Role: RoleSI, Fields: map[string]any{"status": "submitted"}, ModifiedAt: time.Now()},
			{Role: RoleAPP, Fields: map[string]any{"status": "transmitted"}, ModifiedAt: time.Now()},
		},
		DetectedAt: time.Now(),
	}
	require.NoError(t, conflict.Validate())

	conflict.Versions = conflict.Versions[:1]
	assert.Error(t, conflict.Validate())
}
