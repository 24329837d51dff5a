package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"einvoice-analytics/internal/config"
	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/insights"
	"einvoice-analytics/internal/kpi"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/trends"
	"einvoice-analytics/pkg/types"
)

func newTestEngine(t *testing.T) (*Engine, types.TimeRange) {
	t.Helper()
	store := metrics.NewStore(10_000, 1_000_000, time.Hour)
	require.NoError(t, store.RegisterBuiltins())
	calculator := kpi.NewCalculator(store, 100, 7*24*time.Hour)
	require.NoError(t, calculator.RegisterBuiltins())
	analyzer := trends.NewAnalyzer(store, config.DefaultConfig().Trends)
	generator := insights.NewGenerator(store, calculator, analyzer)

	ctx := context.Background()
	base := time.Now().UTC().Add(-30 * time.Minute)
	seed := map[string][]float64{
		"total_revenue":             {500, 500, 500},
		"total_transactions":        {10, 10, 10},
		"active_taxpayers":          {20},
		"transmission_success_rate": {80},
		"invoices_processed":        {100, 120},
		"invoices_transmitted":      {95, 115},
	}
	for metricID, values := range seed {
		for i, v := range values {
			require.NoError(t, store.RecordValue(ctx, types.MetricValue{
				MetricID:   metricID,
				Value:      v,
				Timestamp:  base.Add(time.Duration(i) * time.Second),
				SourceRole: types.RoleSystem,
			}))
		}
	}

	now := time.Now().UTC()
	tr := types.TimeRange{Start: now.Add(-time.Hour), End: now.Add(time.Minute)}
	return NewEngine(store, calculator, analyzer, generator), tr
}

func TestGenerate_ExecutiveSummary(t *testing.T) {
	engine, tr := newTestEngine(t)

	report, err := engine.Generate(context.Background(), "executive_summary", tr)
	require.NoError(t, err)

	assert.Equal(t, "executive_summary", report.TemplateID)
	require.Len(t, report.Sections, 4)
	assert.Equal(t, SectionMetricSummary, report.Sections[0].Kind)
	assert.NotEmpty(t, report.Sections[0].Table.Rows)
	assert.NotEmpty(t, report.Sections[0].Summary)

	dashboard := report.Sections[1]
	assert.Equal(t, SectionKPIDashboard, dashboard.Kind)
	var foundAvg bool
	for _, row := range dashboard.Table.Rows {
		if row[0] == "average_invoice_value" {
			foundAvg = true
			assert.Equal(t, "50.00", row[1])
		}
	}
	assert.True(t, foundAvg)

	milestones := report.Sections[3]
	assert.Equal(t, SectionMilestoneStatus, milestones.Kind)
	assert.NotEmpty(t, milestones.Table.Rows)
}

func TestGenerate_UnknownTemplate(t *testing.T) {
	engine, tr := newTestEngine(t)
	_, err := engine.Generate(context.Background(), "missing", tr)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGenerate_TrendOutlookInsufficientData(t *testing.T) {
	engine, tr := newTestEngine(t)

	report, err := engine.Generate(context.Background(), "grant_milestones", tr)
	require.NoError(t, err)
	require.Len(t, report.Sections, 2)

	outlook := report.Sections[1]
	require.NotEmpty(t, outlook.Table.Rows)
	// Seed data has far fewer than ten hourly buckets.
	assert.Equal(t, "insufficient data", outlook.Table.Rows[0][1])
}

func TestRender_JSON(t *testing.T) {
	engine, tr := newTestEngine(t)
	report, err := engine.Generate(context.Background(), "si_operations", tr)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, engine.Render(&buf, &report, FormatJSON))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, report.ReportID, decoded.ReportID)
	assert.Len(t, decoded.Sections, len(report.Sections))
}

func TestRender_CSV(t *testing.T) {
	engine, tr := newTestEngine(t)
	report, err := engine.Generate(context.Background(), "app_compliance", tr)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, engine.Render(&buf, &report, FormatCSV))

	reader := csv.NewReader(&buf)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"report_id", report.ReportID}, rows[0])
}

func TestRender_HTML(t *testing.T) {
	engine, tr := newTestEngine(t)
	report, err := engine.Generate(context.Background(), "executive_summary", tr)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, engine.Render(&buf, &report, FormatHTML))

	html := buf.String()
	assert.Contains(t, html, "<h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "Executive Summary")
}

func TestRender_UnknownFormat(t *testing.T) {
	engine, tr := newTestEngine(t)
	report, err := engine.Generate(context.Background(), "executive_summary", tr)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = engine.Render(&buf, &report, Format("xml"))
	assert.Equal(t, apperrors.ErrorCodeValidation, apperrors.CodeOf(err))
}

func TestLoadTemplates_YAML(t *testing.T) {
	engine, tr := newTestEngine(t)

	yamlDoc := []byte(`
templates:
  - template_id: custom_revenue
    name: Custom Revenue Report
    sections:
      - kind: metric_summary
        title: Revenue Metrics
        metric_ids: [total_revenue, total_transactions]
      - kind: kpi_dashboard
        title: Revenue KPIs
        kpi_ids: [average_invoice_value, revenue_per_user]
`)
	require.NoError(t, engine.LoadTemplates(yamlDoc))

	report, err := engine.Generate(context.Background(), "custom_revenue", tr)
	require.NoError(t, err)
	require.Len(t, report.Sections, 2)
	assert.Equal(t, "Revenue Metrics", report.Sections[0].Title)
	assert.Len(t, report.Sections[0].Table.Rows, 2)
}

func TestLoadTemplates_InvalidSectionKind(t *testing.T) {
	engine, _ := newTestEngine(t)
	err := engine.LoadTemplates([]byte(`
templates:
  - template_id: bad
    name: Bad
    sections:
      - kind: pie_chart
        title: Nope
`))
	assert.Equal(t, apperrors.ErrorCodeValidation, apperrors.CodeOf(err))
}
