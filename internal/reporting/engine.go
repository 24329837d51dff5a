package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/insights"
	"einvoice-analytics/internal/kpi"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/trends"
	"einvoice-analytics/pkg/types"
)

// Engine fills report templates from the analytics services
type Engine struct {
	store      *metrics.Store
	calculator *kpi.Calculator
	analyzer   *trends.Analyzer
	generator  *insights.Generator
	logger     logging.Logger
	printer    *message.Printer

	mu        sync.RWMutex
	templates map[string]ReportTemplate
}

// Option configures optional collaborators on the engine
type Option func(*Engine)

// WithLogger attaches a logger
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logger.WithComponent("reporting") }
}

// WithLocale sets the number-formatting locale; defaults to English
func WithLocale(tag language.Tag) Option {
	return func(e *Engine) { e.printer = message.NewPrinter(tag) }
}

// NewEngine creates a report engine and seeds the built-in templates
func NewEngine(store *metrics.Store, calculator *kpi.Calculator, analyzer *trends.Analyzer, generator *insights.Generator, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		calculator: calculator,
		analyzer:   analyzer,
		generator:  generator,
		logger:     logging.NewNoOp(),
		printer:    message.NewPrinter(language.English),
		templates:  make(map[string]ReportTemplate),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, template := range BuiltinTemplates() {
		e.templates[template.TemplateID] = template
	}
	return e
}

// RegisterTemplate stores or overwrites a template
func (e *Engine) RegisterTemplate(template ReportTemplate) error {
	if err := template.Validate(); err != nil {
		return apperrors.NewValidation("reporting", err.Error())
	}
	e.mu.Lock()
	e.templates[template.TemplateID] = template
	e.mu.Unlock()
	return nil
}

// Template returns a registered template
func (e *Engine) Template(templateID string) (ReportTemplate, error) {
	e.mu.RLock()
	template, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return ReportTemplate{}, apperrors.NewNotFound("reporting", "report template", templateID)
	}
	return template, nil
}

// TemplateIDs lists registered template ids, sorted
func (e *Engine) TemplateIDs() []string {
	e.mu.RLock()
	ids := make([]string, 0, len(e.templates))
	for id := range e.templates {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// LoadTemplateFile reads one YAML file holding a list of templates and
// registers each of them
func (e *Engine) LoadTemplateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeValidation, "reporting",
			fmt.Sprintf("cannot read template file %s", path), err)
	}
	return e.LoadTemplates(data)
}

// LoadTemplateDir registers every .yaml / .yml file in a directory
func (e *Engine) LoadTemplateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeValidation, "reporting",
			fmt.Sprintf("cannot read template dir %s", dir), err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := e.LoadTemplateFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// LoadTemplates parses YAML template definitions and registers them
func (e *Engine) LoadTemplates(data []byte) error {
	var parsed struct {
		Templates []ReportTemplate `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeValidation, "reporting",
			"invalid template yaml", err)
	}
	for _, template := range parsed.Templates {
		if err := e.RegisterTemplate(template); err != nil {
			return err
		}
	}
	return nil
}

// Generate fills every section of the named template over the range
func (e *Engine) Generate(ctx context.Context, templateID string, tr types.TimeRange) (Report, error) {
	template, err := e.Template(templateID)
	if err != nil {
		return Report{}, err
	}
	if err := tr.Validate(); err != nil {
		return Report{}, apperrors.NewValidation("reporting", err.Error())
	}

	report := Report{
		ReportID:    "rpt_" + uuid.NewString(),
		TemplateID:  template.TemplateID,
		Name:        template.Name,
		Audience:    template.Audience,
		Range:       tr,
		GeneratedAt: time.Now().UTC(),
	}
	for _, spec := range template.Sections {
		section, err := e.fillSection(ctx, spec, tr)
		if err != nil {
			return Report{}, err
		}
		report.Sections = append(report.Sections, section)
	}
	e.logger.DebugContext(ctx, "report generated",
		"template_id", templateID, "sections", len(report.Sections))
	return report, nil
}

// fillSection dispatches on the closed section kind
func (e *Engine) fillSection(ctx context.Context, spec SectionSpec, tr types.TimeRange) (ReportSection, error) {
	switch spec.Kind {
	case SectionMetricSummary:
		return e.fillMetricSummary(ctx, spec, tr)
	case SectionKPIDashboard:
		return e.fillKPIDashboard(ctx, spec, tr)
	case SectionTrendOutlook:
		return e.fillTrendOutlook(ctx, spec, tr)
	case SectionInsightDigest:
		return e.fillInsightDigest(spec)
	case SectionMilestoneStatus:
		return e.fillMilestoneStatus(ctx, spec, tr)
	default:
		return ReportSection{}, apperrors.NewValidation("reporting",
			fmt.Sprintf("unknown section kind: %s", spec.Kind))
	}
}

func (e *Engine) fillMetricSummary(ctx context.Context, spec SectionSpec, tr types.TimeRange) (ReportSection, error) {
	metricIDs := spec.MetricIDs
	if len(metricIDs) == 0 {
		metricIDs = e.store.MetricIDs()
	}
	aggregates, err := e.store.Aggregate(ctx, metricIDs, tr, "", nil)
	if err != nil {
		return ReportSection{}, err
	}

	table := Table{Headers: []string{"Metric", "Value", "Samples", "Confidence"}}
	for _, aggregate := range aggregates {
		table.Rows = append(table.Rows, []string{
			aggregate.MetricID,
			e.printer.Sprintf("%.2f", aggregate.Value),
			e.printer.Sprintf("%d", aggregate.SampleCount),
			fmt.Sprintf("%.2f", aggregate.Confidence),
		})
	}
	return ReportSection{
		Kind:  spec.Kind,
		Title: spec.Title,
		Summary: e.printer.Sprintf("%d of %d metrics reported data in this window.",
			len(aggregates), len(metricIDs)),
		Table: table,
	}, nil
}

func (e *Engine) fillKPIDashboard(ctx context.Context, spec SectionSpec, tr types.TimeRange) (ReportSection, error) {
	dashboard, err := e.calculator.Dashboard(ctx, spec.KPIIDs, "", tr)
	if err != nil {
		return ReportSection{}, err
	}

	table := Table{Headers: []string{"KPI", "Value", "Status", "Trend"}}
	ids := make([]string, 0, len(dashboard.Calculations))
	for id := range dashboard.Calculations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		calc := dashboard.Calculations[id]
		table.Rows = append(table.Rows, []string{
			id,
			e.printer.Sprintf("%.2f", calc.Value),
			string(calc.Status),
			string(calc.Trend),
		})
	}
	return ReportSection{
		Kind:  spec.Kind,
		Title: spec.Title,
		Summary: e.printer.Sprintf("%d KPIs evaluated; %d critical, %d declining.",
			len(dashboard.Calculations),
			dashboard.StatusCounts[string(types.KPIStatusCritical)],
			dashboard.TrendCounts[string(types.TrendDeclining)]),
		Table: table,
	}, nil
}

func (e *Engine) fillTrendOutlook(ctx context.Context, spec SectionSpec, tr types.TimeRange) (ReportSection, error) {
	table := Table{Headers: []string{"Metric", "Primary Pattern", "Direction", "R-Squared", "Anomalies"}}
	analyzed := 0
	for _, metricID := range spec.MetricIDs {
		analysis, err := e.analyzer.Analyze(ctx, metricID, tr, types.GranularityHour)
		if err != nil {
			// Metrics without enough history are reported, not fatal.
			if apperrors.CodeOf(err) == apperrors.ErrorCodeInsufficientData ||
				apperrors.IsNotFound(err) {
				table.Rows = append(table.Rows, []string{metricID, "insufficient data", "", "", ""})
				continue
			}
			return ReportSection{}, err
		}
		analyzed++
		kind, direction, rsq := "none", "", ""
		if analysis.Primary != nil {
			kind = string(analysis.Primary.Kind)
			direction = string(analysis.Primary.Direction)
			rsq = fmt.Sprintf("%.3f", analysis.Primary.RSquared)
		}
		table.Rows = append(table.Rows, []string{
			metricID, kind, direction, rsq,
			e.printer.Sprintf("%d", len(analysis.Anomalies)),
		})
	}
	return ReportSection{
		Kind:    spec.Kind,
		Title:   spec.Title,
		Summary: e.printer.Sprintf("Trend analysis completed for %d of %d metrics.", analyzed, len(spec.MetricIDs)),
		Table:   table,
	}, nil
}

func (e *Engine) fillInsightDigest(spec SectionSpec) (ReportSection, error) {
	active := e.generator.Insights(types.InsightStatusActive, "")
	table := Table{Headers: []string{"Severity", "Category", "Title", "Created"}}
	critical := 0
	for _, insight := range active {
		if insight.Severity == types.SeverityCritical {
			critical++
		}
		table.Rows = append(table.Rows, []string{
			string(insight.Severity),
			string(insight.Category),
			insight.Title,
			insight.CreatedAt.Format(time.RFC3339),
		})
	}
	return ReportSection{
		Kind:    spec.Kind,
		Title:   spec.Title,
		Summary: e.printer.Sprintf("%d active insights, %d critical.", len(active), critical),
		Table:   table,
	}, nil
}

func (e *Engine) fillMilestoneStatus(ctx context.Context, spec SectionSpec, tr types.TimeRange) (ReportSection, error) {
	dashboard, err := e.calculator.Dashboard(ctx, spec.KPIIDs, types.KPICategoryMilestone, tr)
	if err != nil {
		return ReportSection{}, err
	}

	table := Table{Headers: []string{"Milestone", "Progress", "Status"}}
	ids := make([]string, 0, len(dashboard.Calculations))
	for id := range dashboard.Calculations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	completed := 0
	for _, id := range ids {
		calc := dashboard.Calculations[id]
		if calc.Value >= 100 {
			completed++
		}
		table.Rows = append(table.Rows, []string{
			id,
			fmt.Sprintf("%.1f%%", calc.Value),
			string(calc.Status),
		})
	}
	return ReportSection{
		Kind:    spec.Kind,
		Title:   spec.Title,
		Summary: e.printer.Sprintf("%d of %d grant milestones fully met.", completed, len(ids)),
		Table:   table,
	}, nil
}

// Render serializes the report in the requested format
func (e *Engine) Render(w io.Writer, report *Report, format Format) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, report)
	case FormatCSV:
		return renderCSV(w, report)
	case FormatHTML:
		return renderHTML(w, report)
	default:
		return apperrors.NewValidation("reporting", fmt.Sprintf("unknown report format: %s", format))
	}
}
