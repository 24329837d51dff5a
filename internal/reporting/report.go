// Package reporting assembles cross-role report templates into sections
// filled from the analytics services and serializes them to JSON, CSV, or
// HTML.
package reporting

import (
	"errors"
	"fmt"
	"time"

	"einvoice-analytics/pkg/types"
)

// SectionKind is the closed set of section fillers a template may reference
type SectionKind string

const (
	SectionMetricSummary   SectionKind = "metric_summary"
	SectionKPIDashboard    SectionKind = "kpi_dashboard"
	SectionTrendOutlook    SectionKind = "trend_outlook"
	SectionInsightDigest   SectionKind = "insight_digest"
	SectionMilestoneStatus SectionKind = "milestone_status"
)

// Valid returns true if the section kind is valid
func (sk SectionKind) Valid() bool {
	switch sk {
	case SectionMetricSummary, SectionKPIDashboard, SectionTrendOutlook,
		SectionInsightDigest, SectionMilestoneStatus:
		return true
	}
	return false
}

// Format selects the report serialization
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// Valid returns true if the format is valid
func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatCSV || f == FormatHTML
}

// SectionSpec configures one section inside a template
type SectionSpec struct {
	Kind      SectionKind `json:"kind" yaml:"kind"`
	Title     string      `json:"title" yaml:"title"`
	MetricIDs []string    `json:"metric_ids,omitempty" yaml:"metric_ids,omitempty"`
	KPIIDs    []string    `json:"kpi_ids,omitempty" yaml:"kpi_ids,omitempty"`
}

// ReportTemplate names an audience-facing report layout
type ReportTemplate struct {
	TemplateID  string        `json:"template_id" yaml:"template_id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Audience    types.Role    `json:"audience,omitempty" yaml:"audience,omitempty"`
	Sections    []SectionSpec `json:"sections" yaml:"sections"`
}

// Validate checks the template is usable
func (rt *ReportTemplate) Validate() error {
	if rt.TemplateID == "" {
		return errors.New("template id is required")
	}
	if len(rt.Sections) == 0 {
		return fmt.Errorf("template %s has no sections", rt.TemplateID)
	}
	for _, section := range rt.Sections {
		if !section.Kind.Valid() {
			return fmt.Errorf("template %s has invalid section kind %q", rt.TemplateID, section.Kind)
		}
	}
	return nil
}

// Table is the row-oriented payload of a section
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ReportSection is one filled section
type ReportSection struct {
	Kind    SectionKind `json:"kind"`
	Title   string      `json:"title"`
	Summary string      `json:"summary"`
	Table   Table       `json:"table"`
}

// Report is a fully assembled report ready for serialization
type Report struct {
	ReportID    string          `json:"report_id"`
	TemplateID  string          `json:"template_id"`
	Name        string          `json:"name"`
	Audience    types.Role      `json:"audience,omitempty"`
	Range       types.TimeRange `json:"range"`
	Sections    []ReportSection `json:"sections"`
	GeneratedAt time.Time       `json:"generated_at"`
}
