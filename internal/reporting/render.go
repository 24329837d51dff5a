package reporting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	apperrors "einvoice-analytics/internal/errors"
)

func renderJSON(w io.Writer, report *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeInternal, "reporting", "json render failed", err)
	}
	return nil
}

// renderCSV writes one header row per section followed by its table. Sections
// are separated by a blank row.
func renderCSV(w io.Writer, report *Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	rows := [][]string{
		{"report_id", report.ReportID},
		{"template", report.TemplateID},
		{"generated_at", report.GeneratedAt.Format(time.RFC3339)},
	}
	for _, section := range report.Sections {
		rows = append(rows, nil)
		rows = append(rows, []string{"section", string(section.Kind), section.Title})
		rows = append(rows, section.Table.Headers)
		rows = append(rows, section.Table.Rows...)
	}
	for _, row := range rows {
		if row == nil {
			row = []string{""}
		}
		if err := writer.Write(row); err != nil {
			return apperrors.Wrap(apperrors.ErrorCodeInternal, "reporting", "csv render failed", err)
		}
	}
	return nil
}

var htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))

// renderHTML builds a markdown document from the report and converts it with
// goldmark's table extension
func renderHTML(w io.Writer, report *Report) error {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", report.Name)
	fmt.Fprintf(&md, "Generated %s for %s to %s.\n\n",
		report.GeneratedAt.Format(time.RFC3339),
		report.Range.Start.Format(time.RFC3339),
		report.Range.End.Format(time.RFC3339))

	for _, section := range report.Sections {
		fmt.Fprintf(&md, "## %s\n\n", section.Title)
		if section.Summary != "" {
			fmt.Fprintf(&md, "%s\n\n", section.Summary)
		}
		writeMarkdownTable(&md, &section.Table)
		md.WriteString("\n")
	}

	if err := htmlRenderer.Convert([]byte(md.String()), w); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeInternal, "reporting", "html render failed", err)
	}
	return nil
}

func writeMarkdownTable(md *strings.Builder, table *Table) {
	if len(table.Headers) == 0 {
		return
	}
	md.WriteString("| " + strings.Join(table.Headers, " | ") + " |\n")
	md.WriteString("|" + strings.Repeat(" --- |", len(table.Headers)) + "\n")
	for _, row := range table.Rows {
		cells := make([]string, len(table.Headers))
		for i := range cells {
			if i < len(row) {
				cells[i] = strings.ReplaceAll(row[i], "|", "\\|")
			}
		}
		md.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}
