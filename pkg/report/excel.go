package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/rgolusuTR/linkaudit/pkg/models"
)

const (
	sheetSummary = "Summary"
	sheetLinks   = "Links"
	sheetBroken  = "Broken"
)

// WriteExcel renders the report as an XLSX workbook with summary, full-result,
// and broken-only sheets.
func WriteExcel(path string, report *models.AuditReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("excel report: %w", err)
	}
	if err := writeSummarySheet(f, report); err != nil {
		return err
	}
	if err := writeLinksSheet(f, sheetLinks, report.Results); err != nil {
		return err
	}
	if err := writeLinksSheet(f, sheetBroken, brokenOf(report.Results)); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save excel report '%s': %w", path, err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, report *models.AuditReport) error {
	stats := report.Stats
	rows := [][]interface{}{
		{"Page", report.PageURL},
		{"Run ID", report.RunID},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Completed", report.CompletedAt.Format("2006-01-02 15:04:05 MST")},
		{},
		{"Total links", stats.TotalLinks},
		{"Working", stats.WorkingLinks},
		{"Broken", stats.BrokenLinks},
		{"Internal", stats.InternalLinks},
		{"External", stats.ExternalLinks},
		{"Redirected", stats.RedirectCount},
		{"Timeouts", stats.TimeoutCount},
		{"CORS handled", stats.CORSHandledCount},
		{"Avg response time (ms)", stats.AvgResponseTimeMs},
	}
	for _, method := range sortedMethodKeys(stats.MethodBreakdown) {
		rows = append(rows, []interface{}{"Method: " + string(method), stats.MethodBreakdown[method]})
	}
	for _, kind := range sortedKindKeys(stats.ErrorKindBreakdown) {
		rows = append(rows, []interface{}{"Failures: " + string(kind), stats.ErrorKindBreakdown[kind]})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("excel summary sheet: %w", err)
		}
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return fmt.Errorf("excel summary sheet: %w", err)
		}
	}
	return f.SetColWidth(sheetSummary, "A", "A", 28)
}

var linkHeader = []interface{}{
	"URL", "Anchor text", "Role", "Internal", "Working", "Status",
	"Final URL", "Method", "Strategy", "Retries", "Response (ms)", "Error kind", "Error",
}

func writeLinksSheet(f *excelize.File, sheet string, results []models.ValidationResult) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("excel sheet '%s': %w", sheet, err)
	}
	if err := f.SetSheetRow(sheet, "A1", &linkHeader); err != nil {
		return fmt.Errorf("excel sheet '%s': %w", sheet, err)
	}

	for i, r := range results {
		row := []interface{}{
			r.URL, r.AnchorText, string(r.Role), r.IsInternal, r.IsWorking, r.StatusCode,
			r.FinalURL, string(r.Method), string(r.StrategyUsed), r.RetryCount,
			r.ResponseTimeMs, string(r.ErrorKind), r.ErrorMessage,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("excel sheet '%s': %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("excel sheet '%s': %w", sheet, err)
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 50); err != nil {
		return fmt.Errorf("excel sheet '%s': %w", sheet, err)
	}
	return f.SetColWidth(sheet, "B", "B", 30)
}
