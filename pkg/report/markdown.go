// Package report renders audit reports into the configured output formats:
// markdown, standalone HTML, XLSX workbooks, and raw JSON.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/rgolusuTR/linkaudit/pkg/config"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

// Writer persists rendered reports under one output directory.
type Writer struct {
	outputDir string
	formats   []string
	log       *logrus.Entry
}

// NewWriter creates a Writer from report configuration. Unset fields fall
// back to ./reports and markdown-only output.
func NewWriter(cfg config.ReportConfig, log *logrus.Entry) *Writer {
	dir := cfg.OutputDir
	if dir == "" {
		dir = "reports"
	}
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []string{"markdown"}
	}
	return &Writer{outputDir: dir, formats: formats, log: log}
}

// Write renders the report in every configured format and returns the paths
// written. Formats render independently; the first failure aborts the rest.
func (w *Writer) Write(report *models.AuditReport) ([]string, error) {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory '%s': %w", w.outputDir, err)
	}

	base := baseName(report)
	var written []string
	for _, format := range w.formats {
		var (
			path string
			err  error
		)
		switch strings.ToLower(format) {
		case "markdown", "md":
			path = filepath.Join(w.outputDir, base+".md")
			err = os.WriteFile(path, []byte(Markdown(report)), 0o644)
		case "html":
			path = filepath.Join(w.outputDir, base+".html")
			var html []byte
			if html, err = RenderHTML(report); err == nil {
				err = os.WriteFile(path, html, 0o644)
			}
		case "xlsx", "excel":
			path = filepath.Join(w.outputDir, base+".xlsx")
			err = WriteExcel(path, report)
		case "json":
			path = filepath.Join(w.outputDir, base+".json")
			var raw []byte
			if raw, err = json.MarshalIndent(report, "", "  "); err == nil {
				err = os.WriteFile(path, raw, 0o644)
			}
		default:
			w.log.Warnf("Unknown report format '%s', skipping", format)
			continue
		}
		if err != nil {
			return written, fmt.Errorf("write %s report: %w", format, err)
		}
		w.log.WithField("path", path).Info("Report written")
		written = append(written, path)
	}
	return written, nil
}

// baseName derives a filesystem-safe report name from the audited page and
// the run timestamp.
func baseName(report *models.AuditReport) string {
	name := report.PageURL
	if u, err := url.Parse(report.PageURL); err == nil && u.Host != "" {
		name = u.Host + u.Path
	}
	stamp := report.StartedAt.Format("20060102-150405")
	return utils.SanitizeFilename(name) + "-" + stamp
}

// Markdown renders the full audit as a GFM document.
func Markdown(report *models.AuditReport) string {
	var b strings.Builder
	stats := report.Stats

	fmt.Fprintf(&b, "# Link Audit: %s\n\n", report.PageURL)
	fmt.Fprintf(&b, "Run `%s`, started %s, finished %s.\n\n",
		report.RunID,
		report.StartedAt.Format("2006-01-02 15:04:05 MST"),
		report.CompletedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total links | %d |\n", stats.TotalLinks)
	fmt.Fprintf(&b, "| Working | %d |\n", stats.WorkingLinks)
	fmt.Fprintf(&b, "| Broken | %d |\n", stats.BrokenLinks)
	fmt.Fprintf(&b, "| Internal / External | %d / %d |\n", stats.InternalLinks, stats.ExternalLinks)
	fmt.Fprintf(&b, "| Redirected | %d |\n", stats.RedirectCount)
	fmt.Fprintf(&b, "| Timeouts | %d |\n", stats.TimeoutCount)
	fmt.Fprintf(&b, "| CORS handled | %d |\n", stats.CORSHandledCount)
	fmt.Fprintf(&b, "| Avg response time | %d ms |\n\n", stats.AvgResponseTimeMs)

	if len(stats.MethodBreakdown) > 0 {
		b.WriteString("## Validation methods\n\n| Method | Count |\n|---|---|\n")
		for _, method := range sortedMethodKeys(stats.MethodBreakdown) {
			fmt.Fprintf(&b, "| %s | %d |\n", method, stats.MethodBreakdown[method])
		}
		b.WriteString("\n")
	}

	if len(stats.ErrorKindBreakdown) > 0 {
		b.WriteString("## Failure kinds\n\n| Kind | Count |\n|---|---|\n")
		for _, kind := range sortedKindKeys(stats.ErrorKindBreakdown) {
			fmt.Fprintf(&b, "| %s | %d |\n", kind, stats.ErrorKindBreakdown[kind])
		}
		b.WriteString("\n")
	}

	brokenResults := brokenOf(report.Results)
	if len(brokenResults) > 0 {
		b.WriteString("## Broken links\n\n")
		b.WriteString("| URL | Anchor | Status | Kind | Error |\n|---|---|---|---|---|\n")
		for _, r := range brokenResults {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				r.URL, cell(r.AnchorText), statusCell(r.StatusCode), r.ErrorKind, cell(r.ErrorMessage))
		}
		b.WriteString("\n")
	}

	b.WriteString("## All links\n\n")
	b.WriteString("| URL | Anchor | Role | Internal | Status | Method | Retries | Time (ms) |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, r := range report.Results {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %d | %d |\n",
			r.URL, cell(r.AnchorText), r.Role, yesNo(r.IsInternal),
			resultStatus(r), r.Method, r.RetryCount, r.ResponseTimeMs)
	}
	return b.String()
}

// RenderHTML converts the markdown rendering into a standalone HTML document.
func RenderHTML(report *models.AuditReport) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(report)), &body); err != nil {
		return nil, fmt.Errorf("render HTML report: %w", err)
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Link Audit: %s</title>\n</head>\n<body>\n", report.PageURL)
	page.Write(body.Bytes())
	page.WriteString("\n</body>\n</html>\n")
	return page.Bytes(), nil
}

func brokenOf(results []models.ValidationResult) []models.ValidationResult {
	var out []models.ValidationResult
	for _, r := range results {
		if !r.IsWorking {
			out = append(out, r)
		}
	}
	return out
}

// cell escapes pipe characters so free text cannot break table rows
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func statusCell(status int) string {
	if status == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", status)
}

func resultStatus(r models.ValidationResult) string {
	if r.IsWorking {
		return fmt.Sprintf("OK (%s)", statusCell(r.StatusCode))
	}
	return fmt.Sprintf("BROKEN (%s)", statusCell(r.StatusCode))
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func sortedMethodKeys(m map[models.Method]int) []models.Method {
	keys := make([]models.Method, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedKindKeys(m map[models.ErrorKind]int) []models.ErrorKind {
	keys := make([]models.ErrorKind, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
