package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rgolusuTR/linkaudit/pkg/models"
)

// handleAuditPage handles the audit_page tool
func (s *Server) handleAuditPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageURL := request.GetString("url", "")
	if pageURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return mcp.NewToolResultError(fmt.Sprintf("invalid page URL: %q", pageURL)), nil
	}

	job, created := s.jobManager.CreateJob(pageURL)
	if !created {
		result := map[string]interface{}{
			"status":   "already_running",
			"message":  "An audit is already in progress for this page",
			"job_id":   job.ID,
			"page_url": job.PageURL,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runAuditJob(job)

	result := map[string]interface{}{
		"status":   "started",
		"message":  "Audit started successfully",
		"job_id":   job.ID,
		"page_url": pageURL,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runAuditJob runs one audit in the background and persists the outcome
func (s *Server) runAuditJob(job *Job) {
	s.jobManager.UpdateStatus(job.ID, JobStatusRunning, "")
	jobCtx := s.jobManager.GetContext(job.ID)

	progress := make(chan models.ProgressEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range progress {
			s.jobManager.UpdateProgress(job.ID, event.Current, event.Total)
		}
	}()

	report, err := s.audit(jobCtx, job.PageURL, progress)
	close(progress)
	<-done

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.jobManager.UpdateStatus(job.ID, JobStatusCancelled, "")
		} else {
			s.jobManager.UpdateStatus(job.ID, JobStatusFailed, err.Error())
		}
		return
	}

	s.jobManager.AttachReport(job.ID, report)
	s.jobManager.UpdateProgress(job.ID, report.Stats.TotalLinks, report.Stats.TotalLinks)

	if s.cfg.Store != nil {
		if err := s.cfg.Store.SaveRun(report); err != nil {
			s.log.Errorf("Failed to persist audit run '%s': %v", report.RunID, err)
		}
	}
	s.jobManager.UpdateStatus(job.ID, JobStatusCompleted, "")
}

// handleGetAuditStatus handles the get_audit_status tool
func (s *Server) handleGetAuditStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":        job.ID,
		"page_url":      job.PageURL,
		"status":        job.Status,
		"started_at":    job.StartedAt.Format(time.RFC3339),
		"links_checked": job.LinksChecked,
		"links_total":   job.LinksTotal,
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.RunID != "" {
		result["run_id"] = job.RunID
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetAuditReport handles the get_audit_report tool
func (s *Server) handleGetAuditReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	brokenOnly := request.GetBool("broken_only", false)

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	report := s.jobManager.GetReport(jobID)
	if report == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' has no report yet (status: %s)", jobID, job.Status)), nil
	}

	results := report.Results
	if brokenOnly {
		filtered := make([]models.ValidationResult, 0)
		for _, r := range results {
			if !r.IsWorking {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	result := map[string]interface{}{
		"run_id":       report.RunID,
		"page_url":     report.PageURL,
		"started_at":   report.StartedAt.Format(time.RFC3339),
		"completed_at": report.CompletedAt.Format(time.RFC3339),
		"stats":        report.Stats,
		"results":      results,
	}
	if brokenOnly {
		result["broken_only"] = true
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleListAudits handles the list_audits tool
func (s *Server) handleListAudits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.cfg.Store == nil {
		return mcp.NewToolResultError("audit history is not enabled"), nil
	}

	pageURL := request.GetString("page_url", "")
	maxResults := request.GetInt("max_results", 20)
	if maxResults <= 0 {
		maxResults = 20
	}
	if maxResults > 100 {
		maxResults = 100
	}

	runs, err := s.cfg.Store.ListRuns(pageURL, maxResults)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list audit runs: %v", err)), nil
	}

	result := map[string]interface{}{
		"runs":       runs,
		"total_runs": len(runs),
	}
	if pageURL != "" {
		result["page_url"] = pageURL
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelAudit handles the cancel_audit tool
func (s *Server) handleCancelAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	if !s.jobManager.CancelJob(jobID) {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' is not active", jobID)), nil
	}
	result := map[string]interface{}{
		"status": "cancelled",
		"job_id": jobID,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
