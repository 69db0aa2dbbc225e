package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/resolve"
)

// JobStatus represents the current state of an audit job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a background page audit
type Job struct {
	ID            string    `json:"id"`
	PageURL       string    `json:"page_url"`
	Status        JobStatus `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
	LinksChecked  int       `json:"links_checked"`
	LinksTotal    int       `json:"links_total"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	RunID         string    `json:"run_id,omitempty"` // Set once the audit completes

	report *models.AuditReport

	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager manages background audit jobs, at most one active per page
type JobManager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	byPage map[string]string // normalized page URL -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*Job),
		byPage: make(map[string]string),
	}
}

func pageKey(pageURL string) string {
	if key := resolve.Normalize(pageURL); key != "" {
		return key
	}
	return pageURL
}

// CreateJob creates a job for a page, or returns the active one if an audit
// of the same page is already pending or running
func (m *JobManager) CreateJob(pageURL string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pageKey(pageURL)
	if existingID, exists := m.byPage[key]; exists {
		existing := m.jobs[existingID]
		if existing != nil && (existing.Status == JobStatusPending || existing.Status == JobStatusRunning) {
			return existing, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.New().String(),
		PageURL:   pageURL,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[job.ID] = job
	m.byPage[key] = job.ID
	return job, true
}

// GetJob retrieves a job by ID
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[jobID]
}

// IsRunning checks if an audit is currently active for a page
func (m *JobManager) IsRunning(pageURL string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, exists := m.byPage[pageKey(pageURL)]; exists {
		job := m.jobs[jobID]
		return job != nil && (job.Status == JobStatusPending || job.Status == JobStatusRunning)
	}
	return false
}

// UpdateStatus updates the status of a job. Terminal statuses release the
// page slot so a new audit of the same page can start.
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}
	job.Status = status
	if status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled {
		job.CompletedAt = time.Now()
		delete(m.byPage, pageKey(job.PageURL))
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// UpdateProgress updates the link counters of a job
func (m *JobManager) UpdateProgress(jobID string, checked, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.LinksChecked = checked
		job.LinksTotal = total
	}
}

// AttachReport stores the completed report on the job
func (m *JobManager) AttachReport(jobID string, report *models.AuditReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.report = report
		job.RunID = report.RunID
	}
}

// GetReport returns the completed report for a job, if any
func (m *JobManager) GetReport(jobID string) *models.AuditReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.report
	}
	return nil
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		if job.Status == JobStatusPending || job.Status == JobStatusRunning {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
			delete(m.byPage, pageKey(job.PageURL))
			return true
		}
	}
	return false
}

// CancelAll cancels every active job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Status == JobStatusPending || job.Status == JobStatusRunning {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byPage = make(map[string]string)
}

// ListJobs returns all known jobs
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// GetContext returns the cancellation context for a job
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
