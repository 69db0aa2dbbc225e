package storage

import (
	"context"
	"time"

	"github.com/rgolusuTR/linkaudit/pkg/models"
)

// RunSummary is the compact listing entry kept alongside each stored run
type RunSummary struct {
	RunID        string    `json:"run_id"`
	PageURL      string    `json:"page_url"`
	StartedAt    time.Time `json:"started_at"`
	TotalLinks   int       `json:"total_links"`
	WorkingLinks int       `json:"working_links"`
	BrokenLinks  int       `json:"broken_links"`
}

// RunStore persists and retrieves completed audit runs
type RunStore interface {
	// SaveRun stores a completed report under its run ID
	SaveRun(report *models.AuditReport) error

	// GetRun retrieves a full report by run ID
	// Returns utils.ErrDatabase-wrapped errors; a missing ID yields (nil, nil)
	GetRun(runID string) (*models.AuditReport, error)

	// ListRuns returns summaries newest-first. pageURL filters to one page when
	// non-empty; limit <= 0 means no limit
	ListRuns(pageURL string, limit int) ([]RunSummary, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// AuditStore combines run persistence with lifecycle management
type AuditStore interface {
	RunStore
	StoreAdmin
}
