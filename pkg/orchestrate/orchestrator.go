package orchestrate

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/rgolusuTR/linkaudit/pkg/config"
	"github.com/rgolusuTR/linkaudit/pkg/fetch"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/storage"
	"github.com/rgolusuTR/linkaudit/pkg/validate"
)

// PageResult contains the result of auditing a single page
type PageResult struct {
	PageURL     string
	Success     bool
	Error       error
	RunID       string
	TotalLinks  int
	BrokenLinks int
	Duration    time.Duration
}

// AuditFunc runs a single page audit
type AuditFunc func(ctx context.Context, pageURL string) (*models.AuditReport, error)

// Options carries optional orchestrator collaborators
type Options struct {
	// Store persists each completed run when non-nil
	Store storage.RunStore

	// Audit replaces the default engine-backed audit
	Audit AuditFunc
}

// Orchestrator audits multiple pages in parallel with shared resources
type Orchestrator struct {
	appCfg *config.AppConfig
	log    *logrus.Entry
	pages  []string
	store  storage.RunStore
	audit  AuditFunc

	// Bounds concurrent page audits; per-probe concurrency is bounded
	// inside each engine run
	pageSlots *semaphore.Weighted

	results   []PageResult
	resultsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator for parallel page audits
func NewOrchestrator(appCfg *config.AppConfig, pages []string, log *logrus.Entry) *Orchestrator {
	return NewOrchestratorWithOptions(appCfg, pages, log, nil)
}

// NewOrchestratorWithOptions creates an orchestrator with injected collaborators
func NewOrchestratorWithOptions(appCfg *config.AppConfig, pages []string, log *logrus.Entry, opts *Options) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		appCfg:    appCfg,
		log:       log,
		pages:     pages,
		pageSlots: semaphore.NewWeighted(int64(appCfg.MaxParallelPages)),
		results:   make([]PageResult, 0, len(pages)),
		ctx:       ctx,
		cancel:    cancel,
	}
	if opts != nil {
		o.store = opts.Store
		o.audit = opts.Audit
	}
	if o.audit == nil {
		// All page engines share one HTTP client so connection pools and
		// keep-alives are reused across pages
		client := fetch.NewClient(appCfg.HTTPClientSettings, appCfg.MaxRedirects, log)
		o.audit = func(ctx context.Context, pageURL string) (*models.AuditReport, error) {
			engine := validate.New(appCfg, log.WithField("page", pageURL), validate.WithHTTPClient(client))
			return engine.Audit(ctx, pageURL)
		}
	}
	return o
}

// Run audits all pages in parallel and waits for completion
func (o *Orchestrator) Run() []PageResult {
	startTime := time.Now()
	o.log.Infof("Starting parallel audit of %d pages", len(o.pages))

	var wg sync.WaitGroup
	for _, pageURL := range o.pages {
		wg.Add(1)
		go func(page string) {
			defer wg.Done()
			result := o.auditPage(page)
			o.resultsMu.Lock()
			o.results = append(o.results, result)
			o.resultsMu.Unlock()
		}(pageURL)
	}
	wg.Wait()

	o.logSummary(time.Since(startTime))
	return o.results
}

// auditPage audits a single page, persisting the run when a store is set
func (o *Orchestrator) auditPage(pageURL string) PageResult {
	startTime := time.Now()
	result := PageResult{PageURL: pageURL}

	if err := o.pageSlots.Acquire(o.ctx, 1); err != nil {
		result.Error = err
		return result
	}
	defer o.pageSlots.Release(1)

	report, err := o.audit(o.ctx, pageURL)
	result.Duration = time.Since(startTime)
	if err != nil {
		result.Error = err
		o.log.Errorf("Audit failed for page '%s': %v", pageURL, err)
		return result
	}

	result.Success = true
	result.RunID = report.RunID
	result.TotalLinks = report.Stats.TotalLinks
	result.BrokenLinks = report.Stats.BrokenLinks

	if o.store != nil {
		if err := o.store.SaveRun(report); err != nil {
			o.log.Errorf("Failed to save run %s for page '%s': %v", report.RunID, pageURL, err)
		}
	}
	return result
}

// Cancel cancels all running audits
func (o *Orchestrator) Cancel() {
	o.log.Info("Cancelling all audits...")
	o.cancel()
}

// logSummary logs a summary of all page results
func (o *Orchestrator) logSummary(totalDuration time.Duration) {
	o.log.Infof("Parallel audit completed in %v", totalDuration.Round(time.Millisecond))

	var totalLinks, totalBroken int
	successCount := 0
	failCount := 0

	for _, r := range o.results {
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
			failCount++
		} else {
			successCount++
		}
		totalLinks += r.TotalLinks
		totalBroken += r.BrokenLinks

		o.log.Infof("  %s: %s - %d links (%d broken) in %v", r.PageURL, status, r.TotalLinks, r.BrokenLinks, r.Duration.Round(time.Millisecond))
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Infof("Total: %d pages (%d success, %d failed), %d links checked, %d broken",
		len(o.results), successCount, failCount, totalLinks, totalBroken)
}

// ValidatePageURLs checks that every page URL is absolute http(s)
func ValidatePageURLs(pages []string) error {
	if len(pages) == 0 {
		return fmt.Errorf("no page URLs provided")
	}
	for _, page := range pages {
		parsed, err := url.Parse(page)
		if err != nil {
			return fmt.Errorf("invalid page URL '%s': %w", page, err)
		}
		if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("invalid page URL '%s': must be absolute http(s)", page)
		}
	}
	return nil
}
