package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/config"
	"github.com/rgolusuTR/linkaudit/pkg/orchestrate"
	"github.com/rgolusuTR/linkaudit/pkg/storage"
)

// Scheduler re-audits a set of pages on a fixed interval
type Scheduler struct {
	appCfg       *config.AppConfig
	pages        []string
	interval     time.Duration
	log          *logrus.Entry
	stateManager *StateManager

	// Optional collaborators passed through to each audit batch
	store storage.RunStore
	audit orchestrate.AuditFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new watch scheduler
func NewScheduler(appCfg *config.AppConfig, pages []string, interval time.Duration, log *logrus.Entry) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		appCfg:       appCfg,
		pages:        pages,
		interval:     interval,
		log:          log,
		stateManager: NewStateManager(appCfg.StateDir),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetStore makes each batch persist completed runs to the given store
func (s *Scheduler) SetStore(store storage.RunStore) {
	s.store = store
}

// SetAuditFunc replaces the engine-backed audit for each batch
func (s *Scheduler) SetAuditFunc(fn orchestrate.AuditFunc) {
	s.audit = fn
}

// Run starts the watch scheduler and blocks until stopped
func (s *Scheduler) Run() error {
	// Load existing state
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d pages with interval %v", len(s.pages), s.interval)
	s.logSchedule()

	// Run initial audits for pages that need them
	s.runDuePages()

	// Start the ticker for periodic checks
	ticker := time.NewTicker(s.calculateTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runDuePages()
		}
	}
}

// Stop stops the watch scheduler
func (s *Scheduler) Stop() {
	s.log.Info("Stopping watch scheduler...")
	s.cancel()
}

// runDuePages audits all pages that are due
func (s *Scheduler) runDuePages() {
	duePages := s.getDuePages()
	if len(duePages) == 0 {
		s.logNextRun()
		return
	}

	s.log.Infof("Auditing %d due pages: %v", len(duePages), duePages)

	orch := orchestrate.NewOrchestratorWithOptions(s.appCfg, duePages, s.log, &orchestrate.Options{
		Store: s.store,
		Audit: s.audit,
	})

	// Run in a goroutine so we can handle shutdown
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		done := make(chan struct{})
		go func() {
			select {
			case <-s.ctx.Done():
				orch.Cancel()
			case <-done:
			}
		}()

		results := orch.Run()
		close(done)

		// Update state for each page
		for _, result := range results {
			errorMsg := ""
			if result.Error != nil {
				errorMsg = result.Error.Error()
			}
			s.stateManager.UpdatePageState(result.PageURL, result.Success, result.RunID, result.TotalLinks, result.BrokenLinks, errorMsg)
		}

		// Save state
		if err := s.stateManager.Save(); err != nil {
			s.log.Errorf("Failed to save watch state: %v", err)
		}

		s.logNextRun()
	}()
}

// getDuePages returns pages that are due for a re-audit
func (s *Scheduler) getDuePages() []string {
	var due []string
	for _, pageURL := range s.pages {
		if s.stateManager.ShouldRun(pageURL, s.interval) {
			due = append(due, pageURL)
		}
	}
	return due
}

// calculateTickInterval returns how often to check for due pages
func (s *Scheduler) calculateTickInterval() time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := s.interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logSchedule logs the current schedule
func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, pageURL := range s.pages {
		state, exists := s.stateManager.GetPageState(pageURL)
		if exists {
			nextRun := s.stateManager.GetNextRunTime(pageURL, s.interval)
			status := "success"
			if !state.LastRunSuccess {
				status = "failed"
			}
			s.log.Infof("  %s: last audit %v (%s, %d links, %d broken), next audit %v",
				pageURL,
				state.LastRunTime.Format(time.RFC3339),
				status,
				state.TotalLinks,
				state.BrokenLinks,
				nextRun.Format(time.RFC3339))
		} else {
			s.log.Infof("  %s: never audited, will run immediately", pageURL)
		}
	}
}

// logNextRun logs when the next audit will occur
func (s *Scheduler) logNextRun() {
	var nextRuns []struct {
		page string
		time time.Time
	}

	for _, pageURL := range s.pages {
		nextRun := s.stateManager.GetNextRunTime(pageURL, s.interval)
		nextRuns = append(nextRuns, struct {
			page string
			time time.Time
		}{pageURL, nextRun})
	}

	// Sort by next run time
	sort.Slice(nextRuns, func(i, j int) bool {
		return nextRuns[i].time.Before(nextRuns[j].time)
	})

	if len(nextRuns) > 0 {
		next := nextRuns[0]
		until := time.Until(next.time)
		if until < 0 {
			until = 0
		}
		s.log.Infof("Next audit: %s in %v (at %s)", next.page, until.Round(time.Second), next.time.Format("15:04:05"))
	}
}

// GetStatus returns the current status of all watched pages
func (s *Scheduler) GetStatus() map[string]PageStatus {
	status := make(map[string]PageStatus)

	for _, pageURL := range s.pages {
		state, exists := s.stateManager.GetPageState(pageURL)
		nextRun := s.stateManager.GetNextRunTime(pageURL, s.interval)

		status[pageURL] = PageStatus{
			PageURL:        pageURL,
			LastRunTime:    state.LastRunTime,
			LastRunSuccess: state.LastRunSuccess,
			TotalLinks:     state.TotalLinks,
			BrokenLinks:    state.BrokenLinks,
			ErrorMessage:   state.ErrorMessage,
			NextRunTime:    nextRun,
			NeverRun:       !exists,
		}
	}

	return status
}

// PageStatus contains the status of a watched page
type PageStatus struct {
	PageURL        string
	LastRunTime    time.Time
	LastRunSuccess bool
	TotalLinks     int
	BrokenLinks    int
	ErrorMessage   string
	NextRunTime    time.Time
	NeverRun       bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	// Try standard parsing first
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// Check for day suffix
	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
