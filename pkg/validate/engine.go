package validate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/config"
	"github.com/rgolusuTR/linkaudit/pkg/extract"
	"github.com/rgolusuTR/linkaudit/pkg/fetch"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/probe"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

// Engine audits a single page: it fetches the document, extracts link
// candidates, runs the two validation waves, and reduces the merged results
// into an AuditReport. One Engine may serve many runs; per-run state lives in
// the orchestrator created inside Audit.
type Engine struct {
	cfg       *config.AppConfig
	log       *logrus.Entry
	client    *http.Client
	extractor *extract.Extractor

	head  probe.Prober
	get   probe.Prober
	relay probe.Prober
	frame probe.Prober

	hosts    *fetch.HostSemaphorePool
	progress chan<- models.ProgressEvent

	sandboxFactory probe.SandboxFactory
}

// Option adjusts an Engine at construction time.
type Option func(*Engine)

// WithProgress streams a ProgressEvent after each settled batch. Sends are
// non-blocking; slow consumers miss events rather than stalling the run.
func WithProgress(ch chan<- models.ProgressEvent) Option {
	return func(e *Engine) { e.progress = ch }
}

// WithSandboxFactory replaces the default relay-tier sandbox backing the
// second wave.
func WithSandboxFactory(factory probe.SandboxFactory) Option {
	return func(e *Engine) { e.sandboxFactory = factory }
}

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.client = client }
}

// New builds an Engine from a validated config.
func New(cfg *config.AppConfig, log *logrus.Entry, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		log:       log,
		extractor: extract.NewExtractor(cfg.AnchorTextMaxLen, log),
		hosts:     fetch.NewHostSemaphorePool(cfg.MaxPerHost, log),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.client == nil {
		e.client = fetch.NewClient(cfg.HTTPClientSettings, cfg.MaxRedirects, log)
	}

	var robots *fetch.RobotsGate
	if cfg.RespectRobots {
		robots = fetch.NewRobotsGate(e.client, cfg.UserAgent, log)
	}
	directOpts := probe.DirectOptions{
		Client:       e.client,
		Timeout:      cfg.DirectTimeout,
		MaxRedirects: cfg.MaxRedirects,
		UserAgent:    cfg.UserAgent,
		DelayPerHost: cfg.DelayPerHost,
		Limiter:      fetch.NewRateLimiter(cfg.DelayPerHost, log),
		Robots:       robots,
	}
	e.head = probe.NewDirectHeadProbe(directOpts, log)
	e.get = probe.NewDirectGetProbe(directOpts, log)
	e.relay = probe.NewRelayProbe(e.client, cfg.RelayEndpoints, cfg.RelayTimeout, cfg.UserAgent, log)

	if e.sandboxFactory == nil {
		e.sandboxFactory = probe.NewRelaySandboxFactory(e.client, cfg.FrameRelayEndpoints, cfg.UserAgent, log)
	}
	e.frame = probe.NewFrameProbe(e.sandboxFactory, cfg.FrameTimeout, log)

	return e
}

// Audit validates every link on pageURL and returns the full report.
func (e *Engine) Audit(ctx context.Context, pageURL string) (*models.AuditReport, error) {
	started := time.Now().UTC()
	runLog := e.log.WithFields(logrus.Fields{"page": pageURL})

	doc, err := e.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	cands := e.extractor.Extract(doc, pageURL)
	runLog.WithField("candidates", len(cands)).Info("Extracted link candidates")

	merged := e.validateAll(ctx, cands)

	results := make([]models.ValidationResult, len(merged))
	for i, r := range merged {
		results[i] = *r
	}

	report := &models.AuditReport{
		RunID:       uuid.NewString(),
		PageURL:     pageURL,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		Results:     results,
		Stats:       models.ComputeStatistics(results),
	}
	runLog.WithFields(logrus.Fields{
		"run_id":  report.RunID,
		"total":   report.Stats.TotalLinks,
		"working": report.Stats.WorkingLinks,
		"broken":  report.Stats.BrokenLinks,
	}).Info("Audit complete")
	return report, nil
}

// validateAll runs both waves over the extracted candidates and merges them.
func (e *Engine) validateAll(ctx context.Context, cands []models.LinkCandidate) []*models.ValidationResult {
	orch := NewOrchestrator(e.head, e.get, e.relay, e.cfg.MaxRetries, e.cfg.BackoffBase, e.log)
	first := NewScheduler(SchedulerOptions{
		BatchSize:     e.cfg.BatchSize,
		BatchPause:    e.cfg.BatchPause,
		MaxConcurrent: e.cfg.MaxConcurrent,
		Hosts:         e.hosts,
		Progress:      e.progress,
	}, e.log).Run(ctx, cands, orch.Validate)

	frameCands := FrameWaveCandidates(first)
	if len(frameCands) == 0 || e.frame == nil {
		return first
	}
	e.log.WithField("candidates", len(frameCands)).Info("Starting sandboxed-frame wave")

	baseRetries := make(map[string]int, len(first))
	for _, r := range first {
		if !r.IsWorking && !r.IsInternal {
			baseRetries[mergeKey(r.URL)] = r.RetryCount
		}
	}
	second := NewScheduler(SchedulerOptions{
		BatchSize:     e.cfg.FrameBatchSize,
		BatchPause:    e.cfg.BatchPause,
		MaxConcurrent: e.cfg.MaxConcurrent,
		Hosts:         e.hosts,
		Progress:      e.progress,
		Strategy:      models.StrategyFrame,
	}, e.log).Run(ctx, frameCands, FrameValidator(e.frame, baseRetries, e.cfg.MaxRetries))

	return Merge(first, second)
}

// fetchPage downloads and parses the page under audit.
func (e *Engine) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch page %s: %w: status %d", pageURL, utils.ErrHTTPStatus, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", pageURL, err)
	}
	return doc, nil
}
