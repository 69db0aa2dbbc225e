package validate

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/rgolusuTR/linkaudit/pkg/fetch"
	"github.com/rgolusuTR/linkaudit/pkg/models"
)

// ValidateFunc settles one candidate. It must always return a result.
type ValidateFunc func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult

// SchedulerOptions bound and pace a scheduler run.
type SchedulerOptions struct {
	BatchSize     int
	BatchPause    time.Duration // Pacing delay between batches
	MaxConcurrent int           // Global in-flight bound across batches and waves
	Hosts         *fetch.HostSemaphorePool
	Progress      chan<- models.ProgressEvent // Optional; sends never block
	Strategy      models.Strategy             // Fixed label on progress events; empty means the last settled result's strategy
}

// Scheduler fans candidates out in fixed-size batches. A batch settles in
// full before the next one starts, and every submitted candidate yields
// exactly one result, panics and cancellation included.
type Scheduler struct {
	opts SchedulerOptions
	sem  *semaphore.Weighted
	log  *logrus.Entry
}

// NewScheduler creates a scheduler. MaxConcurrent may be shared across waves
// by passing the same options value; the semaphore is per-scheduler.
func NewScheduler(opts SchedulerOptions, log *logrus.Entry) *Scheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 4
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	return &Scheduler{
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		log:  log,
	}
}

// Run settles every candidate and returns results in submission order.
func (s *Scheduler) Run(ctx context.Context, cands []models.LinkCandidate, validate ValidateFunc) []*models.ValidationResult {
	results := make([]*models.ValidationResult, len(cands))
	total := len(cands)
	settled := 0

	for start := 0; start < total; start += s.opts.BatchSize {
		if ctx.Err() != nil {
			s.fillCancelled(results, start, cands)
			settled = total
			s.emitProgress(settled, total, "", "")
			break
		}

		end := start + s.opts.BatchSize
		if end > total {
			end = total
		}
		batch := cands[start:end]

		var wg sync.WaitGroup
		for i, cand := range batch {
			wg.Add(1)
			go func(slot int, cand models.LinkCandidate) {
				defer wg.Done()
				results[slot] = s.settle(ctx, cand, validate)
			}(start+i, cand)
		}
		wg.Wait()

		settled = end
		s.emitProgress(settled, total, batch[len(batch)-1].URL, results[end-1].StrategyUsed)

		if end < total && s.opts.BatchPause > 0 {
			s.pause(ctx)
		}
	}
	return results
}

// settle runs one candidate under the global and per-host bounds, converting
// panics and cancellation into broken results so the batch always completes.
func (s *Scheduler) settle(ctx context.Context, cand models.LinkCandidate, validate ValidateFunc) (result *models.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("url", cand.URL).Errorf("Validation panicked: %v", r)
			result = brokenResult(cand, models.KindUnknown, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return brokenResult(cand, models.KindTimeout, "cancelled while waiting for a probe slot")
	}
	defer s.sem.Release(1)

	if s.opts.Hosts != nil {
		if host := hostOf(cand.URL); host != "" {
			if err := s.opts.Hosts.Acquire(ctx, host); err != nil {
				return brokenResult(cand, models.KindTimeout, "cancelled while waiting for a host slot")
			}
			defer s.opts.Hosts.Release(host)
		}
	}

	result = validate(ctx, cand)
	if result == nil {
		result = brokenResult(cand, models.KindUnknown, "validator returned no result")
	}
	return result
}

func (s *Scheduler) pause(ctx context.Context) {
	timer := time.NewTimer(s.opts.BatchPause)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// fillCancelled settles every not-yet-started candidate as broken after the
// run context ends.
func (s *Scheduler) fillCancelled(results []*models.ValidationResult, from int, cands []models.LinkCandidate) {
	for i := from; i < len(cands); i++ {
		if results[i] == nil {
			results[i] = brokenResult(cands[i], models.KindTimeout, "validation run cancelled")
		}
	}
}

func (s *Scheduler) emitProgress(current, total int, lastURL string, lastStrategy models.Strategy) {
	if s.opts.Progress == nil {
		return
	}
	strategy := s.opts.Strategy
	if strategy == "" {
		strategy = lastStrategy
	}
	event := models.ProgressEvent{
		Current:  current,
		Total:    total,
		URL:      lastURL,
		Strategy: strategy,
	}
	select {
	case s.opts.Progress <- event:
	default:
		// Slow consumers never stall validation
	}
}

func brokenResult(cand models.LinkCandidate, kind models.ErrorKind, msg string) *models.ValidationResult {
	return &models.ValidationResult{
		URL:          cand.URL,
		AnchorText:   cand.AnchorText,
		IsInternal:   cand.IsInternal,
		Role:         cand.Role,
		IsWorking:    false,
		ErrorKind:    kind,
		ErrorMessage: msg,
		Method:       models.MethodDirect,
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
