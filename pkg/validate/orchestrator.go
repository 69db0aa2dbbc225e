// Package validate drives link candidates through the escalation ladder of
// transport strategies and reconciles the outcomes of the two validation
// waves into per-URL results.
package validate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/probe"
	"github.com/rgolusuTR/linkaudit/pkg/resolve"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

// Orchestrator runs one candidate through the strategy ladder:
// direct HEAD, then direct GET, then (external candidates only) the relay
// tier. Escalation stops early when an origin answers with a status that a
// stronger strategy would only repeat. Results are cached per normalized URL
// so a URL appearing under several anchors is probed once per run; create a
// fresh Orchestrator per run so stale outcomes never leak across audits.
type Orchestrator struct {
	head  probe.Prober
	get   probe.Prober
	relay probe.Prober

	maxRetries  int
	backoffBase time.Duration

	mu    sync.Mutex
	cache map[string]*models.ValidationResult

	log *logrus.Entry
}

// NewOrchestrator wires the three first-wave probes into a ladder.
func NewOrchestrator(head, get, relay probe.Prober, maxRetries int, backoffBase time.Duration, log *logrus.Entry) *Orchestrator {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Orchestrator{
		head:        head,
		get:         get,
		relay:       relay,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		cache:       make(map[string]*models.ValidationResult),
		log:         log,
	}
}

// Validate settles one candidate, consulting the per-run cache first. The
// cached result is re-labelled with the candidate's own anchor text and role
// so every submitted candidate still yields its own result row.
func (o *Orchestrator) Validate(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
	key := resolve.Normalize(cand.URL)
	if key == "" {
		key = cand.URL
	}

	o.mu.Lock()
	cached, ok := o.cache[key]
	o.mu.Unlock()
	if ok {
		dup := *cached
		dup.AnchorText = cand.AnchorText
		dup.Role = cand.Role
		return &dup
	}

	result := o.climb(ctx, cand)

	o.mu.Lock()
	o.cache[key] = result
	o.mu.Unlock()
	return result
}

// climb walks the ladder until a strategy confirms the URL, a definitive
// failure settles it, or the applicable rungs are exhausted.
func (o *Orchestrator) climb(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
	result := &models.ValidationResult{
		URL:        cand.URL,
		AnchorText: cand.AnchorText,
		IsInternal: cand.IsInternal,
		Role:       cand.Role,
		Method:     models.MethodDirect,
	}

	rungs := []probe.Prober{o.head, o.get}
	if !cand.IsInternal && o.relay != nil {
		// Internal links share the page's origin; relaying them gains nothing
		rungs = append(rungs, o.relay)
	}

	var (
		lastAttempt *models.ValidationAttempt
		lastErr     error
		attempts    int
		exhausted   = true
	)

	for i, rung := range rungs {
		if attempts >= o.maxRetries {
			break
		}
		if i > 0 {
			if err := o.backoff(ctx, attempts); err != nil {
				lastErr = fmt.Errorf("%w: cancelled between attempts: %v", utils.ErrProbeTimeout, err)
				break
			}
		}

		attempts++
		attempt, err := rung.Probe(ctx, cand.URL)
		lastAttempt, lastErr = attempt, err

		if err == nil {
			result.IsWorking = true
			if rung.Strategy() == models.StrategyRelay {
				result.Method = models.MethodRelay
				result.CORSHandled = true
			}
			exhausted = false
			break
		}

		o.log.WithFields(logrus.Fields{
			"url":      cand.URL,
			"strategy": rung.Strategy(),
			"attempt":  attempts,
		}).Debugf("Probe failed: %v", err)

		if errors.Is(err, utils.ErrRobotsDisallowed) {
			exhausted = false
			break
		}
		// A definitive origin status settles the candidate; escalating would
		// only repeat the same answer
		if rung.Strategy() == models.StrategyDirectHead && probe.Definitive(attempt) {
			exhausted = false
			break
		}
		if errors.Is(err, utils.ErrHTTPStatus) && rung.Strategy() != models.StrategyDirectHead {
			exhausted = false
			break
		}
	}

	result.RetryCount = attempts
	if lastAttempt != nil {
		result.StatusCode = lastAttempt.StatusCode
		result.FinalURL = lastAttempt.FinalURL
		result.RedirectChain = lastAttempt.RedirectChain
		result.StrategyUsed = lastAttempt.Strategy
		result.ResponseTimeMs = lastAttempt.Elapsed.Milliseconds()
	}

	if !result.IsWorking {
		o.describeFailure(result, lastAttempt, lastErr, exhausted)
	}
	return result
}

// backoff sleeps for attempt*backoffBase, honoring cancellation. Linear
// growth keeps the worst-case ladder latency predictable.
func (o *Orchestrator) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt) * o.backoffBase
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// describeFailure fills the error fields of a broken result from the last
// failed attempt.
func (o *Orchestrator) describeFailure(result *models.ValidationResult, attempt *models.ValidationAttempt, err error, exhausted bool) {
	if err == nil {
		err = utils.ErrStrategiesExhausted
	}

	switch {
	case errors.Is(err, utils.ErrProbeTimeout):
		result.ErrorKind = models.KindTimeout
	case attempt != nil && attempt.StatusCode != 0:
		result.ErrorKind = models.KindHTTPError
	case errors.Is(err, utils.ErrRobotsDisallowed):
		result.ErrorKind = models.KindRobots
	case errors.Is(err, utils.ErrCORSBlocked):
		result.ErrorKind = models.KindCORS
	case exhausted:
		result.ErrorKind = models.KindExhausted
	default:
		result.ErrorKind = models.ErrorKind(utils.CategorizeError(err))
	}

	if exhausted && !errors.Is(err, utils.ErrStrategiesExhausted) {
		err = fmt.Errorf("%w: last failure: %v", utils.ErrStrategiesExhausted, err)
	}
	result.ErrorMessage = err.Error()
}
