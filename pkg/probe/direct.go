package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/fetch"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

// DirectOptions configures a direct probe pair
type DirectOptions struct {
	Client       *http.Client
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	DelayPerHost time.Duration
	Limiter      *fetch.RateLimiter // Optional per-host politeness delay
	Robots       *fetch.RobotsGate  // Optional; nil disables the robots gate
}

// DirectProbe checks reachability with a plain HTTP request. Two instances
// form the first two escalation rungs: a lightweight HEAD (no body) and a GET
// fallback for servers that reject HEAD.
type DirectProbe struct {
	strategy models.Strategy
	method   string
	opts     DirectOptions
	log      *logrus.Entry
}

// NewDirectHeadProbe creates the lightweight existence-check rung.
func NewDirectHeadProbe(opts DirectOptions, log *logrus.Entry) *DirectProbe {
	return &DirectProbe{
		strategy: models.StrategyDirectHead,
		method:   http.MethodHead,
		opts:     opts,
		log:      log.WithField("strategy", models.StrategyDirectHead),
	}
}

// NewDirectGetProbe creates the full-fetch fallback rung. The request carries
// a single-byte Range header so confirming reachability does not download
// whole documents.
func NewDirectGetProbe(opts DirectOptions, log *logrus.Entry) *DirectProbe {
	return &DirectProbe{
		strategy: models.StrategyDirectGet,
		method:   http.MethodGet,
		opts:     opts,
		log:      log.WithField("strategy", models.StrategyDirectGet),
	}
}

func (p *DirectProbe) Strategy() models.Strategy { return p.strategy }

// Probe issues one direct request within the configured timeout, recording
// the redirect chain and final URL.
func (p *DirectProbe) Probe(ctx context.Context, rawURL string) (*models.ValidationAttempt, error) {
	attempt := &models.ValidationAttempt{URL: rawURL, Strategy: p.strategy}
	start := time.Now()
	defer func() { attempt.Elapsed = time.Since(start) }()

	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return attempt, fmt.Errorf("%w: %q", utils.ErrRequestCreation, rawURL)
	}

	if p.opts.Robots != nil && !p.opts.Robots.Allowed(ctx, target) {
		return attempt, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, rawURL)
	}

	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.ApplyDelay(ctx, target.Hostname(), p.opts.DelayPerHost); err != nil {
			attempt.TimedOut = true
			return attempt, fmt.Errorf("%w: cancelled during politeness delay: %v", utils.ErrProbeTimeout, err)
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, p.method, rawURL, nil)
	if err != nil {
		return attempt, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)
	if p.method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	var chain []string
	client := fetch.WithRedirectChain(p.opts.Client, p.opts.MaxRedirects, &chain, p.log)

	resp, err := client.Do(req)
	if p.opts.Limiter != nil {
		p.opts.Limiter.UpdateLastRequestTime(target.Hostname())
	}
	attempt.RedirectChain = chain

	if err != nil {
		drainAndClose(resp)
		if errors.Is(err, context.DeadlineExceeded) || probeCtx.Err() == context.DeadlineExceeded {
			attempt.TimedOut = true
			p.log.WithField("url", rawURL).Debugf("Probe timed out after %v", p.opts.Timeout)
			return attempt, fmt.Errorf("%w: no response within %v", utils.ErrProbeTimeout, p.opts.Timeout)
		}
		p.log.WithField("url", rawURL).Debugf("Probe network error: %v", err)
		return attempt, fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	defer drainAndClose(resp)

	attempt.StatusCode = resp.StatusCode
	if final := resp.Request.URL.String(); final != rawURL {
		attempt.FinalURL = final
	}

	if working(resp.StatusCode) {
		return attempt, nil
	}
	return attempt, fmt.Errorf("%w: status %d %s", utils.ErrHTTPStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
}

// Definitive reports whether a failed HEAD attempt settled the question, i.e.
// the origin answered with a status that a GET would repeat. Method-rejection
// statuses (403/405/501) and transport-level failures are not definitive:
// some servers reject lightweight checks but serve full requests fine.
func Definitive(attempt *models.ValidationAttempt) bool {
	if attempt == nil || attempt.StatusCode == 0 {
		return false
	}
	switch attempt.StatusCode {
	case http.StatusForbidden, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return false
	}
	return true
}
