package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/config"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

// LoadOutcome is what a sandbox reports after attempting to load a URL.
//
// Confirmed means the in-context check observed the target respond and
// StatusCode carries its status. Loaded alone means the load event fired but
// the response was not readable, a weaker working signal. Blocked means the
// load was denied by origin policy.
type LoadOutcome struct {
	Confirmed  bool
	Loaded     bool
	Blocked    bool
	StatusCode int
}

// Sandbox is an isolated, script-capable load context. Implementations must
// honor ctx cancellation and must be fully torn down by Destroy; the probe
// calls Destroy on every exit path, including timeouts.
type Sandbox interface {
	Load(ctx context.Context, rawURL string) (*LoadOutcome, error)
	Destroy()
}

// SandboxFactory creates one sandbox per probe so no state leaks between
// candidates.
type SandboxFactory func() Sandbox

// FrameProbe is the last-resort strategy for external URLs that both direct
// and relay attempts failed to confirm. It loads the URL in an isolated
// sandbox and infers reachability from the outcome report. A hard timeout
// guarantees termination and sandbox teardown.
type FrameProbe struct {
	factory SandboxFactory
	timeout time.Duration
	log     *logrus.Entry
}

// NewFrameProbe creates a FrameProbe with the given sandbox factory.
func NewFrameProbe(factory SandboxFactory, timeout time.Duration, log *logrus.Entry) *FrameProbe {
	return &FrameProbe{
		factory: factory,
		timeout: timeout,
		log:     log.WithField("strategy", models.StrategyFrame),
	}
}

func (p *FrameProbe) Strategy() models.Strategy { return models.StrategyFrame }

// Probe loads rawURL in a fresh sandbox and maps the outcome onto the attempt.
func (p *FrameProbe) Probe(ctx context.Context, rawURL string) (*models.ValidationAttempt, error) {
	attempt := &models.ValidationAttempt{URL: rawURL, Strategy: models.StrategyFrame}
	start := time.Now()
	defer func() { attempt.Elapsed = time.Since(start) }()

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sandbox := p.factory()
	defer sandbox.Destroy() // teardown on every exit path, timeout included

	outcome, err := sandbox.Load(probeCtx, rawURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || probeCtx.Err() == context.DeadlineExceeded {
			attempt.TimedOut = true
			return attempt, fmt.Errorf("%w: sandbox gave no signal within %v", utils.ErrProbeTimeout, p.timeout)
		}
		return attempt, fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}

	switch {
	case outcome.Blocked:
		attempt.CORSBlocked = true
		return attempt, fmt.Errorf("%w: sandbox reported blocked load for %s", utils.ErrCORSBlocked, rawURL)
	case outcome.Confirmed:
		attempt.StatusCode = outcome.StatusCode
		if !working(outcome.StatusCode) {
			return attempt, fmt.Errorf("%w: status %d %s", utils.ErrHTTPStatus, outcome.StatusCode, http.StatusText(outcome.StatusCode))
		}
		return attempt, nil
	case outcome.Loaded:
		// Load event without in-context confirmation: weaker working signal
		attempt.WeakSignal = true
		p.log.WithField("url", rawURL).Debug("Sandbox load event without confirmation, accepting as weak signal")
		return attempt, nil
	default:
		return attempt, fmt.Errorf("%w: sandbox reported no load signal", utils.ErrNetwork)
	}
}

// relaySandbox backs the frame strategy on platforms without a browsing
// context primitive: a second relay tier plays the role of the in-frame
// script's no-cors request, behind the same Sandbox interface.
type relaySandbox struct {
	client    *http.Client
	endpoints []config.RelayEndpoint
	userAgent string
	log       *logrus.Entry
}

// NewRelaySandboxFactory builds sandboxes backed by the given relay tier.
func NewRelaySandboxFactory(client *http.Client, endpoints []config.RelayEndpoint, userAgent string, log *logrus.Entry) SandboxFactory {
	return func() Sandbox {
		return &relaySandbox{
			client:    client,
			endpoints: endpoints,
			userAgent: userAgent,
			log:       log.WithField("sandbox", "relay-tier"),
		}
	}
}

func (s *relaySandbox) Load(ctx context.Context, rawURL string) (*LoadOutcome, error) {
	var lastErr error
	for _, endpoint := range s.endpoints {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.Prefix+url.QueryEscape(rawURL), nil)
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("User-Agent", s.userAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		status := resp.StatusCode
		drainAndClose(resp)

		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = fmt.Errorf("relay %q status %d", endpoint.Name, status)
			continue
		}
		return &LoadOutcome{Confirmed: true, Loaded: true, StatusCode: status}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no relay endpoints configured")
	}
	return nil, lastErr
}

func (s *relaySandbox) Destroy() {
	// Nothing held between loads; the shared client owns the connections
}
