package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/config"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

// RelayProbe routes the request through third-party pass-through endpoints,
// tried in their configured order until one yields the target's response or
// all are exhausted. Used when direct access to an external URL is blocked or
// fails outright. The per-endpoint timeout is longer than the direct timeout
// because relays add a full extra round trip.
type RelayProbe struct {
	client    *http.Client
	endpoints []config.RelayEndpoint
	timeout   time.Duration
	userAgent string
	log       *logrus.Entry
}

// NewRelayProbe creates a RelayProbe over the given endpoint list.
func NewRelayProbe(client *http.Client, endpoints []config.RelayEndpoint, timeout time.Duration, userAgent string, log *logrus.Entry) *RelayProbe {
	return &RelayProbe{
		client:    client,
		endpoints: endpoints,
		timeout:   timeout,
		userAgent: userAgent,
		log:       log.WithField("strategy", models.StrategyRelay),
	}
}

func (p *RelayProbe) Strategy() models.Strategy { return models.StrategyRelay }

// Probe tries each relay in sequence. A readable status from a relay is the
// target's status verbatim and settles the attempt; transport failures and
// relay-side saturation (429/5xx) move on to the next endpoint.
func (p *RelayProbe) Probe(ctx context.Context, rawURL string) (*models.ValidationAttempt, error) {
	attempt := &models.ValidationAttempt{URL: rawURL, Strategy: models.StrategyRelay}
	start := time.Now()
	defer func() { attempt.Elapsed = time.Since(start) }()

	if len(p.endpoints) == 0 {
		return attempt, fmt.Errorf("%w: no relay endpoints configured", utils.ErrRelayExhausted)
	}

	var lastErr error
	for _, endpoint := range p.endpoints {
		if ctx.Err() != nil {
			attempt.TimedOut = true
			return attempt, fmt.Errorf("%w: cancelled before relay %q", utils.ErrProbeTimeout, endpoint.Name)
		}

		status, err := p.tryEndpoint(ctx, endpoint, rawURL)
		if err != nil {
			p.log.WithFields(logrus.Fields{"relay": endpoint.Name, "url": rawURL}).Debugf("Relay attempt failed: %v", err)
			lastErr = err
			continue
		}

		attempt.StatusCode = status
		if working(status) {
			p.log.WithFields(logrus.Fields{"relay": endpoint.Name, "url": rawURL, "status": status}).Debug("Relay confirmed link")
			return attempt, nil
		}
		if status == http.StatusTooManyRequests || status >= 500 {
			// Could be the relay itself saturated rather than the target
			lastErr = fmt.Errorf("%w: relay %q status %d", utils.ErrHTTPStatus, endpoint.Name, status)
			continue
		}
		// A 4xx passed through verbatim is the target's own answer
		return attempt, fmt.Errorf("%w: status %d %s", utils.ErrHTTPStatus, status, http.StatusText(status))
	}

	return attempt, fmt.Errorf("%w: last error: %v", utils.ErrRelayExhausted, lastErr)
}

func (p *RelayProbe) tryEndpoint(ctx context.Context, endpoint config.RelayEndpoint, rawURL string) (int, error) {
	relayCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	relayURL := endpoint.Prefix + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(relayCtx, http.MethodGet, relayURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		if relayCtx.Err() == context.DeadlineExceeded {
			return 0, fmt.Errorf("%w: relay %q gave no response within %v", utils.ErrProbeTimeout, endpoint.Name, p.timeout)
		}
		return 0, fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	defer drainAndClose(resp)

	return resp.StatusCode, nil
}
