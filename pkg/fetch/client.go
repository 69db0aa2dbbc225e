package fetch

import (
	"fmt"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/config"
)

// NewClient creates the shared HTTP client used by all probes.
// The returned client follows redirects up to maxRedirects hops; callers that
// need the hop chain wrap it with WithRedirectChain per request.
func NewClient(cfg config.HTTPClientConfig, maxRedirects int, log *logrus.Entry) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20, // 1MB max header size
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}

	client := &http.Client{
		Timeout:       cfg.Timeout,
		Transport:     transport,
		CheckRedirect: boundedRedirects(maxRedirects, nil, log),
	}
	log.Debug("HTTP client initialized")
	return client
}

// WithRedirectChain returns a shallow copy of client whose redirect hook
// appends every hop target to *chain. The copy shares the underlying
// transport, so connection pooling is unaffected; the chain pointer makes the
// copy single-request only.
func WithRedirectChain(client *http.Client, maxRedirects int, chain *[]string, log *logrus.Entry) *http.Client {
	c := *client
	c.CheckRedirect = boundedRedirects(maxRedirects, chain, log)
	return &c
}

func boundedRedirects(maxRedirects int, chain *[]string, log *logrus.Entry) func(*http.Request, []*http.Request) error {
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if chain != nil {
			*chain = append(*chain, req.URL.String())
		}
		if log != nil {
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
		}
		return nil
	}
}
