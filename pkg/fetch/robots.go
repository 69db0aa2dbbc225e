package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsGate fetches, parses, and caches robots.txt data per host and answers
// whether a URL may be probed. A fetch or parse failure caches a nil entry,
// which allows everything: validation should degrade to "probe anyway", not
// silently skip links.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	cache     map[string]*robotstxt.RobotsData // hostname -> parsed data (nil on failure)
	cacheMu   sync.Mutex
	log       *logrus.Entry
}

// NewRobotsGate creates a RobotsGate backed by the given client.
func NewRobotsGate(client *http.Client, userAgent string, log *logrus.Entry) *RobotsGate {
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// Allowed reports whether the configured user agent may fetch targetURL.
// Returns true when robots data cannot be obtained.
func (g *RobotsGate) Allowed(ctx context.Context, targetURL *url.URL) bool {
	data := g.robotsData(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), g.userAgent)
}

func (g *RobotsGate) robotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()

	g.cacheMu.Lock()
	data, found := g.cache[host]
	g.cacheMu.Unlock()
	if found {
		return data // may be nil (cached failure)
	}

	scheme := targetURL.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: targetURL.Host, Path: "/robots.txt"}).String()
	hostLog := g.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL})

	data = g.fetchAndParse(ctx, robotsURL, hostLog)

	g.cacheMu.Lock()
	g.cache[host] = data
	g.cacheMu.Unlock()
	return data
}

func (g *RobotsGate) fetchAndParse(ctx context.Context, robotsURL string, log *logrus.Entry) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		log.Debugf("Error creating robots.txt request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		log.Debugf("Fetching robots.txt failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debugf("robots.txt returned status %d", resp.StatusCode)
		return nil
	}

	const maxRobotsSize = 512 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		log.Debugf("Error reading robots.txt body: %v", err)
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		log.Debugf("Error parsing robots.txt: %v", err)
		return nil
	}
	log.Debug("Fetched and parsed robots.txt")
	return data
}
