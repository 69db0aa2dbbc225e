package config

import (
	"fmt"
	"time"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings. Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string) {
	if c.UserAgent == "" {
		c.UserAgent = "linkaudit/1.0 (+https://github.com/rgolusuTR/linkaudit)"
	}

	// Probe timing
	if c.DirectTimeout <= 0 {
		c.DirectTimeout = 10 * time.Second
	}
	if c.RelayTimeout <= 0 {
		c.RelayTimeout = 20 * time.Second
	}
	if c.RelayTimeout < c.DirectTimeout {
		warnings = append(warnings, fmt.Sprintf(
			"relay_timeout (%v) < direct_timeout (%v); relays add latency, raising relay_timeout to 2x direct",
			c.RelayTimeout, c.DirectTimeout))
		c.RelayTimeout = 2 * c.DirectTimeout
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 15 * time.Second
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 10
	}

	// Escalation
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}

	// Batch scheduling
	if c.BatchSize <= 0 {
		c.BatchSize = 4
	}
	if c.FrameBatchSize <= 0 {
		c.FrameBatchSize = 2
	}
	if c.FrameBatchSize > c.BatchSize {
		warnings = append(warnings, fmt.Sprintf(
			"frame_batch_size (%d) > batch_size (%d); frame probing is heavier, clamping to batch_size",
			c.FrameBatchSize, c.BatchSize))
		c.FrameBatchSize = c.BatchSize
	}
	if c.BatchPause <= 0 {
		c.BatchPause = 500 * time.Millisecond
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.MaxPerHost <= 0 {
		c.MaxPerHost = 2
	}
	if c.MaxParallelPages <= 0 {
		c.MaxParallelPages = 2
	}

	if c.AnchorTextMaxLen <= 0 {
		c.AnchorTextMaxLen = 120
	}

	// Relay tiers. The defaults are public pass-through services; deployments
	// normally override these with their own relay list.
	if len(c.RelayEndpoints) == 0 {
		c.RelayEndpoints = []RelayEndpoint{
			{Name: "allorigins", Prefix: "https://api.allorigins.win/raw?url="},
			{Name: "corsproxy", Prefix: "https://corsproxy.io/?"},
			{Name: "codetabs", Prefix: "https://api.codetabs.com/v1/proxy?quest="},
		}
	}
	if len(c.FrameRelayEndpoints) == 0 {
		// Second tier backing the sandbox probe; reversed preference so the
		// two waves do not hammer the same relay first
		for i := len(c.RelayEndpoints) - 1; i >= 0; i-- {
			c.FrameRelayEndpoints = append(c.FrameRelayEndpoints, c.RelayEndpoints[i])
		}
	}

	// HTTP client settings
	if c.HTTPClientSettings.Timeout <= 0 {
		// Ceiling above every per-probe deadline so the client never cuts a
		// probe short on its own
		c.HTTPClientSettings.Timeout = c.RelayTimeout + 10*time.Second
	}
	if c.HTTPClientSettings.MaxIdleConns <= 0 {
		c.HTTPClientSettings.MaxIdleConns = 100
	}
	if c.HTTPClientSettings.MaxIdleConnsPerHost <= 0 {
		c.HTTPClientSettings.MaxIdleConnsPerHost = 10
	}
	if c.HTTPClientSettings.IdleConnTimeout <= 0 {
		c.HTTPClientSettings.IdleConnTimeout = 90 * time.Second
	}
	if c.HTTPClientSettings.TLSHandshakeTimeout <= 0 {
		c.HTTPClientSettings.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.HTTPClientSettings.ExpectContinueTimeout <= 0 {
		c.HTTPClientSettings.ExpectContinueTimeout = 1 * time.Second
	}
	if c.HTTPClientSettings.DialerTimeout <= 0 {
		c.HTTPClientSettings.DialerTimeout = 5 * time.Second
	}
	if c.HTTPClientSettings.DialerKeepAlive <= 0 {
		c.HTTPClientSettings.DialerKeepAlive = 30 * time.Second
	}

	// Persistence / reporting
	if c.StateDir == "" {
		c.StateDir = "./linkaudit_state"
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "./reports"
	}
	if len(c.Report.Formats) == 0 {
		c.Report.Formats = []string{"markdown"}
	}

	return warnings
}
