package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RelayEndpoint is a third-party pass-through service. The target URL is
// appended to Prefix query-escaped; the relay returns the target's response
// verbatim. Endpoints are tried in the order they are configured.
type RelayEndpoint struct {
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
}

// ReportConfig controls which result sinks the CLI writes
type ReportConfig struct {
	OutputDir string   `yaml:"output_dir,omitempty"`
	Formats   []string `yaml:"formats,omitempty"` // markdown, html, xlsx, json
}

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent string `yaml:"user_agent,omitempty"`

	// Probe timing
	DirectTimeout time.Duration `yaml:"direct_timeout,omitempty"` // Per direct probe attempt
	RelayTimeout  time.Duration `yaml:"relay_timeout,omitempty"`  // Per relay attempt; relays add latency, so this exceeds DirectTimeout
	FrameTimeout  time.Duration `yaml:"frame_timeout,omitempty"`  // Hard sandbox teardown deadline
	MaxRedirects  int           `yaml:"max_redirects,omitempty"`

	// Escalation / retry
	MaxRetries  int           `yaml:"max_retries,omitempty"`  // Cap on strategy escalations per candidate
	BackoffBase time.Duration `yaml:"backoff_base,omitempty"` // Linear backoff unit between failed attempts

	// Batch scheduling
	BatchSize      int           `yaml:"batch_size,omitempty"`
	FrameBatchSize int           `yaml:"frame_batch_size,omitempty"` // Smaller bound: frame probing is heavier
	BatchPause     time.Duration `yaml:"batch_pause,omitempty"`      // Pacing delay between batches
	MaxConcurrent  int           `yaml:"max_concurrent,omitempty"`   // Global in-flight probe bound
	MaxPerHost     int           `yaml:"max_per_host,omitempty"`
	DelayPerHost   time.Duration `yaml:"delay_per_host,omitempty"`

	// Multi-page runs (watch mode and batch audits)
	MaxParallelPages int `yaml:"max_parallel_pages,omitempty"`

	// Politeness
	RespectRobots bool `yaml:"respect_robots,omitempty"`

	// Extraction
	AnchorTextMaxLen int `yaml:"anchor_text_max_len,omitempty"`

	// Transport strategy wiring
	RelayEndpoints      []RelayEndpoint `yaml:"relay_endpoints,omitempty"`
	FrameRelayEndpoints []RelayEndpoint `yaml:"frame_relay_endpoints,omitempty"` // Second tier backing the sandbox probe

	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`

	// Persistence / reporting
	StateDir       string       `yaml:"state_dir,omitempty"`
	HistoryEnabled bool         `yaml:"history_enabled,omitempty"`
	Report         ReportConfig `yaml:"report,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request ceiling (per-probe deadlines are tighter)
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // Tri-state: nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Load reads and parses a YAML config file
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file '%s': %w", path, err)
	}
	return &cfg, nil
}

// Default returns a config with no fields set; Validate fills in defaults.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.Validate()
	return cfg
}
