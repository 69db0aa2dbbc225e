package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrProbeTimeout        = errors.New("probe exceeded its deadline")              // Probe hit its per-attempt timeout
	ErrCORSBlocked         = errors.New("cross-origin policy blocked the response") // Response received but unreadable due to origin policy
	ErrHTTPStatus          = errors.New("unsuccessful HTTP status")                 // Wraps status details (non-2xx/3xx)
	ErrNetwork             = errors.New("network failure")                          // DNS/TCP/TLS level failure
	ErrStrategiesExhausted = errors.New("all validation strategies exhausted")      // Every escalation rung failed
	ErrRelayExhausted      = errors.New("all relay endpoints exhausted")            // Every configured relay failed
	ErrRequestCreation     = errors.New("failed to create HTTP request")
	ErrRobotsDisallowed    = errors.New("disallowed by robots.txt")
	ErrDatabase            = errors.New("database error") // Wraps badger errors
	ErrConfigValidation    = errors.New("configuration validation error")
)

// Error kind strings used across validation results and statistics.
const (
	KindNone      = "none"
	KindTimeout   = "timeout"
	KindCORS      = "cors-blocked"
	KindHTTPError = "http-error"
	KindNetwork   = "network-error"
	KindExhausted = "all-strategies-exhausted"
	KindRobots    = "robots-disallowed"
	KindUnknown   = "unknown"
)

// CategorizeError maps an error to one of the engine's error kinds for
// results, logging, and statistics.
func CategorizeError(err error) string {
	if err == nil {
		return KindNone
	}

	// Check against sentinel errors first
	switch {
	case errors.Is(err, ErrStrategiesExhausted):
		return KindExhausted
	case errors.Is(err, ErrProbeTimeout):
		return KindTimeout
	case errors.Is(err, ErrCORSBlocked):
		return KindCORS
	case errors.Is(err, ErrHTTPStatus):
		return KindHTTPError
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrRelayExhausted), errors.Is(err, ErrRequestCreation):
		return KindNetwork
	case errors.Is(err, ErrRobotsDisallowed):
		return KindRobots
	}

	// Context errors: a deadline firing inside the HTTP client surfaces as
	// context.DeadlineExceeded rather than our sentinel
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}

	// Network errors not wrapped by custom sentinels
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	// Fallback substring checks for errors surfacing from deep inside net/http
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"), strings.Contains(lowerErrMsg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(lowerErrMsg, "connection refused"),
		strings.Contains(lowerErrMsg, "no such host"),
		strings.Contains(lowerErrMsg, "reset by peer"),
		strings.Contains(lowerErrMsg, "broken pipe"),
		strings.Contains(lowerErrMsg, "tls"),
		strings.Contains(lowerErrMsg, "certificate"):
		return KindNetwork
	}

	return KindUnknown
}
