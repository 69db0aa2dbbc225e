// Package probe implements the transport strategies the validation engine
// escalates through: direct HEAD/GET requests, third-party relay
// pass-throughs, and a sandboxed load probe behind a pluggable Sandbox.
//
// All strategies share one contract: given a URL and the deadline carried by
// the context, return within the budget either a definitive attempt (working
// plus status code) or a typed failure. No strategy blocks past its timeout,
// and all support cooperative cancellation.
package probe

import (
	"context"
	"io"
	"net/http"

	"github.com/rgolusuTR/linkaudit/pkg/models"
)

// Prober is the shared transport strategy contract.
// A nil error means the URL is confirmed working; the attempt carries the
// status code and redirect details. A non-nil error wraps one of the utils
// sentinel errors so callers can categorize the failure.
type Prober interface {
	Strategy() models.Strategy
	Probe(ctx context.Context, rawURL string) (*models.ValidationAttempt, error)
}

// working reports whether an HTTP status confirms reachability.
// Redirect statuses count: the client follows them, so seeing one here means
// the hop bound was respected and the chain terminated.
func working(status int) bool {
	return status >= 200 && status < 400
}

// drainAndClose discards and closes a response body so the underlying
// connection can be reused.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}
