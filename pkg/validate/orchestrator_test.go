package validate

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// stubProbe scripts one strategy rung and counts invocations.
type stubProbe struct {
	strategy models.Strategy
	calls    atomic.Int32
	probe    func(rawURL string) (*models.ValidationAttempt, error)
}

func (s *stubProbe) Strategy() models.Strategy { return s.strategy }

func (s *stubProbe) Probe(ctx context.Context, rawURL string) (*models.ValidationAttempt, error) {
	s.calls.Add(1)
	attempt, err := s.probe(rawURL)
	if attempt == nil {
		attempt = &models.ValidationAttempt{URL: rawURL, Strategy: s.strategy}
	} else {
		attempt.Strategy = s.strategy
	}
	return attempt, err
}

func okProbe(strategy models.Strategy, status int) *stubProbe {
	return &stubProbe{strategy: strategy, probe: func(string) (*models.ValidationAttempt, error) {
		return &models.ValidationAttempt{StatusCode: status}, nil
	}}
}

func statusProbe(strategy models.Strategy, status int) *stubProbe {
	return &stubProbe{strategy: strategy, probe: func(string) (*models.ValidationAttempt, error) {
		return &models.ValidationAttempt{StatusCode: status},
			fmt.Errorf("%w: status %d", utils.ErrHTTPStatus, status)
	}}
}

func failProbe(strategy models.Strategy, err error) *stubProbe {
	return &stubProbe{strategy: strategy, probe: func(string) (*models.ValidationAttempt, error) {
		return nil, fmt.Errorf("%w: scripted failure", err)
	}}
}

func newTestOrchestrator(head, get, relay *stubProbe) *Orchestrator {
	return NewOrchestrator(head, get, relay, 3, time.Millisecond, testLogger())
}

func external(url string) models.LinkCandidate {
	return models.LinkCandidate{URL: url, AnchorText: "link", Role: models.RoleContent}
}

func internal(url string) models.LinkCandidate {
	c := external(url)
	c.IsInternal = true
	return c
}

func TestOrchestrator_HeadSuccessStopsLadder(t *testing.T) {
	head := okProbe(models.StrategyDirectHead, 200)
	get := okProbe(models.StrategyDirectGet, 200)
	relay := okProbe(models.StrategyRelay, 200)
	o := newTestOrchestrator(head, get, relay)

	result := o.Validate(context.Background(), external("https://example.com/a"))

	if !result.IsWorking {
		t.Fatalf("expected working, got %+v", result)
	}
	if result.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", result.RetryCount)
	}
	if result.StrategyUsed != models.StrategyDirectHead {
		t.Errorf("strategy = %s", result.StrategyUsed)
	}
	if result.Method != models.MethodDirect {
		t.Errorf("method = %s", result.Method)
	}
	if get.calls.Load() != 0 || relay.calls.Load() != 0 {
		t.Error("later rungs ran after a HEAD success")
	}
}

func TestOrchestrator_DefinitiveHeadFailureSettles(t *testing.T) {
	head := statusProbe(models.StrategyDirectHead, 404)
	get := okProbe(models.StrategyDirectGet, 200)
	o := newTestOrchestrator(head, get, okProbe(models.StrategyRelay, 200))

	result := o.Validate(context.Background(), internal("https://example.com/missing"))

	if result.IsWorking {
		t.Fatal("a definitive 404 must settle the candidate as broken")
	}
	if result.StatusCode != 404 {
		t.Errorf("status = %d, want 404", result.StatusCode)
	}
	if result.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", result.RetryCount)
	}
	if result.ErrorKind != models.KindHTTPError {
		t.Errorf("errorKind = %s, want %s", result.ErrorKind, models.KindHTTPError)
	}
	if get.calls.Load() != 0 {
		t.Error("GET ran after a definitive HEAD status")
	}
}

func TestOrchestrator_MethodRejectionEscalatesToGet(t *testing.T) {
	head := statusProbe(models.StrategyDirectHead, 405)
	get := okProbe(models.StrategyDirectGet, 200)
	o := newTestOrchestrator(head, get, okProbe(models.StrategyRelay, 200))

	result := o.Validate(context.Background(), external("https://example.com/no-head"))

	if !result.IsWorking {
		t.Fatalf("expected working via GET, got %+v", result)
	}
	if result.RetryCount != 2 {
		t.Errorf("retryCount = %d, want 2", result.RetryCount)
	}
	if result.StrategyUsed != models.StrategyDirectGet {
		t.Errorf("strategy = %s", result.StrategyUsed)
	}
}

func TestOrchestrator_ExternalEscalatesToRelay(t *testing.T) {
	head := failProbe(models.StrategyDirectHead, utils.ErrNetwork)
	get := failProbe(models.StrategyDirectGet, utils.ErrNetwork)
	relay := okProbe(models.StrategyRelay, 200)
	o := newTestOrchestrator(head, get, relay)

	result := o.Validate(context.Background(), external("https://blocked.example/page"))

	if !result.IsWorking {
		t.Fatalf("expected relay to confirm, got %+v", result)
	}
	if result.Method != models.MethodRelay {
		t.Errorf("method = %s, want relay", result.Method)
	}
	if !result.CORSHandled {
		t.Error("relay success should set CORSHandled")
	}
	if result.RetryCount != 3 {
		t.Errorf("retryCount = %d, want 3", result.RetryCount)
	}
}

func TestOrchestrator_InternalNeverRelays(t *testing.T) {
	head := failProbe(models.StrategyDirectHead, utils.ErrNetwork)
	get := failProbe(models.StrategyDirectGet, utils.ErrNetwork)
	relay := okProbe(models.StrategyRelay, 200)
	o := newTestOrchestrator(head, get, relay)

	result := o.Validate(context.Background(), internal("https://example.com/down"))

	if result.IsWorking {
		t.Fatal("internal candidate must not be rescued by the relay tier")
	}
	if relay.calls.Load() != 0 {
		t.Error("relay probe ran for an internal link")
	}
	if result.ErrorKind != models.KindExhausted {
		t.Errorf("errorKind = %s, want %s", result.ErrorKind, models.KindExhausted)
	}
}

func TestOrchestrator_AllStrategiesExhausted(t *testing.T) {
	o := newTestOrchestrator(
		failProbe(models.StrategyDirectHead, utils.ErrNetwork),
		failProbe(models.StrategyDirectGet, utils.ErrNetwork),
		failProbe(models.StrategyRelay, utils.ErrRelayExhausted),
	)

	result := o.Validate(context.Background(), external("https://dead.example/"))

	if result.IsWorking {
		t.Fatal("expected broken")
	}
	if result.ErrorKind != models.KindExhausted {
		t.Errorf("errorKind = %s, want %s", result.ErrorKind, models.KindExhausted)
	}
	if result.ErrorMessage == "" {
		t.Error("a broken result must carry a human-readable message")
	}
	if result.RetryCount != 3 {
		t.Errorf("retryCount = %d, want 3", result.RetryCount)
	}
}

func TestOrchestrator_TimeoutKindSurvivesExhaustion(t *testing.T) {
	o := newTestOrchestrator(
		failProbe(models.StrategyDirectHead, utils.ErrProbeTimeout),
		failProbe(models.StrategyDirectGet, utils.ErrProbeTimeout),
		failProbe(models.StrategyRelay, utils.ErrProbeTimeout),
	)

	result := o.Validate(context.Background(), external("https://slow.example/"))

	if result.ErrorKind != models.KindTimeout {
		t.Errorf("errorKind = %s, want %s", result.ErrorKind, models.KindTimeout)
	}
}

func TestOrchestrator_RobotsDisallowedIsTerminal(t *testing.T) {
	head := failProbe(models.StrategyDirectHead, utils.ErrRobotsDisallowed)
	get := okProbe(models.StrategyDirectGet, 200)
	o := newTestOrchestrator(head, get, okProbe(models.StrategyRelay, 200))

	result := o.Validate(context.Background(), external("https://example.com/private"))

	if result.IsWorking {
		t.Fatal("robots-disallowed candidate must not escalate to a working result")
	}
	if result.ErrorKind != models.KindRobots {
		t.Errorf("errorKind = %s, want %s", result.ErrorKind, models.KindRobots)
	}
	if get.calls.Load() != 0 {
		t.Error("GET ran after a robots refusal")
	}
}

func TestOrchestrator_CacheProbesOnce(t *testing.T) {
	head := okProbe(models.StrategyDirectHead, 200)
	o := newTestOrchestrator(head, okProbe(models.StrategyDirectGet, 200), okProbe(models.StrategyRelay, 200))

	first := o.Validate(context.Background(), external("https://example.com/page"))
	// Same URL modulo normalization, different anchor
	dup := external("https://EXAMPLE.com/page/")
	dup.AnchorText = "second anchor"
	second := o.Validate(context.Background(), dup)

	if head.calls.Load() != 1 {
		t.Errorf("head probed %d times, want 1", head.calls.Load())
	}
	if !first.IsWorking || !second.IsWorking {
		t.Error("both results should be working")
	}
	if second.AnchorText != "second anchor" {
		t.Errorf("cached result kept the wrong anchor: %q", second.AnchorText)
	}
}

func TestOrchestrator_RetryCap(t *testing.T) {
	head := failProbe(models.StrategyDirectHead, utils.ErrNetwork)
	get := failProbe(models.StrategyDirectGet, utils.ErrNetwork)
	relay := okProbe(models.StrategyRelay, 200)
	o := NewOrchestrator(head, get, relay, 2, time.Millisecond, testLogger())

	result := o.Validate(context.Background(), external("https://example.com/"))

	if result.IsWorking {
		t.Fatal("relay rung must not run past the retry cap")
	}
	if relay.calls.Load() != 0 {
		t.Error("relay ran beyond the cap")
	}
	if result.RetryCount != 2 {
		t.Errorf("retryCount = %d, want 2", result.RetryCount)
	}
}
