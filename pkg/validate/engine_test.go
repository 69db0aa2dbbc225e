package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rgolusuTR/linkaudit/pkg/config"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/probe"
)

// confirmSandbox scripts a fixed confirmed status for every load.
type confirmSandbox struct{ status int }

func (s *confirmSandbox) Load(ctx context.Context, rawURL string) (*probe.LoadOutcome, error) {
	return &probe.LoadOutcome{Confirmed: true, Loaded: true, StatusCode: s.status}, nil
}

func (s *confirmSandbox) Destroy() {}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		UserAgent:      "linkaudit-test",
		DirectTimeout:  2 * time.Second,
		RelayTimeout:   time.Second,
		FrameTimeout:   time.Second,
		MaxRedirects:   5,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
		BatchSize:      3,
		FrameBatchSize: 2,
		MaxConcurrent:  8,
		MaxPerHost:     4,
		RelayEndpoints: []config.RelayEndpoint{{Name: "dead", Prefix: "http://127.0.0.1:1/?url="}},
	}
}

// The page host is 127.0.0.1, so localhost links count as a different site.
const externalDead = "http://localhost:1/unreachable"

func auditPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body>
				<nav><a href="/good">Good page</a></nav>
				<main>
					<a href="/missing">Gone page</a>
					<a href="` + externalDead + `">Partner site</a>
				</main>
			</body></html>`))
		case "/good":
			w.WriteHeader(http.StatusOK)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func resultByURL(t *testing.T, results []models.ValidationResult, url string) models.ValidationResult {
	t.Helper()
	for _, r := range results {
		if r.URL == url {
			return r
		}
	}
	t.Fatalf("no result for %s", url)
	return models.ValidationResult{}
}

func TestEngine_AuditEndToEnd(t *testing.T) {
	server := auditPageServer(t)
	engine := New(testConfig(), testLogger(),
		WithSandboxFactory(func() probe.Sandbox { return &confirmSandbox{status: 200} }))

	report, err := engine.Audit(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}

	if report.RunID == "" {
		t.Error("report has no run ID")
	}
	if len(report.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(report.Results))
	}

	good := resultByURL(t, report.Results, server.URL+"/good")
	if !good.IsWorking || good.Method != models.MethodDirect {
		t.Errorf("internal working link: %+v", good)
	}
	if good.Role != models.RoleNavigation {
		t.Errorf("role = %s, want navigation", good.Role)
	}
	if good.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", good.RetryCount)
	}

	missing := resultByURL(t, report.Results, server.URL+"/missing")
	if missing.IsWorking {
		t.Error("404 link should be broken")
	}
	if missing.StatusCode != 404 || missing.ErrorKind != models.KindHTTPError {
		t.Errorf("broken internal link: %+v", missing)
	}
	if missing.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1 for a definitive 404", missing.RetryCount)
	}

	rescued := resultByURL(t, report.Results, externalDead)
	if !rescued.IsWorking {
		t.Fatalf("sandbox-confirmed link should be working: %+v", rescued)
	}
	if rescued.Method != models.MethodHybrid {
		t.Errorf("method = %s, want hybrid", rescued.Method)
	}
	if !rescued.CORSHandled {
		t.Error("hybrid result should set CORSHandled")
	}
	if rescued.StrategyUsed != models.StrategyFrame {
		t.Errorf("strategy = %s, want sandboxed-frame", rescued.StrategyUsed)
	}

	stats := report.Stats
	if stats.TotalLinks != 3 || stats.WorkingLinks != 2 || stats.BrokenLinks != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.MethodBreakdown[models.MethodHybrid] != 1 {
		t.Errorf("hybrid count = %d, want 1", stats.MethodBreakdown[models.MethodHybrid])
	}
	if stats.InternalLinks != 2 || stats.ExternalLinks != 1 {
		t.Errorf("internal/external = %d/%d", stats.InternalLinks, stats.ExternalLinks)
	}
}

func TestEngine_AuditSecondRunReprobes(t *testing.T) {
	server := auditPageServer(t)
	engine := New(testConfig(), testLogger(),
		WithSandboxFactory(func() probe.Sandbox { return &confirmSandbox{status: 200} }))

	first, err := engine.Audit(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("first audit failed: %v", err)
	}
	second, err := engine.Audit(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("second audit failed: %v", err)
	}
	if first.RunID == second.RunID {
		t.Error("runs must get distinct IDs")
	}
	if len(second.Results) != len(first.Results) {
		t.Errorf("second run settled %d results, first %d", len(second.Results), len(first.Results))
	}
}

func TestEngine_AuditProgressEvents(t *testing.T) {
	server := auditPageServer(t)
	progress := make(chan models.ProgressEvent, 32)
	engine := New(testConfig(), testLogger(),
		WithProgress(progress),
		WithSandboxFactory(func() probe.Sandbox { return &confirmSandbox{status: 200} }))

	if _, err := engine.Audit(context.Background(), server.URL+"/"); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	close(progress)

	var sawFrameWave bool
	count := 0
	for e := range progress {
		count++
		if e.Strategy == models.StrategyFrame {
			sawFrameWave = true
		}
	}
	if count == 0 {
		t.Fatal("no progress events emitted")
	}
	if !sawFrameWave {
		t.Error("expected a progress event from the sandboxed-frame wave")
	}
}

func TestEngine_AuditUnreachablePage(t *testing.T) {
	engine := New(testConfig(), testLogger())
	if _, err := engine.Audit(context.Background(), "http://127.0.0.1:1/"); err == nil {
		t.Fatal("expected an error for an unreachable page")
	}
}

func TestEngine_AuditErrorStatusPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	engine := New(testConfig(), testLogger())
	if _, err := engine.Audit(context.Background(), server.URL+"/"); err == nil {
		t.Fatal("expected an error for a 500 page")
	}
}
