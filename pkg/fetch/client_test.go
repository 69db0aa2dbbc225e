package fetch

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/config"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testClientConfig() config.HTTPClientConfig {
	return config.HTTPClientConfig{
		Timeout:             10 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
		DialerTimeout:       2 * time.Second,
	}
}

func TestNewClient_FollowsRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/middle", http.StatusMovedPermanently)
		case "/middle":
			http.Redirect(w, r, "/end", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(server.Close)

	client := NewClient(testClientConfig(), 10, testLogger())
	resp, err := client.Get(server.URL + "/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Request.URL.Path != "/end" {
		t.Errorf("final path = %s, want /end", resp.Request.URL.Path)
	}
}

func TestWithRedirectChain_CapturesHops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/middle", http.StatusMovedPermanently)
		case "/middle":
			http.Redirect(w, r, "/end", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(server.Close)

	base := NewClient(testClientConfig(), 10, testLogger())

	var chain []string
	client := WithRedirectChain(base, 10, &chain, testLogger())
	resp, err := client.Get(server.URL + "/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	want := []string{server.URL + "/middle", server.URL + "/end"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %s, want %s", i, chain[i], want[i])
		}
	}

	// The base client must be untouched
	if base.CheckRedirect == nil {
		t.Error("base client redirect hook removed")
	}
}

func TestWithRedirectChain_BoundsHops(t *testing.T) {
	hop := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hop++
		http.Redirect(w, r, fmt.Sprintf("/hop-%d", hop), http.StatusFound)
	}))
	t.Cleanup(server.Close)

	base := NewClient(testClientConfig(), 10, testLogger())

	var chain []string
	client := WithRedirectChain(base, 3, &chain, testLogger())
	resp, err := client.Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatal("expected redirect-loop error")
	}
	if len(chain) > 3 {
		t.Errorf("chain grew past bound: %d hops", len(chain))
	}
}
