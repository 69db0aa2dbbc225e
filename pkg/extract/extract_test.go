package extract

import (
	"io"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse test HTML: %v", err)
	}
	return doc
}

func findCandidate(t *testing.T, candidates []models.LinkCandidate, url string) models.LinkCandidate {
	t.Helper()
	for _, c := range candidates {
		if c.URL == url {
			return c
		}
	}
	t.Fatalf("no candidate with URL %q in %+v", url, candidates)
	return models.LinkCandidate{}
}

func TestExtract_SkipsNonNavigable(t *testing.T) {
	html := `<body>
		<a href="mailto:x@example.com">mail</a>
		<a href="javascript:void(0)">js</a>
		<a href="tel:+1555">call</a>
		<a href="data:text/plain,hi">data</a>
		<a href="">empty</a>
		<a href="/real">Real link</a>
	</body>`
	candidates := NewExtractor(0, testLogger()).Extract(parseDoc(t, html), "https://example.com/page")

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].URL != "https://example.com/real" {
		t.Errorf("unexpected URL: %s", candidates[0].URL)
	}
}

func TestExtract_AnchorTextFallbacks(t *testing.T) {
	html := `<body>
		<a href="/a">Visible text</a>
		<a href="/b" title="Title text"></a>
		<a href="/c" aria-label="Label text"></a>
		<a href="/d"><img src="x.png" alt="Alt text"></a>
		<a href="/guides/getting-started.html"></a>
	</body>`
	candidates := NewExtractor(0, testLogger()).Extract(parseDoc(t, html), "https://example.com/")

	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/a", "Visible text"},
		{"https://example.com/b", "Title text"},
		{"https://example.com/c", "Label text"},
		{"https://example.com/d", "Alt text"},
		{"https://example.com/guides/getting-started.html", "getting started"},
	}
	for _, tt := range tests {
		if got := findCandidate(t, candidates, tt.url).AnchorText; got != tt.want {
			t.Errorf("anchor text for %s = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestExtract_AnchorTextTruncated(t *testing.T) {
	long := strings.Repeat("word ", 60)
	html := `<a href="/x">` + long + `</a>`
	candidates := NewExtractor(40, testLogger()).Extract(parseDoc(t, html), "https://example.com/")

	got := candidates[0].AnchorText
	if len([]rune(got)) > 40 {
		t.Errorf("anchor text not truncated: %d runes", len([]rune(got)))
	}
}

func TestExtract_StructuralRoles(t *testing.T) {
	html := `<body>
		<header><a href="/logo">Logo</a></header>
		<nav><a href="/docs">Docs</a></nav>
		<header><nav><a href="/nested">Nested</a></nav></header>
		<main><a href="/article">Article</a></main>
		<aside class="sidebar"><a href="/related">Related</a></aside>
		<footer><a href="/terms">Terms</a></footer>
		<div><a href="/floating">Floating</a></div>
	</body>`
	candidates := NewExtractor(0, testLogger()).Extract(parseDoc(t, html), "https://example.com/")

	tests := []struct {
		url  string
		want models.StructuralRole
	}{
		{"https://example.com/logo", models.RoleHeader},
		{"https://example.com/docs", models.RoleNavigation},
		{"https://example.com/nested", models.RoleNavigation}, // nav inside header is still navigation
		{"https://example.com/article", models.RoleContent},
		{"https://example.com/related", models.RoleSidebar},
		{"https://example.com/terms", models.RoleFooter},
		{"https://example.com/floating", models.RoleOther},
	}
	for _, tt := range tests {
		if got := findCandidate(t, candidates, tt.url).Role; got != tt.want {
			t.Errorf("role for %s = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestExtract_InternalExternal(t *testing.T) {
	html := `<body>
		<a href="/local">Local</a>
		<a href="https://www.example.com/www-variant">WWW</a>
		<a href="https://other.org/away">Away</a>
	</body>`
	candidates := NewExtractor(0, testLogger()).Extract(parseDoc(t, html), "https://example.com/")

	if c := findCandidate(t, candidates, "https://example.com/local"); !c.IsInternal {
		t.Error("root-relative link should be internal")
	}
	if c := findCandidate(t, candidates, "https://www.example.com/www-variant"); !c.IsInternal {
		t.Error("www variant should count as internal")
	}
	if c := findCandidate(t, candidates, "https://other.org/away"); c.IsInternal {
		t.Error("different host should be external")
	}
}

func TestExtract_DeduplicatesPreferringLongerAnchor(t *testing.T) {
	html := `<body>
		<a href="/pricing">Pricing</a>
		<a href="/pricing/">See our full pricing breakdown</a>
		<a href="/PRICING">P</a>
	</body>`
	candidates := NewExtractor(0, testLogger()).Extract(parseDoc(t, html), "https://example.com/")

	if len(candidates) != 1 {
		t.Fatalf("expected 1 deduplicated candidate, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].AnchorText != "See our full pricing breakdown" {
		t.Errorf("expected longest anchor text to win, got %q", candidates[0].AnchorText)
	}
}

func TestExtract_BaseHrefOverride(t *testing.T) {
	html := `<html><head><base href="https://docs.example.com/v2/"></head>
	<body><a href="install.html">Install</a></body></html>`
	candidates := NewExtractor(0, testLogger()).Extract(parseDoc(t, html), "https://example.com/page")

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].URL != "https://docs.example.com/v2/install.html" {
		t.Errorf("base href not honored: %s", candidates[0].URL)
	}
}

func TestExtract_PreservesOrder(t *testing.T) {
	html := `<body>
		<a href="/one">One</a>
		<a href="/two">Two</a>
		<a href="/three">Three</a>
	</body>`
	candidates := NewExtractor(0, testLogger()).Extract(parseDoc(t, html), "https://example.com/")

	want := []string{"https://example.com/one", "https://example.com/two", "https://example.com/three"}
	for i, u := range want {
		if candidates[i].URL != u {
			t.Errorf("position %d: got %s, want %s", i, candidates[i].URL, u)
		}
	}
}
