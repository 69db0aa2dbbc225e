package resolve

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Schemes that can never be dereferenced by the validation engine
var nonNavigablePrefixes = []string{"javascript:", "mailto:", "tel:", "data:"}

var baseHrefPattern = regexp.MustCompile(`(?i)<base[^>]*\bhref\s*=\s*["']?([^"'\s>]+)`)

// Resolve converts a possibly-relative href plus the page's absolute URL into
// an absolute, dereferenceable URL. Returns "" for non-navigable schemes
// (javascript:, mailto:, tel:, data:) and empty/whitespace hrefs.
//
// rawMarkup is optional; when it contains a <base href> declaration, that base
// overrides the page URL's authority/path for relative resolution.
//
// Resolve is pure and idempotent: an already-absolute http(s) URL passes
// through unchanged.
func Resolve(href, pageURL, rawMarkup string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	lower := strings.ToLower(href)
	for _, prefix := range nonNavigablePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	// Already-absolute http(s) URLs pass through unchanged
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return href
	}

	// Protocol-relative URLs complete with https
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return ""
	}

	// An in-markup base declaration overrides the page URL for relative hrefs
	if rawMarkup != "" {
		if m := baseHrefPattern.FindStringSubmatch(rawMarkup); m != nil {
			if declared, err := base.Parse(m[1]); err == nil && declared.Host != "" {
				base = declared
			}
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	// ResolveReference covers the remaining cases: fragment-only and
	// query-only against the base path, root-relative against the authority,
	// and ./ ../ segment handling
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// Normalize produces the canonical comparison key for deduplication:
// lowercased scheme/host/path/query, default ports stripped, trailing slash
// trimmed (except root), fragment dropped. Two candidates are duplicates
// exactly when their keys match. Returns "" for unparseable input.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)

	// Strip default ports
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = h
		}
	}

	path := strings.ToLower(u.EscapedPath())
	if path == "" {
		path = "/"
	} else if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}

	key := scheme + "://" + host + path
	if u.RawQuery != "" {
		key += "?" + strings.ToLower(u.RawQuery)
	}
	return key
}

// SameSite reports whether two hostnames belong to the same site, treating
// "www." and bare-domain variants as equivalent.
func SameSite(hostA, hostB string) bool {
	a := strings.ToLower(strings.TrimPrefix(hostA, "www."))
	b := strings.ToLower(strings.TrimPrefix(hostB, "www."))
	return a != "" && a == b
}
