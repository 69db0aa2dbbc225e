package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/resolve"
)

const defaultMaxAnchorLen = 120

// Extractor walks parsed page markup and produces deduplicated link candidates
type Extractor struct {
	maxAnchorLen int
	log          *logrus.Entry
}

// NewExtractor creates an Extractor. maxAnchorLen bounds derived anchor text
// length in runes; <= 0 selects the default.
func NewExtractor(maxAnchorLen int, log *logrus.Entry) *Extractor {
	if maxAnchorLen <= 0 {
		maxAnchorLen = defaultMaxAnchorLen
	}
	return &Extractor{maxAnchorLen: maxAnchorLen, log: log}
}

// Extract finds all anchor-bearing elements in the document, resolves and
// filters their hrefs, and returns candidates deduplicated by normalized URL.
// When duplicates occur, the occurrence with the longer anchor text wins; the
// original encounter order is preserved.
func (e *Extractor) Extract(doc *goquery.Document, pageURL string) []models.LinkCandidate {
	page, err := url.Parse(pageURL)
	if err != nil || page.Host == "" {
		e.log.Warnf("Cannot parse page URL '%s', no candidates extracted", pageURL)
		return nil
	}

	// A declared <base href> overrides the page URL for relative resolution
	var baseDecl string
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		baseDecl = `<base href="` + href + `">`
	}

	var ordered []models.LinkCandidate
	index := make(map[string]int) // normalized URL -> position in ordered

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists {
			return
		}

		absolute := resolve.Resolve(href, pageURL, baseDecl)
		if absolute == "" {
			return // non-navigable scheme or unresolvable
		}

		linkURL, err := url.Parse(absolute)
		if err != nil || linkURL.Host == "" {
			e.log.Debugf("Skipping unparseable resolved link '%s'", absolute)
			return
		}

		key := resolve.Normalize(absolute)
		if key == "" {
			return
		}

		candidate := models.LinkCandidate{
			URL:        absolute,
			AnchorText: e.anchorText(sel, linkURL),
			IsInternal: resolve.SameSite(linkURL.Hostname(), page.Hostname()),
			Role:       classifyRole(sel),
		}

		if pos, found := index[key]; found {
			// Longer, more descriptive anchor text wins on duplicates
			if len(candidate.AnchorText) > len(ordered[pos].AnchorText) {
				ordered[pos] = candidate
			}
			return
		}
		index[key] = len(ordered)
		ordered = append(ordered, candidate)
	})

	e.log.Debugf("Extracted %d unique candidates from %s", len(ordered), pageURL)
	return ordered
}

// anchorText derives display text for a link, falling back through text
// content, title attribute, aria-label, child image alt, and finally a
// description synthesized from the URL path.
func (e *Extractor) anchorText(sel *goquery.Selection, linkURL *url.URL) string {
	if text := collapseSpace(sel.Text()); text != "" {
		return e.truncate(text)
	}
	if title, ok := sel.Attr("title"); ok {
		if title = collapseSpace(title); title != "" {
			return e.truncate(title)
		}
	}
	if label, ok := sel.Attr("aria-label"); ok {
		if label = collapseSpace(label); label != "" {
			return e.truncate(label)
		}
	}
	if alt, ok := sel.Find("img[alt]").First().Attr("alt"); ok {
		if alt = collapseSpace(alt); alt != "" {
			return e.truncate(alt)
		}
	}
	return e.truncate(describeURL(linkURL))
}

func (e *Extractor) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= e.maxAnchorLen {
		return s
	}
	return string(runes[:e.maxAnchorLen])
}

// describeURL synthesizes a readable description from the last path segment,
// falling back to the hostname for root links.
func describeURL(u *url.URL) string {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return u.Hostname()
	}
	// Strip a file extension and de-slugify
	if dot := strings.LastIndex(last, "."); dot > 0 {
		last = last[:dot]
	}
	last = strings.NewReplacer("-", " ", "_", " ").Replace(last)
	return collapseSpace(last)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Ancestor selectors checked in order; the first match decides the role
var roleSelectors = []struct {
	selector string
	role     models.StructuralRole
}{
	{`nav, [role="navigation"], .nav, .navbar, .menu`, models.RoleNavigation},
	{`aside, [role="complementary"], .sidebar, .side-nav`, models.RoleSidebar},
	{`footer, [role="contentinfo"], .footer`, models.RoleFooter},
	{`header, [role="banner"], .header, .masthead`, models.RoleHeader},
	{`main, article, [role="main"], .content, #content, .main-content`, models.RoleContent},
}

// classifyRole walks ancestor elements for semantic containers
func classifyRole(sel *goquery.Selection) models.StructuralRole {
	for _, rs := range roleSelectors {
		if sel.Closest(rs.selector).Length() > 0 {
			return rs.role
		}
	}
	return models.RoleOther
}
