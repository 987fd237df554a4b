// Package extract resolves PropertyRecord fields from a static snapshot of a
// listing page. Every resolver is a pure function of the snapshot, so the
// same page always yields the same record.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Page is an immutable snapshot of a rendered page.
type Page struct {
	URL  string
	base *url.URL
	doc  *goquery.Document

	bodyText string
	scripts  []string
}

// NewPage parses html captured from rawURL.
func NewPage(rawURL, html string) (*Page, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse page url %q", rawURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if txt := strings.TrimSpace(s.Text()); txt != "" {
			scripts = append(scripts, txt)
		}
	})

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()

	return &Page{
		URL:      rawURL,
		base:     base,
		doc:      doc,
		bodyText: CollapseSpace(body.Text()),
		scripts:  scripts,
	}, nil
}

// Doc exposes the parsed document for read-only queries.
func (p *Page) Doc() *goquery.Document { return p.doc }

// BodyText is the visible text of the page with whitespace collapsed.
func (p *Page) BodyText() string { return p.bodyText }

// Scripts returns the non-empty inline script bodies in document order.
func (p *Page) Scripts() []string { return p.scripts }

// SelectText tries selectors in order and returns the first element text
// that is non-empty, at least minLen runes long and contains a letter or digit.
func (p *Page) SelectText(selectors []string, minLen int) (string, bool) {
	for _, sel := range selectors {
		var found string
		p.doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			txt := CollapseSpace(s.Text())
			if meaningful(txt, minLen) {
				found = txt
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// SelectAttr tries selectors in order and returns the first non-empty value
// of attr.
func (p *Page) SelectAttr(selectors []string, attr string) (string, bool) {
	for _, sel := range selectors {
		var found string
		p.doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				found = strings.TrimSpace(v)
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// Meta returns the content of the first <meta> whose property or name is key.
func (p *Page) Meta(key string) (string, bool) {
	var found string
	p.doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		if strings.EqualFold(prop, key) || strings.EqualFold(name, key) {
			if c, ok := s.Attr("content"); ok && strings.TrimSpace(c) != "" {
				found = CollapseSpace(c)
				return false
			}
		}
		return true
	})
	return found, found != ""
}

// Resolve turns ref into an absolute URL against the page URL.
func (p *Page) Resolve(ref string) string {
	return ResolveURL(p.base, ref)
}

// ResolveURL resolves ref against base; it returns "" for refs that cannot
// be parsed or are not http(s) once resolved.
func ResolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

var (
	spaceRe      = regexp.MustCompile(`\s+`)
	alphanumRe   = regexp.MustCompile(`[\p{L}\p{N}]`)
	firstIntRe   = regexp.MustCompile(`\d+`)
	firstFloatRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// CollapseSpace trims s and collapses internal whitespace runs, newlines
// included, to a single space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func meaningful(s string, minLen int) bool {
	if s == "" || !alphanumRe.MatchString(s) {
		return false
	}
	return len([]rune(s)) >= minLen
}
