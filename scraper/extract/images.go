package extract

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"property-scraper/config"
)

// GalleryImages collects images from the profile's dedicated gallery
// structures. Gallery markup is trusted, so no keyword filter is applied.
func GalleryImages(p *Page, cfg config.Images) ([]string, bool) {
	var out []string
	for _, sel := range cfg.GallerySelectors {
		out = append(out, imageRefs(p, p.Doc().Find(sel), cfg.Attrs, nil)...)
	}
	out = DedupeURLs(out)
	return out, len(out) > 0
}

// GenericImages is the fallback over every <img> on the page, dropping
// anything whose URL looks like a logo, icon, avatar or map marker.
func GenericImages(p *Page, cfg config.Images) ([]string, bool) {
	out := DedupeURLs(imageRefs(p, p.Doc().Find("img"), cfg.Attrs, cfg.ExcludeKeywords))
	return out, len(out) > 0
}

// ResolveAll makes every reference absolute against the page URL, dropping
// those that cannot be resolved.
func ResolveAll(p *Page, refs []string) ([]string, bool) {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if u := p.Resolve(ref); u != "" {
			out = append(out, u)
		}
	}
	out = DedupeURLs(out)
	return out, len(out) > 0
}

// DedupeURLs removes repeats while keeping first-seen order.
func DedupeURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func imageRefs(p *Page, sel *goquery.Selection, attrs, exclude []string) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		for _, attr := range attrs {
			v, ok := s.Attr(attr)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			u := p.Resolve(v)
			if u == "" || excluded(u, exclude) {
				return
			}
			out = append(out, u)
			return
		}
	})
	return out
}

// excluded matches alphabetic keywords against the URL's letter runs, so
// "pin" rejects "map-pin.png" but not "shopping.jpg". A keyword holding
// any other character, such as ".svg", is matched as a substring.
func excluded(u string, keywords []string) bool {
	lower := strings.ToLower(u)
	var tokens []string
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.IndexFunc(kw, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		if tokens == nil {
			tokens = strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
		}
		for _, tok := range tokens {
			if tok == kw || tok == kw+"s" {
				return true
			}
		}
	}
	return false
}
