package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"property-scraper/config"
)

// Payload is the set of structured JSON blobs embedded in a page, such as a
// framework hydration script or JSON-LD, together with the per-field paths
// that locate values inside them.
type Payload struct {
	docs  []gjson.Result
	paths map[string][]string
}

// ParsePayload collects every script matched by the profile's selectors that
// holds valid JSON. Top-level arrays and JSON-LD @graph lists are flattened
// so each element is searched on its own.
func ParsePayload(p *Page, cfg config.Payload) *Payload {
	pl := &Payload{paths: cfg.Paths}
	for _, sel := range cfg.ScriptSelectors {
		p.Doc().Find(sel).Each(func(_ int, s *goquery.Selection) {
			raw := strings.TrimSpace(s.Text())
			if raw == "" || !gjson.Valid(raw) {
				return
			}
			pl.add(gjson.Parse(raw))
		})
	}
	return pl
}

func (pl *Payload) add(doc gjson.Result) {
	switch {
	case doc.IsArray():
		for _, el := range doc.Array() {
			pl.add(el)
		}
	case doc.IsObject():
		pl.docs = append(pl.docs, doc)
		doc.ForEach(func(key, value gjson.Result) bool {
			if key.String() == "@graph" && value.IsArray() {
				pl.add(value)
			}
			return true
		})
	}
}

// Empty reports whether no structured data was found.
func (pl *Payload) Empty() bool { return len(pl.docs) == 0 }

// lookup returns the first existing, non-null value for field, trying each
// configured path against each document in order.
func (pl *Payload) lookup(field string) (gjson.Result, bool) {
	for _, path := range pl.paths[field] {
		for _, doc := range pl.docs {
			if v := doc.Get(path); v.Exists() && v.Type != gjson.Null {
				return v, true
			}
		}
	}
	return gjson.Result{}, false
}

// String returns field as text. Arrays yield their first usable element and
// objects their url, src or href member.
func (pl *Payload) String(field string) (string, bool) {
	v, ok := pl.lookup(field)
	if !ok {
		return "", false
	}
	s := scalar(v)
	return s, s != ""
}

// Strings returns field as a list of texts; a single value becomes a list of one.
func (pl *Payload) Strings(field string) ([]string, bool) {
	v, ok := pl.lookup(field)
	if !ok {
		return nil, false
	}
	var out []string
	if v.IsArray() {
		for _, el := range v.Array() {
			if s := scalar(el); s != "" {
				out = append(out, s)
			}
		}
	} else if s := scalar(v); s != "" {
		out = append(out, s)
	}
	return out, len(out) > 0
}

// Text is a resolver over String.
func (pl *Payload) Text(field string) Resolver[string] {
	return func(*Page) (string, bool) { return pl.String(field) }
}

// List is a resolver over Strings.
func (pl *Payload) List(field string) Resolver[[]string] {
	return func(*Page) ([]string, bool) { return pl.Strings(field) }
}

func scalar(v gjson.Result) string {
	switch {
	case v.IsArray():
		for _, el := range v.Array() {
			if s := scalar(el); s != "" {
				return s
			}
		}
		return ""
	case v.IsObject():
		for _, key := range []string{"url", "src", "href", "value"} {
			if m := v.Get(key); m.Exists() && !m.IsObject() && !m.IsArray() {
				return CollapseSpace(m.String())
			}
		}
		return ""
	case v.Type == gjson.Null:
		return ""
	}
	return CollapseSpace(v.String())
}
