package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"property-scraper/config"
	"property-scraper/models"
)

// Hints carries values obtained by interacting with the live page before the
// snapshot was taken.
type Hints struct {
	RevealedPhone string
}

// Extractor resolves records for one site profile. It holds no mutable
// state, so a single Extractor may be shared by concurrent workers.
type Extractor struct {
	site    config.Site
	country string
	idRe    *regexp.Regexp
}

// NewExtractor prepares an Extractor for site. country is appended to every
// assembled address.
func NewExtractor(site config.Site, country string) (*Extractor, error) {
	e := &Extractor{site: site, country: country}
	if site.IDPattern != "" {
		re, err := regexp.Compile(site.IDPattern)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: site %q id_pattern", site.Name)
		}
		e.idRe = re
	}
	return e, nil
}

// Site returns the profile the Extractor was built for.
func (e *Extractor) Site() config.Site { return e.site }

// Extract builds a best-effort record from the snapshot. Each field is
// resolved on its own through the site's strategy order; a field no strategy
// can fill is left at its zero value. Coordinates are only set when the page
// scripts carry them.
func (e *Extractor) Extract(p *Page, hints Hints) *models.PropertyRecord {
	pl := ParsePayload(p, e.site.Payload)
	rec := &models.PropertyRecord{
		SourceURL:  p.URL,
		SourceSite: e.site.Name,
	}

	rec.ID = e.resolveID(p, pl)
	rec.Title, _ = e.textChain(config.FieldTitle, pl, titleFromMeta, nil)(p)
	rec.Description, _ = e.textChain(config.FieldDescription, pl, descriptionFromMeta, nil)(p)

	rec.PriceRaw, _ = e.textChain(config.FieldPrice, pl, func(p *Page) (string, bool) {
		return PriceFromText(p.BodyText())
	}, nil)(p)
	rec.PriceNormalized = NormalizePrice(rec.PriceRaw)

	rec.LocationRaw, _ = e.textChain(config.FieldLocation, pl, nil, nil)(p)
	splitDistrict, splitCity := SplitLocation(rec.LocationRaw)
	rec.District, _ = e.textChain(config.FieldDistrict, pl, Const(splitDistrict, splitDistrict != ""), nil)(p)
	rec.City, _ = e.textChain(config.FieldCity, pl, Const(splitCity, splitCity != ""), nil)(p)
	rec.FullAddress = AssembleAddress(rec.District, rec.City, rec.LocationRaw, e.country)

	if lat, lon, ok := CoordinatesFromScripts(p.Scripts()); ok {
		rec.Latitude, rec.Longitude = lat, lon
		rec.GeoSource = models.GeoSourcePageScript
	}

	prose := []string{rec.Title, rec.Description}

	rec.Surface, _ = e.floatChain(config.FieldSurface, pl, func(*Page) (float64, bool) {
		return firstFromTexts(prose, SurfaceFromText)
	})(p)
	rec.Bathrooms, _ = e.intChain(config.FieldBathrooms, pl, func(*Page) (int, bool) {
		return firstFromTexts(prose, BathroomsFromText)
	})(p)

	rooms, _ := e.roomChain(pl, prose)(p)
	if rooms.Bedrooms == 0 {
		rooms.Bedrooms, _ = e.intChain(config.FieldBedrooms, pl, nil)(p)
	}
	rooms = rooms.DefaultBedrooms()
	rec.Rooms, rec.Bedrooms = rooms.Rooms, rooms.Bedrooms

	rec.ContactPhone, _ = e.phoneChain(pl, hints, rec.Description)(p)

	rec.ImageURLs, _ = e.imageChain(pl)(p)
	if len(rec.ImageURLs) > 0 {
		rec.MainImageURL = rec.ImageURLs[0]
	}

	rec.AgeText, _ = e.AgeText(p)
	return rec
}

// AgeText returns the relative-age string shown on the page, if any.
func (e *Extractor) AgeText(p *Page) (string, bool) {
	if txt, ok := p.SelectText(e.site.Recency.Selectors, 1); ok {
		return txt, true
	}
	if f, ok := e.site.Fields[config.FieldAge]; ok {
		return p.SelectText(f.Selectors, 1)
	}
	return "", false
}

// textChain assembles the resolver for a text field in site order. text is
// the free-text heuristic and reveal the interactive strategy; either may be
// nil when the field has none.
func (e *Extractor) textChain(field string, pl *Payload, text, reveal Resolver[string]) Resolver[string] {
	var chain []Resolver[string]
	for _, kind := range e.site.PrecedenceFor(field) {
		switch kind {
		case config.StrategyPayload:
			chain = append(chain, pl.Text(field))
		case config.StrategySelectors, config.StrategyMarker:
			chain = append(chain, e.selectorText(field))
		case config.StrategyText:
			chain = append(chain, text)
		case config.StrategyReveal:
			chain = append(chain, reveal)
		}
	}
	return FirstOf(chain...)
}

func (e *Extractor) selectorText(field string) Resolver[string] {
	f, ok := e.site.Fields[field]
	if !ok || len(f.Selectors) == 0 {
		return nil
	}
	return func(p *Page) (string, bool) {
		if f.Attr != "" {
			return p.SelectAttr(f.Selectors, f.Attr)
		}
		return p.SelectText(f.Selectors, max(f.MinLength, 1))
	}
}

func (e *Extractor) intChain(field string, pl *Payload, text Resolver[int]) Resolver[int] {
	var chain []Resolver[int]
	for _, kind := range e.site.PrecedenceFor(field) {
		switch kind {
		case config.StrategyPayload:
			chain = append(chain, Map(pl.Text(field), FirstInt))
		case config.StrategySelectors, config.StrategyMarker:
			chain = append(chain, Map(e.selectorText(field), FirstInt))
		case config.StrategyText:
			chain = append(chain, text)
		}
	}
	return FirstOf(chain...)
}

func (e *Extractor) floatChain(field string, pl *Payload, text Resolver[float64]) Resolver[float64] {
	var chain []Resolver[float64]
	for _, kind := range e.site.PrecedenceFor(field) {
		switch kind {
		case config.StrategyPayload:
			chain = append(chain, Map(pl.Text(field), FirstFloat))
		case config.StrategySelectors, config.StrategyMarker:
			chain = append(chain, Map(e.selectorText(field), FirstFloat))
		case config.StrategyText:
			chain = append(chain, text)
		}
	}
	return FirstOf(chain...)
}

// roomChain resolves the room count. An explicit count from the payload or a
// marker element sets rooms only; the text rules may set both counts.
func (e *Extractor) roomChain(pl *Payload, prose []string) Resolver[RoomInfo] {
	explicit := func(n int) (RoomInfo, bool) { return RoomInfo{Rooms: n}, true }

	var chain []Resolver[RoomInfo]
	for _, kind := range e.site.PrecedenceFor(config.FieldRooms) {
		switch kind {
		case config.StrategyPayload:
			chain = append(chain, Map(Map(pl.Text(config.FieldRooms), FirstInt), explicit))
		case config.StrategySelectors, config.StrategyMarker:
			chain = append(chain, Map(Map(e.selectorText(config.FieldRooms), FirstInt), explicit))
		case config.StrategyText:
			chain = append(chain, func(*Page) (RoomInfo, bool) {
				return firstFromTexts(prose, InferRooms)
			})
		}
	}
	return FirstOf(chain...)
}

func (e *Extractor) phoneChain(pl *Payload, hints Hints, description string) Resolver[string] {
	revealed := Map(Const(hints.RevealedPhone, hints.RevealedPhone != ""), NormalizePhone)
	text := func(p *Page) (string, bool) {
		return firstFromTexts([]string{description, p.BodyText()}, PhoneFromText)
	}

	var chain []Resolver[string]
	for _, kind := range e.site.PrecedenceFor(config.FieldPhone) {
		switch kind {
		case config.StrategyPayload:
			chain = append(chain, Map(pl.Text(config.FieldPhone), NormalizePhone))
		case config.StrategySelectors, config.StrategyMarker:
			chain = append(chain, Map(e.selectorText(config.FieldPhone), func(s string) (string, bool) {
				if n, ok := NormalizePhone(s); ok {
					return n, true
				}
				return PhoneFromText(s)
			}))
		case config.StrategyText:
			chain = append(chain, text)
		case config.StrategyReveal:
			chain = append(chain, revealed)
		}
	}
	return FirstOf(chain...)
}

func (e *Extractor) imageChain(pl *Payload) Resolver[[]string] {
	var chain []Resolver[[]string]
	for _, kind := range e.site.PrecedenceFor(config.FieldImages) {
		switch kind {
		case config.StrategyPayload:
			list := pl.List(config.FieldImages)
			chain = append(chain, func(p *Page) ([]string, bool) {
				refs, ok := list(p)
				if !ok {
					return nil, false
				}
				return ResolveAll(p, refs)
			})
		case config.StrategySelectors, config.StrategyMarker:
			chain = append(chain, func(p *Page) ([]string, bool) {
				return GalleryImages(p, e.site.Images)
			})
		case config.StrategyText:
			chain = append(chain, func(p *Page) ([]string, bool) {
				return GenericImages(p, e.site.Images)
			})
		}
	}
	return FirstOf(chain...)
}

// resolveID prefers the payload id, then the profile's id pattern applied to
// the URL, then the last path segment.
func (e *Extractor) resolveID(p *Page, pl *Payload) string {
	if id, ok := pl.String(config.FieldID); ok {
		return id
	}
	if e.idRe != nil {
		if m := e.idRe.FindStringSubmatch(p.URL); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return ""
	}
	last := path.Base(strings.TrimRight(u.Path, "/"))
	if last == "." || last == "/" {
		return ""
	}
	return last
}

func titleFromMeta(p *Page) (string, bool) {
	if t, ok := p.Meta("og:title"); ok {
		return stripSiteSuffix(t), true
	}
	t := CollapseSpace(p.Doc().Find("title").First().Text())
	if !meaningful(t, 1) {
		return "", false
	}
	return stripSiteSuffix(t), true
}

func descriptionFromMeta(p *Page) (string, bool) {
	for _, key := range []string{"og:description", "description"} {
		if d, ok := p.Meta(key); ok && meaningful(d, 30) {
			return d, true
		}
	}
	return "", false
}

func stripSiteSuffix(t string) string {
	if i := strings.LastIndex(t, " | "); i > 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}

func firstFromTexts[T any](texts []string, fn func(string) (T, bool)) (T, bool) {
	for _, t := range texts {
		if t == "" {
			continue
		}
		if v, ok := fn(t); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
