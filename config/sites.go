package config

import (
	_ "embed"
	"net/url"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var defaultSitesYAML []byte

// Field names used as keys in site selector and precedence tables.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldPrice       = "price"
	FieldLocation    = "location"
	FieldDistrict    = "district"
	FieldCity        = "city"
	FieldSurface     = "surface"
	FieldRooms       = "rooms"
	FieldBedrooms    = "bedrooms"
	FieldBathrooms   = "bathrooms"
	FieldPhone       = "phone"
	FieldImages      = "images"
	FieldAge         = "age"
)

// Strategy kinds that may appear in a precedence list.
const (
	StrategyPayload   = "payload"
	StrategyMarker    = "marker"
	StrategySelectors = "selectors"
	StrategyText      = "text"
	StrategyReveal    = "reveal"
)

var knownStrategies = map[string]bool{
	StrategyPayload:   true,
	StrategyMarker:    true,
	StrategySelectors: true,
	StrategyText:      true,
	StrategyReveal:    true,
}

// DefaultPrecedence is used for any field without an explicit entry.
var DefaultPrecedence = []string{StrategyPayload, StrategySelectors, StrategyText}

// Site is the scraping profile of one marketplace.
type Site struct {
	Name       string              `yaml:"name"`
	BaseURL    string              `yaml:"base_url"`
	StartPath  string              `yaml:"start_path"`
	IDPattern  string              `yaml:"id_pattern"`
	Query      QueryParams         `yaml:"query"`
	Pagination Pagination          `yaml:"pagination"`
	Listing    ListingLinks        `yaml:"listing"`
	Fields     map[string]Field    `yaml:"fields"`
	Precedence map[string][]string `yaml:"precedence"`
	Payload    Payload             `yaml:"payload"`
	Images     Images              `yaml:"images"`
	Recency    Recency             `yaml:"recency"`
	Reveal     Reveal              `yaml:"reveal"`
}

// QueryParams names the query-string parameters a site uses for search filters.
type QueryParams struct {
	MinPrice     string            `yaml:"min_price"`
	MaxPrice     string            `yaml:"max_price"`
	Transaction  string            `yaml:"transaction"`
	Transactions map[string]string `yaml:"transactions"`
}

// Pagination describes how a site exposes further result pages.
type Pagination struct {
	PageParam        string `yaml:"page_param"`
	NextSelector     string `yaml:"next_selector"`
	DisabledClass    string `yaml:"disabled_class"`
	EmptyFirstPageOK bool   `yaml:"empty_first_page_ok"`
}

// ListingLinks describes how candidate detail-page links are found.
type ListingLinks struct {
	LinkSelector    string   `yaml:"link_selector"`
	IncludePattern  string   `yaml:"include_pattern"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// Field holds the ordered element selectors for one field.
type Field struct {
	Selectors []string `yaml:"selectors"`
	Attr      string   `yaml:"attr"`
	MinLength int      `yaml:"min_length"`
}

// Payload locates a structured JSON blob in the page and maps fields to
// dot-separated paths inside it.
type Payload struct {
	ScriptSelectors []string            `yaml:"script_selectors"`
	Paths           map[string][]string `yaml:"paths"`
}

// Images configures gallery extraction.
type Images struct {
	GallerySelectors []string `yaml:"gallery_selectors"`
	Attrs            []string `yaml:"attrs"`
	ExcludeKeywords  []string `yaml:"exclude_keywords"`
}

// Recency enables the listing-age filter for sites showing relative ages.
type Recency struct {
	Enabled   bool     `yaml:"enabled"`
	Selectors []string `yaml:"selectors"`
}

// Reveal configures the masked phone number workflow.
type Reveal struct {
	Enabled      bool          `yaml:"enabled"`
	Controls     []string      `yaml:"controls"`
	Modal        string        `yaml:"modal"`
	Input        string        `yaml:"input"`
	InputValue   string        `yaml:"input_value"`
	Submit       string        `yaml:"submit"`
	Link         string        `yaml:"link"`
	StepTimeout  time.Duration `yaml:"step_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollAttempts int           `yaml:"poll_attempts"`
}

// SiteSet is the collection of configured site profiles keyed by name.
type SiteSet map[string]Site

// Names returns the configured site names in sorted order.
func (s SiteSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named profile.
func (s SiteSet) Get(name string) (Site, error) {
	site, ok := s[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Site{}, eris.Errorf("config: unknown site %q (known: %s)", name, strings.Join(s.Names(), ", "))
	}
	return site, nil
}

// LoadSites reads site profiles from path, or the embedded defaults when
// path is empty.
func LoadSites(path string) (SiteSet, error) {
	data := defaultSitesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "config: read sites file %q", path)
		}
		data = b
	}
	return ParseSites(data)
}

// ParseSites decodes and validates a YAML document holding a `sites` list.
func ParseSites(data []byte) (SiteSet, error) {
	var doc struct {
		Sites []Site `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "config: parse sites")
	}
	if len(doc.Sites) == 0 {
		return nil, eris.New("config: no sites defined")
	}

	set := make(SiteSet, len(doc.Sites))
	for _, site := range doc.Sites {
		site.applyDefaults()
		if err := site.Validate(); err != nil {
			return nil, err
		}
		set[site.Name] = site
	}
	return set, nil
}

func (s *Site) applyDefaults() {
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.Pagination.PageParam == "" {
		s.Pagination.PageParam = "page"
	}
	if s.Pagination.DisabledClass == "" {
		s.Pagination.DisabledClass = "disabled"
	}
	if len(s.Listing.ExcludePatterns) == 0 {
		s.Listing.ExcludePatterns = []string{"login", "register", "signup", "sign-up", "connexion", "inscription", "auth"}
	}
	if len(s.Images.Attrs) == 0 {
		s.Images.Attrs = []string{"src", "data-src", "data-lazy", "data-original"}
	}
	if len(s.Images.ExcludeKeywords) == 0 {
		s.Images.ExcludeKeywords = []string{"logo", "icon", "avatar", "marker", "sprite", "placeholder", "pin", ".svg"}
	}
	if s.Fields == nil {
		s.Fields = map[string]Field{}
	}
	if d, ok := s.Fields[FieldDescription]; ok && d.MinLength == 0 {
		d.MinLength = 30
		s.Fields[FieldDescription] = d
	}
	if s.Reveal.StepTimeout == 0 {
		s.Reveal.StepTimeout = 8 * time.Second
	}
	if s.Reveal.PollInterval == 0 {
		s.Reveal.PollInterval = 500 * time.Millisecond
	}
	if s.Reveal.PollAttempts == 0 {
		s.Reveal.PollAttempts = 10
	}
	if s.Reveal.InputValue == "" {
		s.Reveal.InputValue = "Visiteur"
	}
	if s.Reveal.Link == "" {
		s.Reveal.Link = `a[href^="tel:"]`
	}
}

// Validate checks that a profile is usable.
func (s Site) Validate() error {
	if s.Name == "" {
		return eris.New("config: site without name")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return eris.Errorf("config: site %q has invalid base_url %q", s.Name, s.BaseURL)
	}
	if s.Listing.LinkSelector == "" {
		return eris.Errorf("config: site %q has no listing.link_selector", s.Name)
	}
	for field, kinds := range s.Precedence {
		for _, k := range kinds {
			if !knownStrategies[k] {
				return eris.Errorf("config: site %q field %q: unknown strategy %q", s.Name, field, k)
			}
		}
	}
	if s.Reveal.Enabled && (len(s.Reveal.Controls) == 0 || s.Reveal.Submit == "") {
		return eris.Errorf("config: site %q enables reveal without controls or submit selector", s.Name)
	}
	if s.Reveal.Enabled && !slices.Contains(s.PrecedenceFor(FieldPhone), StrategyReveal) {
		return eris.Errorf("config: site %q enables reveal but precedence.phone has no %q", s.Name, StrategyReveal)
	}
	return nil
}

// PrecedenceFor returns the strategy order for field.
func (s Site) PrecedenceFor(field string) []string {
	if p, ok := s.Precedence[field]; ok && len(p) > 0 {
		return p
	}
	return DefaultPrecedence
}

// StartURL returns the absolute URL of the first result page.
func (s Site) StartURL() string {
	return s.BaseURL + s.StartPath
}
