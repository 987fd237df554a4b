// Package geocode turns listing addresses into coordinates. Every record
// ends up with a position: page-script coordinates win, then the external
// geocoder, then a static gazetteer, then the capital.
package geocode

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Place is a named fixed position.
type Place struct {
	Name string
	Lat  float64
	Lon  float64
}

// Gazetteer maps locality names to fixed coordinates. It is immutable after
// construction and safe to share between workers.
type Gazetteer struct {
	places  []Place
	capital Place
}

// NewGazetteer builds a gazetteer over places with capital as the default.
// Names are matched case- and accent-insensitively, longest first.
func NewGazetteer(places []Place, capital Place) *Gazetteer {
	sorted := make([]Place, len(places))
	for i, p := range places {
		p.Name = fold(strings.TrimSpace(p.Name))
		sorted[i] = p
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].Name) != len(sorted[j].Name) {
			return len(sorted[i].Name) > len(sorted[j].Name)
		}
		return sorted[i].Name < sorted[j].Name
	})
	return &Gazetteer{places: sorted, capital: capital}
}

// Capital is the fallback position.
func (g *Gazetteer) Capital() Place { return g.capital }

// Lookup returns the longest known name contained in text as a whole word.
func (g *Gazetteer) Lookup(text string) (Place, bool) {
	s := fold(text)
	if strings.TrimSpace(s) == "" {
		return Place{}, false
	}
	for _, p := range g.places {
		if containsWord(s, p.Name) {
			return p, true
		}
	}
	return Place{}, false
}

// fold lowercases s and strips diacritics, so "Gabès" matches "gabes".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// containsWord reports whether name occurs in s with no letter or digit
// directly before or after it, so "tunis" does not match "tunisia".
func containsWord(s, name string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], name)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(name)
		if !wordRune(lastRune(s[:start])) && !wordRune(firstRune(s[end:])) {
			return true
		}
		from = start + 1
	}
}

func wordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return ' '
}

func lastRune(s string) rune {
	r := ' '
	for _, c := range s {
		r = c
	}
	return r
}

// Tunis is the default capital.
var Tunis = Place{Name: "tunis", Lat: 36.8065, Lon: 10.1815}

// TunisiaGazetteer covers the governorates and the coastal districts that
// dominate listings.
func TunisiaGazetteer() *Gazetteer {
	return NewGazetteer([]Place{
		Tunis,
		{"ariana", 36.8665, 10.1647},
		{"ben arous", 36.7531, 10.2189},
		{"manouba", 36.8101, 10.0863},
		{"la marsa", 36.8782, 10.3247},
		{"carthage", 36.8528, 10.3233},
		{"sidi bou said", 36.8687, 10.3416},
		{"la goulette", 36.8181, 10.3050},
		{"gammarth", 36.9170, 10.2870},
		{"lac 1", 36.8327, 10.2330},
		{"lac 2", 36.8450, 10.2730},
		{"les berges du lac", 36.8380, 10.2400},
		{"ennasr", 36.8581, 10.1647},
		{"el menzah", 36.8400, 10.1700},
		{"la soukra", 36.8750, 10.2330},
		{"sousse", 35.8256, 10.6084},
		{"sfax", 34.7406, 10.7603},
		{"nabeul", 36.4561, 10.7376},
		{"hammamet", 36.4000, 10.6167},
		{"monastir", 35.7643, 10.8113},
		{"mahdia", 35.5047, 11.0622},
		{"bizerte", 37.2744, 9.8739},
		{"kairouan", 35.6781, 10.0963},
		{"gabes", 33.8815, 10.0982},
		{"djerba", 33.8076, 10.8451},
		{"medenine", 33.3549, 10.5055},
		{"tozeur", 33.9197, 8.1335},
		{"gafsa", 34.4250, 8.7842},
		{"beja", 36.7256, 9.1817},
		{"jendouba", 36.5011, 8.7802},
		{"le kef", 36.1742, 8.7049},
		{"el kef", 36.1742, 8.7049},
		{"kef", 36.1742, 8.7049},
		{"siliana", 36.0849, 9.3708},
		{"zaghouan", 36.4029, 10.1429},
		{"kasserine", 35.1676, 8.8365},
		{"sidi bouzid", 35.0382, 9.4849},
		{"tataouine", 32.9297, 10.4518},
		{"kebili", 33.7044, 8.9690},
	}, Tunis)
}
