// Package recency decides whether a listing is recent enough to extract,
// based on the relative-age text sites print next to each listing.
package recency

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// UnparsedPolicy says what to do with age text that cannot be read.
type UnparsedPolicy string

const (
	KeepUnparsed UnparsedPolicy = "keep"
	DropUnparsed UnparsedPolicy = "drop"
)

// ParseUnparsedPolicy reads a policy name; the empty string means keep.
func ParseUnparsedPolicy(s string) (UnparsedPolicy, error) {
	switch UnparsedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeepUnparsed:
		return KeepUnparsed, nil
	case DropUnparsed:
		return DropUnparsed, nil
	}
	return "", eris.Errorf("recency: unknown unparsed-age policy %q", s)
}

// Decision is the outcome of filtering one listing.
type Decision struct {
	Keep    bool
	Parsed  bool
	AgeDays int
	Reason  string
}

// Filter keeps listings whose age in days is at most MaxAgeDays.
type Filter struct {
	MaxAgeDays int
	Unparsed   UnparsedPolicy
}

// NewFilter returns a Filter with the given threshold and policy.
func NewFilter(maxAgeDays int, policy UnparsedPolicy) *Filter {
	return &Filter{MaxAgeDays: maxAgeDays, Unparsed: policy}
}

// Decide applies the filter to raw age text.
func (f *Filter) Decide(ageText string) Decision {
	days, ok := AgeInDays(ageText)
	if !ok {
		keep := f.Unparsed != DropUnparsed
		return Decision{Keep: keep, Reason: "unparsed age " + strconv.Quote(ageText) + ", policy " + string(f.policy())}
	}
	if days > f.MaxAgeDays {
		return Decision{Keep: false, Parsed: true, AgeDays: days,
			Reason: strconv.Itoa(days) + " days old exceeds " + strconv.Itoa(f.MaxAgeDays)}
	}
	return Decision{Keep: true, Parsed: true, AgeDays: days}
}

func (f *Filter) policy() UnparsedPolicy {
	if f.Unparsed == "" {
		return KeepUnparsed
	}
	return f.Unparsed
}

var (
	leadInRe = regexp.MustCompile(`^(?:publiée?s?|posted|mis(?:e)? en ligne|ajoutée?|added|updated|mise à jour)\s*:?\s*`)
	ageRe    = regexp.MustCompile(`(\d+)\s*(minutes?|mins?|heures?|hours?|h|jours?|days?|j|semaines?|weeks?|mois|months?|ans?|années?|years?)\b`)

	// Phrases that always count as recent, whatever the threshold.
	recentPhrases = []string{
		"aujourd'hui", "aujourd’hui", "today",
		"hier", "yesterday",
		"il y a une heure", "une heure", "an hour ago",
		"à l'instant", "à l’instant", "just now",
		"quelques minutes", "few minutes",
	}
)

// AgeInDays converts relative-age text such as "il y a 3 jours",
// "Tunis, 2 weeks ago" or "Aujourd'hui" to whole days. Literal phrases such
// as today or yesterday and any count of minutes or hours give zero days;
// weeks count as seven days, months as thirty and years as 365.
func AgeInDays(text string) (int, bool) {
	s := normalize(text)
	if s == "" {
		return 0, false
	}
	for _, phrase := range recentPhrases {
		if strings.Contains(s, phrase) {
			return 0, true
		}
	}

	m := ageRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "min"), strings.HasPrefix(unit, "heure"), strings.HasPrefix(unit, "hour"), unit == "h":
		return 0, true
	case strings.HasPrefix(unit, "jour"), strings.HasPrefix(unit, "day"), unit == "j":
		return n, true
	case strings.HasPrefix(unit, "semaine"), strings.HasPrefix(unit, "week"):
		return n * 7, true
	case unit == "mois", strings.HasPrefix(unit, "month"):
		return n * 30, true
	case strings.HasPrefix(unit, "an"), strings.HasPrefix(unit, "year"):
		return n * 365, true
	}
	return 0, false
}

// normalize lowercases, keeps the segment after the last comma so that
// "Sousse, il y a 2 jours" reads as "il y a 2 jours", and strips lead-ins.
func normalize(text string) string {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if i := strings.LastIndex(s, ","); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	s = leadInRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "il y a ")
	s = strings.TrimPrefix(s, "depuis ")
	return strings.TrimSpace(s)
}
