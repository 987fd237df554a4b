package extract

import (
	"regexp"
	"strings"
)

var locationSplitRe = regexp.MustCompile(`\s*(?:,|\s-\s|\|)\s*`)

// SplitLocation reads "District, City" style location text. A single part is
// taken as the district.
func SplitLocation(raw string) (district, city string) {
	var parts []string
	for _, p := range locationSplitRe.Split(CollapseSpace(raw), -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], parts[len(parts)-1]
}

// AssembleAddress builds the geocoding query: the district, the city when it
// differs from the district, or failing both the first fragment of the raw
// location text, always followed by the country.
func AssembleAddress(district, city, locationRaw, country string) string {
	district = CollapseSpace(district)
	city = CollapseSpace(city)
	country = CollapseSpace(country)

	var parts []string
	if district != "" {
		parts = append(parts, district)
	}
	if city != "" && !strings.EqualFold(city, district) {
		parts = append(parts, city)
	}
	if len(parts) == 0 {
		if frag, _ := SplitLocation(locationRaw); frag != "" {
			parts = append(parts, frag)
		}
	}
	if country != "" && (len(parts) == 0 || !strings.EqualFold(parts[len(parts)-1], country)) {
		parts = append(parts, country)
	}
	return CollapseSpace(strings.Join(parts, ", "))
}
