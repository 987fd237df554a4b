package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRunRe    = regexp.MustCompile(`\d[\d\s\x{00a0}\x{202f}.,']*`)
	decimalTailRe = regexp.MustCompile(`[.,]\d{1,2}$`)
	priceInTextRe = regexp.MustCompile(`(?i)(\d[\d\s\x{00a0}\x{202f}.,]*\d|\d)\s*(?:dt|tnd|dinars?|d\.t\.?)\b`)

	sPlusRe     = regexp.MustCompile(`(?i)\bs\s*\+\s*(\d{1,2})\b|\bs(\d)\b`)
	roomWordsRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:chambres?|pi[eè]ces?|rooms?)\b`)
	tfRe        = regexp.MustCompile(`(?i)\b[tf](\d{1,2})\b`)
	studioRe    = regexp.MustCompile(`(?i)\bstudios?\b`)

	surfaceRe   = regexp.MustCompile(`(?i)(\d{1,5}(?:[.,]\d{1,2})?)\s*(?:m²|m2|m\s2|mètres?\s+carrés?)`)
	bathroomsRe = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:salles?\s*de\s*bains?|salles?\s*d'eau|sdb|bathrooms?)`)
)

// NormalizePrice returns the integer value of the first digit run in raw,
// treating spaces, dots, commas and apostrophes between digits as thousands
// separators and dropping a trailing one- or two-digit decimal part. It
// returns 0 when raw holds no digits.
func NormalizePrice(raw string) int64 {
	run := priceRunRe.FindString(raw)
	if run == "" {
		return 0
	}
	run = strings.TrimRight(run, " \u00a0\u202f.,'")
	if loc := decimalTailRe.FindStringIndex(run); loc != nil {
		run = run[:loc[0]]
	}

	var b strings.Builder
	for _, r := range run {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// PriceFromText finds a currency-suffixed amount in free text.
func PriceFromText(text string) (string, bool) {
	m := priceInTextRe.FindString(text)
	if m == "" {
		return "", false
	}
	return CollapseSpace(m), true
}

// RoomInfo is the outcome of room inference. Zero means unknown.
type RoomInfo struct {
	Rooms    int
	Bedrooms int
}

// InferRooms applies the text rules in priority order: "S+N"/"SN" gives N
// bedrooms and N+1 rooms, "N chambres/pièces/rooms" and "T(N)"/"F(N)" give N
// rooms, and "studio" gives one room and one bedroom. The first rule that
// matches wins. S+0 is read as a studio.
func InferRooms(text string) (RoomInfo, bool) {
	if m := sPlusRe.FindStringSubmatch(text); m != nil {
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		n, _ := strconv.Atoi(digits)
		if n == 0 {
			return RoomInfo{Rooms: 1, Bedrooms: 1}, true
		}
		return RoomInfo{Rooms: n + 1, Bedrooms: n}, true
	}
	if m := roomWordsRe.FindStringSubmatch(text); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			return RoomInfo{Rooms: n}, true
		}
	}
	if m := tfRe.FindStringSubmatch(text); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			return RoomInfo{Rooms: n}, true
		}
	}
	if studioRe.MatchString(text) {
		return RoomInfo{Rooms: 1, Bedrooms: 1}, true
	}
	return RoomInfo{}, false
}

// DefaultBedrooms fills bedrooms from rooms when still unknown.
func (ri RoomInfo) DefaultBedrooms() RoomInfo {
	if ri.Bedrooms == 0 && ri.Rooms > 1 {
		ri.Bedrooms = ri.Rooms - 1
	}
	return ri
}

// SurfaceFromText finds an area in square metres.
func SurfaceFromText(text string) (float64, bool) {
	m := surfaceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseFloat(m[1])
}

// BathroomsFromText finds a bathroom count.
func BathroomsFromText(text string) (int, bool) {
	m := bathroomsRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil && n > 0
}

// FirstInt parses the first integer in s.
func FirstInt(s string) (int, bool) {
	m := firstIntRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil && n > 0
}

// FirstFloat parses the first decimal number in s; a comma is accepted as
// the decimal separator.
func FirstFloat(s string) (float64, bool) {
	m := firstFloatRe.FindString(s)
	if m == "" {
		return 0, false
	}
	return parseFloat(m)
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return f, err == nil && f > 0
}
