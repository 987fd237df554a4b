package extract

import (
	"regexp"
	"strconv"
)

// Map initialisers commonly embedded in listing pages.
var coordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)["']?\blat(?:itude)?["']?\s*[:=]\s*["']?(-?\d{1,3}\.\d+)["']?\s*[,;]\s*["']?\b(?:lng|lon|long|longitude)["']?\s*[:=]\s*["']?(-?\d{1,3}\.\d+)`),
	regexp.MustCompile(`(?i)LatLng\(\s*(-?\d{1,3}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)\s*\)`),
	regexp.MustCompile(`(?i)\b(?:setView|marker|center)\(\s*\[\s*(-?\d{1,3}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)\s*\]`),
}

// CoordinatesFromScripts scans script bodies for a latitude/longitude pair.
// Pairs outside the valid range, or at 0,0, are ignored.
func CoordinatesFromScripts(scripts []string) (lat, lon float64, ok bool) {
	for _, re := range coordPatterns {
		for _, script := range scripts {
			for _, m := range re.FindAllStringSubmatch(script, -1) {
				la, err1 := strconv.ParseFloat(m[1], 64)
				lo, err2 := strconv.ParseFloat(m[2], 64)
				if err1 != nil || err2 != nil {
					continue
				}
				if validCoordinates(la, lo) {
					return la, lo, true
				}
			}
		}
	}
	return 0, 0, false
}

func validCoordinates(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
