package extract

import (
	"regexp"
	"strings"
)

var (
	intlPhoneRe   = regexp.MustCompile(`(?:\+|00)\s?216[\s.\-]?(\d{2})[\s.\-]?(\d{3})[\s.\-]?(\d{3})`)
	plainPhoneRe  = regexp.MustCompile(`(?:^|\D)([2-9]\d{7})(?:\D|$)`)
	spacedPhoneRe = regexp.MustCompile(`(?:^|\D)([2-9]\d)[\s.\-](\d{3})[\s.\-](\d{3})(?:\D|$)`)
	linkPhoneRe   = regexp.MustCompile(`^(\d{8})(?:/(\d{8}))*$`)
)

// NormalizePhone reduces a tel: link target or raw number to the 8-digit
// local form. Slash-separated dual numbers yield the first one; a 216 or
// 00216 country prefix is stripped.
func NormalizePhone(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "tel:")

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '/' {
			b.WriteRune(r)
		}
	}

	parts := strings.Split(strings.Trim(b.String(), "/"), "/")
	for i, p := range parts {
		parts[i] = stripCountryPrefix(p)
	}

	m := linkPhoneRe.FindStringSubmatch(strings.Join(parts, "/"))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func stripCountryPrefix(d string) string {
	switch {
	case len(d) == 13 && strings.HasPrefix(d, "00216"):
		return d[5:]
	case len(d) == 11 && strings.HasPrefix(d, "216"):
		return d[3:]
	}
	return d
}

// PhoneFromText scans free text for a local phone number. It tries an
// explicit +216/00216 prefix first, then 8-digit tokens within each
// slash-delimited segment, then the spaced "NN NNN NNN" form.
func PhoneFromText(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if m := intlPhoneRe.FindStringSubmatch(text); m != nil {
		return m[1] + m[2] + m[3], true
	}
	for _, segment := range strings.Split(text, "/") {
		if m := plainPhoneRe.FindStringSubmatch(segment); m != nil {
			return m[1], true
		}
	}
	if m := spacedPhoneRe.FindStringSubmatch(text); m != nil {
		return m[1] + m[2] + m[3], true
	}
	return "", false
}
