package services

import (
	"net/url"
	"strings"
	"unicode"

	"property-scraper/models"
	"property-scraper/utils"
)

// Drop reasons reported by Finalize.
const (
	ReasonEmptyURL  = "empty source url"
	ReasonDuplicate = "duplicate source url"
	ReasonNoTitle   = "no usable title"
)

// Cleaner finalizes extracted records before they are emitted: it
// normalises text, keeps only absolute image URLs and rejects records
// without a title or seen earlier in the run. One Cleaner serves one run.
type Cleaner struct {
	logger *utils.Logger
	seen   *utils.URLSet
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger, seen: utils.NewURLSet()}
}

// Finalize normalises rec in place. ok is false when the record must be
// dropped, with reason saying why.
func (c *Cleaner) Finalize(rec *models.PropertyRecord) (ok bool, reason string) {
	rec.SourceURL = strings.TrimSpace(rec.SourceURL)
	if rec.SourceURL == "" {
		return false, ReasonEmptyURL
	}

	rec.Title = normaliseText(rec.Title)
	if !hasLetterOrDigit(rec.Title) {
		return false, ReasonNoTitle
	}

	if !c.seen.Add(rec.SourceURL) {
		return false, ReasonDuplicate
	}

	rec.ID = strings.TrimSpace(rec.ID)
	rec.SourceSite = strings.ToLower(strings.TrimSpace(rec.SourceSite))
	rec.Description = normaliseText(rec.Description)
	rec.PriceRaw = normaliseText(rec.PriceRaw)
	if rec.PriceNormalized < 0 {
		rec.PriceNormalized = 0
	}
	rec.LocationRaw = normaliseText(rec.LocationRaw)
	rec.District = normaliseText(rec.District)
	rec.City = normaliseText(rec.City)
	rec.FullAddress = normaliseText(rec.FullAddress)
	rec.FormattedAddress = normaliseText(rec.FormattedAddress)
	rec.AgeText = normaliseText(rec.AgeText)

	rec.ImageURLs = absoluteUnique(rec.ImageURLs)
	if len(rec.ImageURLs) > 0 {
		rec.MainImageURL = rec.ImageURLs[0]
	} else if !isAbsolute(rec.MainImageURL) {
		rec.MainImageURL = ""
	}
	return true, ""
}

// Clean finalizes a batch and returns the records that survive.
func (c *Cleaner) Clean(records []*models.PropertyRecord) []*models.PropertyRecord {
	result := make([]*models.PropertyRecord, 0, len(records))
	for _, rec := range records {
		if ok, reason := c.Finalize(rec); !ok {
			c.logger.Warn("[cleaner] Dropping %s: %s", rec.SourceURL, reason)
			continue
		}
		result = append(result, rec)
	}

	c.logger.Debug("[cleaner] Cleaned %d -> %d records (dropped %d)",
		len(records), len(result), len(records)-len(result))
	return result
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

func hasLetterOrDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func absoluteUnique(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if !isAbsolute(u) {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isAbsolute(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
