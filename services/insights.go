package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"property-scraper/models"
	"property-scraper/utils"
)

// InsightReport summarises the records of one or more runs.
type InsightReport struct {
	TotalRecords  int
	BySite        map[string]int
	ByCity        map[string]int
	ByGeoSource   map[string]int
	WithPhone     int
	WithImages    int
	PricedRecords int
	MinPrice      int64
	MaxPrice      int64
	AveragePrice  int64
	MostExpensive *models.PropertyRecord
}

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(records []*models.PropertyRecord) *InsightReport {
	report := &InsightReport{
		BySite:      make(map[string]int),
		ByCity:      make(map[string]int),
		ByGeoSource: make(map[string]int),
	}
	report.TotalRecords = len(records)

	var total int64
	for _, r := range records {
		report.BySite[r.SourceSite]++
		if place := placeOf(r); place != "" {
			report.ByCity[place]++
		}
		if r.GeoSource != "" {
			report.ByGeoSource[r.GeoSource]++
		}
		if r.ContactPhone != "" {
			report.WithPhone++
		}
		if len(r.ImageURLs) > 0 {
			report.WithImages++
		}

		// Price stats (only records with price > 0)
		if r.PriceNormalized <= 0 {
			continue
		}
		if report.PricedRecords == 0 || r.PriceNormalized < report.MinPrice {
			report.MinPrice = r.PriceNormalized
		}
		if r.PriceNormalized > report.MaxPrice {
			report.MaxPrice = r.PriceNormalized
			report.MostExpensive = r
		}
		report.PricedRecords++
		total += r.PriceNormalized
	}
	if report.PricedRecords > 0 {
		report.AveragePrice = total / int64(report.PricedRecords)
	}

	s.logger.Debug("[insights] %d records, %d priced", report.TotalRecords, report.PricedRecords)
	return report
}

func (s *InsightService) Print(w io.Writer, r *InsightReport) {
	sep := strings.Repeat("=", 54)
	thin := strings.Repeat("-", 54)

	fmt.Fprintf(w, "\n%s\n  PROPERTY SCRAPE SUMMARY\n%s\n\n", sep, sep)

	fmt.Fprintf(w, "  Overview\n  %s\n", thin)
	fmt.Fprintf(w, "  Records            : %d\n", r.TotalRecords)
	for _, kc := range sortedCounts(r.BySite) {
		fmt.Fprintf(w, "    %-16s : %d\n", kc.key, kc.count)
	}
	fmt.Fprintf(w, "  With contact phone : %d\n", r.WithPhone)
	fmt.Fprintf(w, "  With images        : %d\n\n", r.WithImages)

	fmt.Fprintf(w, "  Price Statistics\n  %s\n", thin)
	if r.PricedRecords > 0 {
		fmt.Fprintf(w, "  Average price : %d\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : %d\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : %d\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "  Most Expensive Listing\n  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Title, 50))
		fmt.Fprintf(w, "  Location : %s\n", r.MostExpensive.FullAddress)
		fmt.Fprintf(w, "  Price    : %s\n\n", r.MostExpensive.PriceRaw)
	}

	fmt.Fprintf(w, "  Coordinates by Source\n  %s\n", thin)
	for _, kc := range sortedCounts(r.ByGeoSource) {
		fmt.Fprintf(w, "  %-30s %d\n", kc.key, kc.count)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Records by Location\n  %s\n", thin)
	if len(r.ByCity) == 0 {
		fmt.Fprintf(w, "  No location data\n")
	}
	for _, kc := range sortedCounts(r.ByCity) {
		bar := strings.Repeat("#", kc.count)
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(kc.key, 28), bar, kc.count)
	}

	fmt.Fprintf(w, "\n%s\n\n", sep)
}

// placeOf groups a record by city, or by district when the city is unknown.
func placeOf(r *models.PropertyRecord) string {
	if r.City != "" {
		return r.City
	}
	return r.District
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders by count descending, then key.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, c := range m {
		out = append(out, keyCount{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
