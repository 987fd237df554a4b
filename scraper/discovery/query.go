package discovery

import (
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"property-scraper/config"
	"property-scraper/models"
)

// BuildStartURL renders q with the site's query-parameter names. An empty
// q.BaseURL means the site's default start page.
func BuildStartURL(site config.Site, q models.Query) (string, error) {
	base := q.BaseURL
	if base == "" {
		base = site.StartURL()
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("discovery: invalid start url %q", base)
	}

	values := u.Query()
	if q.MinPrice > 0 && site.Query.MinPrice != "" {
		values.Set(site.Query.MinPrice, strconv.FormatInt(q.MinPrice, 10))
	}
	if q.MaxPrice > 0 && site.Query.MaxPrice != "" {
		values.Set(site.Query.MaxPrice, strconv.FormatInt(q.MaxPrice, 10))
	}
	if q.Transaction != "" && site.Query.Transaction != "" {
		v := q.Transaction
		if mapped, ok := site.Query.Transactions[q.Transaction]; ok {
			v = mapped
		}
		values.Set(site.Query.Transaction, v)
	}
	if q.StartPage > 1 {
		values.Set(site.Pagination.PageParam, strconv.Itoa(q.StartPage))
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// withPage returns raw with the page parameter set to n.
func withPage(raw, param string, n int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "discovery: parse %q", raw)
	}
	values := u.Query()
	values.Set(param, strconv.Itoa(n))
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// pageFromURL reads a positive page number from raw's page parameter.
func pageFromURL(raw, param string) (int, bool) {
	if param == "" {
		return 0, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(u.Query().Get(param))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
