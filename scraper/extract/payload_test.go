package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-scraper/config"
)

func mustPage(t *testing.T, url, html string) *Page {
	t.Helper()
	p, err := NewPage(url, html)
	require.NoError(t, err)
	return p
}

func TestPayloadNestedPaths(t *testing.T) {
	p := mustPage(t, "https://www.tayara.tn/item/x", `<html><body>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"adDetails":{"price":285000,"images":[{"url":"/a.jpg"},{"url":"/b.jpg"}],"location":{"delegation":"Ennasr"}}}}}
</script></body></html>`)

	pl := ParsePayload(p, config.Payload{
		ScriptSelectors: []string{"script#__NEXT_DATA__"},
		Paths: map[string][]string{
			"price":    {"props.pageProps.adDetails.price"},
			"images":   {"props.pageProps.adDetails.images"},
			"district": {"props.pageProps.adDetails.location.delegation"},
			"title":    {"props.pageProps.adDetails.title"},
		},
	})
	require.False(t, pl.Empty())

	price, ok := pl.String("price")
	assert.True(t, ok)
	assert.Equal(t, "285000", price)

	imgs, ok := pl.Strings("images")
	assert.True(t, ok)
	assert.Equal(t, []string{"/a.jpg", "/b.jpg"}, imgs)

	district, _ := pl.String("district")
	assert.Equal(t, "Ennasr", district)

	_, ok = pl.String("title")
	assert.False(t, ok)
}

func TestPayloadJSONLDGraph(t *testing.T) {
	p := mustPage(t, "https://example.tn/annonce/1", `<html><head>
<script type="application/ld+json">not json at all</script>
<script type="application/ld+json">
[{"@context":"https://schema.org","@graph":[{"@type":"Product","name":"Villa avec piscine","offers":{"price":"900000"},"image":"https://example.tn/v.jpg"}]}]
</script></head><body></body></html>`)

	pl := ParsePayload(p, config.Payload{
		ScriptSelectors: []string{`script[type="application/ld+json"]`},
		Paths: map[string][]string{
			"title":  {"props.pageProps.adDetails.title", "name"},
			"price":  {"offers.price"},
			"images": {"image"},
		},
	})

	title, ok := pl.String("title")
	assert.True(t, ok)
	assert.Equal(t, "Villa avec piscine", title)

	price, _ := pl.String("price")
	assert.Equal(t, "900000", price)

	imgs, _ := pl.Strings("images")
	assert.Equal(t, []string{"https://example.tn/v.jpg"}, imgs)
}

func TestPayloadMissingScript(t *testing.T) {
	p := mustPage(t, "https://example.tn/", `<html><body><p>rien</p></body></html>`)
	pl := ParsePayload(p, config.Payload{ScriptSelectors: []string{"script#__NEXT_DATA__"}})
	assert.True(t, pl.Empty())

	_, ok := pl.Text("title")(p)
	assert.False(t, ok)
}
