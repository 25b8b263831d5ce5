package discover

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medatlas/harvester/internal/harvest"
)

// stubFetcher serves canned bodies keyed by URL and 404s everything else.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (harvest.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()

	body, ok := f.pages[rawURL]
	if !ok {
		return harvest.Page{}, &harvest.StatusError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	return harvest.Page{URL: rawURL, FinalURL: rawURL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func newTestDiscoverer(t *testing.T, cfg Config, fetcher harvest.Fetcher) *Discoverer {
	t.Helper()
	d, err := New(cfg, fetcher, NewShapeFilter(), zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestWalkListingStopsWhenNothingNew(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/hospitals": `<html><body>
			<a href="/hospitals/chennai/hospital-apollo">Apollo</a>
			<a href="/hospitals/chennai/hospital-fortis">Fortis</a>
			<a href="/hospitals/india">All India</a>
			<div class="pagination"><a class="next" href="?page=2">Next</a></div>
		</body></html>`,
		"https://example.com/hospitals?page=2": `<html><body>
			<a href="/hospitals/delhi/hospital-max">Max</a>
			<div class="pagination"><a class="next" href="?page=3">Next</a></div>
		</body></html>`,
		"https://example.com/hospitals?page=3": `<html><body>
			<a href="/hospitals/delhi/hospital-max">Max again</a>
		</body></html>`,
	}}

	d := newTestDiscoverer(t, Config{
		BaseURL:    "https://example.com",
		Strategies: []string{StrategyPagination},
	}, fetcher)

	urls, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/hospitals/chennai/hospital-apollo",
		"https://example.com/hospitals/chennai/hospital-fortis",
		"https://example.com/hospitals/delhi/hospital-max",
	}, urls)

	// Page 3 contributed nothing new, so the walk must not reach page 4.
	assert.NotContains(t, fetcher.calls, "https://example.com/hospitals?page=4")
}

func TestWalkListingStopsWithoutNextSignal(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/hospitals": `<html><body>
			<a href="/hospitals/chennai/hospital-apollo">Apollo</a>
		</body></html>`,
	}}

	d := newTestDiscoverer(t, Config{
		BaseURL:    "https://example.com",
		Strategies: []string{StrategyPagination},
	}, fetcher)

	urls, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, urls, 1)
	assert.Len(t, fetcher.calls, 1)
}

func TestWalkListingFindsScriptEmbeddedLinks(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/hospitals": `<html><body>
			<script>window.__DATA__ = {"items":["/hospitals/chennai/hospital-apollo","/hospitals/india"]};</script>
		</body></html>`,
	}}

	d := newTestDiscoverer(t, Config{
		BaseURL:    "https://example.com",
		Strategies: []string{StrategyPagination},
	}, fetcher)

	urls, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/hospitals/chennai/hospital-apollo"}, urls)
}

func TestSitemapStrategy(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/hospitals/chennai/hospital-apollo</loc></url>
  <url><loc>https://example.com/hospitals/india</loc></url>
  <url><loc>https://example.com/doctors/delhi/dr-rakesh-sharma</loc></url>
</urlset>`,
	}}

	d := newTestDiscoverer(t, Config{
		BaseURL:    "https://example.com",
		Strategies: []string{StrategySitemap},
	}, fetcher)

	urls, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/hospitals/chennai/hospital-apollo",
		"https://example.com/doctors/delhi/dr-rakesh-sharma",
	}, urls)
}

func TestSitemapFollowsIndex(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap-hospitals.xml</loc></sitemap>
</sitemapindex>`,
		"https://example.com/sitemap-hospitals.xml": `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/hospitals/chennai/hospital-apollo</loc></url>
</urlset>`,
	}}

	d := newTestDiscoverer(t, Config{
		BaseURL:    "https://example.com",
		Strategies: []string{StrategySitemap},
	}, fetcher)

	urls, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/hospitals/chennai/hospital-apollo"}, urls)
}

func TestEnumerationProbesTemplatesPerLocality(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		// Chennai answers on the first template; New Delhi only on the second.
		"https://example.com/hospitals/chennai": `<html><body>
			<a href="/hospitals/chennai/hospital-apollo">Apollo</a>
		</body></html>`,
		"https://example.com/hospitals/india/new-delhi": `<html><body>
			<a href="/hospitals/new-delhi/hospital-max">Max</a>
		</body></html>`,
	}}

	d := newTestDiscoverer(t, Config{
		BaseURL:    "https://example.com",
		Localities: []string{"Chennai", "New Delhi"},
		Strategies: []string{StrategyEnumeration},
	}, fetcher)

	urls, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"https://example.com/hospitals/chennai/hospital-apollo",
		"https://example.com/hospitals/new-delhi/hospital-max",
	}, urls)

	// Chennai matched the first template, so its other templates stay unprobed.
	assert.NotContains(t, fetcher.calls, "https://example.com/hospitals/india/chennai")
}

func TestRunToleratesSingleStrategyFailure(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		// No sitemap.xml: that strategy fails, pagination still delivers.
		"https://example.com/hospitals": `<html><body>
			<a href="/hospitals/chennai/hospital-apollo">Apollo</a>
		</body></html>`,
	}}

	d := newTestDiscoverer(t, Config{
		BaseURL:    "https://example.com",
		Strategies: []string{StrategySitemap, StrategyPagination},
	}, fetcher)

	urls, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, urls, 1)
}

func TestRunFailsWhenEveryStrategyFails(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{}}

	d := newTestDiscoverer(t, Config{
		BaseURL:    "https://example.com",
		Strategies: []string{StrategySitemap, StrategyPagination},
	}, fetcher)

	_, err := d.Run(context.Background())
	require.Error(t, err)
}
