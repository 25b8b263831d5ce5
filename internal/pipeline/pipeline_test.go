package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medatlas/harvester/internal/harvest"
	"github.com/medatlas/harvester/internal/store"
)

// gaugeFetcher serves canned pages while tracking how many fetches run at
// once.
type gaugeFetcher struct {
	pages   map[string]string
	delay   time.Duration
	current atomic.Int32
	peak    atomic.Int32
}

func (f *gaugeFetcher) Fetch(_ context.Context, rawURL string) (harvest.Page, error) {
	cur := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	body, ok := f.pages[rawURL]
	if !ok {
		return harvest.Page{}, &harvest.StatusError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	return harvest.Page{URL: rawURL, FinalURL: rawURL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

const hospitalPage = `<html>
<head><title>Apollo Hospital Chennai</title></head>
<body>
  <h1>Apollo Hospital Chennai</h1>
  <div class="rating">4.3 (86 Ratings)</div>
  <ul>
    <li>Established in: 1983</li>
    <li>Number of Beds: 710</li>
    <li>Location: Chennai, Tamil Nadu, India</li>
  </ul>
  <div class="doctor-card">
    <h3>Dr. Anita Rao</h3>
    <span class="designation">Neurologist</span>
    <p>MBBS, DM with 15 years experience</p>
  </div>
  <div class="treatment-card">
    <h3>Heart Bypass Surgery</h3>
    <p>Cost: $4,500 - $6,000</p>
  </div>
</body></html>`

const doctorPage = `<html><body>
  <h1>Dr. Rakesh Sharma</h1>
  <ul>
    <li>Designation: Senior Consultant Cardiologist</li>
    <li>Hospital: Apollo Hospital</li>
    <li>Consultation Fee: ₹ 1,500</li>
  </ul>
  <p>MBBS, MD with 22+ years of experience.</p>
</body></html>`

func newTestPipeline(fetcher harvest.Fetcher, mem *store.Memory, concurrency int) *Pipeline {
	batcher := store.NewBatcher(mem, 1000, zap.NewNop())
	return New(Config{Concurrency: concurrency}, fetcher, nil, nil, batcher, nil, nil, zap.NewNop())
}

func TestRunEndToEnd(t *testing.T) {
	fetcher := &gaugeFetcher{pages: map[string]string{
		"https://example.com/hospitals/chennai/hospital-apollo": hospitalPage,
		"https://example.com/doctors/chennai/dr-rakesh-sharma":  doctorPage,
	}}
	mem := store.NewMemory()
	// One worker keeps ordering deterministic: the institution is known
	// before the standalone doctor page resolves against it.
	p := newTestPipeline(fetcher, mem, 1)

	result, err := p.Run(context.Background(), []string{
		"https://example.com/hospitals/chennai/hospital-apollo",
		"https://example.com/doctors/chennai/dr-rakesh-sharma",
		"https://example.com/hospitals/chennai/hospital-gone",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.PagesOK)
	assert.Equal(t, 1, result.PagesFailed, "a missing page must not abort the run")
	assert.Equal(t, 1, result.Institutions)
	assert.Equal(t, 2, result.Professionals)
	assert.Equal(t, 1, result.Offerings)

	ctx := context.Background()
	count, err := mem.Count(ctx, harvest.KindInstitutions, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = mem.Count(ctx, harvest.KindProfessionals, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The standalone doctor resolved "Apollo Hospital" to the harvested
	// institution by fuzzy match.
	payloads, err := mem.Find(ctx, harvest.KindProfessionals, harvest.Filter{"name": "Dr. Rakesh Sharma"})
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	var pro harvest.Professional
	require.NoError(t, json.Unmarshal(payloads[0], &pro))
	assert.Equal(t, "https://example.com/hospitals/chennai/hospital-apollo", pro.ParentInstitutionRef)
	assert.Equal(t, 22, pro.ExperienceYears)
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	fetcher := &gaugeFetcher{pages: map[string]string{
		"https://example.com/hospitals/chennai/hospital-apollo": hospitalPage,
	}}
	mem := store.NewMemory()
	urls := []string{"https://example.com/hospitals/chennai/hospital-apollo"}

	for i := 0; i < 2; i++ {
		p := newTestPipeline(fetcher, mem, 1)
		_, err := p.Run(context.Background(), urls)
		require.NoError(t, err)
	}

	count, err := mem.Count(context.Background(), harvest.KindInstitutions, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-running the harvest must overwrite, not duplicate")
}

func TestRunResolvesAgainstStoredInstitutions(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	// An institution harvested by an earlier run is already in the store.
	stored := harvest.Institution{
		Name:      "Apollo Hospital Chennai",
		Locality:  harvest.Locality{City: "Chennai", Country: "India"},
		SourceURL: "https://example.com/hospitals/chennai/hospital-apollo",
	}
	require.NoError(t, mem.Upsert(ctx, harvest.KindInstitutions, stored.NaturalKey(), stored))

	fetcher := &gaugeFetcher{pages: map[string]string{
		"https://example.com/doctors/chennai/dr-rakesh-sharma": doctorPage,
	}}
	p := newTestPipeline(fetcher, mem, 1)

	result, err := p.Run(ctx, []string{"https://example.com/doctors/chennai/dr-rakesh-sharma"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Professionals)

	payloads, err := mem.Find(ctx, harvest.KindProfessionals, nil)
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	var pro harvest.Professional
	require.NoError(t, json.Unmarshal(payloads[0], &pro))
	assert.Equal(t, stored.NaturalKey(), pro.ParentInstitutionRef,
		"doctors must resolve against institutions from earlier runs, not just this one")
}

// unreachableStore refuses every operation, as a down database would.
type unreachableStore struct{ harvest.Store }

func (unreachableStore) Upsert(context.Context, harvest.Kind, string, any) error {
	return errors.New("store unreachable")
}

func (unreachableStore) Find(context.Context, harvest.Kind, harvest.Filter) ([]json.RawMessage, error) {
	return nil, errors.New("store unreachable")
}

func (unreachableStore) Close() {}

func TestRunStopsWhenStoreIsUnreachable(t *testing.T) {
	pages := make(map[string]string, 30)
	urls := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		u := fmt.Sprintf("https://example.com/hospitals/city%d/hospital-h%d", i, i)
		pages[u] = "<html><body><h1>Some Hospital</h1></body></html>"
		urls = append(urls, u)
	}

	fetcher := &gaugeFetcher{pages: pages}
	batcher := store.NewBatcher(unreachableStore{}, 1, zap.NewNop())
	p := New(Config{Concurrency: 2}, fetcher, nil, nil, batcher, nil, nil, zap.NewNop())

	result, err := p.Run(context.Background(), urls)
	require.Error(t, err, "an unreachable store must fail the run")
	assert.Less(t, result.PagesOK, 30, "workers must stop fetching once the store is gone")
}

func TestRunBoundsConcurrency(t *testing.T) {
	pages := make(map[string]string, 40)
	urls := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		u := fmt.Sprintf("https://example.com/hospitals/city%d/hospital-h%d", i, i)
		pages[u] = fmt.Sprintf("<html><body><h1>Hospital Number %d</h1></body></html>", i)
		urls = append(urls, u)
	}

	fetcher := &gaugeFetcher{pages: pages, delay: 3 * time.Millisecond}
	p := newTestPipeline(fetcher, store.NewMemory(), 4)

	result, err := p.Run(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, 40, result.PagesOK)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(4), "in-flight fetches must not exceed the configured concurrency")
	assert.Greater(t, fetcher.peak.Load(), int32(1), "workers should actually overlap")
}

func TestRunStopsFeedingOnCancel(t *testing.T) {
	pages := make(map[string]string, 100)
	urls := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		u := fmt.Sprintf("https://example.com/hospitals/city%d/hospital-h%d", i, i)
		pages[u] = "<html><body><h1>Some Hospital</h1></body></html>"
		urls = append(urls, u)
	}

	fetcher := &gaugeFetcher{pages: pages, delay: 5 * time.Millisecond}
	mem := store.NewMemory()
	p := newTestPipeline(fetcher, mem, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := p.Run(ctx, urls)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, result.PagesOK+result.PagesFailed, 100, "cancellation must stop the feed early")

	// Whatever was staged before the cancel still gets flushed.
	count, cerr := mem.Count(context.Background(), harvest.KindInstitutions, nil)
	require.NoError(t, cerr)
	assert.Equal(t, result.Institutions, count)
}

// stubRenderer returns a fixed rendered body.
type stubRenderer struct {
	body  string
	calls atomic.Int32
}

func (r *stubRenderer) Render(_ context.Context, rawURL string) (harvest.Page, error) {
	r.calls.Add(1)
	return harvest.Page{URL: rawURL, FinalURL: rawURL, StatusCode: http.StatusOK, Body: []byte(r.body), Rendered: true}, nil
}

func (r *stubRenderer) Close(context.Context) error { return nil }

// alwaysRender promotes every page.
type alwaysRender struct{}

func (alwaysRender) NeedsRender(harvest.Page) bool { return true }

func TestRunPromotesToRenderer(t *testing.T) {
	fetcher := &gaugeFetcher{pages: map[string]string{
		"https://example.com/hospitals/chennai/hospital-apollo": "<html><body><script>app()</script></body></html>",
	}}
	renderer := &stubRenderer{body: "<html><body><h1>Apollo Hospital Chennai</h1></body></html>"}
	mem := store.NewMemory()

	batcher := store.NewBatcher(mem, 1000, zap.NewNop())
	p := New(Config{Concurrency: 1}, fetcher, renderer, alwaysRender{}, batcher, nil, nil, zap.NewNop())

	result, err := p.Run(context.Background(), []string{"https://example.com/hospitals/chennai/hospital-apollo"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Institutions)
	assert.Equal(t, int32(1), renderer.calls.Load())
}
