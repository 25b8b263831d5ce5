// Package pipeline drives a harvest run: it fans discovered URLs out to a
// bounded worker pool, promotes script-heavy pages to the renderer, extracts
// entity records, resolves cross-references, and stages everything for
// batched persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medatlas/harvester/internal/extract"
	"github.com/medatlas/harvester/internal/harvest"
	"github.com/medatlas/harvester/internal/match"
	"github.com/medatlas/harvester/internal/store"
)

// Config tunes a pipeline run.
type Config struct {
	Concurrency int
}

// Result summarizes a completed run.
type Result struct {
	RunID         string
	PagesOK       int
	PagesFailed   int
	Institutions  int
	Professionals int
	Offerings     int
}

// Pipeline wires the harvest stages together. Renderer may be nil when
// rendering is disabled; Detector may be nil to never promote.
type Pipeline struct {
	fetcher  harvest.Fetcher
	renderer harvest.Renderer
	detector harvest.Detector
	batcher  *store.Batcher
	resolver *match.Resolver

	institutions  *extract.InstitutionExtractor
	professionals *extract.ProfessionalExtractor
	offerings     *extract.OfferingExtractor

	concurrency int
	logger      *zap.Logger

	mu         sync.Mutex
	candidates []match.Candidate
}

// New builds a pipeline. The clock stamps every extracted record.
func New(cfg Config, fetcher harvest.Fetcher, renderer harvest.Renderer, detector harvest.Detector,
	batcher *store.Batcher, resolver *match.Resolver, clock harvest.Clock, logger *zap.Logger) *Pipeline {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	if resolver == nil {
		resolver = match.NewResolver(match.Config{})
	}
	return &Pipeline{
		fetcher:       fetcher,
		renderer:      renderer,
		detector:      detector,
		batcher:       batcher,
		resolver:      resolver,
		institutions:  extract.NewInstitutionExtractor(clock),
		professionals: extract.NewProfessionalExtractor(clock),
		offerings:     extract.NewOfferingExtractor(clock),
		concurrency:   concurrency,
		logger:        logger,
	}
}

// Run processes every URL and flushes whatever was staged, even on
// cancellation. A failing page never aborts the run; a failing store does.
func (p *Pipeline) Run(ctx context.Context, urls []string) (Result, error) {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("harvest run started",
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", p.concurrency),
	)

	// Professionals may reference institutions harvested in earlier runs.
	if err := p.loadCandidates(ctx); err != nil {
		logger.Warn("loading known institutions failed", zap.Error(err))
	}

	var counters struct {
		ok, failed, institutions, professionals, offerings atomic.Int64
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var storeErr error
	var storeOnce sync.Once
	storeFailed := func(err error) {
		storeOnce.Do(func() {
			storeErr = err
			cancelRun()
		})
	}

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageURL := range work {
				if err := p.processPage(runCtx, pageURL, &counters.institutions, &counters.professionals, &counters.offerings); err != nil {
					counters.failed.Add(1)
					logger.Warn("page skipped", zap.String("url", pageURL), zap.Error(err))
				} else {
					counters.ok.Add(1)
				}
				if err := p.batcher.PageDone(runCtx); err != nil {
					logger.Error("batch flush failed, stopping run", zap.Error(err))
					storeFailed(err)
				}
			}
		}()
	}

feed:
	for _, pageURL := range urls {
		select {
		case work <- pageURL:
		case <-runCtx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	var runErr error
	switch {
	case storeErr != nil:
		runErr = storeErr
	case ctx.Err() != nil:
		runErr = ctx.Err()
	}

	// The tail of the last batch still has to land, even after a cancel.
	if err := p.batcher.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Error("final flush failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	result := Result{
		RunID:         runID,
		PagesOK:       int(counters.ok.Load()),
		PagesFailed:   int(counters.failed.Load()),
		Institutions:  int(counters.institutions.Load()),
		Professionals: int(counters.professionals.Load()),
		Offerings:     int(counters.offerings.Load()),
	}
	logger.Info("harvest run finished",
		zap.Int("pages_ok", result.PagesOK),
		zap.Int("pages_failed", result.PagesFailed),
		zap.Int("institutions", result.Institutions),
		zap.Int("professionals", result.Professionals),
		zap.Int("offerings", result.Offerings),
	)
	return result, runErr
}

func (p *Pipeline) processPage(ctx context.Context, pageURL string, institutions, professionals, offerings *atomic.Int64) error {
	page, err := p.fetchPage(ctx, pageURL)
	if err != nil {
		pagesFailed.Inc()
		return err
	}
	pagesFetched.Inc()

	if isProfessionalURL(pageURL) {
		return p.handleProfessionalPage(page, professionals)
	}
	return p.handleInstitutionPage(page, institutions, professionals, offerings)
}

// fetchPage runs the plain fetch and promotes to the renderer when the
// detector flags the result as script-rendered.
func (p *Pipeline) fetchPage(ctx context.Context, pageURL string) (harvest.Page, error) {
	page, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return harvest.Page{}, err
	}
	if p.detector == nil || p.renderer == nil || !p.detector.NeedsRender(page) {
		return page, nil
	}

	rendersPromoted.Inc()
	rendered, err := p.renderer.Render(ctx, pageURL)
	if err != nil {
		// The plain body is still the best we have.
		p.logger.Warn("render failed, using plain body",
			zap.String("url", pageURL), zap.Error(err))
		return page, nil
	}
	return rendered, nil
}

func (p *Pipeline) handleInstitutionPage(page harvest.Page, institutions, professionals, offerings *atomic.Int64) error {
	inst, err := p.institutions.Extract(page)
	if err != nil {
		pagesFailed.Inc()
		return err
	}

	key := inst.NaturalKey()
	p.batcher.Stage(harvest.KindInstitutions, key, inst)
	recordsStaged.WithLabelValues(string(harvest.KindInstitutions)).Inc()
	institutions.Add(1)
	p.addCandidate(match.Candidate{Key: key, Name: inst.Name, City: inst.Locality.City})

	embedded, err := p.professionals.ExtractEmbedded(page, inst)
	if err != nil {
		p.logger.Warn("embedded professionals skipped",
			zap.String("url", page.URL), zap.Error(err))
	}
	for _, pro := range embedded {
		pro.ParentInstitutionRef = key
		p.batcher.Stage(harvest.KindProfessionals, pro.NaturalKey(), pro)
		recordsStaged.WithLabelValues(string(harvest.KindProfessionals)).Inc()
		professionals.Add(1)
	}

	priced, err := p.offerings.Extract(page, inst)
	if err != nil {
		p.logger.Warn("offerings skipped",
			zap.String("url", page.URL), zap.Error(err))
	}
	for _, off := range priced {
		p.batcher.Stage(harvest.KindOfferings, off.NaturalKey(), off)
		recordsStaged.WithLabelValues(string(harvest.KindOfferings)).Inc()
		offerings.Add(1)
	}
	return nil
}

func (p *Pipeline) handleProfessionalPage(page harvest.Page, professionals *atomic.Int64) error {
	pro, err := p.professionals.Extract(page)
	if err != nil {
		pagesFailed.Inc()
		return err
	}
	if key, ok := p.resolver.Resolve(pro.ParentInstitutionName, pro.Locality.City, p.snapshotCandidates()); ok {
		pro.ParentInstitutionRef = key
	}
	p.batcher.Stage(harvest.KindProfessionals, pro.NaturalKey(), pro)
	recordsStaged.WithLabelValues(string(harvest.KindProfessionals)).Inc()
	professionals.Add(1)
	return nil
}

// loadCandidates seeds the resolver with every institution already in the
// store, so cross-run references resolve the same way in-run ones do.
func (p *Pipeline) loadCandidates(ctx context.Context) error {
	payloads, err := p.batcher.Store().Find(ctx, harvest.KindInstitutions, nil)
	if err != nil {
		return err
	}
	for _, payload := range payloads {
		var inst harvest.Institution
		if err := json.Unmarshal(payload, &inst); err != nil {
			p.logger.Warn("stored institution skipped", zap.Error(err))
			continue
		}
		p.addCandidate(match.Candidate{Key: inst.NaturalKey(), Name: inst.Name, City: inst.Locality.City})
	}
	return nil
}

func (p *Pipeline) addCandidate(cand match.Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, cand)
}

func (p *Pipeline) snapshotCandidates() []match.Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]match.Candidate, len(p.candidates))
	copy(out, p.candidates)
	return out
}

// isProfessionalURL routes /doctors/... paths to the professional extractor.
func isProfessionalURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	segments := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(segments) == 0 {
		return false
	}
	first := strings.ToLower(segments[0])
	return first == "doctor" || first == "doctors"
}
