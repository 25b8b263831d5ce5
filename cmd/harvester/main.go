// Command harvester runs the entity harvest: it discovers detail URLs on
// the configured source, fetches them politely, extracts institution,
// professional, and offering records, and upserts them into the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/medatlas/harvester/internal/api"
	"github.com/medatlas/harvester/internal/config"
	"github.com/medatlas/harvester/internal/discover"
	"github.com/medatlas/harvester/internal/fetch"
	"github.com/medatlas/harvester/internal/harvest"
	"github.com/medatlas/harvester/internal/logging"
	"github.com/medatlas/harvester/internal/match"
	"github.com/medatlas/harvester/internal/pipeline"
	"github.com/medatlas/harvester/internal/store"
	"github.com/medatlas/harvester/internal/tabular"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	seedInstitutions := flag.String("import-institutions", "", "import an institutions CSV and exit")
	seedProfessionals := flag.String("import-professionals", "", "import a professionals CSV and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seedInstitutions, *seedProfessionals, logger); err != nil {
		logger.Fatal("harvester failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, seedInstitutions, seedProfessionals string, logger *zap.Logger) error {
	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	resolver := match.NewResolver(match.Config{
		Threshold:      cfg.Match.Threshold,
		LocalityBonus:  cfg.Match.LocalityBonus,
		SubstringBonus: cfg.Match.SubstringBonus,
	})

	if seedInstitutions != "" || seedProfessionals != "" {
		return runImports(ctx, st, resolver, seedInstitutions, seedProfessionals, logger)
	}

	var ops *api.Server
	if cfg.Ops.Enabled {
		ops = api.New(cfg.Ops.Port, logger)
		go func() {
			if err := ops.Start(); err != nil {
				logger.Error("ops server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Fetch.Timeout)
			defer cancel()
			_ = ops.Shutdown(shutdownCtx)
		}()
	}

	client := fetch.NewClient(fetch.Config{
		UserAgents:   cfg.Fetch.UserAgents,
		RotateEvery:  cfg.Fetch.RotateEvery,
		Timeout:      cfg.Fetch.Timeout,
		MaxRetries:   cfg.Fetch.MaxRetries,
		BackoffBase:  cfg.Fetch.BackoffBase,
		BackoffMax:   cfg.Fetch.BackoffMax,
		DelayMin:     cfg.Fetch.DelayMin,
		DelayMax:     cfg.Fetch.DelayMax,
		PerHostQPS:   cfg.Fetch.PerHostQPS,
		MaxForbidden: cfg.Fetch.MaxForbidden,
	}, logger)

	var renderer harvest.Renderer
	var detector harvest.Detector
	if cfg.Render.Enabled {
		chromeRenderer, err := fetch.NewChromedpRenderer(fetch.RendererConfig{
			MaxParallel: cfg.Render.MaxParallel,
			NavTimeout:  cfg.Render.NavTimeout,
			UserAgent:   cfg.Fetch.UserAgents[0],
		}, logger)
		if err != nil {
			return fmt.Errorf("start renderer: %w", err)
		}
		defer func() { _ = chromeRenderer.Close(context.Background()) }()
		renderer = chromeRenderer
		detector = fetch.NewHeuristicDetector(cfg.Render.MinHTMLBytes, cfg.Render.MarkerSelectors, cfg.Render.Keywords)
	}

	discoverer, err := discover.New(discover.Config{
		BaseURL:    cfg.Source.BaseURL,
		Localities: cfg.Source.Localities,
		Categories: cfg.Source.Categories,
		Strategies: cfg.Discover.Strategies,
		MaxPages:   cfg.Discover.MaxPages,
	}, client, discover.NewShapeFilter(), logger)
	if err != nil {
		return err
	}

	urls, err := discoverer.Run(ctx)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	logger.Info("discovery finished", zap.Int("urls", len(urls)))

	batcher := store.NewBatcher(st, cfg.Store.FlushEvery, logger)

	p := pipeline.New(pipeline.Config{Concurrency: cfg.Pipeline.Concurrency},
		client, renderer, detector, batcher, resolver, harvest.SystemClock{}, logger)

	result, err := p.Run(ctx, urls)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			return fmt.Errorf("harvest run %s: %w", result.RunID, err)
		}
		logger.Info("harvest run interrupted, staged records were flushed",
			zap.String("run_id", result.RunID))
	}

	if cfg.Store.ExportDir != "" {
		for _, kind := range []harvest.Kind{harvest.KindInstitutions, harvest.KindProfessionals, harvest.KindOfferings} {
			path, err := store.ExportCSV(ctx, st, kind, cfg.Store.ExportDir)
			if err != nil {
				logger.Warn("export failed", zap.String("kind", string(kind)), zap.Error(err))
				continue
			}
			logger.Info("exported", zap.String("kind", string(kind)), zap.String("path", path))
		}
	}
	return nil
}

// newStore connects Postgres when a DSN is configured and falls back to the
// in-memory store for dry runs.
func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (harvest.Store, error) {
	if cfg.Store.DSN == "" {
		logger.Warn("no store DSN configured, using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.Store.DSN, cfg.Store.MaxConns, logger)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pg, nil
}

func runImports(ctx context.Context, st harvest.Store, resolver *match.Resolver, seedInstitutions, seedProfessionals string, logger *zap.Logger) error {
	importer := tabular.NewImporter(st, resolver, harvest.SystemClock{}, logger)

	if seedInstitutions != "" {
		f, err := os.Open(seedInstitutions)
		if err != nil {
			return fmt.Errorf("open institutions seed: %w", err)
		}
		stats, err := importer.ImportInstitutions(ctx, f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("import institutions: %w", err)
		}
		logger.Info("institutions imported",
			zap.Int("imported", stats.Imported), zap.Int("dropped", stats.Dropped))
	}

	if seedProfessionals != "" {
		f, err := os.Open(seedProfessionals)
		if err != nil {
			return fmt.Errorf("open professionals seed: %w", err)
		}
		stats, err := importer.ImportProfessionals(ctx, f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("import professionals: %w", err)
		}
		logger.Info("professionals imported",
			zap.Int("imported", stats.Imported), zap.Int("dropped", stats.Dropped))
	}
	return nil
}
