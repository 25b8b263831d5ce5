// Package discover finds entity detail URLs by walking listings, reading
// sitemaps, and enumerating locality-based listing templates.
package discover

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/medatlas/harvester/internal/harvest"
)

// Strategy names accepted by Config.Strategies.
const (
	StrategyPagination  = "pagination"
	StrategySitemap     = "sitemap"
	StrategyEnumeration = "enumeration"
)

// Config selects and tunes the discovery strategies.
type Config struct {
	BaseURL    string
	Localities []string
	Categories []string
	Strategies []string
	MaxPages   int
}

// Discoverer runs the configured strategies in order and merges their
// results. A strategy failure is logged and the remaining strategies still
// run; discovery only fails outright when every strategy fails.
type Discoverer struct {
	fetcher    harvest.Fetcher
	shapes     *ShapeFilter
	baseURL    string
	localities []string
	categories []string
	strategies []string
	maxPages   int
	logger     *zap.Logger
}

// New constructs a Discoverer.
func New(cfg Config, fetcher harvest.Fetcher, shapes *ShapeFilter, logger *zap.Logger) (*Discoverer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("discover: base url is required")
	}
	if shapes == nil {
		shapes = NewShapeFilter()
	}
	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = []string{StrategyPagination, StrategySitemap, StrategyEnumeration}
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}
	return &Discoverer{
		fetcher:    fetcher,
		shapes:     shapes,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		localities: cfg.Localities,
		categories: cfg.Categories,
		strategies: strategies,
		maxPages:   maxPages,
		logger:     logger,
	}, nil
}

// Run executes every configured strategy and returns the deduplicated
// detail URLs in discovery order.
func (d *Discoverer) Run(ctx context.Context) ([]string, error) {
	out := NewSet()
	var failures int

	for _, name := range d.strategies {
		if err := ctx.Err(); err != nil {
			return out.URLs(), err
		}
		before := out.Len()
		if err := d.runStrategy(ctx, name, out); err != nil {
			failures++
			d.logger.Warn("discovery strategy failed",
				zap.String("strategy", name), zap.Error(err))
			continue
		}
		d.logger.Info("discovery strategy finished",
			zap.String("strategy", name),
			zap.Int("new_links", out.Len()-before),
		)
	}

	if failures == len(d.strategies) {
		return nil, fmt.Errorf("all %d discovery strategies failed", failures)
	}
	return out.URLs(), nil
}

func (d *Discoverer) runStrategy(ctx context.Context, name string, out *Set) error {
	switch name {
	case StrategyPagination:
		return d.walkListing(ctx, d.baseURL+"/hospitals", out)
	case StrategySitemap:
		return d.fromSitemap(ctx, out)
	case StrategyEnumeration:
		return d.fromEnumeration(ctx, out)
	default:
		return fmt.Errorf("unknown discovery strategy %q", name)
	}
}
