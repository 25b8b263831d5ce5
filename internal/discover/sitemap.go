package discover

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"
)

// fromSitemap pulls /sitemap.xml and admits every <loc> entry that looks
// like an entity detail page. Nested sitemap indexes are followed one level
// deep.
func (d *Discoverer) fromSitemap(ctx context.Context, out *Set) error {
	return d.readSitemap(ctx, strings.TrimSuffix(d.baseURL, "/")+"/sitemap.xml", out, true)
}

func (d *Discoverer) readSitemap(ctx context.Context, sitemapURL string, out *Set, followIndex bool) error {
	page, err := d.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return fmt.Errorf("fetch sitemap %s: %w", sitemapURL, err)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}

	added := 0
	for _, node := range xmlquery.Find(doc, "//urlset/url/loc") {
		loc := strings.TrimSpace(node.InnerText())
		if loc == "" || !d.shapes.Admit(loc) {
			continue
		}
		if out.Add(loc) {
			added++
		}
	}

	if followIndex {
		for _, node := range xmlquery.Find(doc, "//sitemapindex/sitemap/loc") {
			child := strings.TrimSpace(node.InnerText())
			if child == "" {
				continue
			}
			if err := d.readSitemap(ctx, child, out, false); err != nil {
				d.logger.Warn("child sitemap skipped", zap.String("url", child), zap.Error(err))
			}
		}
	}

	d.logger.Debug("sitemap read", zap.String("url", sitemapURL), zap.Int("new_links", added))
	return nil
}
