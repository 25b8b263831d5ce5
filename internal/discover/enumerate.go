package discover

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// listingTemplates are the URL shapes tried, in order, for each category and
// locality pair until one answers. Slots are base URL, category, locality.
var listingTemplates = []string{
	"%s/%s/%s",
	"%s/%s/india/%s",
}

// fromEnumeration constructs candidate listing URLs from the configured
// categories and localities and walks whichever ones exist. For each pair
// the first template that answers wins; the rest are skipped.
func (d *Discoverer) fromEnumeration(ctx context.Context, out *Set) error {
	if len(d.localities) == 0 {
		return fmt.Errorf("enumeration needs at least one locality")
	}
	categories := d.categories
	if len(categories) == 0 {
		categories = []string{"hospitals"}
	}

	base := strings.TrimSuffix(d.baseURL, "/")
	for _, locality := range d.localities {
		slug := slugify(locality)
		if slug == "" {
			continue
		}
		for _, category := range categories {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, tmpl := range listingTemplates {
				listURL := fmt.Sprintf(tmpl, base, slugify(category), slug)
				if _, err := d.fetcher.Fetch(ctx, listURL); err != nil {
					d.logger.Debug("listing candidate missed",
						zap.String("url", listURL), zap.Error(err))
					continue
				}
				if err := d.walkListing(ctx, listURL, out); err != nil {
					d.logger.Warn("listing walk failed",
						zap.String("url", listURL), zap.Error(err))
				}
				break
			}
		}
	}
	return nil
}

// slugify lowercases a name into a URL path segment.
func slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
