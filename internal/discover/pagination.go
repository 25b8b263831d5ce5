package discover

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// walkListing pages through a listing URL, collecting admitted detail links
// into out. The walk stops when a page contributes nothing new, when the
// listing stops advertising a next page, or when maxPages is reached.
func (d *Discoverer) walkListing(ctx context.Context, listURL string, out *Set) error {
	base, err := url.Parse(listURL)
	if err != nil {
		return fmt.Errorf("parse listing url: %w", err)
	}

	for pageNum := 1; pageNum <= d.maxPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		pageURL := withPage(base, pageNum)
		page, err := d.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			// A missing page past the first one just means the walk ran
			// off the end of the listing.
			if pageNum > 1 {
				d.logger.Debug("pagination ended", zap.String("url", pageURL), zap.Error(err))
				return nil
			}
			return fmt.Errorf("fetch listing %s: %w", pageURL, err)
		}

		added := 0
		for _, link := range pageLinks(base, page.Body) {
			if !d.shapes.Admit(link) {
				continue
			}
			if out.Add(link) {
				added++
			}
		}
		d.logger.Debug("listing page walked",
			zap.String("url", pageURL),
			zap.Int("new_links", added),
		)

		if added == 0 {
			return nil
		}
		if !hasNextPage(page.Body) {
			return nil
		}
	}
	return nil
}

func withPage(base *url.URL, pageNum int) string {
	u := *base
	q := u.Query()
	if pageNum <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(pageNum))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
