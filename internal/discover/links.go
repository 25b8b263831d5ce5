package discover

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scriptURLPattern finds entity paths embedded in inline script payloads,
// where client-rendered listings keep their data.
var scriptURLPattern = regexp.MustCompile(`/(?:hospitals?|doctors?|treatments?)/[a-zA-Z0-9\-_/]+`)

// pageLinks returns every absolute same-host href in body, including paths
// referenced only inside script bodies.
func pageLinks(base *url.URL, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if abs := resolveLink(base, href); abs != "" {
			links = append(links, abs)
		}
	})

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		for _, path := range scriptURLPattern.FindAllString(sel.Text(), -1) {
			if abs := resolveLink(base, path); abs != "" {
				links = append(links, abs)
			}
		}
	})

	return links
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if !strings.EqualFold(abs.Hostname(), base.Hostname()) {
		return ""
	}
	return abs.String()
}

// hasNextPage reports whether a listing advertises a further page.
func hasNextPage(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if doc.Find(`a[rel="next"]`).Length() > 0 {
		return true
	}
	return doc.Find(".pagination .next, .pagination a.next").Length() > 0
}
