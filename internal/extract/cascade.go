// Package extract turns fetched pages into structured entity records using
// cascading extraction strategies: each field tries an ordered list of
// strategies and keeps the first plausible result.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// textStrategy produces one candidate string from a document. An empty
// result means the strategy found nothing.
type textStrategy func(doc *goquery.Document) string

// firstText runs strategies in order and returns the first candidate that
// passes validate. A nil validate accepts any non-empty candidate.
func firstText(doc *goquery.Document, validate func(string) bool, strategies ...textStrategy) string {
	for _, strategy := range strategies {
		candidate := CollapseSpace(strategy(doc))
		if candidate == "" {
			continue
		}
		if validate == nil || validate(candidate) {
			return candidate
		}
	}
	return ""
}

// selectorText reads the text of the first node matching a CSS selector.
func selectorText(selector string) textStrategy {
	return func(doc *goquery.Document) string {
		return doc.Find(selector).First().Text()
	}
}

// metaContent reads a meta tag by name or property attribute.
func metaContent(key string) textStrategy {
	return func(doc *goquery.Document) string {
		if v, ok := doc.Find(`meta[name="` + key + `"]`).Attr("content"); ok {
			return v
		}
		v, _ := doc.Find(`meta[property="` + key + `"]`).Attr("content")
		return v
	}
}

// labeledText finds the first short element whose text starts with one of
// the given labels and returns the remainder after the colon, e.g.
// "Established in: 1995" yields "1995".
func labeledText(labels ...string) textStrategy {
	return func(doc *goquery.Document) string {
		var found string
		doc.Find("li, p, td, span, div, dd, dt").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := CollapseSpace(sel.Text())
			if text == "" || len(text) > 120 {
				return true
			}
			for _, label := range labels {
				if strings.HasPrefix(strings.ToLower(text), strings.ToLower(label)) {
					found = StripLabel(text)
					return false
				}
			}
			return true
		})
		return found
	}
}

// lengthBetween validates a candidate by rune count.
func lengthBetween(min, max int) func(string) bool {
	return func(s string) bool {
		n := len([]rune(s))
		return n >= min && n <= max
	}
}
