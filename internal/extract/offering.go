package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/medatlas/harvester/internal/harvest"
)

// offeringRowSelectors locate priced service entries, tried in order.
var offeringRowSelectors = []string{
	".treatment-card", ".package", "table.prices tr", ".price-list li",
}

// OfferingExtractor builds priced offering records from treatment and
// package sections.
type OfferingExtractor struct {
	clock harvest.Clock
}

// NewOfferingExtractor returns an extractor stamping records with clock.
func NewOfferingExtractor(clock harvest.Clock) *OfferingExtractor {
	if clock == nil {
		clock = harvest.SystemClock{}
	}
	return &OfferingExtractor{clock: clock}
}

// Extract pulls every offering on the page that carries both a name and a
// parseable price range. Rows without a price are skipped, not errors.
func (e *OfferingExtractor) Extract(page harvest.Page, parent harvest.Institution) ([]harvest.Offering, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var rows *goquery.Selection
	for _, selector := range offeringRowSelectors {
		if found := doc.Find(selector); found.Length() > 0 {
			rows = found
			break
		}
	}
	if rows == nil {
		return nil, nil
	}

	var offerings []harvest.Offering
	rows.Each(func(_ int, row *goquery.Selection) {
		text := CollapseSpace(row.Text())
		price, ok := ParsePriceRange(text)
		if !ok {
			return
		}
		name := CleanName(row.Find("h2, h3, h4, .name, td:first-child").First().Text())
		if name == "" || len(name) < 3 {
			return
		}
		offerings = append(offerings, harvest.Offering{
			Name:                  name,
			Category:              offeringCategory(name),
			Price:                 price,
			ParentInstitutionName: parent.Name,
			SourceURL:             sourceURL(page),
			ScrapedAt:             e.clock.Now(),
		})
	})
	return offerings, nil
}

// offeringCategory assigns a specialty category when the offering name
// mentions one.
func offeringCategory(name string) string {
	if found := matchVocab(name, specialtyVocab); len(found) > 0 {
		return found[0]
	}
	return ""
}
