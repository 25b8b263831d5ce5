package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/medatlas/harvester/internal/harvest"
)

// ErrNoEntity indicates the page held no recognizable entity record.
var ErrNoEntity = errors.New("no entity found on page")

// InstitutionExtractor builds institution records from detail pages.
type InstitutionExtractor struct {
	clock harvest.Clock
}

// NewInstitutionExtractor returns an extractor stamping records with clock.
func NewInstitutionExtractor(clock harvest.Clock) *InstitutionExtractor {
	if clock == nil {
		clock = harvest.SystemClock{}
	}
	return &InstitutionExtractor{clock: clock}
}

// Extract parses one institution detail page. The name is mandatory; every
// other field degrades to its zero value when absent.
func (e *InstitutionExtractor) Extract(page harvest.Page) (harvest.Institution, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return harvest.Institution{}, fmt.Errorf("parse page: %w", err)
	}

	name := CleanName(firstText(doc, lengthBetween(3, 120),
		selectorText("h1"),
		metaContent("og:title"),
		selectorText("title"),
	))
	if name == "" {
		return harvest.Institution{}, fmt.Errorf("%s: %w", page.URL, ErrNoEntity)
	}

	inst := harvest.Institution{
		Name:      name,
		Locality:  e.locality(doc, page),
		Address:   firstText(doc, lengthBetween(8, 300), labeledText("Address"), selectorText("address"), selectorText(".address")),
		Contact:   e.contact(doc),
		SourceURL: sourceURL(page),
		ScrapedAt: e.clock.Now(),
	}

	if rating, ok := e.rating(doc); ok {
		inst.Rating = rating
	}
	if year, ok := ParseYear(firstText(doc, nil,
		labeledText("Established in", "Established", "Founded in", "Year of Establishment"),
	)); ok {
		inst.EstablishedYear = year
	}
	if beds, ok := ParseCount(firstText(doc, nil,
		labeledText("Number of Beds", "Bed Count", "Beds"),
	), 5000); ok {
		inst.BedCount = beds
	}

	bodyText := doc.Text()
	inst.Specialties = matchVocab(bodyText, specialtyVocab)
	inst.Services = matchVocab(bodyText, serviceVocab)
	inst.Facilities = matchVocab(bodyText, facilityVocab)
	inst.Accreditations = matchVocab(bodyText, accreditationVocab)

	inst.Description = firstText(doc, lengthBetween(40, 2000),
		metaContent("description"),
		metaContent("og:description"),
		selectorText(".description"),
		longestParagraph,
	)

	return inst, nil
}

func (e *InstitutionExtractor) locality(doc *goquery.Document, page harvest.Page) harvest.Locality {
	if text := firstText(doc, nil, labeledText("Location"), selectorText(".location")); text != "" {
		if loc := ParseLocality(text); loc.City != "" {
			return loc
		}
	}
	return localityFromURL(sourceURL(page))
}

func (e *InstitutionExtractor) contact(doc *goquery.Document) harvest.Contact {
	contact := harvest.Contact{
		Phone:   firstText(doc, nil, labeledText("Phone", "Contact Number"), hrefScheme("tel:")),
		Email:   firstText(doc, nil, labeledText("Email"), hrefScheme("mailto:")),
		Website: firstText(doc, nil, labeledText("Website")),
	}
	return contact
}

func (e *InstitutionExtractor) rating(doc *goquery.Document) (harvest.Rating, bool) {
	if r, ok := ParseRating(doc.Find(".rating, .ratings").First().Text()); ok {
		return r, true
	}
	return ParseRating(doc.Text())
}

// ParseLocality splits composites like "Chennai, Tamil Nadu, India" into
// their parts. One part is a city, two are city and country, three or more
// add the state in between.
func ParseLocality(text string) harvest.Locality {
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = CollapseSpace(parts[i])
	}
	switch {
	case len(parts) >= 3:
		return harvest.Locality{City: parts[0], State: parts[1], Country: parts[len(parts)-1]}
	case len(parts) == 2:
		return harvest.Locality{City: parts[0], Country: parts[1]}
	case len(parts) == 1 && parts[0] != "":
		return harvest.Locality{City: parts[0]}
	default:
		return harvest.Locality{}
	}
}

// localityFromURL recovers the city from detail paths shaped like
// /hospitals/<city>/<slug>.
func localityFromURL(rawURL string) harvest.Locality {
	u, err := url.Parse(rawURL)
	if err != nil {
		return harvest.Locality{}
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 3 {
		return harvest.Locality{}
	}
	city := TitleCase(strings.ReplaceAll(segments[len(segments)-2], "-", " "))
	return harvest.Locality{City: city}
}

func sourceURL(page harvest.Page) string {
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return page.URL
}

// hrefScheme extracts the first link target with the given scheme prefix,
// stripped of the prefix.
func hrefScheme(prefix string) textStrategy {
	return func(doc *goquery.Document) string {
		var found string
		doc.Find(`a[href^="` + prefix + `"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, ok := sel.Attr("href")
			if !ok {
				return true
			}
			found = strings.TrimPrefix(href, prefix)
			return false
		})
		return found
	}
}

// longestParagraph returns the longest <p> body, used as a description of
// last resort.
func longestParagraph(doc *goquery.Document) string {
	var best string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := CollapseSpace(sel.Text())
		if len(text) > len(best) {
			best = text
		}
	})
	return best
}
