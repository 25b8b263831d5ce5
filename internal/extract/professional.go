package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/medatlas/harvester/internal/harvest"
)

// doctorNamePattern recognizes professional names as rendered in headings
// and card titles.
var doctorNamePattern = regexp.MustCompile(`(?i)^((?:prof\.?\s*)?dr\.?\s+|consultant\s+)`)

// professionalCardSelectors locate per-doctor sections on institution and
// team pages, tried in order.
var professionalCardSelectors = []string{
	".doctor-card", ".doctor-item", ".team-member", ".doctor",
}

// ProfessionalExtractor builds professional records from detail pages and
// from doctor sections embedded in institution pages.
type ProfessionalExtractor struct {
	clock harvest.Clock
}

// NewProfessionalExtractor returns an extractor stamping records with clock.
func NewProfessionalExtractor(clock harvest.Clock) *ProfessionalExtractor {
	if clock == nil {
		clock = harvest.SystemClock{}
	}
	return &ProfessionalExtractor{clock: clock}
}

// Extract parses a standalone professional detail page.
func (e *ProfessionalExtractor) Extract(page harvest.Page) (harvest.Professional, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return harvest.Professional{}, fmt.Errorf("parse page: %w", err)
	}

	name := professionalName(firstText(doc, lengthBetween(3, 80),
		selectorText("h1"),
		metaContent("og:title"),
		selectorText("title"),
	))
	if name == "" {
		return harvest.Professional{}, fmt.Errorf("%s: %w", page.URL, ErrNoEntity)
	}

	pro := e.fromSelection(doc.Selection, name)
	pro.ParentInstitutionName = firstText(doc, lengthBetween(3, 120),
		labeledText("Hospital"),
		selectorText(".hospital-name"),
	)
	pro.Locality = localityFromURL(sourceURL(page))
	pro.SourceURL = sourceURL(page)
	pro.ScrapedAt = e.clock.Now()
	return pro, nil
}

// ExtractEmbedded pulls the professionals listed on an institution page,
// attributing each to the parent institution.
func (e *ProfessionalExtractor) ExtractEmbedded(page harvest.Page, parent harvest.Institution) ([]harvest.Professional, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var cards *goquery.Selection
	for _, selector := range professionalCardSelectors {
		if found := doc.Find(selector); found.Length() > 0 {
			cards = found
			break
		}
	}
	if cards == nil {
		return nil, nil
	}

	var pros []harvest.Professional
	cards.Each(func(_ int, card *goquery.Selection) {
		name := professionalName(CollapseSpace(card.Find("h2, h3, h4, .name").First().Text()))
		if name == "" {
			return
		}
		pro := e.fromSelection(card, name)
		pro.ParentInstitutionName = parent.Name
		pro.Locality = parent.Locality
		pro.SourceURL = parent.SourceURL
		pro.ScrapedAt = e.clock.Now()
		if pro.Valid() {
			pros = append(pros, pro)
		}
	})
	return pros, nil
}

// fromSelection reads the professional attributes present in a page section.
func (e *ProfessionalExtractor) fromSelection(sel *goquery.Selection, name string) harvest.Professional {
	text := CollapseSpace(sel.Text())

	pro := harvest.Professional{
		Name:           name,
		Qualifications: matchTokens(text, qualificationVocab),
	}

	if role := designation(sel, text); role != "" {
		pro.Specialization = role
	}
	if years, ok := ParseExperience(text); ok {
		pro.ExperienceYears = years
	}
	if fee, ok := ParseMoney(labeledFrom(sel, "Consultation Fee", "Fee")); ok {
		pro.ConsultationFee = &fee
	}
	return pro
}

// professionalName validates and normalizes a doctor heading. Headings that
// do not carry a professional title are not names; accepted ones come back
// in Title Case.
func professionalName(heading string) string {
	heading = CleanName(heading)
	if !doctorNamePattern.MatchString(heading) {
		return ""
	}
	return TitleCase(heading)
}

// designation resolves the professional's specialization from an explicit
// label, a designation class, or specialty keywords in the section text.
func designation(sel *goquery.Selection, text string) string {
	if v := labeledFrom(sel, "Designation", "Specialization", "Speciality"); v != "" {
		return v
	}
	if v := CollapseSpace(sel.Find(".designation, .speciality").First().Text()); v != "" {
		return v
	}
	if found := matchVocab(text, specialtyVocab); len(found) > 0 {
		return found[0]
	}
	return ""
}

// labeledFrom is labeledText scoped to an arbitrary selection.
func labeledFrom(sel *goquery.Selection, labels ...string) string {
	var found string
	sel.Find("li, p, td, span, div, dd").EachWithBreak(func(_ int, node *goquery.Selection) bool {
		text := CollapseSpace(node.Text())
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
