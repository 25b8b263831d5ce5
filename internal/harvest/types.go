// Package harvest defines core types shared across subsystems.
package harvest

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a persisted collection.
type Kind string

// Collection kinds persisted by the store.
const (
	KindInstitutions  Kind = "institutions"
	KindProfessionals Kind = "professionals"
	KindOfferings     Kind = "offerings"
)

// Locality places an entity geographically.
type Locality struct {
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Country string `json:"country"`
}

// Contact holds the reachable coordinates of an institution.
type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

// Rating is a review score paired with the number of reviews behind it.
// Value is in [0,5] when present and zero otherwise.
type Rating struct {
	Value       float64 `json:"value"`
	ReviewCount int     `json:"review_count"`
}

// Institution is one harvested medical institution record.
type Institution struct {
	Key             string    `json:"key,omitempty"`
	Name            string    `json:"name"`
	Locality        Locality  `json:"locality"`
	Address         string    `json:"address,omitempty"`
	Contact         Contact   `json:"contact"`
	Specialties     []string  `json:"specialties,omitempty"`
	Services        []string  `json:"services,omitempty"`
	Facilities      []string  `json:"facilities,omitempty"`
	Rating          Rating    `json:"rating"`
	EstablishedYear int       `json:"established_year,omitempty"`
	BedCount        int       `json:"bed_count,omitempty"`
	Accreditations  []string  `json:"accreditations,omitempty"`
	Description     string    `json:"description,omitempty"`
	SourceURL       string    `json:"source_url"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// NaturalKey returns the stable upsert key for the institution: the
// canonical detail-page URL when known, otherwise name plus city.
func (i Institution) NaturalKey() string {
	if i.Key != "" {
		return i.Key
	}
	if canon, err := CanonicalURL(i.SourceURL); err == nil && canon != "" {
		return canon
	}
	return strings.ToLower(strings.TrimSpace(i.Name)) + "|" + strings.ToLower(strings.TrimSpace(i.Locality.City))
}

// Money is a currency amount with an ISO currency code.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Professional is one harvested professional record, optionally linked to
// the institution it practices at.
type Professional struct {
	Name                  string    `json:"name"`
	Specialization        string    `json:"specialization,omitempty"`
	ExperienceYears       int       `json:"experience_years,omitempty"`
	Qualifications        []string  `json:"qualifications,omitempty"`
	ConsultationFee       *Money    `json:"consultation_fee,omitempty"`
	ParentInstitutionRef  string    `json:"parent_institution_ref,omitempty"`
	ParentInstitutionName string    `json:"parent_institution_name"`
	Locality              Locality  `json:"locality"`
	SourceURL             string    `json:"source_url"`
	ScrapedAt             time.Time `json:"scraped_at"`
}

// Valid reports whether the record may be persisted. A professional with no
// resolvable name is not a valid record.
func (p Professional) Valid() bool {
	return strings.TrimSpace(p.Name) != ""
}

// NaturalKey combines the raw parent institution name with the professional
// name; the pair stays stable even when reference resolution fails.
func (p Professional) NaturalKey() string {
	return strings.ToLower(strings.TrimSpace(p.ParentInstitutionName)) + "|" + strings.ToLower(strings.TrimSpace(p.Name))
}

// PriceRange bounds the advertised price of an offering.
type PriceRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// Offering is a priced service advertised under an institution.
type Offering struct {
	Name                  string     `json:"name"`
	Category              string     `json:"category,omitempty"`
	Price                 PriceRange `json:"price_range"`
	ParentInstitutionName string     `json:"parent_institution_name,omitempty"`
	SourceURL             string     `json:"source_url"`
	ScrapedAt             time.Time  `json:"scraped_at"`
}

// NaturalKey dedups offerings by name within a category.
func (o Offering) NaturalKey() string {
	return strings.ToLower(strings.TrimSpace(o.Category)) + "|" + strings.ToLower(strings.TrimSpace(o.Name))
}

// Page is the result of fetching a single URL.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Rendered   bool
	Duration   time.Duration
}

// StatusError reports a terminal non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}
