package discover

import (
	"net/url"
	"regexp"
	"strings"
)

// ShapeFilter separates entity detail pages from listing, search, and
// navigation noise. A URL is admitted when its path matches at least one
// allow pattern and no deny pattern; deny always wins.
type ShapeFilter struct {
	allow []*regexp.Regexp
	deny  []*regexp.Regexp
}

var defaultAllow = []*regexp.Regexp{
	// Detail pages live one level below the locality listing, e.g.
	// /hospitals/chennai/hospital-apollo or /doctors/delhi/dr-sharma.
	regexp.MustCompile(`^/hospitals?/[a-z0-9\-_]+/[a-z0-9\-_]+$`),
	regexp.MustCompile(`^/doctors?/[a-z0-9\-_]+/[a-z0-9\-_]+$`),
	regexp.MustCompile(`^/treatments?/[a-z0-9\-_]+/[a-z0-9\-_]+$`),
}

var defaultDeny = []*regexp.Regexp{
	regexp.MustCompile(`/(search|filter|compare|login|signup|contact)(/|$)`),
	regexp.MustCompile(`/(category|categories|tags?)(/|$)`),
	regexp.MustCompile(`\.(jpg|jpeg|png|gif|svg|css|js|pdf)$`),
}

// NewShapeFilter builds a filter with the default detail-page patterns.
func NewShapeFilter() *ShapeFilter {
	return &ShapeFilter{allow: defaultAllow, deny: defaultDeny}
}

// NewShapeFilterFromPatterns compiles caller-supplied patterns; empty slices
// fall back to the defaults.
func NewShapeFilterFromPatterns(allow, deny []string) (*ShapeFilter, error) {
	f := &ShapeFilter{}
	for _, p := range allow {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		f.allow = append(f.allow, re)
	}
	for _, p := range deny {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		f.deny = append(f.deny, re)
	}
	if len(f.allow) == 0 {
		f.allow = defaultAllow
	}
	if len(f.deny) == 0 {
		f.deny = defaultDeny
	}
	return f, nil
}

// Admit reports whether rawURL looks like a harvestable detail page.
func (f *ShapeFilter) Admit(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	// Listing pagination and filtered views are never detail pages.
	if u.RawQuery != "" {
		return false
	}
	path := strings.ToLower(strings.TrimSuffix(u.Path, "/"))
	if path == "" {
		return false
	}

	admitted := false
	for _, re := range f.allow {
		if re.MatchString(path) {
			admitted = true
			break
		}
	}
	if !admitted {
		return false
	}
	for _, re := range f.deny {
		if re.MatchString(path) {
			return false
		}
	}
	return true
}
