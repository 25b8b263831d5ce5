package extract

import (
	"regexp"
	"strings"
)

var (
	// Site boilerplate appended to entity names, e.g.
	// "Apollo Hospital | Book Appointment" or "Fortis - Reviews & Cost".
	pipeSuffixPattern = regexp.MustCompile(`\s*\|\s*.*$`)
	dashSuffixPattern = regexp.MustCompile(`(?i)\s*[-–]\s*(reviews?|cost|book|appointment|contact).*$`)

	// Marketing prefixes in listing headings.
	hypePrefixPattern = regexp.MustCompile(`(?i)^(top|best|leading)\s+`)
)

// CleanName strips site boilerplate and marketing noise from an extracted
// entity name.
func CleanName(name string) string {
	name = CollapseSpace(name)
	name = pipeSuffixPattern.ReplaceAllString(name, "")
	name = dashSuffixPattern.ReplaceAllString(name, "")
	name = hypePrefixPattern.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}
