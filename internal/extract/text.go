package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/medatlas/harvester/internal/harvest"
)

var (
	yearPattern       = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
	numberPattern     = regexp.MustCompile(`\d+`)
	ratingPattern     = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*\((\d+)\s*Ratings?\)`)
	priceRangePattern = regexp.MustCompile(`(\$|₹|€|£)\s*(\d+(?:,\d+)*)\s*-\s*(?:\$|₹|€|£)?\s*(\d+(?:,\d+)*)`)
	priceValuePattern = regexp.MustCompile(`(\$|₹|€|£)\s*(\d+(?:,\d+)*)`)
	experiencePattern = regexp.MustCompile(`(?i)(\d+)\s*\+?\s*(?:years?|yrs?)`)
)

// currencyCodes maps price symbols to ISO codes. Unknown symbols fall back
// to USD.
var currencyCodes = map[string]string{
	"$": "USD",
	"₹": "INR",
	"€": "EUR",
	"£": "GBP",
}

func currencyCode(symbol string) string {
	if code, ok := currencyCodes[symbol]; ok {
		return code
	}
	return "USD"
}

// StripLabel removes a leading "Label:" prefix such as "Established in:" or
// "Number of Beds:". Text without a colon comes back unchanged.
func StripLabel(text string) string {
	if idx := strings.Index(text, ":"); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return strings.TrimSpace(text)
}

// ParseYear extracts a plausible founding year from text like
// "Established in: 1995". Years outside [1800, current year] are rejected.
func ParseYear(text string) (int, bool) {
	match := yearPattern.FindString(StripLabel(text))
	if match == "" {
		return 0, false
	}
	year, err := strconv.Atoi(match)
	if err != nil || year < 1800 || year > time.Now().Year() {
		return 0, false
	}
	return year, true
}

// ParseCount extracts a bounded positive integer from text like
// "Number of Beds: 710". Values outside [1, max] are rejected.
func ParseCount(text string, max int) (int, bool) {
	match := numberPattern.FindString(StripLabel(text))
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

// ParseRating reads composites like "4.3 (86 Ratings)" into a value and a
// review count. Ratings outside [0, 5] are rejected.
func ParseRating(text string) (harvest.Rating, bool) {
	m := ratingPattern.FindStringSubmatch(text)
	if m == nil {
		return harvest.Rating{}, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value < 0 || value > 5 {
		return harvest.Rating{}, false
	}
	count, err := strconv.Atoi(m[2])
	if err != nil {
		return harvest.Rating{}, false
	}
	return harvest.Rating{Value: value, ReviewCount: count}, true
}

// ParsePriceRange reads "₹ 1,20,000 - 1,50,000" style ranges. A range whose
// minimum exceeds its maximum is rejected.
func ParsePriceRange(text string) (harvest.PriceRange, bool) {
	m := priceRangePattern.FindStringSubmatch(text)
	if m == nil {
		return harvest.PriceRange{}, false
	}
	min, errMin := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	max, errMax := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", ""), 64)
	if errMin != nil || errMax != nil || min <= 0 || min > max {
		return harvest.PriceRange{}, false
	}
	return harvest.PriceRange{Min: min, Max: max, Currency: currencyCode(m[1])}, true
}

// ParseMoney reads a single "₹ 1,500" style amount.
func ParseMoney(text string) (harvest.Money, bool) {
	m := priceValuePattern.FindStringSubmatch(text)
	if m == nil {
		return harvest.Money{}, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil || amount <= 0 {
		return harvest.Money{}, false
	}
	return harvest.Money{Amount: amount, Currency: currencyCode(m[1])}, true
}

// ParseExperience reads "22+ years of experience" style phrases. Plausible
// careers top out at 70 years.
func ParseExperience(text string) (int, bool) {
	m := experiencePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	years, err := strconv.Atoi(m[1])
	if err != nil || years < 1 || years > 70 {
		return 0, false
	}
	return years, true
}

// TitleCase uppercases the first letter of every word, leaving the rest of
// each word untouched so acronyms survive.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// CollapseSpace trims and squeezes all runs of whitespace to single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
