// Package match links extracted records to already-known entities by fuzzy
// name similarity, so "Apollo Hospital" and "Apollo Hospitals Chennai"
// resolve to the same institution.
package match

import "strings"

// Config tunes the resolver scoring.
type Config struct {
	// Threshold is the minimum score (exclusive) a candidate must reach.
	Threshold float64
	// LocalityBonus is added when the candidate shares the record's city.
	LocalityBonus float64
	// SubstringBonus is added when one normalized name contains the other.
	SubstringBonus float64
}

// Resolver scores name candidates and picks the best one above the
// threshold.
type Resolver struct {
	threshold      float64
	localityBonus  float64
	substringBonus float64
}

// Candidate is one known entity a record may resolve to.
type Candidate struct {
	Key  string
	Name string
	City string
}

// NewResolver builds a resolver; zero config fields take the defaults
// (threshold 0.6, locality bonus 0.2, substring bonus 0.3).
func NewResolver(cfg Config) *Resolver {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.6
	}
	if cfg.LocalityBonus <= 0 {
		cfg.LocalityBonus = 0.2
	}
	if cfg.SubstringBonus <= 0 {
		cfg.SubstringBonus = 0.3
	}
	return &Resolver{
		threshold:      cfg.Threshold,
		localityBonus:  cfg.LocalityBonus,
		substringBonus: cfg.SubstringBonus,
	}
}

// Resolve returns the key of the best-scoring candidate strictly above the
// threshold. Candidates are scored in order and the first one at the top
// score wins, so resolution is deterministic for a fixed candidate order.
func (r *Resolver) Resolve(name, city string, candidates []Candidate) (string, bool) {
	bestKey := ""
	bestScore := 0.0
	for _, cand := range candidates {
		score := r.Score(name, city, cand)
		if score > bestScore {
			bestScore = score
			bestKey = cand.Key
		}
	}
	if bestScore <= r.threshold {
		return "", false
	}
	return bestKey, true
}

// Score computes edit-distance similarity between the normalized names plus
// a locality bonus and a substring bonus. The bonuses are additive signals,
// not probabilities, so the total is deliberately not capped: an exact name
// in the right city must outscore a partial match that merely saturates.
func (r *Resolver) Score(name, city string, cand Candidate) float64 {
	a := stripTrailingLocality(Normalize(name), Normalize(city))
	b := stripTrailingLocality(Normalize(cand.Name), Normalize(cand.City))
	if a == "" || b == "" {
		return 0
	}

	score := similarity(a, b)
	if city != "" && strings.EqualFold(strings.TrimSpace(city), strings.TrimSpace(cand.City)) {
		score += r.localityBonus
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		score += r.substringBonus
	}
	return score
}

// trailingLocalities are city names commonly baked into institution names,
// e.g. "Apollo Hospitals Chennai".
var trailingLocalities = []string{
	"new delhi", "delhi", "mumbai", "bangalore", "chennai",
	"kolkata", "hyderabad", "pune", "gurgaon",
}

// stripTrailingLocality drops a trailing city token from a normalized name,
// trying the entity's own city first. A name that is nothing but the city
// stays intact.
func stripTrailingLocality(name, city string) string {
	try := func(token string) (string, bool) {
		if token == "" || token == name {
			return name, false
		}
		if strings.HasSuffix(name, " "+token) {
			return strings.TrimSpace(strings.TrimSuffix(name, token)), true
		}
		return name, false
	}
	if stripped, ok := try(city); ok {
		return stripped
	}
	for _, token := range trailingLocalities {
		if stripped, ok := try(token); ok {
			return stripped
		}
	}
	return name
}

// Normalize lowercases a name, strips punctuation, and collapses whitespace.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// similarity is 1 minus the normalized Levenshtein distance.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
