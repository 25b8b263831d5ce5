package discover

import (
	"sync"

	"github.com/medatlas/harvester/internal/harvest"
)

// Set collects discovered URLs, deduplicating by canonical form. It is safe
// for concurrent use.
type Set struct {
	mu   sync.Mutex
	seen map[string]struct{}
	urls []string
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add canonicalizes rawURL and records it. It returns true when the URL was
// not already present; malformed URLs are rejected.
func (s *Set) Add(rawURL string) bool {
	canon, err := harvest.CanonicalURL(rawURL)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[canon]; ok {
		return false
	}
	s.seen[canon] = struct{}{}
	s.urls = append(s.urls, canon)
	return true
}

// Len returns the number of unique URLs collected.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// URLs returns the collected URLs in insertion order.
func (s *Set) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.urls))
	copy(out, s.urls)
	return out
}
