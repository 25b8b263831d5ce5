package harvest

import (
	"fmt"
	"net/url"
	"strings"
)

// pageParam is the only query parameter that survives canonicalization; it
// distinguishes listing pages during pagination walks.
const pageParam = "page"

// CanonicalURL standardizes a URL so the same entity page dedups to one key.
// It lowercases the scheme and host, removes default ports and fragments,
// trims the trailing slash, and drops every query parameter except an
// explicit page parameter.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	q := u.Query()
	kept := url.Values{}
	if page := q.Get(pageParam); page != "" && page != "1" {
		kept.Set(pageParam, page)
	}
	u.RawQuery = kept.Encode()

	return u.String(), nil
}

// SameHost reports whether two URLs share a hostname, ignoring case.
func SameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}
