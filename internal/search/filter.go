// Package search filters a post collection by substring containment and
// provides a debounced, stateful engine around that filter.
package search

import (
	"strings"

	"hololog/internal/domain/content"
)

// Filter returns the posts matching query. A blank query returns posts
// unchanged. Matching is substring containment over title, description,
// slug and tags, in that order.
func Filter(posts []content.Post, query string, caseSensitive bool) []content.Post {
	q := strings.TrimSpace(query)
	if q == "" {
		return posts
	}
	q = normalize(q, caseSensitive)

	out := make([]content.Post, 0, len(posts))
	for _, p := range posts {
		if matches(p, q, caseSensitive) {
			out = append(out, p)
		}
	}
	return out
}

// Matches reports whether p matches query under the same rules as Filter.
// A blank query matches everything.
func Matches(p content.Post, query string, caseSensitive bool) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return true
	}
	return matches(p, normalize(q, caseSensitive), caseSensitive)
}

// matches expects q already trimmed and normalised.
func matches(p content.Post, q string, caseSensitive bool) bool {
	if strings.Contains(normalize(p.Title, caseSensitive), q) {
		return true
	}
	if strings.Contains(normalize(p.Description, caseSensitive), q) {
		return true
	}
	if strings.Contains(normalize(p.Slug, caseSensitive), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(normalize(tag, caseSensitive), q) {
			return true
		}
	}
	return false
}

func normalize(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}
