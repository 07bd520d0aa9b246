package site

import (
	"fmt"
	"strings"
)

type RouteKind string

const (
	RouteHome        RouteKind = "home"
	RouteBlog        RouteKind = "blog"
	RoutePost        RouteKind = "post"
	RouteAbout       RouteKind = "about"
	RouteNotFound    RouteKind = "404"
	RouteSitemap     RouteKind = "sitemap"
	RouteRobots      RouteKind = "robots"
	RouteSearchIndex RouteKind = "search"
	RouteManifest    RouteKind = "manifest"
	RouteFeed        RouteKind = "feed"
)

// Route is one output of the site: a URL path and the file a static build
// writes it to. Routes with Sitemap set are listed in sitemap.xml; an empty
// LastMod means the generation time.
type Route struct {
	Kind    RouteKind
	Slug    string
	Path    string
	OutPath string

	Sitemap    bool
	LastMod    string
	ChangeFreq string
	Priority   float64
}

func (r Route) String() string {
	var parts []string
	parts = append(parts, string(r.Kind))
	if r.Slug != "" {
		parts = append(parts, "slug="+r.Slug)
	}
	if r.Path != "" {
		parts = append(parts, "path="+r.Path)
	}
	if r.Priority > 0 {
		parts = append(parts, fmt.Sprintf("priority=%.1f", r.Priority))
	}
	if r.OutPath != "" {
		parts = append(parts, "out="+r.OutPath)
	}
	return strings.Join(parts, " ")
}
