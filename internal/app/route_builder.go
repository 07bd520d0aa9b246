package app

import (
	"path"

	"hololog/internal/domain/content"
	"hololog/internal/domain/site"
)

// BuildRoutes returns every route of the site for posts, in build order:
// fixed pages first, then one route per post in the order given.
func BuildRoutes(posts []content.Post) []site.Route {
	routes := []site.Route{
		{Kind: site.RouteHome, Path: "/", OutPath: "index.html", Sitemap: true, ChangeFreq: "daily", Priority: 1.0},
		{Kind: site.RouteAbout, Path: "/about", OutPath: path.Join("about", "index.html"), Sitemap: true, ChangeFreq: "monthly", Priority: 0.8},
		{Kind: site.RouteBlog, Path: content.BlogPath, OutPath: path.Join("blog", "index.html"), Sitemap: true, ChangeFreq: "weekly", Priority: 0.9},
	}
	routes = append(routes, BuildPostRoutes(posts)...)
	routes = append(routes,
		site.Route{Kind: site.RouteNotFound, OutPath: "404.html"},
		site.Route{Kind: site.RouteSitemap, Path: "/sitemap.xml", OutPath: "sitemap.xml"},
		site.Route{Kind: site.RouteRobots, Path: "/robots.txt", OutPath: "robots.txt"},
		site.Route{Kind: site.RouteSearchIndex, Path: "/search.json", OutPath: "search.json"},
		site.Route{Kind: site.RouteManifest, Path: "/manifest.webmanifest", OutPath: "manifest.webmanifest"},
		site.Route{Kind: site.RouteFeed, Path: "/feed.xml", OutPath: "feed.xml"},
	)
	return routes
}

func BuildPostRoutes(posts []content.Post) []site.Route {
	routes := make([]site.Route, 0, len(posts))
	for _, p := range posts {
		routes = append(routes, site.Route{
			Kind:    site.RoutePost,
			Slug:    p.Slug,
			Path:    p.Path(),
			OutPath: path.Join("blog", p.Slug, "index.html"),
			Sitemap: true,
			LastMod: p.Date,
		})
	}
	return routes
}
