package app

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"hololog/internal/domain/build"
	"hololog/internal/domain/config"
	"hololog/internal/domain/content"
	domainerr "hololog/internal/domain/errors"
	"hololog/internal/domain/site"
	"hololog/internal/render"
	"hololog/internal/search"
)

const (
	feedLimit      = 20
	excerptLength  = 160
	rendererFormat = "goldmark+chroma/1"
)

// PostSource is the part of the post repository pages are assembled from.
type PostSource interface {
	ListAll() []content.Post
	GetBySlug(slug string) (content.Post, bool)
}

// Pages turns repository contents into site responses. The static builder
// and the dev server share it so both emit identical bytes for a route.
type Pages struct {
	Site          config.SiteConfig
	Posts         PostSource
	Markdown      *render.MarkdownRenderer
	Templates     render.Renderer
	Theme         string
	HomePosts     int
	CaseSensitive bool
	DevReload     bool
	Now           func() time.Time
}

func NewPages(cfg config.Config, posts PostSource, tpl render.Renderer) *Pages {
	return &Pages{
		Site:          cfg.Site,
		Posts:         posts,
		Markdown:      render.NewMarkdownRenderer(nil),
		Templates:     tpl,
		Theme:         cfg.Build.ThemeDir + "/" + cfg.Site.Theme,
		HomePosts:     cfg.Site.HomePosts,
		CaseSensitive: cfg.Search.CaseSensitive,
		Now:           time.Now,
	}
}

func (p *Pages) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Pages) page(path, title, description, ogType string) render.Page {
	return render.Page{
		Site:      p.Site,
		Meta:      render.NewPageMeta(p.Site, path, title, description, ogType),
		Generated: p.now(),
		DevReload: p.DevReload,
	}
}

func (p *Pages) Home(ctx context.Context, posts []content.Post) ([]byte, error) {
	recent := posts
	if p.HomePosts > 0 && len(recent) > p.HomePosts {
		recent = recent[:p.HomePosts]
	}
	return p.Templates.RenderHome(ctx, render.HomePage{
		Page:  p.page("/", "", "", ""),
		Posts: recent,
		Total: len(posts),
	})
}

// Blog renders the post list filtered by query with the same predicate the
// search engine uses.
func (p *Pages) Blog(ctx context.Context, posts []content.Post, query string) ([]byte, error) {
	filtered := search.Filter(posts, query, p.CaseSensitive)
	return p.Templates.RenderBlog(ctx, render.BlogPage{
		Page:  p.page(content.BlogPath, "Blog", "", ""),
		Posts: filtered,
		Query: query,
		Total: len(posts),
	})
}

// LoadPost fetches one post in full. A missing post is an ErrNotFound.
func (p *Pages) LoadPost(slug string) (content.Post, error) {
	post, ok := p.Posts.GetBySlug(slug)
	if !ok {
		return content.Post{}, domainerr.NotFound("post", slug)
	}
	return post, nil
}

// Fingerprint identifies the rendering of post without rendering it.
func (p *Pages) Fingerprint(post content.Post) build.Fingerprint {
	body, _ := json.Marshal(post)
	siteConf, _ := json.Marshal(p.Site)
	f := build.Fingerprint{
		ContentHash:  build.HashBytes(body),
		ThemeHash:    build.HashString(p.Theme),
		ConfigHash:   build.HashString(fmt.Sprintf("%s|reload=%t", siteConf, p.DevReload)),
		RendererHash: rendererFormat,
	}
	f.ComputeRenderHash()
	return f
}

func (p *Pages) RenderPost(ctx context.Context, post content.Post) ([]byte, error) {
	res, err := p.Markdown.Render([]byte(post.Content))
	if err != nil {
		return nil, fmt.Errorf("markdown render(%s): %w", post.Slug, err)
	}
	description := post.Description
	if description == "" {
		description = render.Excerpt(post.Content, excerptLength)
	}
	return p.Templates.RenderPost(ctx, render.PostPage{
		Page: p.page(post.Path(), post.Title, description, "article"),
		Post: post,
		HTML: template.HTML(res.HTML),
		TOC:  res.Headings,
	})
}

func (p *Pages) Post(ctx context.Context, slug string) ([]byte, error) {
	post, err := p.LoadPost(slug)
	if err != nil {
		return nil, err
	}
	return p.RenderPost(ctx, post)
}

func (p *Pages) About(ctx context.Context, posts []content.Post) ([]byte, error) {
	return p.Templates.RenderAbout(ctx, render.AboutPage{
		Page:  p.page("/about", "About", "", "profile"),
		Posts: len(posts),
		Tags:  TagStats(posts),
	})
}

func (p *Pages) NotFound(ctx context.Context, path string) ([]byte, error) {
	return p.Templates.RenderNotFound(ctx, render.NotFoundPage{
		Page: p.page(path, "Page Not Found", "", ""),
		Path: path,
	})
}

func (p *Pages) Sitemap(posts []content.Post) ([]byte, error) {
	return site.Sitemap(p.Site.BaseURL(), BuildRoutes(posts), p.now())
}

func (p *Pages) Robots() []byte {
	return site.Robots(p.Site.BaseURL())
}

func (p *Pages) Manifest() ([]byte, error) {
	return site.NewManifest(p.Site.Title, p.Site.Description).JSON()
}

// SearchIndex is the post collection without bodies, for in-browser search.
func (p *Pages) SearchIndex(posts []content.Post) ([]byte, error) {
	out := make([]content.Post, len(posts))
	for i, post := range posts {
		out[i] = post.Summary()
	}
	return json.Marshal(out)
}

// Feed renders an RSS feed of the most recent posts with their full bodies.
func (p *Pages) Feed(posts []content.Post) ([]byte, error) {
	now := p.now()
	feed := &feeds.Feed{
		Title:       p.Site.Title,
		Link:        &feeds.Link{Href: p.Site.BaseURL()},
		Description: p.Site.Description,
		Created:     now,
	}
	if p.Site.Author != "" {
		feed.Author = &feeds.Author{Name: p.Site.Author}
	}

	if len(posts) > feedLimit {
		posts = posts[:feedLimit]
	}
	for _, summary := range posts {
		post, ok := p.Posts.GetBySlug(summary.Slug)
		if !ok {
			continue
		}
		res, err := p.Markdown.Render([]byte(post.Content))
		if err != nil {
			return nil, fmt.Errorf("markdown render(%s): %w", post.Slug, err)
		}
		description := post.Description
		if description == "" {
			description = render.Excerpt(post.Content, excerptLength)
		}
		created, err := time.Parse(content.DateLayout, post.Date)
		if err != nil {
			created = now
		}
		link := p.Site.FullURL(post.Path())
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          link,
			Title:       post.Title,
			Link:        &feeds.Link{Href: link},
			Description: description,
			Content:     string(res.HTML),
			Created:     created,
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		return nil, err
	}
	return []byte(rss), nil
}

// Render produces the body of any non-post route. Post routes are rendered
// by slug.
func (p *Pages) Render(ctx context.Context, r site.Route, posts []content.Post) ([]byte, error) {
	switch r.Kind {
	case site.RouteHome:
		return p.Home(ctx, posts)
	case site.RouteBlog:
		return p.Blog(ctx, posts, "")
	case site.RoutePost:
		return p.Post(ctx, r.Slug)
	case site.RouteAbout:
		return p.About(ctx, posts)
	case site.RouteNotFound:
		return p.NotFound(ctx, "")
	case site.RouteSitemap:
		return p.Sitemap(posts)
	case site.RouteRobots:
		return p.Robots(), nil
	case site.RouteSearchIndex:
		return p.SearchIndex(posts)
	case site.RouteManifest:
		return p.Manifest()
	case site.RouteFeed:
		return p.Feed(posts)
	default:
		return nil, fmt.Errorf("unknown route kind %q", r.Kind)
	}
}

// TagStats counts tag use across posts, most used first, ties by name.
func TagStats(posts []content.Post) []render.TagStat {
	counts := make(map[string]int)
	for _, post := range posts {
		for _, t := range post.Tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			counts[t]++
		}
	}

	stats := make([]render.TagStat, 0, len(counts))
	for name, c := range counts {
		stats = append(stats, render.TagStat{Name: name, Count: c})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count == stats[j].Count {
			return stats[i].Name < stats[j].Name
		}
		return stats[i].Count > stats[j].Count
	})
	return stats
}
