package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hololog/internal/domain/config"
	"hololog/internal/domain/content"
	domainerr "hololog/internal/domain/errors"
	"hololog/internal/domain/site"
	"hololog/internal/ingest"
	"hololog/internal/render"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"posts/a.mdx": {Data: []byte("---\ntitle: \"Alpha\"\ndate: \"2024-01-01\"\ntags: [go, web]\n---\n\n# Alpha\n\nFirst **post** body.\n")},
		"posts/b.mdx": {Data: []byte("---\ntitle: \"Beta\"\ndate: \"2024-01-02\"\ndescription: \"Second post\"\ntags: [go]\n---\n\n```go\nfunc main() {}\n```\n")},
	}
}

func newTestPages(t *testing.T) (*Pages, []content.Post) {
	t.Helper()
	cfg := config.Default()
	cfg.Site.Title = "Hololog"
	cfg.Site.SiteURL = "https://hololog.example.com"
	cfg.Site.HomePosts = 1

	repo := ingest.NewRepository(ingest.NewFSStore(testFS()), ingest.WithDir("posts"),
		ingest.WithClock(func() time.Time { return testNow }))
	tpl, err := render.NewDefaultRenderer()
	require.NoError(t, err)

	p := NewPages(cfg, repo, tpl)
	p.Now = func() time.Time { return testNow }
	return p, repo.ListAll()
}

func TestBuildRoutes(t *testing.T) {
	posts := []content.Post{
		{Slug: "b", Metadata: content.Metadata{Date: "2024-01-02"}},
		{Slug: "a", Metadata: content.Metadata{Date: "2024-01-01"}},
	}
	routes := BuildRoutes(posts)

	var kinds []site.RouteKind
	outs := make(map[string]site.Route)
	for _, r := range routes {
		kinds = append(kinds, r.Kind)
		outs[r.OutPath] = r
	}
	assert.Equal(t, []site.RouteKind{
		site.RouteHome, site.RouteAbout, site.RouteBlog,
		site.RoutePost, site.RoutePost,
		site.RouteNotFound, site.RouteSitemap, site.RouteRobots,
		site.RouteSearchIndex, site.RouteManifest, site.RouteFeed,
	}, kinds)

	post := outs["blog/b/index.html"]
	assert.Equal(t, "/blog/b", post.Path)
	assert.Equal(t, "2024-01-02", post.LastMod)
	assert.True(t, post.Sitemap)
	assert.False(t, outs["404.html"].Sitemap)
	assert.Equal(t, 0.9, outs["blog/index.html"].Priority)
	assert.Equal(t, "post slug=b path=/blog/b out=blog/b/index.html", post.String())
}

func TestHomeLimitsPosts(t *testing.T) {
	p, posts := newTestPages(t)
	out, err := p.Home(context.Background(), posts)
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "Beta")
	assert.NotContains(t, html, `href="/blog/a"`)
	assert.Contains(t, html, "All 2 posts")
}

func TestBlogFiltersByQuery(t *testing.T) {
	p, posts := newTestPages(t)
	ctx := context.Background()

	out, err := p.Blog(ctx, posts, "second")
	require.NoError(t, err)
	assert.Contains(t, string(out), `href="/blog/b"`)
	assert.NotContains(t, string(out), `href="/blog/a"`)

	out, err = p.Blog(ctx, posts, "zzz")
	require.NoError(t, err)
	assert.Contains(t, string(out), `No posts found matching "zzz"`)
}

func TestPostRendering(t *testing.T) {
	p, _ := newTestPages(t)
	ctx := context.Background()

	out, err := p.Post(ctx, "a")
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "<title>Alpha - Hololog</title>")
	assert.Contains(t, html, "<strong>post</strong>")
	// no description in the header, so the body excerpt is used
	assert.Contains(t, html, `<meta name="description" content="Alpha First post body.">`)

	out, err = p.Post(ctx, "b")
	require.NoError(t, err)
	assert.Contains(t, string(out), `data-lang="go"`)

	_, err = p.Post(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerr.ErrNotFound))
}

func TestFingerprintTracksContentAndSettings(t *testing.T) {
	p, _ := newTestPages(t)
	a, err := p.LoadPost("a")
	require.NoError(t, err)

	f1 := p.Fingerprint(a)
	assert.Equal(t, f1, p.Fingerprint(a))

	edited := a
	edited.Content += "\nmore"
	assert.NotEqual(t, f1.RenderHash, p.Fingerprint(edited).RenderHash)

	p.DevReload = true
	assert.NotEqual(t, f1.RenderHash, p.Fingerprint(a).RenderHash)
}

func TestSearchIndexOmitsBodies(t *testing.T) {
	p, posts := newTestPages(t)
	posts[0].Content = "should not leak"

	out, err := p.SearchIndex(posts)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "should not leak")

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "b", decoded[0]["slug"])
	assert.Equal(t, "Second post", decoded[0]["description"])

	empty, err := p.SearchIndex(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestSitemapRobotsManifestFeed(t *testing.T) {
	p, posts := newTestPages(t)

	sm, err := p.Sitemap(posts)
	require.NoError(t, err)
	xml := string(sm)
	assert.Contains(t, xml, "<loc>https://hololog.example.com</loc>")
	assert.Contains(t, xml, "<loc>https://hololog.example.com/blog/a</loc>")
	assert.Contains(t, xml, "<lastmod>2024-01-01</lastmod>")
	assert.Contains(t, xml, "<priority>0.8</priority>")
	assert.NotContains(t, xml, "sitemap.xml</loc>")

	assert.Equal(t, "User-agent: *\nAllow: /\n\nSitemap: https://hololog.example.com/sitemap.xml\n", string(p.Robots()))

	mf, err := p.Manifest()
	require.NoError(t, err)
	assert.Contains(t, string(mf), `"name": "Hololog"`)
	assert.Contains(t, string(mf), `"icons": []`)

	feed, err := p.Feed(posts)
	require.NoError(t, err)
	assert.Contains(t, string(feed), "<rss")
	assert.Contains(t, string(feed), "https://hololog.example.com/blog/b")
	assert.Contains(t, string(feed), "Second post")
}

func TestRenderDispatchesEveryRoute(t *testing.T) {
	p, posts := newTestPages(t)
	ctx := context.Background()
	for _, r := range BuildRoutes(posts) {
		out, err := p.Render(ctx, r, posts)
		require.NoError(t, err, r.String())
		assert.NotEmpty(t, out, r.String())
	}
	_, err := p.Render(ctx, site.Route{Kind: "bogus"}, posts)
	require.Error(t, err)
}

func TestTagStats(t *testing.T) {
	stats := TagStats([]content.Post{
		{Metadata: content.Metadata{Tags: []string{"go", "web"}}},
		{Metadata: content.Metadata{Tags: []string{"go", " ", "api"}}},
	})
	assert.Equal(t, []render.TagStat{
		{Name: "go", Count: 2},
		{Name: "api", Count: 1},
		{Name: "web", Count: 1},
	}, stats)
}
