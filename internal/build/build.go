package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"hololog/internal/app"
	"hololog/internal/domain/config"
	"hololog/internal/render"
)

type Builder struct {
	Cfg config.Config
}

type Result struct {
	Posts int
	Files int
}

func (b *Builder) Run(ctx context.Context) (*Result, error) {
	c, err := app.OpenContent(b.Cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	tpl, err := render.NewTemplateRenderer(b.Cfg.Build.ThemeDir, b.Cfg.Site.Theme)
	if err != nil {
		return nil, fmt.Errorf("load themes(%s): %w", b.Cfg.Build.ThemeDir, err)
	}

	outDir := b.Cfg.Build.PublicDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir public: %w", err)
	}

	pages := app.NewPages(b.Cfg, c.Repo, tpl)
	if now := b.Cfg.Build.Now; !now.IsZero() {
		pages.Now = func() time.Time { return now }
	}

	res, err := b.buildAll(ctx, pages, outDir)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("component", "build").
		Str("out", outDir).
		Int("posts", res.Posts).
		Int("files", res.Files).
		Msg("build complete")
	return res, nil
}

func (b *Builder) buildAll(ctx context.Context, pages *app.Pages, outDir string) (*Result, error) {
	posts := pages.Posts.ListAll()
	res := &Result{Posts: len(posts)}

	for _, r := range app.BuildRoutes(posts) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := pages.Render(ctx, r, posts)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", r.Kind, err)
		}
		if err := writeFile(outDir, r.OutPath, data); err != nil {
			return nil, err
		}
		res.Files++
		log.Debug().Str("component", "build").Stringer("route", r).Msg("wrote route")
	}

	n, err := b.copyStaticAssets(outDir)
	if err != nil {
		return nil, fmt.Errorf("copy static assets: %w", err)
	}
	res.Files += n

	if err := writeHighlightCSS(pages, outDir); err != nil {
		return nil, fmt.Errorf("write highlight css: %w", err)
	}
	res.Files++
	return res, nil
}

func writeHighlightCSS(pages *app.Pages, outDir string) error {
	full := filepath.Join(outDir, "css", "chroma.css")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return err
	}
	if err := pages.Markdown.Highlighter().WriteCSS(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeFile(root, rel string, data []byte) error {
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

// copyStaticAssets copies the theme's static directory, or the built-in
// assets when the theme has none.
func (b *Builder) copyStaticAssets(outDir string) (int, error) {
	src := render.StaticFS(b.Cfg.Build.ThemeDir, b.Cfg.Site.Theme)
	n := 0
	err := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		in, err := fs.ReadFile(src, path)
		if err != nil {
			return err
		}
		n++
		return writeFile(outDir, path, in)
	})
	return n, err
}
