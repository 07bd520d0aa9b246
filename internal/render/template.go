package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"hololog/internal/domain/content"
)

//go:embed theme
var defaultTheme embed.FS

// RequiredTemplates lists the templates a theme must provide.
var RequiredTemplates = []string{
	"home.tmpl",
	"blog.tmpl",
	"post.tmpl",
	"about.tmpl",
	"404.tmpl",
}

type TemplateRenderer struct {
	tpl *template.Template
}

var _ Renderer = (*TemplateRenderer)(nil)

// NewTemplateRenderer loads themeDir/themeName/templates/*.tmpl. When that
// directory does not exist the built-in theme is used.
func NewTemplateRenderer(themeDir, themeName string) (*TemplateRenderer, error) {
	dir := filepath.Join(themeDir, themeName, "templates")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Debug().Str("component", "render").Str("dir", dir).Msg("theme not found, using built-in theme")
		return NewDefaultRenderer()
	}
	if err := CheckThemeTemplates(dir); err != nil {
		return nil, err
	}
	tpl, err := template.New("").Funcs(templateFuncs()).ParseGlob(filepath.Join(dir, "*.tmpl"))
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{tpl: tpl}, nil
}

func NewDefaultRenderer() (*TemplateRenderer, error) {
	tpl, err := template.New("").Funcs(templateFuncs()).ParseFS(defaultTheme, "theme/templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{tpl: tpl}, nil
}

// StaticFS returns the static assets of the theme, falling back to the
// built-in ones.
func StaticFS(themeDir, themeName string) fs.FS {
	dir := filepath.Join(themeDir, themeName, "static")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return os.DirFS(dir)
	}
	sub, err := fs.Sub(defaultTheme, "theme/static")
	if err != nil {
		panic(err)
	}
	return sub
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// date reformats a YYYY-MM-DD string; anything else is shown as is.
		"date": func(s, layout string) string {
			t, err := time.Parse(content.DateLayout, s)
			if err != nil {
				return s
			}
			return t.Format(layout)
		},
		"year": func(t time.Time) int {
			if t.IsZero() {
				t = time.Now()
			}
			return t.Year()
		},
		"postURL": content.PostPath,
		"join":    strings.Join,
	}
}

func (r *TemplateRenderer) RenderHome(ctx context.Context, page HomePage) ([]byte, error) {
	return r.exec("home.tmpl", page)
}

func (r *TemplateRenderer) RenderBlog(ctx context.Context, page BlogPage) ([]byte, error) {
	return r.exec("blog.tmpl", page)
}

func (r *TemplateRenderer) RenderPost(ctx context.Context, page PostPage) ([]byte, error) {
	return r.exec("post.tmpl", page)
}

func (r *TemplateRenderer) RenderAbout(ctx context.Context, page AboutPage) ([]byte, error) {
	return r.exec("about.tmpl", page)
}

func (r *TemplateRenderer) RenderNotFound(ctx context.Context, page NotFoundPage) ([]byte, error) {
	return r.exec("404.tmpl", page)
}

func (r *TemplateRenderer) exec(name string, data any) ([]byte, error) {
	t := r.tpl.Lookup(name)
	if t == nil {
		return nil, fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func CheckThemeTemplates(dir string) error {
	for _, name := range RequiredTemplates {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("missing template: %s", name)
		}
	}
	return nil
}
