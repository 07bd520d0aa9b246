package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerr "hololog/internal/domain/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300*time.Millisecond, cfg.Search.Debounce)
	assert.False(t, cfg.Search.CaseSensitive)
	assert.Equal(t, ".mdx", cfg.Content.Extension)
	assert.Equal(t, "content/posts", cfg.Content.Dir)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	data := `
site:
  title: "My Blog"
  site_url: "https://blog.example.com/"
search:
  debounce: 150ms
  case_sensitive: true
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "My Blog", cfg.Site.Title)
	assert.Equal(t, 150*time.Millisecond, cfg.Search.Debounce)
	assert.True(t, cfg.Search.CaseSensitive)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep defaults
	assert.Equal(t, "public", cfg.Build.PublicDir)
	assert.Equal(t, ":8080", cfg.Serve.Addr)
	assert.False(t, cfg.Build.Now.IsZero())

	assert.Equal(t, "https://blog.example.com", cfg.Site.BaseURL())
	assert.Equal(t, "https://blog.example.com/about", cfg.Site.FullURL("/about"))
	assert.Equal(t, "https://blog.example.com/blog", cfg.Site.FullURL("blog"))
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Load(path)
	require.Error(t, err)

	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Site.Title, cfg.Site.Title)
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	cfg := Default()
	cfg.Site.SiteURL = "not-a-url"
	cfg.Search.Debounce = -time.Second
	cfg.Content.Extension = "mdx"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerr.ErrInvalid))

	var ve domainerr.ValidationError
	require.True(t, errors.As(err, &ve))
	fields := make([]string, 0, len(ve.Items))
	for _, it := range ve.Items {
		fields = append(fields, it.Field)
	}
	assert.ElementsMatch(t, []string{
		"site.site_url",
		"search.debounce",
		"content.extension",
		"log.level",
	}, fields)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  debounce: -1s\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerr.ErrInvalid))
}
