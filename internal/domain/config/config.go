package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	domainerr "hololog/internal/domain/errors"
)

const DefaultDebounce = 300 * time.Millisecond

type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Content ContentConfig `yaml:"content"`
	Build   BuildConfig   `yaml:"build"`
	Search  SearchConfig  `yaml:"search"`
	Serve   ServeConfig   `yaml:"serve"`
	Log     LogConfig     `yaml:"log"`
}

type SiteConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Author      string `yaml:"author"`
	SiteURL     string `yaml:"site_url"`
	Language    string `yaml:"language"`
	Locale      string `yaml:"locale"`
	Theme       string `yaml:"theme"`
	HomePosts   int    `yaml:"home_posts"`
}

type ContentConfig struct {
	Dir       string `yaml:"dir"`
	Extension string `yaml:"extension"`
}

type BuildConfig struct {
	PublicDir string    `yaml:"public_dir"`
	ThemeDir  string    `yaml:"theme_dir"`
	CachePath string    `yaml:"cache_path"`
	Now       time.Time `yaml:"-"`
}

type SearchConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	CaseSensitive bool          `yaml:"case_sensitive"`
}

type ServeConfig struct {
	Addr  string `yaml:"addr"`
	Watch bool   `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() Config {
	return Config{
		Site: SiteConfig{
			Title:     "hololog",
			SiteURL:   "http://localhost:8080",
			Language:  "en",
			Locale:    "en_US",
			Theme:     "default",
			HomePosts: 5,
		},
		Content: ContentConfig{
			Dir:       "content/posts",
			Extension: ".mdx",
		},
		Build: BuildConfig{
			PublicDir: "public",
			ThemeDir:  "themes",
			CachePath: ".hololog/cache.db",
			Now:       time.Now(),
		},
		Search: SearchConfig{
			Debounce: DefaultDebounce,
		},
		Serve: ServeConfig{
			Addr:  ":8080",
			Watch: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c Config) Validate() error {
	var ve domainerr.ValidationError

	if strings.TrimSpace(c.Site.Title) == "" {
		ve.Add("site.title", "must not be empty")
	}

	if strings.TrimSpace(c.Site.SiteURL) == "" {
		ve.Add("site.site_url", "must not be empty")
	} else if !isValidAbsURL(c.Site.SiteURL) {
		ve.Add("site.site_url", "must be a valid absolute URL")
	}

	if strings.TrimSpace(c.Site.Theme) == "" {
		ve.Add("site.theme", "must not be empty")
	}
	if c.Site.HomePosts < 0 {
		ve.Add("site.home_posts", "must not be negative")
	}

	if strings.TrimSpace(c.Content.Dir) == "" {
		ve.Add("content.dir", "must not be empty")
	}
	if ext := c.Content.Extension; !strings.HasPrefix(ext, ".") || len(ext) < 2 {
		ve.Add("content.extension", "must start with '.' and name an extension")
	}

	if strings.TrimSpace(c.Build.PublicDir) == "" {
		ve.Add("build.public_dir", "must not be empty")
	}

	if c.Search.Debounce < 0 {
		ve.Add("search.debounce", "must not be negative")
	}

	if strings.TrimSpace(c.Serve.Addr) == "" {
		ve.Add("serve.addr", "must not be empty")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		ve.Addf("log.level", "unknown level %q", c.Log.Level)
	}

	return ve.Err()
}

// BaseURL returns SiteURL without a trailing slash.
func (s SiteConfig) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(s.SiteURL), "/")
}

// FullURL joins path onto the site URL.
func (s SiteConfig) FullURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.BaseURL() + path
}

func isValidAbsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return decode(cfg, data)
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return cfg, err
	}
	return decode(cfg, data)
}

// decode overlays data on cfg; keys absent from the file keep their defaults.
func decode(cfg Config, data []byte) (Config, error) {
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Build.Now.IsZero() {
		cfg.Build.Now = time.Now()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
