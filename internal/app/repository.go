package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"hololog/internal/domain/config"
	"hololog/internal/index"
	"hololog/internal/ingest"
)

// Content bundles the post repository with the metadata cache backing it.
// Cache is nil when build.cache_path is empty.
type Content struct {
	Repo  *ingest.Repository
	Cache *index.Store
}

// OpenContent builds the repository for cfg, opening the bbolt metadata
// cache when one is configured.
func OpenContent(cfg config.Config) (*Content, error) {
	opts := []ingest.Option{ingest.WithExtension(cfg.Content.Extension)}

	c := &Content{}
	if cfg.Build.CachePath != "" {
		st, err := index.Open(index.OpenOptions{Path: cfg.Build.CachePath})
		if err != nil {
			return nil, fmt.Errorf("failed to open metadata cache: %w", err)
		}
		c.Cache = st
		opts = append(opts, ingest.WithCache(st))
	}
	c.Repo = ingest.NewRepository(ingest.NewDirStore(cfg.Content.Dir), opts...)

	log.Debug().
		Str("component", "app").
		Str("dir", cfg.Content.Dir).
		Str("ext", cfg.Content.Extension).
		Bool("cache", c.Cache != nil).
		Msg("content repository ready")
	return c, nil
}

func (c *Content) Close() error {
	if c.Cache == nil {
		return nil
	}
	return c.Cache.Close()
}
