package index

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"hololog/internal/domain/content"
	"hololog/internal/ingest"
)

var _ ingest.MetadataCache = (*Store)(nil)

type cachedEntry struct {
	Stamp content.SourceStamp `json:"stamp"`
	Meta  content.Metadata    `json:"meta"`
}

// Lookup returns the cached metadata for slug when it was recorded for the
// same source stamp. A stale or undecodable entry is a miss.
func (s *Store) Lookup(slug string, stamp content.SourceStamp) (content.Metadata, bool) {
	slug = strings.TrimSpace(slug)
	if slug == "" || stamp.IsZero() {
		return content.Metadata{}, false
	}
	var e cachedEntry
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bMeta)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(slug))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("component", "index").Str("slug", slug).Msg("cache entry unreadable")
		return content.Metadata{}, false
	}
	if !found || !e.Stamp.Equal(stamp) {
		return content.Metadata{}, false
	}
	return e.Meta, true
}

// Store writes entries in a single transaction.
func (s *Store) Store(entries []ingest.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bMeta)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if strings.TrimSpace(e.Slug) == "" {
				continue
			}
			v, err := json.Marshal(cachedEntry{Stamp: e.Stamp, Meta: e.Meta})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.Slug), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Retain drops every entry whose slug is not in slugs.
func (s *Store) Retain(slugs []string) error {
	keep := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		keep[slug] = struct{}{}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bMeta)
		if b == nil {
			return nil
		}
		var stale [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			if _, ok := keep[string(k)]; !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Invalidate drops the entry for slug so the next listing re-reads the file.
func (s *Store) Invalidate(slug string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bMeta)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(slug))
	})
}

// Reset drops every cached entry.
func (s *Store) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bMeta); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bMeta)
		return err
	})
}

// Len reports the number of cached entries.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bMeta)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}
