package ingest

import (
	"io/fs"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hololog/internal/domain/content"
)

const DefaultExtension = ".mdx"

// MetadataCache stores parsed (pre-default) metadata keyed by slug and
// validated by the source stamp.
type MetadataCache interface {
	Lookup(slug string, stamp content.SourceStamp) (content.Metadata, bool)
	Store(entries []CacheEntry) error
	Retain(slugs []string) error
}

type CacheEntry struct {
	Slug  string
	Stamp content.SourceStamp
	Meta  content.Metadata
}

type Option func(*Repository)

// WithDir sets the post directory inside the store (default ".").
func WithDir(dir string) Option {
	return func(r *Repository) { r.dir = dir }
}

// WithExtension sets the post file extension (default ".mdx").
func WithExtension(ext string) Option {
	return func(r *Repository) {
		if ext != "" {
			r.ext = ext
		}
	}
}

// WithCache enables metadata caching. The store must implement Stamper for
// the cache to be consulted.
func WithCache(c MetadataCache) Option {
	return func(r *Repository) { r.cache = c }
}

// WithClock overrides the clock used for the default date.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithWorkers bounds the number of goroutines parsing files.
func WithWorkers(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.workers = n
		}
	}
}

// Repository discovers posts in a ContentStore. Nothing is memoised between
// calls apart from the optional MetadataCache, so every call reflects the
// current store contents.
type Repository struct {
	store   ContentStore
	dir     string
	ext     string
	cache   MetadataCache
	now     func() time.Time
	workers int
}

func NewRepository(store ContentStore, opts ...Option) *Repository {
	r := &Repository{
		store:   store,
		dir:     ".",
		ext:     DefaultExtension,
		now:     time.Now,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Extension() string { return r.ext }

type parseResult struct {
	post  content.Post
	entry *CacheEntry
	err   error
}

// ListAll returns every post without its body, newest first. Ties keep
// discovery order. I/O failures are logged and yield an empty result.
func (r *Repository) ListAll() []content.Post {
	if !r.store.Exists(r.dir) {
		return []content.Post{}
	}
	names, err := r.store.ListEntries(r.dir)
	if err != nil {
		log.Warn().Err(err).Str("component", "ingest").Str("dir", r.dir).Msg("failed to read posts directory")
		return []content.Post{}
	}

	var files []string
	for _, name := range names {
		if IsPostFile(name, r.ext) {
			files = append(files, name)
		}
	}

	results := r.parseAll(files)
	now := r.now()

	posts := make([]content.Post, 0, len(results))
	var fresh []CacheEntry
	for i, res := range results {
		if res.err != nil {
			log.Warn().Err(res.err).Str("component", "ingest").Str("file", files[i]).Msg("failed to read post file")
			return []content.Post{}
		}
		if res.entry != nil {
			fresh = append(fresh, *res.entry)
		}
		p := res.post
		p.Metadata = p.Metadata.WithDefaults(now)
		if !p.ValidDate() {
			log.Warn().Str("component", "ingest").Str("slug", p.Slug).Str("date", p.Date).Msg("date is not YYYY-MM-DD, ordering may be wrong")
		}
		posts = append(posts, p)
	}
	r.syncCache(posts, fresh)

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Date > posts[j].Date
	})
	return posts
}

// parseAll reads and parses files with a bounded worker pool. Results are
// indexed so discovery order survives.
func (r *Repository) parseAll(files []string) []parseResult {
	results := make([]parseResult, len(files))
	if len(files) == 0 {
		return results
	}

	workers := min(r.workers, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = r.parseOne(files[idx])
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (r *Repository) parseOne(name string) parseResult {
	slug := SlugFromName(name, r.ext)
	full := path.Join(r.dir, name)

	var stamp content.SourceStamp
	stamper, canStamp := r.store.(Stamper)
	if r.cache != nil && canStamp {
		st, err := stamper.Stamp(full)
		if err != nil {
			return parseResult{err: err}
		}
		stamp = st
		if meta, ok := r.cache.Lookup(slug, stamp); ok {
			return parseResult{post: content.Post{Slug: slug, Metadata: meta}}
		}
	}

	raw, err := r.store.ReadText(full)
	if err != nil {
		return parseResult{err: err}
	}
	meta := ParseMetadata(raw)
	res := parseResult{post: content.Post{Slug: slug, Metadata: meta}}
	if r.cache != nil && canStamp {
		res.entry = &CacheEntry{Slug: slug, Stamp: stamp, Meta: meta}
	}
	return res
}

func (r *Repository) syncCache(posts []content.Post, fresh []CacheEntry) {
	if r.cache == nil {
		return
	}
	if len(fresh) > 0 {
		if err := r.cache.Store(fresh); err != nil {
			log.Warn().Err(err).Str("component", "ingest").Msg("failed to update metadata cache")
		}
	}
	slugs := make([]string, len(posts))
	for i, p := range posts {
		slugs[i] = p.Slug
	}
	if err := r.cache.Retain(slugs); err != nil {
		log.Warn().Err(err).Str("component", "ingest").Msg("failed to prune metadata cache")
	}
}

// GetBySlug reads one post including its body. Missing files, read errors
// and slugs that do not name a file directly inside the post directory all
// report false.
func (r *Repository) GetBySlug(slug string) (content.Post, bool) {
	if !validSlug(slug) {
		return content.Post{}, false
	}
	full := path.Join(r.dir, slug+r.ext)
	raw, err := r.store.ReadText(full)
	if err != nil {
		return content.Post{}, false
	}
	return content.Post{
		Slug:     slug,
		Metadata: ParseMetadata(raw).WithDefaults(r.now()),
		Content:  StripHeader(raw),
	}, true
}

func validSlug(slug string) bool {
	if slug == "" || slug == "." || slug == ".." {
		return false
	}
	if strings.ContainsAny(slug, `/\`) {
		return false
	}
	return fs.ValidPath(slug)
}
