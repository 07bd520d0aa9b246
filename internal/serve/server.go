package serve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"hololog/internal/app"
	"hololog/internal/domain/config"
	"hololog/internal/domain/content"
	domainerr "hololog/internal/domain/errors"
	"hololog/internal/ingest"
	"hololog/internal/render"
)

const reloadDebounce = 200 * time.Millisecond

// Server renders every request from the repository, so responses always
// reflect the files on disk. With watching enabled it also pushes reload
// events to connected browsers.
type Server struct {
	cfg     config.Config
	content *app.Content
	pages   *app.Pages
	static  fs.FS
	css     []byte

	sseMu    sync.Mutex
	sseConns map[chan string]struct{}

	watcher   *fsnotify.Watcher
	watchOnce sync.Once
}

func New(cfg config.Config) (*Server, error) {
	tpl, err := render.NewTemplateRenderer(cfg.Build.ThemeDir, cfg.Site.Theme)
	if err != nil {
		return nil, fmt.Errorf("serve: failed to create template renderer: %w", err)
	}
	c, err := app.OpenContent(cfg)
	if err != nil {
		return nil, fmt.Errorf("serve: %w", err)
	}

	pages := app.NewPages(cfg, c.Repo, tpl)
	pages.DevReload = cfg.Serve.Watch

	var css bytes.Buffer
	if err := pages.Markdown.Highlighter().WriteCSS(&css); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("serve: highlight css: %w", err)
	}

	return &Server{
		cfg:      cfg,
		content:  c,
		pages:    pages,
		static:   render.StaticFS(cfg.Build.ThemeDir, cfg.Site.Theme),
		css:      css.Bytes(),
		sseConns: make(map[chan string]struct{}),
	}, nil
}

func (s *Server) Close() error {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	return s.content.Close()
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/", s.handleHome)
	r.Get(content.BlogPath, s.handleBlog)
	r.Get(content.BlogPath+"/{slug}", s.handlePost)
	r.Get("/about", s.handleAbout)

	r.Get("/sitemap.xml", s.handleSitemap)
	r.Get("/robots.txt", s.handleRobots)
	r.Get("/search.json", s.handleSearchIndex)
	r.Get("/manifest.webmanifest", s.handleManifest)
	r.Get("/feed.xml", s.handleFeed)

	r.Get("/dev/events", s.handleSSE)

	r.Get("/css/chroma.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		_, _ = w.Write(s.css)
	})
	fileServer := http.FileServer(http.FS(s.static))
	r.Get("/css/*", fileServer.ServeHTTP)
	r.Get("/js/*", fileServer.ServeHTTP)
	r.Get("/images/*", fileServer.ServeHTTP)
	r.Get("/favicon.ico", fileServer.ServeHTTP)

	r.NotFound(s.handleNotFound)
	return r
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.Serve.Watch {
		if err := s.startWatch(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              s.cfg.Serve.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", "serve").Str("addr", s.cfg.Serve.Addr).Bool("watch", s.cfg.Serve.Watch).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ===================== watch =====================

func (s *Server) startWatch(ctx context.Context) error {
	var err error
	s.watchOnce.Do(func() {
		w, e := fsnotify.NewWatcher()
		if e != nil {
			err = e
			return
		}
		if e := w.Add(s.cfg.Content.Dir); e != nil {
			_ = w.Close()
			log.Warn().Err(e).Str("component", "serve").Str("dir", s.cfg.Content.Dir).Msg("content directory not watchable, live reload disabled")
			return
		}
		s.watcher = w
		go s.watchLoop(ctx)
	})
	return err
}

// watchLoop coalesces bursts of file events into one reload. Cached
// metadata of every touched post is dropped before browsers are told to
// reload.
func (s *Server) watchLoop(ctx context.Context) {
	log.Info().Str("component", "serve").Str("dir", s.cfg.Content.Dir).Msg("watching for file changes")
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()

	touched := make(map[string]struct{})
	ext := s.content.Repo.Extension()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !ingest.IsPostFile(name, ext) {
				continue
			}
			touched[ingest.SlugFromName(name, ext)] = struct{}{}
			debounce.Reset(reloadDebounce)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("component", "serve").Msg("watcher error")
		case <-debounce.C:
			s.invalidate(touched)
			touched = make(map[string]struct{})
			s.broadcastSSE("reload")
		}
	}
}

func (s *Server) invalidate(slugs map[string]struct{}) {
	for slug := range slugs {
		if s.content.Cache != nil {
			if err := s.content.Cache.Invalidate(slug); err != nil {
				log.Warn().Err(err).Str("component", "serve").Str("slug", slug).Msg("cache invalidation failed")
			}
		}
		log.Debug().Str("component", "serve").Str("slug", slug).Msg("post changed")
	}
}

// ===================== SSE =====================

func (s *Server) subscribe() chan string {
	ch := make(chan string, 8)
	s.sseMu.Lock()
	s.sseConns[ch] = struct{}{}
	s.sseMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan string) {
	s.sseMu.Lock()
	delete(s.sseConns, ch)
	close(ch)
	s.sseMu.Unlock()
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	fmt.Fprintf(w, "data: %s\n\n", "hello")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) broadcastSSE(msg string) {
	s.sseMu.Lock()
	defer s.sseMu.Unlock()
	for ch := range s.sseConns {
		select {
		case ch <- msg:
		default:
		}
	}
}

// ===================== pages =====================

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, r, func() ([]byte, error) {
		return s.pages.Home(r.Context(), s.content.Repo.ListAll())
	})
}

// /blog?q=... filters server side for clients without script.
func (s *Server) handleBlog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	s.writePage(w, r, func() ([]byte, error) {
		return s.pages.Blog(r.Context(), s.content.Repo.ListAll(), q)
	})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	post, err := s.pages.LoadPost(slug)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	etag := s.pages.Fingerprint(post).ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatch(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	s.writePage(w, r, func() ([]byte, error) {
		return s.pages.RenderPost(r.Context(), post)
	})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, r, func() ([]byte, error) {
		return s.pages.About(r.Context(), s.content.Repo.ListAll())
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	htmlBytes, err := s.pages.NotFound(r.Context(), r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(htmlBytes)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domainerr.ErrNotFound) {
		s.handleNotFound(w, r)
		return
	}
	log.Error().Err(err).Str("component", "serve").Str("path", r.URL.Path).Msg("render failed")
	http.Error(w, "render error", http.StatusInternalServerError)
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, fn func() ([]byte, error)) {
	data, err := fn()
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

// ===================== machine-readable routes =====================

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	data, err := s.pages.Sitemap(s.content.Repo.ListAll())
	s.writeData(w, r, "application/xml; charset=utf-8", data, err)
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, r, "text/plain; charset=utf-8", s.pages.Robots(), nil)
}

func (s *Server) handleSearchIndex(w http.ResponseWriter, r *http.Request) {
	data, err := s.pages.SearchIndex(s.content.Repo.ListAll())
	s.writeData(w, r, "application/json", data, err)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	data, err := s.pages.Manifest()
	s.writeData(w, r, "application/manifest+json", data, err)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	data, err := s.pages.Feed(s.content.Repo.ListAll())
	s.writeData(w, r, "application/rss+xml; charset=utf-8", data, err)
}

func (s *Server) writeData(w http.ResponseWriter, r *http.Request, contentType string, data []byte, err error) {
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// ===================== helpers =====================

// etagMatch reports whether an If-None-Match header names etag. Weak
// validators compare equal to their strong form.
func etagMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/dev/events" {
			return
		}
		log.Debug().
			Str("component", "serve").
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
