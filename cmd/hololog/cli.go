package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"hololog/internal/app"
	"hololog/internal/build"
	"hololog/internal/domain/config"
	"hololog/internal/domain/content"
	domainerr "hololog/internal/domain/errors"
	"hololog/internal/search"
	"hololog/internal/serve"
)

// env carries the configuration loaded by the root command to subcommands.
type env struct {
	cfg config.Config
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(in io.Reader, out, errOut io.Writer) *cli.App {
	e := &env{}
	cliApp := &cli.App{
		Name:      "hololog",
		Usage:     "Markdown blog builder and development server",
		Version:   Version,
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "site.yaml", EnvVars: []string{"HOLOLOG_CONFIG"}, Usage: "Path to the site config file"},
			&cli.StringFlag{Name: "log-level", Usage: "Override log.level from the config"},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadOrDefault(c.String("config"))
			if err != nil {
				return outputError(fmt.Errorf("load config %s: %w", c.String("config"), err))
			}
			if lvl := c.String("log-level"); lvl != "" {
				cfg.Log.Level = lvl
				if err := cfg.Validate(); err != nil {
					return outputError(err)
				}
			}
			configureLogging(cfg.Log, c.App.ErrWriter)
			e.cfg = cfg
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(e),
			buildCmd(e),
			listCmd(e),
			showCmd(e),
			searchCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

func configureLogging(lc config.LogConfig, w io.Writer) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if lc.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the site, re-reading posts on every request",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "Listen address (defaults to serve.addr)"},
			&cli.BoolFlag{Name: "no-watch", Usage: "Disable live reload on content changes"},
		},
		Action: func(c *cli.Context) error {
			cfg := e.cfg
			if addr := c.String("addr"); addr != "" {
				cfg.Serve.Addr = addr
			}
			if c.Bool("no-watch") {
				cfg.Serve.Watch = false
			}

			srv, err := serve.New(cfg)
			if err != nil {
				return outputError(err)
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ListenAndServe(ctx); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// buildCmd creates the build command.
func buildCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Render the whole site into the public directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output directory (defaults to build.public_dir)"},
		},
		Action: func(c *cli.Context) error {
			cfg := e.cfg
			if out := c.String("out"); out != "" {
				cfg.Build.PublicDir = out
			}

			res, err := (&build.Builder{Cfg: cfg}).Run(c.Context)
			if err != nil {
				return outputError(err)
			}
			fmt.Fprintf(c.App.Writer, "built %d posts (%d files) into %s\n", res.Posts, res.Files, cfg.Build.PublicDir)
			return nil
		},
	}
}

// listCmd creates the list command.
func listCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List post metadata, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum posts to list (0 = all)"},
		},
		Action: func(c *cli.Context) error {
			posts, err := loadPosts(e.cfg)
			if err != nil {
				return outputError(err)
			}
			if n := c.Int("limit"); n > 0 && n < len(posts) {
				posts = posts[:n]
			}
			out := make([]content.Post, 0, len(posts))
			for _, p := range posts {
				out = append(out, p.Summary())
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// showCmd creates the show command.
func showCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one post with its body",
		ArgsUsage: "<slug>",
		Action: func(c *cli.Context) error {
			slug := c.Args().First()
			if slug == "" {
				return outputError(domainerr.Invalid("slug", "is required"))
			}

			cc, err := app.OpenContent(e.cfg)
			if err != nil {
				return outputError(err)
			}
			defer cc.Close()

			post, ok := cc.Repo.GetBySlug(slug)
			if !ok {
				return outputError(domainerr.NotFound("post", slug))
			}
			return outputJSON(c.App.Writer, post)
		},
	}
}

// searchCmd creates the search command. With --query it filters once;
// otherwise each stdin line is fed to a debounced engine as a keystroke
// would be, and results are printed whenever the query settles.
func searchCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Filter posts by title, description or tag",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Run a single query instead of reading stdin"},
			&cli.BoolFlag{Name: "case-sensitive", Usage: "Match case exactly (defaults to search.case_sensitive)"},
		},
		Action: func(c *cli.Context) error {
			sc := e.cfg.Search
			if c.IsSet("case-sensitive") {
				sc.CaseSensitive = c.Bool("case-sensitive")
			}

			posts, err := loadPosts(e.cfg)
			if err != nil {
				return outputError(err)
			}

			if c.IsSet("query") {
				q := c.String("query")
				printResults(c.App.Writer, q, search.Filter(posts, q, sc.CaseSensitive), len(posts))
				return nil
			}
			if err := runInteractiveSearch(c.App.Reader, c.App.Writer, posts, sc); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// runInteractiveSearch reads queries line by line. ":panel" toggles the
// search panel, ":clear" clears the query and ":quit" stops reading.
// Whatever is still pending at the end is committed before returning.
func runInteractiveSearch(in io.Reader, w io.Writer, posts []content.Post, sc config.SearchConfig) error {
	out := &syncWriter{w: w}
	eng, err := search.NewEngine(posts,
		search.WithDebounce(sc.Debounce),
		search.WithCaseSensitive(sc.CaseSensitive),
		search.WithCommitHook(func(st search.State) {
			printResults(out, st.DebouncedQuery, st.FilteredPosts, len(posts))
		}),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch strings.TrimSpace(line) {
		case ":quit", ":q":
			eng.Flush()
			return nil
		case ":panel":
			eng.ToggleSearchPanel()
			state := "hidden"
			if eng.IsSearchVisible() {
				state = "visible"
			}
			fmt.Fprintf(out, "search panel %s\n", state)
		case ":clear":
			eng.ClearSearch()
		default:
			eng.OnInputChange(search.InputEvent{Value: line})
		}
	}
	eng.Flush()
	return scanner.Err()
}

func printResults(w io.Writer, query string, posts []content.Post, total int) {
	fmt.Fprintf(w, "%d/%d posts match %q\n", len(posts), total, query)
	for _, p := range posts {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", p.Date, p.Slug, p.Title)
	}
}

func loadPosts(cfg config.Config) ([]content.Post, error) {
	cc, err := app.OpenContent(cfg)
	if err != nil {
		return nil, err
	}
	defer cc.Close()
	return cc.Repo.ListAll(), nil
}

// syncWriter serializes writes from the commit hook and the input loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// outputJSON prints v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	return cli.Exit(err.Error(), 1)
}
