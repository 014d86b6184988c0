// cmd/gitsite/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gitsite/internal/builder"
	"gitsite/internal/config"
	"gitsite/internal/scaffold"
	"gitsite/internal/server"
)

// Globals are shared by every command.
type Globals struct {
	Debug bool   `help:"Enable debug logging."`
	Root  string `short:"C" help:"Project root directory." default:"." type:"path"`

	ctx context.Context
	log *zap.Logger
}

// CLI is the gitsite command line.
type CLI struct {
	Globals

	Init  InitCmd  `cmd:"" help:"Scaffold a new site, or complete an existing one."`
	Build BuildCmd `cmd:"" help:"Render the markdown articles and refresh the index page."`
	Serve ServeCmd `cmd:"" help:"Run a local development server with live reload."`
	New   NewCmd   `cmd:"" help:"Create a new article from the archetype."`
	CDN   CDNCmd   `cmd:"" name:"cdn" help:"Rewrite the resource references of one page against a CDN base."`
}

// AfterApply sets the logger up once flags are parsed.
func (g *Globals) AfterApply() error {
	g.log = setupLogger(g.Debug)
	return nil
}

func setupLogger(debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stderr),
		level,
	))
}

type InitCmd struct {
	Path      string `arg:"" optional:"" help:"Directory of the new site; defaults to the project root." type:"path"`
	Framework string `short:"f" help:"Front-end framework: bootstrap or plain."`
	CDN       string `help:"Absolute base URL static resources are served from."`
	Author    string `short:"a" help:"Author written into site.yaml."`
	NoGit     bool   `help:"Do not initialize a git repository."`
}

func (c *InitCmd) Run(g *Globals) error {
	path := c.Path
	if path == "" {
		path = g.Root
	}
	cfg, err := scaffold.CreateNewSite(scaffold.SiteOptions{
		Path:      path,
		Framework: c.Framework,
		CDN:       c.CDN,
		Author:    c.Author,
		Git:       !c.NoGit,
	}, g.log)
	if err != nil {
		return err
	}
	g.log.Info("site ready",
		zap.String("path", path),
		zap.String("framework", cfg.Framework),
		zap.String("articles", cfg.Directories.Doc),
	)
	return nil
}

// BuildFlags override the matching site.yaml values.
type BuildFlags struct {
	CDN       string `help:"Absolute base URL static resources are served from."`
	Unsafe    bool   `help:"Disable HTML sanitization of rendered markdown."`
	EditML    bool   `name:"editml" help:"Reduce EditML markup to its clean view before parsing."`
	Highlight bool   `help:"Syntax-highlight fenced code blocks."`
	Workers   int    `short:"j" help:"Articles processed in parallel; 0 uses every CPU."`
}

func (f BuildFlags) options(root string, cfg config.SiteConfig) builder.Options {
	opts := builder.Options{
		Root:            root,
		DocDir:          cfg.Directories.Doc,
		PageDir:         cfg.Directories.Page,
		LayoutDir:       cfg.Directories.Layout,
		ArticleSelector: cfg.Selectors.Article,
		ListSelector:    cfg.Selectors.List,
		CDN:             cfg.CDN,
		Unsafe:          f.Unsafe,
		EditML:          f.EditML,
		Highlight:       f.Highlight,
		Workers:         f.Workers,
	}
	if f.CDN != "" {
		opts.CDN = f.CDN
	}
	return opts
}

// build loads site.yaml afresh so that a served site picks up its edits.
func (f BuildFlags) build(ctx context.Context, g *Globals) (builder.Report, error) {
	cfg, err := config.Load(g.Root)
	if err != nil {
		return builder.Report{}, err
	}
	if f.CDN != "" {
		if _, err := builder.ParseCDN(f.CDN); err != nil {
			return builder.Report{}, err
		}
	}
	return builder.New(f.options(g.Root, cfg), g.log).Build(ctx)
}

type BuildCmd struct {
	BuildFlags `embed:""`
}

func (c *BuildCmd) Run(g *Globals) error {
	report, err := c.build(g.ctx, g)
	if err != nil {
		return fmt.Errorf("build %s: %w", report.BuildID, err)
	}
	return nil
}

type ServeCmd struct {
	BuildFlags `embed:""`
	Port       int `short:"p" env:"PORT" default:"1313" help:"Port for the development server."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Root)
	if err != nil {
		return err
	}
	build := func(ctx context.Context) error {
		report, err := c.build(ctx, g)
		return servable(report, err, g.log)
	}
	return server.Run(g.ctx, server.Options{
		Root:  g.Root,
		Port:  c.Port,
		Watch: []string{cfg.Directories.Doc, cfg.Directories.Layout, config.FileName},
	}, build, g.log)
}

// servable keeps serving through failed articles. Only a build that left
// no index behind is fatal.
func servable(report builder.Report, err error, log *zap.Logger) error {
	if err != nil && report.Index != "" {
		log.Warn("site built with errors", zap.String("build_id", report.BuildID), zap.Error(err))
		return nil
	}
	return err
}

type NewCmd struct {
	Title       string `arg:"" help:"Title of the article."`
	Description string `short:"d" help:"One-line summary shown in the index."`
}

func (c *NewCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Root)
	if err != nil {
		return err
	}
	path, err := scaffold.NewArticle(g.Root, cfg, c.Title, c.Description)
	if err != nil {
		return err
	}
	g.log.Info("created article", zap.String("path", path))
	return nil
}

type CDNCmd struct {
	Page   string `arg:"" help:"HTML page to rewrite." type:"existingfile"`
	Base   string `arg:"" help:"Absolute CDN base URL."`
	Output string `short:"o" help:"Write the result here instead of in place." type:"path"`
}

func (c *CDNCmd) Run(g *Globals) error {
	doc, err := builder.RewriteResources(c.Page, c.Base)
	if err != nil {
		return err
	}
	out := c.Output
	if out == "" {
		out = c.Page
	}
	if err := doc.WriteFile(out); err != nil {
		return err
	}
	g.log.Info("rewrote resources", zap.String("page", c.Page), zap.String("output", out), zap.String("cdn", c.Base))
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gitsite"),
		kong.Description("Scaffold and build a static article site from markdown."),
		kong.UsageOnError(),
	)
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli.ctx = sigCtx
	start := time.Now()
	err := ctx.Run(&cli.Globals)
	stop()
	if cli.log != nil {
		if err != nil {
			cli.log.Error("command failed", zap.String("command", ctx.Command()), zap.Error(err))
		} else {
			cli.log.Debug("command finished", zap.String("command", ctx.Command()), zap.Duration("took", time.Since(start)))
		}
		_ = cli.log.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}
