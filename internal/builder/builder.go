// internal/builder/builder.go
package builder

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitsite/internal/config"
)

const (
	ArticleTemplate = "article.html"
	IndexTemplate   = "index.html"
)

// Builder renders a site's markdown articles into pages and refreshes its index.
type Builder struct {
	opts Options
	log  *zap.Logger
}

// New returns a Builder for opts. A nil logger discards output.
func New(opts Options, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.DocDir == "" {
		opts.DocDir = config.DefaultDocDir
	}
	if opts.PageDir == "" {
		opts.PageDir = config.DefaultPageDir
	}
	if opts.LayoutDir == "" {
		opts.LayoutDir = config.DefaultLayoutDir
	}
	if opts.ArticleSelector == "" {
		opts.ArticleSelector = config.DefaultArticleSelector
	}
	if opts.ListSelector == "" {
		opts.ListSelector = config.DefaultListSelector
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Builder{opts: opts, log: log}
}

func (b *Builder) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(b.opts.Root, rel)
}

// IndexPath is the page the article list is merged into.
func (b *Builder) IndexPath() string {
	if b.opts.IndexPath != "" {
		return b.path(b.opts.IndexPath)
	}
	return b.path(IndexTemplate)
}

// Sources lists the markdown articles of the doc directory in name order.
func (b *Builder) Sources() ([]string, error) {
	dir := b.path(b.opts.DocDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ioFailure(dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// Build parses every article, renders its page, merges the article list
// into the index and, with a CDN configured, rewrites the written pages.
//
// A failing article is left out of the index and the build goes on; all
// such failures are returned together with the report. A failed list merge
// leaves the index untouched.
func (b *Builder) Build(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{BuildID: uuid.NewString()}
	log := b.log.With(zap.String("build_id", report.BuildID))

	sources, err := b.Sources()
	if err != nil {
		return report, err
	}
	log.Info("building site", zap.String("root", b.opts.Root), zap.Int("articles", len(sources)))

	var (
		layout      = b.path(b.opts.LayoutDir)
		articleTmpl = filepath.Join(layout, ArticleTemplate)
		records     = make([]*PageRecord, len(sources))
		pages       = make([]string, len(sources))
		errs        = make([]error, len(sources))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := b.ParseFile(src)
			if err != nil {
				errs[i] = err
				log.Warn("skipping article", zap.String("source", src), zap.Error(err))
				return nil
			}
			page, err := RenderArticle(rec, articleTmpl, b.opts.ArticleSelector, b.opts.Root, b.opts.PageDir)
			if err != nil {
				errs[i] = err
				log.Warn("article page failed", zap.String("source", src), zap.Error(err))
				return nil
			}
			log.Debug("rendered article", zap.String("source", src), zap.String("page", page))
			records[i], pages[i] = &rec, page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	var buildErr error
	for i := range sources {
		if errs[i] != nil {
			buildErr = multierr.Append(buildErr, errs[i])
			continue
		}
		report.Articles = append(report.Articles, *records[i])
		report.Pages = append(report.Pages, pages[i])
	}

	index := b.IndexPath()
	if err := MergeList(filepath.Join(layout, IndexTemplate), b.opts.ListSelector, report.Articles, index); err != nil {
		log.Error("article list merge failed", zap.String("index", index), zap.Error(err))
		return report, multierr.Append(buildErr, err)
	}
	report.Index = index

	if b.opts.CDN != "" {
		written := append(append([]string(nil), report.Pages...), index)
		buildErr = multierr.Append(buildErr, b.rewriteCDN(log, written))
	}

	log.Info("site built",
		zap.Int("pages", len(report.Pages)),
		zap.Int("failed", len(multierr.Errors(buildErr))),
		zap.Duration("took", time.Since(start)),
	)
	return report, buildErr
}

// rewriteCDN runs the resource rewrite over already written pages, in place.
// The CDN mirrors the root, so each page resolves against its own directory there.
func (b *Builder) rewriteCDN(log *zap.Logger, pages []string) error {
	base, err := ParseCDN(b.opts.CDN)
	if err != nil {
		return err
	}
	var errs error
	for _, p := range pages {
		doc, err := LoadDocument(p)
		if err == nil {
			err = doc.RewriteResources(b.pageBase(base, p))
		}
		if err == nil {
			err = doc.WriteFile(p)
		}
		if err != nil {
			log.Warn("cdn rewrite failed", zap.String("page", p), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// pageBase returns the CDN location of the directory holding page.
// Pages outside the root resolve against base itself.
func (b *Builder) pageBase(base *url.URL, page string) *url.URL {
	rel, err := filepath.Rel(b.opts.Root, filepath.Dir(page))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return base
	}
	return base.ResolveReference(&url.URL{Path: filepath.ToSlash(rel) + "/"})
}
