// internal/scaffold/scaffold.go
package scaffold

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"dario.cat/mergo"
	"go.uber.org/zap"

	"gitsite/internal/builder"
	"gitsite/internal/config"
	"gitsite/internal/repo"
	"gitsite/internal/util"
)

//go:embed all:skeleton all:framework site.yaml.tmpl
var assets embed.FS

var readmePattern = regexp.MustCompile(`(?i)^readme(\.(md|markdown))?$`)

// SiteOptions describes a site to scaffold.
type SiteOptions struct {
	Path      string
	Framework string // empty: the framework named in site.yaml
	CDN       string
	Author    string
	Git       bool // bootstrap a git repository with an origin remote
}

// CreateNewSite bootstraps the repository, lays down the project skeleton and
// installs the framework templates. Existing files are never overwritten.
func CreateNewSite(opts SiteOptions, log *zap.Logger) (config.SiteConfig, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("scaffolding new site", zap.String("path", opts.Path))

	if opts.Git {
		if _, err := repo.Boot(opts.Path, log); err != nil {
			return config.SiteConfig{}, fmt.Errorf("git bootstrap failed: %w", err)
		}
	}
	if err := SetRoot(opts, log); err != nil {
		return config.SiteConfig{}, err
	}

	cfg, err := config.Load(opts.Path)
	if err != nil {
		return config.SiteConfig{}, err
	}
	if opts.Framework != "" {
		cfg.Framework = opts.Framework
	}
	if opts.CDN != "" {
		cfg.CDN = opts.CDN
	}
	if err := SetHTML(opts.Path, cfg.Framework, cfg.Directories.Layout, cfg.CDN, log); err != nil {
		return config.SiteConfig{}, err
	}
	return cfg, nil
}

// SetRoot copies the project skeleton into opts.Path without overwriting,
// merges the skeleton's JSON settings into the existing ones, installs the
// .gitignore, writes a ReadMe when there is none and creates the doc directory.
func SetRoot(opts SiteOptions, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	root := opts.Path
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	name, err := util.PackageName(root)
	if err != nil {
		return err
	}

	if err := writeSiteConfig(root, name, opts); err != nil {
		return err
	}
	written, err := util.CopyFS(assets, "skeleton", root, false)
	if err != nil {
		return fmt.Errorf("failed to copy skeleton: %w", err)
	}
	for _, f := range written {
		log.Debug("created", zap.String("file", f))
	}

	if err := mergeSettings(root); err != nil {
		return err
	}
	if err := installGitignore(root); err != nil {
		return err
	}
	if err := writeReadme(root, name); err != nil {
		return err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(root, cfg.Directories.Doc), 0755)
}

func writeSiteConfig(root, name string, opts SiteOptions) error {
	dst := filepath.Join(root, config.FileName)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	tmpl, err := template.ParseFS(assets, "site.yaml.tmpl")
	if err != nil {
		return err
	}
	framework := opts.Framework
	if framework == "" {
		framework = config.DefaultFramework
	}
	data := struct{ Title, Author, Framework, CDN string }{
		Title:     name,
		Author:    opts.Author,
		Framework: framework,
		CDN:       opts.CDN,
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", config.FileName, err)
	}
	return os.WriteFile(dst, out.Bytes(), 0644)
}

// mergeSettings patches every top-level JSON file of the root with the
// skeleton's version of it. Skeleton values win.
func mergeSettings(root string) error {
	entries, err := fs.ReadDir(assets, "skeleton")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		var src, dst map[string]any
		b, err := fs.ReadFile(assets, path.Join("skeleton", e.Name()))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, &src); err != nil {
			return fmt.Errorf("skeleton %s: %w", e.Name(), err)
		}

		target := filepath.Join(root, e.Name())
		if b, err = os.ReadFile(target); err != nil {
			return err
		}
		if err := json.Unmarshal(b, &dst); err != nil {
			return fmt.Errorf("could not parse %s: %w", target, err)
		}
		if dst == nil {
			dst = map[string]any{}
		}
		if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
			return fmt.Errorf("could not merge %s: %w", target, err)
		}

		out, err := json.MarshalIndent(dst, "", "    ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, append(out, '\n'), 0644); err != nil {
			return err
		}
	}
	return nil
}

// installGitignore renames the skeleton's gitignore unless the project already has one.
func installGitignore(root string) error {
	ignore, skel := filepath.Join(root, ".gitignore"), filepath.Join(root, "gitignore")
	if _, err := os.Stat(ignore); err == nil {
		err := os.Remove(skel)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.Rename(skel, ignore)
}

func writeReadme(root, name string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && readmePattern.MatchString(e.Name()) {
			return nil
		}
	}
	body := fmt.Sprintf("# %s\n\nStatic Web site generated by gitsite.\n", name)
	return os.WriteFile(filepath.Join(root, "ReadMe.md"), []byte(body), 0644)
}

// Frameworks lists the bundled front-end frameworks.
func Frameworks() []string {
	entries, _ := fs.ReadDir(assets, "framework")
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// SetHTML installs framework into root and its page templates into
// root/layoutDir, without overwriting. With a CDN base, the resource
// references of every top-level HTML page of root are rewritten in place.
func SetHTML(root, framework, layoutDir, cdn string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	dir := path.Join("framework", framework)
	if info, err := fs.Stat(assets, dir); err != nil || !info.IsDir() {
		return fmt.Errorf("unknown framework %q (available: %s)", framework, strings.Join(Frameworks(), ", "))
	}

	if _, err := util.CopyFS(assets, dir, root, false); err != nil {
		return fmt.Errorf("failed to install framework %s: %w", framework, err)
	}
	for _, name := range []string{builder.ArticleTemplate, builder.IndexTemplate} {
		if err := copyTemplate(path.Join(dir, name), filepath.Join(root, layoutDir, name)); err != nil {
			return err
		}
	}
	log.Info("installed framework", zap.String("framework", framework), zap.String("root", root))

	if cdn == "" {
		return nil
	}
	pages, err := filepath.Glob(filepath.Join(root, "*.html"))
	if err != nil {
		return err
	}
	for _, p := range pages {
		doc, err := builder.RewriteResources(p, cdn)
		if err != nil {
			return err
		}
		if err := doc.WriteFile(p); err != nil {
			return err
		}
		log.Debug("rewrote resources", zap.String("page", p), zap.String("cdn", cdn))
	}
	return nil
}

func copyTemplate(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	b, err := fs.ReadFile(assets, src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0644)
}

// NewArticle creates <doc>/<slug>.md from the article archetype and returns its path.
// The project's archetypes/article.md takes precedence over the bundled one.
func NewArticle(root string, site config.SiteConfig, title, description string) (string, error) {
	slug := util.Slug(title)
	if slug == "" {
		return "", fmt.Errorf("title %q does not produce a file name", title)
	}
	dst := filepath.Join(root, site.Directories.Doc, slug+".md")
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("article %s already exists", dst)
	}

	tmplBytes, err := os.ReadFile(filepath.Join(root, "archetypes", "article.md"))
	if errors.Is(err, fs.ErrNotExist) {
		tmplBytes, err = fs.ReadFile(assets, "skeleton/archetypes/article.md")
	}
	if err != nil {
		return "", fmt.Errorf("could not read archetype: %w", err)
	}
	tmpl, err := template.New("archetype").Parse(string(tmplBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse archetype: %w", err)
	}

	if description == "" {
		description = "A short summary of " + title + "."
	}
	data := struct {
		Title       string
		Description string
		Author      string
	}{
		Title:       title,
		Description: description,
		Author:      site.Author,
	}
	var output bytes.Buffer
	if err := tmpl.Execute(&output, data); err != nil {
		return "", fmt.Errorf("failed to execute archetype template: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, output.Bytes(), 0644); err != nil {
		return "", err
	}
	return dst, nil
}
