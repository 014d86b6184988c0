// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the site configuration file at the project root.
const FileName = "site.yaml"

// SiteConfig holds the configuration from the site.yaml file.
type SiteConfig struct {
	Title       string      `yaml:"title"`
	Author      string      `yaml:"author"`
	BaseURL     string      `yaml:"baseurl"`
	Description string      `yaml:"description"`
	Framework   string      `yaml:"framework"`
	CDN         string      `yaml:"cdn"`
	Directories Directories `yaml:"directories"`
	Selectors   Selectors   `yaml:"selectors"`
}

// Directories are relative to the project root.
type Directories struct {
	Doc    string `yaml:"doc"`
	Page   string `yaml:"page"`
	Layout string `yaml:"layout"`
}

// Selectors locate the structural roles inside the layout templates.
type Selectors struct {
	Article string `yaml:"article"`
	List    string `yaml:"list"`
}

const (
	DefaultFramework       = "plain"
	DefaultDocDir          = "docs"
	DefaultPageDir         = "page"
	DefaultLayoutDir       = "layout"
	DefaultArticleSelector = "article"
	DefaultListSelector    = "#articles"
)

// Default returns a configuration with every default applied.
func Default() SiteConfig {
	var cfg SiteConfig
	cfg.applyDefaults()
	return cfg
}

func (c *SiteConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "/"
	}
	if c.Framework == "" {
		c.Framework = DefaultFramework
	}
	if c.Directories.Doc == "" {
		c.Directories.Doc = DefaultDocDir
	}
	if c.Directories.Page == "" {
		c.Directories.Page = DefaultPageDir
	}
	if c.Directories.Layout == "" {
		c.Directories.Layout = DefaultLayoutDir
	}
	if c.Selectors.Article == "" {
		c.Selectors.Article = DefaultArticleSelector
	}
	if c.Selectors.List == "" {
		c.Selectors.List = DefaultListSelector
	}
}

// Validate reports configuration values the build cannot work with.
func (c SiteConfig) Validate() error {
	if c.CDN != "" {
		u, err := url.Parse(c.CDN)
		if err != nil {
			return fmt.Errorf("invalid cdn %q: %w", c.CDN, err)
		}
		if !u.IsAbs() {
			return fmt.Errorf("cdn %q must be an absolute URL", c.CDN)
		}
	}
	for name, dir := range map[string]string{
		"doc":    c.Directories.Doc,
		"page":   c.Directories.Page,
		"layout": c.Directories.Layout,
	} {
		if filepath.IsAbs(dir) {
			return fmt.Errorf("directories.%s must be relative to the project root, got %s", name, dir)
		}
	}
	return nil
}

// LoadSiteConfig reads and parses path, filling defaults for missing values.
func LoadSiteConfig(path string) (SiteConfig, error) {
	cfg := SiteConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		return SiteConfig{}, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return SiteConfig{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the site.yaml of root, or returns the defaults when it does not exist.
func Load(root string) (SiteConfig, error) {
	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadSiteConfig(path)
}
