package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

// newSite lays out a project with two valid articles and one malformed one.
func newSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "layout", ArticleTemplate), articleLayout)
	writeTestFile(t, filepath.Join(root, "layout", IndexTemplate), indexLayout)
	writeTestFile(t, filepath.Join(root, IndexTemplate), indexLayout)
	writeTestFile(t, filepath.Join(root, "docs", "b-second.md"), "# Second\nThe second post.\n\nSee [first](a-first.md).\n")
	writeTestFile(t, filepath.Join(root, "docs", "a-first.md"), "# First\nThe first post.\n\nHello.\n")
	writeTestFile(t, filepath.Join(root, "docs", "notes.txt"), "not an article")
	return root
}

func siteOptions(root string) Options {
	return Options{
		Root:            root,
		DocDir:          "docs",
		PageDir:         "page",
		LayoutDir:       "layout",
		ArticleSelector: "article",
		ListSelector:    "#articles",
		Workers:         2,
	}
}

func TestBuild(t *testing.T) {
	root := newSite(t)

	report, err := New(siteOptions(root), zaptest.NewLogger(t)).Build(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Articles, 2)
	assert.Equal(t, "a-first.html", report.Articles[0].Name)
	assert.Equal(t, "b-second.html", report.Articles[1].Name)
	assert.NotEmpty(t, report.BuildID)
	assert.Equal(t, filepath.Join(root, "index.html"), report.Index)
	assert.Equal(t, []string{
		filepath.Join(root, "page", "a-first.html"),
		filepath.Join(root, "page", "b-second.html"),
	}, report.Pages)

	second := parseHTML(t, filepath.Join(root, "page", "b-second.html"))
	assert.Equal(t, "Second", second.Find("article h1").Text())
	assert.Equal(t, "a-first.html", second.Find("article a").AttrOr("href", ""))

	index := parseHTML(t, report.Index)
	assert.Equal(t, []string{"First", "Second"}, itemTitles(index))
	assert.Equal(t, "page/a-first.html", index.Find("#articles a").First().AttrOr("href", ""))
}

func TestBuildCollectsArticleErrors(t *testing.T) {
	root := newSite(t)
	writeTestFile(t, filepath.Join(root, "docs", "c-broken.md"), "# Only a title\n")
	writeTestFile(t, filepath.Join(root, "docs", "d-empty.md"), "")

	report, err := New(siteOptions(root), zaptest.NewLogger(t)).Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedArticle))
	assert.Len(t, multierr.Errors(err), 2)

	// The good articles are still rendered and listed.
	assert.Len(t, report.Pages, 2)
	assert.Equal(t, []string{"First", "Second"}, itemTitles(parseHTML(t, report.Index)))
	_, statErr := os.Stat(filepath.Join(root, "page", "c-broken.html"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildMergeFailureKeepsIndex(t *testing.T) {
	root := newSite(t)
	original := "<!DOCTYPE html><html><body><p>custom index</p></body></html>"
	writeTestFile(t, filepath.Join(root, IndexTemplate), original)

	report, err := New(siteOptions(root), nil).Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSelectorNotFound))
	assert.Empty(t, report.Index)
	assert.Len(t, report.Pages, 2)
	assert.Equal(t, original, readFile(t, filepath.Join(root, IndexTemplate)))
}

func TestBuildWithCDN(t *testing.T) {
	root := newSite(t)
	opts := siteOptions(root)
	opts.CDN = "https://cdn.example.com/site/"

	report, err := New(opts, nil).Build(context.Background())
	require.NoError(t, err)

	page := parseHTML(t, report.Pages[0])
	assert.Equal(t, "https://cdn.example.com/site/css/style.css", page.Find(`link[rel="stylesheet"]`).AttrOr("href", ""))
	assert.Equal(t, "https://cdn.example.com/site/js/app.js", page.Find("script").AttrOr("src", ""))
	// Navigation links are not resources.
	assert.Equal(t, "../index.html", page.Find("nav a").AttrOr("href", ""))

	index := parseHTML(t, report.Index)
	assert.Equal(t, "https://cdn.example.com/site/css/style.css", index.Find(`link[rel="stylesheet"]`).AttrOr("href", ""))
}

func TestBuildIsRepeatable(t *testing.T) {
	root := newSite(t)
	b := New(siteOptions(root), nil)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	first := readFile(t, filepath.Join(root, IndexTemplate))

	_, err = b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, filepath.Join(root, IndexTemplate)))
}

func TestBuildMissingDocDir(t *testing.T) {
	opts := siteOptions(t.TempDir())

	_, err := New(opts, nil).Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIOFailure))
}

func TestBuildCancelled(t *testing.T) {
	root := newSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(siteOptions(root), nil).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildWithCDNNestedPages(t *testing.T) {
	root := newSite(t)
	writeTestFile(t, filepath.Join(root, "layout", ArticleTemplate),
		`<html><head><link rel="icon" href="../../favicon.svg"><link rel="stylesheet" href="style.css"></head><body><article></article></body></html>`)
	opts := siteOptions(root)
	opts.PageDir = filepath.Join("blog", "posts")
	opts.CDN = "https://cdn.example.com/site/"

	report, err := New(opts, nil).Build(context.Background())
	require.NoError(t, err)

	page := parseHTML(t, report.Pages[0])
	assert.Equal(t, "https://cdn.example.com/site/favicon.svg", page.Find(`link[rel="icon"]`).AttrOr("href", ""))
	assert.Equal(t, "https://cdn.example.com/site/blog/posts/style.css", page.Find(`link[rel="stylesheet"]`).AttrOr("href", ""))
}

func TestNewAppliesDefaults(t *testing.T) {
	root := newSite(t)

	report, err := New(Options{Root: root}, zaptest.NewLogger(t)).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second"}, itemTitles(parseHTML(t, report.Index)))
	assert.FileExists(t, filepath.Join(root, "page", "a-first.html"))
}
