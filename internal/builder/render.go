// internal/builder/render.go
package builder

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sourcegraph/syntaxhighlight"
	"github.com/verkaro/editml-go"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	markdownRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(
				util.Prioritized(newMDLinkTransformer(), 100),
			),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
	htmlSanitizer = newSanitizer()

	lineBreaks   = regexp.MustCompile(`[\r\n]+`)
	titleMarkers = regexp.MustCompile(`^#+\s*`)
	codeClasses  = regexp.MustCompile(`^[\w -]+$`)
)

// newSanitizer is the UGC policy plus the classes fenced code blocks and
// their highlighting carry.
func newSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(codeClasses).OnElements("code", "span")
	return p
}

// ParseRecord turns the raw markdown of file into a PageRecord.
//
// The first non-blank line is the title, with leading '#' markers stripped.
// The second is the description, verbatim. The whole text, title included,
// is rendered as the body.
func ParseRecord(file string, raw []byte) (PageRecord, error) {
	var lines []string
	for _, line := range lineBreaks.Split(string(raw), -1) {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return PageRecord{}, &Error{
			Kind: ErrMalformedArticle,
			Path: file,
			Err:  fmt.Errorf("need a title line and a description line, found %d non-blank lines", len(lines)),
		}
	}

	title := titleMarkers.ReplaceAllString(lines[0], "")
	if strings.TrimSpace(title) == "" {
		return PageRecord{}, &Error{
			Kind: ErrMalformedArticle,
			Path: file,
			Err:  fmt.Errorf("title line %q has no text", lines[0]),
		}
	}

	var body bytes.Buffer
	if err := markdownRenderer.Convert(raw, &body); err != nil {
		return PageRecord{}, &Error{Kind: ErrMalformedArticle, Path: file, Err: err}
	}

	return PageRecord{
		Name:        RecordName(file),
		Title:       title,
		Description: lines[1],
		HTML:        body.String(),
	}, nil
}

// RecordName maps a source file name to its page name: "a/b/hello.md" -> "hello.html".
func RecordName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".html"
}

// ParseFile reads one markdown article and applies the configured
// preprocessing and postprocessing around ParseRecord.
func (b *Builder) ParseFile(path string) (PageRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PageRecord{}, ioFailure(path, err)
	}

	if b.opts.EditML {
		clean, err := cleanEditML(string(raw))
		if err != nil {
			return PageRecord{}, &Error{Kind: ErrMalformedArticle, Path: path, Err: err}
		}
		raw = []byte(clean)
	}

	rec, err := ParseRecord(path, raw)
	if err != nil {
		return PageRecord{}, err
	}

	// Highlighting reads the language class, so it runs before sanitizing.
	if b.opts.Highlight {
		if rec.HTML, err = highlightCode(rec.HTML); err != nil {
			return PageRecord{}, &Error{Kind: ErrMalformedArticle, Path: path, Err: err}
		}
	}
	if !b.opts.Unsafe {
		rec.HTML = htmlSanitizer.Sanitize(rec.HTML)
	}
	return rec, nil
}

// cleanEditML reduces EditML review markup to the accepted text.
func cleanEditML(raw string) (string, error) {
	nodes, parseIssues := editml.Parse(raw)
	if len(parseIssues) > 0 && parseIssues[0].Severity == editml.SeverityError {
		return "", fmt.Errorf("editml parsing error: %s", parseIssues[0].Message)
	}
	clean, transformIssues := editml.TransformCleanView(nodes)
	if len(transformIssues) > 0 && transformIssues[0].Severity == editml.SeverityError {
		return "", fmt.Errorf("editml transformation error: %s", transformIssues[0].Message)
	}
	return clean, nil
}

// highlightCode replaces the text of every fenced code block with highlighted markup.
func highlightCode(fragment string) (string, error) {
	body := &xhtml.Node{Type: xhtml.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := xhtml.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", err
	}
	root := &xhtml.Node{Type: xhtml.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	var hlErr error
	goquery.NewDocumentFromNode(root).Find(`code[class*="language-"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out, err := syntaxhighlight.AsHTML([]byte(s.Text()))
		if err != nil {
			hlErr = err
			return false
		}
		s.SetHtml(string(out))
		return true
	})
	if hlErr != nil {
		return "", hlErr
	}

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := xhtml.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
