// internal/builder/document.go
package builder

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Document is a parsed HTML page owned by a single operation.
// It must not be shared between goroutines.
type Document struct {
	path string
	doc  *goquery.Document
}

// LoadDocument reads and parses the HTML file at path.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioFailure(path, err)
	}
	defer f.Close()
	return ParseDocument(path, f)
}

// ParseDocument parses r as a full HTML document. path is only used for error reporting.
func ParseDocument(path string, r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, ioFailure(path, err)
	}
	return &Document{path: path, doc: doc}, nil
}

// Path returns the file the document was loaded from.
func (d *Document) Path() string { return d.path }

// Selection returns the root selection of the document.
func (d *Document) Selection() *goquery.Selection { return d.doc.Selection }

// Find compiles selector and returns its matches. Unlike goquery's Find it
// reports an invalid selector instead of panicking.
func (d *Document) Find(selector string) (*goquery.Selection, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, selectorNotFound(d.path, selector, err)
	}
	return d.doc.FindMatcher(m), nil
}

// First returns the first element matching selector, or an ErrSelectorNotFound error.
func (d *Document) First(selector string) (*goquery.Selection, error) {
	sel, err := d.Find(selector)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, selectorNotFound(d.path, selector, nil)
	}
	return sel.First(), nil
}

// Render serializes the whole document, doctype included.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.doc.Nodes[0])
}

// Bytes returns the serialized document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil, ioFailure(d.path, err)
	}
	return buf.Bytes(), nil
}

// WriteFile serializes the document to path.
func (d *Document) WriteFile(path string) error {
	b, err := d.Bytes()
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

// writeFile creates parent directories and replaces path through a temp file,
// so a failed write never leaves a truncated page behind.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ioFailure(path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return ioFailure(path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ioFailure(path, err)
	}
	if err := tmp.Close(); err != nil {
		return ioFailure(path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return ioFailure(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return ioFailure(path, err)
	}
	return nil
}
