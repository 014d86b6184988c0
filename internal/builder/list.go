// internal/builder/list.go
package builder

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MergeList rebuilds the list container matched by selector in the template
// at templatePath, one item per record in order, and splices it over the
// matching element of the page at targetPath. Template and target may be the
// same file. The target is written only after the new container is fully built.
//
// The item pattern is the first element child of the template's container.
// Inside it, ${name}, ${title} and ${description} in text and attribute
// values are replaced by the record's fields.
func MergeList(templatePath, selector string, records []PageRecord, targetPath string) error {
	tmpl, err := LoadDocument(templatePath)
	if err != nil {
		return err
	}
	container, err := tmpl.First(selector)
	if err != nil {
		return err
	}
	if err := renderItems(container, records); err != nil {
		if e, ok := err.(*Error); ok {
			e.Path, e.Selector = templatePath, selector
		}
		return err
	}

	target, err := LoadDocument(targetPath)
	if err != nil {
		return err
	}
	old, err := target.First(selector)
	if err != nil {
		return err
	}
	old.ReplaceWithSelection(container)

	return target.WriteFile(targetPath)
}

// renderItems replaces the children of container with one bound copy of its
// item pattern per record.
func renderItems(container *goquery.Selection, records []PageRecord) error {
	pattern := container.Children().First()
	if pattern.Length() == 0 && len(records) > 0 {
		return &Error{Kind: ErrMissingItemTemplate}
	}
	pattern = pattern.Clone()
	container.Contents().Remove()

	for _, rec := range records {
		item := pattern.Clone()
		bindRecord(item.Nodes[0], fieldReplacer(rec))
		container.AppendSelection(item)
	}
	return nil
}

func fieldReplacer(rec PageRecord) *strings.Replacer {
	return strings.NewReplacer(
		"${name}", rec.Name,
		"${title}", rec.Title,
		"${description}", rec.Description,
	)
}

func bindRecord(n *html.Node, r *strings.Replacer) {
	switch n.Type {
	case html.TextNode:
		n.Data = r.Replace(n.Data)
	case html.ElementNode:
		for i := range n.Attr {
			n.Attr[i].Val = r.Replace(n.Attr[i].Val)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		bindRecord(c, r)
	}
}
