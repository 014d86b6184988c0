// internal/builder/cdn.go
package builder

import (
	"fmt"
	"net/url"

	"golang.org/x/net/html"
)

// resourceAttr names the attribute holding the resource URL for one kind of element.
type resourceAttr struct {
	selector string
	attr     string
}

// resourceAttrs lists every element whose resource reference is served from the CDN.
var resourceAttrs = []resourceAttr{
	{`link[rel~="stylesheet"]`, "href"},
	{`link[rel~="icon"]`, "href"},
	{"script[src]", "src"},
	{"img[src]", "src"},
	{"audio[src]", "src"},
	{"video[src]", "src"},
}

// RewriteResources loads the page at path and resolves its resource
// references against base. The document is returned unwritten.
func RewriteResources(path, base string) (*Document, error) {
	baseURL, err := ParseCDN(base)
	if err != nil {
		return nil, err
	}
	page, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	if err := page.RewriteResources(baseURL); err != nil {
		return nil, err
	}
	return page, nil
}

// ParseCDN parses base and requires it to be absolute.
func ParseCDN(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid CDN base %q: %w", base, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("CDN base %q is not an absolute URL", base)
	}
	return u, nil
}

// RewriteResources resolves every resource reference of d against base in
// place. Values that are not valid URLs are left as they are.
func (d *Document) RewriteResources(base *url.URL) error {
	seen := make(map[*html.Node]bool)
	for _, ra := range resourceAttrs {
		sel, err := d.Find(ra.selector)
		if err != nil {
			return err
		}
		for _, n := range sel.Nodes {
			if seen[n] {
				continue
			}
			seen[n] = true
			for i, a := range n.Attr {
				if a.Namespace != "" || a.Key != ra.attr {
					continue
				}
				ref, err := url.Parse(a.Val)
				if err != nil {
					break
				}
				n.Attr[i].Val = base.ResolveReference(ref).String()
				break
			}
		}
	}
	return nil
}
