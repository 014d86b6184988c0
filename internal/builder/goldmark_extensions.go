// internal/builder/goldmark_extensions.go
package builder

import (
	"bytes"
	"net/url"
	"path"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// mdLinkTransformer points relative links between articles at their rendered
// pages: [next](part-2.md#setup) becomes part-2.html#setup.
type mdLinkTransformer struct{}

func newMDLinkTransformer() parser.ASTTransformer {
	return &mdLinkTransformer{}
}

func (t *mdLinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		if dest, ok := articleLink(link.Destination); ok {
			link.Destination = dest
		}
		return ast.WalkContinue, nil
	})
}

// articleLink rewrites a relative ".md" destination, keeping query and fragment.
func articleLink(dest []byte) ([]byte, bool) {
	if !bytes.Contains(dest, []byte(".md")) {
		return nil, false
	}
	u, err := url.Parse(string(dest))
	if err != nil || u.IsAbs() || u.Host != "" || path.Ext(u.Path) != ".md" {
		return nil, false
	}
	u.Path = u.Path[:len(u.Path)-len(".md")] + ".html"
	return []byte(u.String()), true
}
