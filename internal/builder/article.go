// internal/builder/article.go
package builder

import "path/filepath"

// RenderArticle injects rec.HTML into the first element of the article
// template matching selector and writes the page to <root>/<pageDir>/<rec.Name>.
// The destination is always overwritten. It returns the written path.
func RenderArticle(rec PageRecord, templatePath, selector, root, pageDir string) (string, error) {
	page, err := LoadDocument(templatePath)
	if err != nil {
		return "", err
	}

	body, err := page.First(selector)
	if err != nil {
		return "", err
	}
	body.SetHtml(rec.HTML)

	dst := filepath.Join(root, pageDir, rec.Name)
	if err := page.WriteFile(dst); err != nil {
		return "", err
	}
	return dst, nil
}
