package builder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const articleLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Site</title>
  <link rel="stylesheet" href="../css/style.css">
</head>
<body>
  <nav><a href="../index.html">home</a></nav>
  <article>placeholder</article>
  <footer>&copy; Site</footer>
  <script src="../js/app.js"></script>
</body>
</html>
`

const indexLayout = `<!DOCTYPE html>
<html>
<head>
  <title>Index</title>
  <link rel="stylesheet" href="css/style.css">
</head>
<body>
  <header>Blog</header>
  <ul id="articles">
    <li><a href="page/${name}"><h3>${title}</h3><p>${description}</p></a></li>
  </ul>
  <footer>bottom</footer>
</body>
</html>
`

func writeTestFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func parseHTML(t *testing.T, path string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(readFile(t, path)))
	require.NoError(t, err)
	return doc
}

// itemTitles returns the h3 text of every item in the #articles list.
func itemTitles(doc *goquery.Document) []string {
	titles := []string{}
	doc.Find("#articles > li h3").Each(func(_ int, s *goquery.Selection) {
		titles = append(titles, s.Text())
	})
	return titles
}

func records(names ...string) []PageRecord {
	recs := make([]PageRecord, 0, len(names))
	for _, n := range names {
		recs = append(recs, PageRecord{
			Name:        strings.ToLower(n) + ".html",
			Title:       n,
			Description: "About " + n,
			HTML:        "<h1>" + n + "</h1>",
		})
	}
	return recs
}
