// internal/builder/models.go
package builder

// PageRecord is the parsed form of one markdown article.
type PageRecord struct {
	Name        string // output file name, e.g. "hello.html" for "hello.md"
	Title       string
	Description string
	HTML        string // rendered body, including the title heading
}

// Options configures a Builder. Paths are resolved against Root.
type Options struct {
	Root string

	DocDir    string // markdown sources
	PageDir   string // rendered article pages
	LayoutDir string // article.html and index.html templates

	ArticleSelector string
	ListSelector    string

	// IndexPath is the index page refreshed by the list merge. Defaults to <Root>/index.html.
	IndexPath string

	// CDN, when set, is the base URI resource references are rewritten against.
	CDN string

	Unsafe    bool // skip HTML sanitization
	EditML    bool // reduce EditML markup to its clean view before parsing
	Highlight bool // syntax-highlight fenced code blocks

	Workers int
}

// Report summarizes a build.
type Report struct {
	BuildID  string
	Articles []PageRecord // in index order
	Pages    []string     // written article pages
	Index    string       // refreshed index page, empty if the merge failed
}
