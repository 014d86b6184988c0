package util

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	nonPackageChars = regexp.MustCompile(`[^@\w]+`)
	nonSlugChars    = regexp.MustCompile(`[^a-z0-9]+`)
)

// PackageName derives a package-style name from the last element of path:
// "~/Projects/My Site" becomes "my-site".
func PackageName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return nonPackageChars.ReplaceAllString(strings.ToLower(filepath.Base(abs)), "-"), nil
}

// Slug turns a title into a file name: "Hello, World!" becomes "hello-world".
func Slug(title string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

// CopyFS copies the tree rooted at dir in fsys into dst. Existing files are
// kept unless overwrite is set. It returns the destination paths it wrote.
func CopyFS(fsys fs.FS, dir, dst string, overwrite bool) ([]string, error) {
	var written []string
	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, filepath.FromSlash(path))
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				return nil
			} else if !os.IsNotExist(err) {
				return err
			}
		}
		if err := copyFile(fsys, path, target); err != nil {
			return fmt.Errorf("copy %s: %w", path, err)
		}
		written = append(written, target)
		return nil
	})
	return written, err
}

func copyFile(fsys fs.FS, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
