package media

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/goregular"
)

// ResolveFont picks the font file for an overlay. The requested font is tried
// first, as a path and then by name in each directory, followed by the
// candidates in each directory. It returns "" when nothing exists, in which case
// the caller uses the bundled font.
func ResolveFont(requested string, dirs, candidates []string, exists func(string) bool) string {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if strings.ContainsRune(requested, filepath.Separator) || filepath.IsAbs(requested) {
			if exists(requested) {
				return requested
			}
		} else {
			names := []string{requested}
			if filepath.Ext(requested) == "" {
				names = append(names, requested+".ttf", requested+".otf", requested+".ttc")
			}
			if p := firstIn(dirs, names, exists); p != "" {
				return p
			}
		}
	}
	return firstIn(dirs, candidates, exists)
}

func firstIn(dirs, names []string, exists func(string) bool) string {
	for _, name := range names {
		if name == "" || strings.ContainsRune(name, filepath.Separator) {
			continue
		}
		for _, dir := range dirs {
			p := filepath.Join(dir, name)
			if exists(p) {
				return p
			}
		}
	}
	return ""
}

// FileExists reports whether path names a regular file.
func FileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// bundledFont writes the embedded Go Regular face under dir once per process.
type bundledFont struct {
	once sync.Once
	path string
	err  error
}

func (b *bundledFont) get(dir string) (string, error) {
	b.once.Do(func() {
		p := filepath.Join(dir, "fonts", "GoRegular.ttf")
		if FileExists(p) {
			b.path = p
			return
		}
		if b.err = os.MkdirAll(filepath.Dir(p), 0o755); b.err != nil {
			return
		}
		tmp := p + ".tmp"
		if b.err = os.WriteFile(tmp, goregular.TTF, 0o644); b.err != nil {
			return
		}
		if b.err = os.Rename(tmp, p); b.err != nil {
			return
		}
		b.path = p
	})
	return b.path, b.err
}
