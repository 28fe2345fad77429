// Package doctree walks plain-text document directories (notes, docs,
// plans) and reports files touched inside an analysis window.
package doctree

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultPatterns is used when a tree is configured without patterns.
var DefaultPatterns = []string{"*.md"}

// Tree is a set of root directories filtered by glob patterns.
type Tree struct {
	Dirs     []string
	Patterns []string

	// birthTime is swapped in tests.
	birthTime func(path string, info fs.FileInfo) (time.Time, bool)
}

// File is one matching document.
type File struct {
	Path      string
	ModTime   time.Time
	BirthTime time.Time // zero when the platform cannot report it
}

// New creates a Tree. Empty patterns fall back to DefaultPatterns.
func New(dirs, patterns []string) *Tree {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Tree{Dirs: dirs, Patterns: patterns, birthTime: birthTime}
}

// SetBirthTimeFunc replaces the platform birth-time lookup.
func (t *Tree) SetBirthTimeFunc(fn func(path string) (time.Time, bool)) {
	t.birthTime = func(path string, _ fs.FileInfo) (time.Time, bool) { return fn(path) }
}

// Empty reports whether the tree has no directories to scan.
func (t *Tree) Empty() bool {
	return t == nil || len(t.Dirs) == 0
}

// Files returns every matching file with a modification time at or after
// since (zero since means no floor), sorted by path. Missing directories
// and unreadable entries are skipped.
func (t *Tree) Files(since time.Time) []File {
	if t.Empty() {
		return nil
	}

	seen := make(map[string]bool)
	var files []File
	for _, root := range t.Dirs {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || seen[path] {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil || !t.matches(filepath.ToSlash(rel)) {
				return nil
			}
			fi, infoErr := d.Info()
			if infoErr != nil {
				return nil
			}
			if !since.IsZero() && fi.ModTime().Before(since) {
				return nil
			}
			seen[path] = true
			f := File{Path: path, ModTime: fi.ModTime()}
			if bt, ok := t.birthTime(path, fi); ok {
				f.BirthTime = bt
			}
			files = append(files, f)
			return nil
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// matches applies the patterns to a slash-separated path relative to the
// tree root. "**/" prefixes match at any depth; patterns without a slash
// match the base name; anything else matches the whole relative path.
func (t *Tree) matches(rel string) bool {
	base := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		base = rel[i+1:]
	}
	for _, pattern := range t.Patterns {
		pattern = filepath.ToSlash(pattern)
		var target string
		switch {
		case strings.HasPrefix(pattern, "**/"):
			pattern, target = strings.TrimPrefix(pattern, "**/"), base
			if strings.Contains(pattern, "/") {
				target = rel
			}
		case !strings.Contains(pattern, "/"):
			target = base
		default:
			target = rel
		}
		if ok, err := filepath.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}
