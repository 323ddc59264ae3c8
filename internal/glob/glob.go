// Package glob resolves and matches the source and watch globs of the
// configuration. Patterns support '**' for recursive matching and a leading
// '!' to exclude paths matched by earlier patterns.
package glob

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is an ordered list of include and exclude patterns anchored at a root
// directory. All patterns are stored as absolute, slash-separated paths.
type Set struct {
	root     string
	patterns []string
	include  []string
	exclude  []string
}

// NewSet anchors patterns at root. Relative patterns (with or without a
// leading "./") are resolved against root.
func NewSet(root string, patterns ...string) (*Set, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving glob root %s: %w", root, err)
	}

	s := &Set{root: absRoot, patterns: patterns}
	for _, p := range patterns {
		negate := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("empty glob pattern")
		}

		anchored := anchor(absRoot, p)
		if !doublestar.ValidatePattern(anchored) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}

		if negate {
			s.exclude = append(s.exclude, anchored)
		} else {
			s.include = append(s.include, anchored)
		}
	}

	return s, nil
}

// MustSet is like NewSet but panics on an invalid pattern.
func MustSet(root string, patterns ...string) *Set {
	s, err := NewSet(root, patterns...)
	if err != nil {
		panic(err)
	}
	return s
}

func anchor(root, pattern string) string {
	p := filepath.ToSlash(pattern)
	if !filepath.IsAbs(pattern) && !strings.HasPrefix(p, "/") {
		p = filepath.ToSlash(root) + "/" + strings.TrimPrefix(p, "./")
	}
	return cleanSlash(p)
}

// cleanSlash cleans p without touching glob meta characters.
func cleanSlash(p string) string {
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
}

// Root returns the absolute directory the set is anchored at.
func (s *Set) Root() string {
	return s.root
}

// Patterns returns the patterns the set was built from.
func (s *Set) Patterns() []string {
	return s.patterns
}

// Match reports whether path is matched by an include pattern and not by
// an exclude pattern. Relative paths are resolved against the set root.
func (s *Set) Match(path string) bool {
	p := s.absolute(path)

	matched := false
	for _, pattern := range s.include {
		if ok, _ := doublestar.Match(pattern, p); ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	return !s.excluded(p)
}

func (s *Set) excluded(p string) bool {
	for _, pattern := range s.exclude {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		// "!dir/**" also excludes the directory itself
		if ok, _ := doublestar.Match(pattern, p+"/"); ok {
			return true
		}
	}
	return false
}

func (s *Set) absolute(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	return cleanSlash(path)
}

// Files resolves the set to a sorted, de-duplicated list of absolute file
// paths. A literal pattern (one without meta characters) that does not exist
// is reported as an error wrapping os.ErrNotExist; a glob that matches
// nothing is not an error.
func (s *Set) Files() ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	for _, pattern := range s.include {
		if !HasMeta(pattern) {
			info, err := os.Stat(filepath.FromSlash(pattern))
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", pattern, err)
			}
			if info.IsDir() {
				continue
			}
			add(seen, &files, filepath.FromSlash(pattern))
			continue
		}

		matches, err := doublestar.FilepathGlob(
			filepath.FromSlash(pattern),
			doublestar.WithFilesOnly(),
			doublestar.WithFailOnIOErrors(),
		)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", pattern, err)
		}
		for _, m := range matches {
			add(seen, &files, m)
		}
	}

	result := files[:0]
	for _, f := range files {
		if !s.excluded(filepath.ToSlash(f)) {
			result = append(result, f)
		}
	}

	sort.Strings(result)
	return result, nil
}

func add(seen map[string]struct{}, files *[]string, path string) {
	if _, ok := seen[path]; ok {
		return
	}
	seen[path] = struct{}{}
	*files = append(*files, path)
}

// Bases returns the static directory prefix of every include pattern, the
// directories a watcher has to observe to see all matching files.
func (s *Set) Bases() []string {
	seen := make(map[string]struct{})
	var bases []string
	for _, pattern := range s.include {
		b := filepath.FromSlash(Base(pattern))
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		bases = append(bases, b)
	}
	sort.Strings(bases)
	return bases
}

// BaseFor returns the glob parent of the first include pattern matching
// path, or the base of the first include pattern if none matches.
func (s *Set) BaseFor(path string) string {
	if len(s.include) == 0 {
		return s.root
	}
	p := s.absolute(path)
	for _, pattern := range s.include {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return filepath.FromSlash(Base(pattern))
		}
	}
	return filepath.FromSlash(Base(s.include[0]))
}

// Base returns the glob parent of pattern: the longest leading directory
// that contains no meta characters. For a literal file path this is the
// file's directory.
func Base(pattern string) string {
	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	if base == "" {
		return "."
	}
	return base
}

// HasMeta reports whether pattern contains glob meta characters.
func HasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
