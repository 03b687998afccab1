// Package scanner discovers endpoint files under the configured source
// directory.
//
// Files are kept when their name follows the endpoint convention
// (<name>.<verb>.go) and their path, relative to the source directory, does
// not match any ignore glob. Ignore globs use doublestar syntax, so
// "internal/**" and "**/*_mock.*.go" both work.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/apex/internal/endpoint"
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	"vendor":       true,
	".git":         true,
	"testdata":     true,
	"node_modules": true,
}

// Scanner walks one source directory.
type Scanner struct {
	source string
	ignore []string
}

// New creates a Scanner for sourceDir, resolved against root when relative.
func New(root, sourceDir string, ignore []string) (*Scanner, error) {
	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	source := sourceDir
	if !filepath.IsAbs(source) {
		source = filepath.Join(root, source)
	}
	source, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(source); err == nil {
		source = resolved
	}

	return &Scanner{source: source, ignore: ignore}, nil
}

// Source returns the absolute source directory.
func (s *Scanner) Source() string {
	return s.source
}

// Rel returns path relative to the source directory, slash separated. The
// second result is false when path lies outside it.
func (s *Scanner) Rel(path string) (string, bool) {
	rel, err := filepath.Rel(s.source, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// Ignored reports whether rel, a slash path relative to the source
// directory, matches an ignore pattern.
func (s *Scanner) Ignored(rel string) bool {
	for _, pattern := range s.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Matches reports whether the absolute path is an endpoint this scanner
// would return.
func (s *Scanner) Matches(path string) bool {
	rel, ok := s.Rel(path)
	if !ok || rel == "." {
		return false
	}
	for _, seg := range strings.Split(rel, "/")[:strings.Count(rel, "/")] {
		if skipDirs[seg] {
			return false
		}
	}
	return endpoint.IsEndpoint(rel) && !s.Ignored(rel)
}

// Scan returns the absolute paths of all endpoint files, sorted. A missing
// source directory yields no files.
func (s *Scanner) Scan() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.source {
				return fs.SkipAll
			}
			return err
		}

		if d.IsDir() {
			if path != s.source && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, _ := s.Rel(path)
		if !endpoint.IsEndpoint(rel) || s.Ignored(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", s.source, err)
	}

	sort.Strings(files)
	return files, nil
}

// Scan is a convenience wrapper around New and Scanner.Scan.
func Scan(root, sourceDir string, ignore []string) ([]string, error) {
	s, err := New(root, sourceDir, ignore)
	if err != nil {
		return nil, err
	}
	return s.Scan()
}

// Exists reports whether the source directory exists.
func (s *Scanner) Exists() bool {
	info, err := os.Stat(s.source)
	return err == nil && info.IsDir()
}
