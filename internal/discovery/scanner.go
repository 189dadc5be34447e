package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Scanner finds source files in a workspace and classifies test files
type Scanner struct {
	skipDirs     map[string]bool
	ignoreGlobs  []string
	extensions   map[string]bool
	testPatterns []string
	venvMarker   string
}

// Options configures a Scanner
type Options struct {
	SkipDirs     []string // directory names never descended into
	IgnoreGlobs  []string // doublestar globs over root-relative paths
	Extensions   []string // e.g. ".py"
	TestPatterns []string // basename globs, or path globs when they contain "/"
	VenvMarker   string   // file that marks a directory as a virtualenv
}

// NewScanner creates a new Scanner
func NewScanner(opts Options) *Scanner {
	skipMap := make(map[string]bool)
	for _, dir := range opts.SkipDirs {
		skipMap[dir] = true
	}
	extMap := make(map[string]bool)
	for _, ext := range opts.Extensions {
		extMap[ext] = true
	}
	return &Scanner{
		skipDirs:     skipMap,
		ignoreGlobs:  opts.IgnoreGlobs,
		extensions:   extMap,
		testPatterns: opts.TestPatterns,
		venvMarker:   opts.VenvMarker,
	}
}

// Scan returns the sorted root-relative, slash separated paths of every
// source file under root.
func (s *Scanner) Scan(root string) ([]string, error) {
	var files []string

	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", root)
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if s.skipDir(p, d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.extensions[path.Ext(rel)] || s.ignored(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func (s *Scanner) skipDir(fullPath, name, rel string) bool {
	// hidden directories
	if strings.HasPrefix(name, ".") {
		return true
	}
	if s.skipDirs[name] || s.ignored(rel) {
		return true
	}
	if s.venvMarker != "" {
		if _, err := os.Stat(filepath.Join(fullPath, s.venvMarker)); err == nil {
			return true
		}
	}
	return false
}

func (s *Scanner) ignored(rel string) bool {
	for _, glob := range s.ignoreGlobs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

// IsTestFile reports whether a root-relative path matches a test file pattern
func (s *Scanner) IsTestFile(rel string) bool {
	base := path.Base(rel)
	for _, pattern := range s.testPatterns {
		target := base
		if strings.Contains(pattern, "/") {
			target = rel
		}
		if ok, _ := doublestar.Match(pattern, target); ok {
			return true
		}
	}
	return false
}
