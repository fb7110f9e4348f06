// Package resolver expands watch patterns into the set of manifest files
// whose content decides whether the managed environment is stale.
//
// A pattern without a slash and without "**" matches only at the project
// root. Any other pattern matches at every depth, as if prefixed with "**/".
// A leading "/" anchors a pattern to the root instead.
package resolver

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/pybootstrap/internal/errors"
)

// Resolve expands patterns against root and returns the deduplicated,
// lexicographically sorted absolute paths of existing regular files.
// Patterns that match nothing contribute nothing.
func Resolve(root string, patterns []string) ([]string, error) {
	return resolve(root, patterns, nil)
}

func resolve(root string, patterns []string, skipDirs []string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInvalidPath, "cannot resolve project root").WithPath(root)
	}

	skip := make(map[string]bool, len(skipDirs))
	for _, dir := range skipDirs {
		if rel, ok := relSlash(root, dir); ok {
			skip[rel] = true
		}
	}

	found := make(map[string]bool)
	var recursive []string

	for _, raw := range patterns {
		pattern := normalizePattern(raw)
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.NewValidationError(errors.ErrCodeResolve, "invalid watch pattern").
				WithContext("pattern", raw)
		}

		if isRecursive(pattern) {
			recursive = append(recursive, pattern)
			continue
		}

		hits, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeResolve, "cannot expand watch pattern").
				WithContext("pattern", raw)
		}
		for _, hit := range hits {
			if skipped(hit, skip) {
				continue
			}
			abs := filepath.Join(root, filepath.FromSlash(hit))
			if isRegularFile(abs) {
				found[abs] = true
			}
		}
	}

	if len(recursive) > 0 {
		if err := walkMatches(root, recursive, skip, found); err != nil {
			return nil, err
		}
	}

	return sortedSet(found), nil
}

// walkMatches visits the tree once for all recursive patterns.
func walkMatches(root string, patterns []string, skip map[string]bool, found map[string]bool) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are treated as empty.
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			return nil
		}

		rel, ok := relSlash(root, p)
		if !ok || rel == "." {
			return nil
		}
		if d.IsDir() {
			if skip[rel] {
				return fs.SkipDir
			}
			return nil
		}

		for _, pattern := range patterns {
			if matched, _ := doublestar.Match(pattern, rel); matched {
				if isRegularFile(p) {
					found[p] = true
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeResolve, "cannot walk project tree").WithPath(root)
	}
	return nil
}

// Match reports whether the slash-separated relative path rel would be
// selected by any of patterns, using the same anchoring rules as Resolve.
func Match(rel string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, raw := range patterns {
		pattern := normalizePattern(raw)
		if pattern == "" {
			continue
		}
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

func isRecursive(pattern string) bool {
	return strings.Contains(pattern, "**") || strings.Contains(filepath.ToSlash(pattern), "/")
}

// normalizePattern converts a raw watch pattern into the slash form matched
// against root-relative paths.
func normalizePattern(raw string) string {
	pattern := strings.TrimSpace(filepath.ToSlash(raw))
	for strings.HasPrefix(pattern, "./") {
		pattern = pattern[2:]
	}
	if pattern == "" {
		return ""
	}
	if !isRecursive(pattern) {
		return pattern
	}
	if strings.HasPrefix(pattern, "/") {
		return strings.TrimLeft(pattern, "/")
	}
	if strings.HasPrefix(pattern, "**/") || pattern == "**" {
		return pattern
	}
	return "**/" + pattern
}

func skipped(rel string, skip map[string]bool) bool {
	for dir := range skip {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}

func relSlash(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return path.Clean(rel), true
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
