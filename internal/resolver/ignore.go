package resolver

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/pybootstrap/internal/errors"
)

// LoadIgnoreFile reads newline-separated ignore patterns. Blank lines and
// lines starting with "#" are skipped. A missing file yields no patterns.
func LoadIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileOperationError("read", path, err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.FileOperationError("read", path, err)
	}

	return patterns, nil
}

// FilterIgnored drops every path whose root-relative form matches one of the
// ignore patterns. Order of the remaining paths is preserved.
func FilterIgnored(root string, paths []string, patterns []string) []string {
	if len(patterns) == 0 {
		return paths
	}

	keep := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, ok := relSlash(root, p)
		if ok && Ignored(rel, patterns) {
			continue
		}
		keep = append(keep, p)
	}
	return keep
}

// Ignored reports whether the slash-separated relative path rel matches any
// pattern. Relative patterns are anchored at the right: "b.txt" matches
// "b.txt" and "sub/b.txt", "sub/*.txt" matches "x/sub/a.txt". A pattern
// starting with "/" must match the whole path. Matching is never by
// substring.
func Ignored(rel string, patterns []string) bool {
	for _, raw := range patterns {
		pattern := strings.TrimSpace(filepath.ToSlash(raw))
		if pattern == "" {
			continue
		}
		if matchAnchoredRight(pattern, rel) {
			return true
		}
	}
	return false
}

func matchAnchoredRight(pattern, rel string) bool {
	if strings.HasPrefix(pattern, "/") {
		matched, _ := doublestar.Match(strings.TrimLeft(pattern, "/"), rel)
		return matched
	}

	segments := strings.Split(rel, "/")
	for i := range segments {
		suffix := strings.Join(segments[i:], "/")
		if matched, _ := doublestar.Match(pattern, suffix); matched {
			return true
		}
	}
	return false
}
