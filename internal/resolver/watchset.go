package resolver

import (
	"path/filepath"
	"slices"

	"github.com/conneroisu/pybootstrap/internal/errors"
)

// Options controls how a WatchSet is assembled.
type Options struct {
	// Patterns are the watch patterns; callers substitute the defaults.
	Patterns []string
	// IgnoreFile is the path of the ignore file, relative to root or absolute.
	IgnoreFile string
	// Requirements names the file that is always watched when it exists,
	// even if an ignore pattern matches it.
	Requirements string
	// SkipDirs are directories never descended into, such as the managed
	// environment itself.
	SkipDirs []string
}

// WatchSet is the ordered list of files fingerprinted for one invocation.
type WatchSet struct {
	root  string
	files []string
}

// Build resolves opts against root into a WatchSet: matching files, minus
// ignored ones, plus the requirements file when present and not yet listed.
func Build(root string, opts Options) (WatchSet, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return WatchSet{}, errors.WrapIO(err, errors.ErrCodeInvalidPath, "cannot resolve project root").WithPath(root)
	}

	files, err := resolve(root, opts.Patterns, opts.SkipDirs)
	if err != nil {
		return WatchSet{}, err
	}

	if opts.IgnoreFile != "" {
		patterns, err := LoadIgnoreFile(IgnorePath(root, opts.IgnoreFile))
		if err != nil {
			return WatchSet{}, err
		}
		files = FilterIgnored(root, files, patterns)
	}

	if opts.Requirements != "" {
		req := filepath.Join(root, filepath.FromSlash(opts.Requirements))
		if isRegularFile(req) && !slices.Contains(files, req) {
			files = append(files, req)
		}
	}

	return WatchSet{root: root, files: files}, nil
}

// IgnorePath resolves an ignore file name against root.
func IgnorePath(root, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(root, filepath.FromSlash(file))
}

// NewWatchSet wraps an already resolved list of absolute paths.
func NewWatchSet(root string, files []string) WatchSet {
	return WatchSet{root: root, files: append([]string(nil), files...)}
}

// Root returns the absolute project root.
func (w WatchSet) Root() string { return w.root }

// Abs returns the absolute file paths in order.
func (w WatchSet) Abs() []string {
	return append([]string(nil), w.files...)
}

// Rel returns the slash-separated root-relative paths in order.
func (w WatchSet) Rel() []string {
	out := make([]string, 0, len(w.files))
	for _, p := range w.files {
		rel, ok := relSlash(w.root, p)
		if !ok {
			rel = filepath.ToSlash(p)
		}
		out = append(out, rel)
	}
	return out
}

// Len returns the number of watched files.
func (w WatchSet) Len() int { return len(w.files) }

// Empty reports whether nothing is watched.
func (w WatchSet) Empty() bool { return len(w.files) == 0 }
