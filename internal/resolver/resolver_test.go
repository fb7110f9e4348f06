package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}
}

func relAll(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"requirements.txt",
		"pyproject.toml",
		"setup.cfg",
		"sub/requirements.txt",
		"requirements/base.txt",
		"requirements/dev.txt",
		"deep/requirements/extra.txt",
		"deep/nested/setup.cfg",
	)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "poetry.lock"), 0o755))

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{
			name:     "plain pattern matches only at root",
			patterns: []string{"requirements.txt"},
			expected: []string{"requirements.txt"},
		},
		{
			name:     "non-matching pattern contributes nothing",
			patterns: []string{"Pipfile.lock", "pyproject.toml"},
			expected: []string{"pyproject.toml"},
		},
		{
			name:     "directories are never matched",
			patterns: []string{"poetry.lock"},
			expected: []string{},
		},
		{
			name:     "slash pattern matches at any depth",
			patterns: []string{"requirements/*.txt"},
			expected: []string{"deep/requirements/extra.txt", "requirements/base.txt", "requirements/dev.txt"},
		},
		{
			name:     "double star pattern",
			patterns: []string{"**/setup.cfg"},
			expected: []string{"deep/nested/setup.cfg", "setup.cfg"},
		},
		{
			name:     "leading slash anchors at root",
			patterns: []string{"/requirements/*.txt"},
			expected: []string{"requirements/base.txt", "requirements/dev.txt"},
		},
		{
			name:     "duplicates collapse and output is sorted",
			patterns: []string{"setup.cfg", "requirements.txt", "./setup.cfg", "requirements.txt"},
			expected: []string{"requirements.txt", "setup.cfg"},
		},
		{
			name:     "blank patterns are skipped",
			patterns: []string{"", "  "},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths, err := Resolve(root, tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, relAll(t, root, paths))
			for _, p := range paths {
				assert.True(t, filepath.IsAbs(p))
			}
		})
	}
}

func TestResolveInvalidPattern(t *testing.T) {
	_, err := Resolve(t.TempDir(), []string{"requirements[.txt"})
	assert.Error(t, err)
}

func TestResolveSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "setup.cfg", ".venv/lib/pkg/setup.cfg", "src/setup.cfg")

	paths, err := resolve(root, []string{"**/setup.cfg"}, []string{filepath.Join(root, ".venv")})
	require.NoError(t, err)
	assert.Equal(t, []string{"setup.cfg", "src/setup.cfg"}, relAll(t, root, paths))
}

func TestLoadIgnoreFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		patterns, err := LoadIgnoreFile(filepath.Join(dir, "absent"))
		require.NoError(t, err)
		assert.Empty(t, patterns)
	})

	t.Run("comments and blanks skipped", func(t *testing.T) {
		path := filepath.Join(dir, ".bootstrapignore")
		content := "# generated files\n\n  sub/*.txt  \n#b.txt\nb.txt\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		patterns, err := LoadIgnoreFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"sub/*.txt", "b.txt"}, patterns)
	})
}

func TestMatch(t *testing.T) {
	patterns := []string{"requirements.txt", "requirements/*.txt", "/pyproject.toml"}

	assert.True(t, Match("requirements.txt", patterns))
	assert.False(t, Match("sub/requirements.txt", patterns), "plain patterns match only at the root")
	assert.True(t, Match("requirements/base.txt", patterns))
	assert.True(t, Match("svc/requirements/base.txt", patterns))
	assert.True(t, Match("pyproject.toml", patterns))
	assert.False(t, Match("svc/pyproject.toml", patterns))
	assert.False(t, Match("setup.cfg", patterns))
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		rel      string
		patterns []string
		expected bool
	}{
		{"b.txt", []string{"b.txt"}, true},
		{"sub/b.txt", []string{"b.txt"}, true},
		{"x/sub/a.txt", []string{"sub/*.txt"}, true},
		{"sub/a.txt", []string{"sub/*.txt"}, true},
		{"sub/deeper/a.txt", []string{"sub/*.txt"}, false},
		{"sub/deeper/a.txt", []string{"sub/**/*.txt"}, true},
		{"ab.txt", []string{"b.txt"}, false},
		{"requirements-dev.txt", []string{"dev"}, false},
		{"sub/b.txt", []string{"/b.txt"}, false},
		{"b.txt", []string{"/b.txt"}, true},
		{"a.txt", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.expected, Ignored(tt.rel, tt.patterns), "patterns %v", tt.patterns)
		})
	}
}

func TestFilterIgnored(t *testing.T) {
	root := t.TempDir()
	paths := []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "b.txt"),
		filepath.Join(root, "sub", "b.txt"),
		filepath.Join(root, "sub", "c.txt"),
	}

	kept := FilterIgnored(root, paths, []string{"b.txt"})
	assert.Equal(t, []string{paths[0], paths[3]}, kept)

	assert.Equal(t, paths, FilterIgnored(root, paths, nil))
}

func TestBuild(t *testing.T) {
	t.Run("requirements appended even when ignored", func(t *testing.T) {
		root := t.TempDir()
		writeFiles(t, root, "requirements.txt", "pyproject.toml", "setup.cfg")
		require.NoError(t, os.WriteFile(filepath.Join(root, ".bootstrapignore"), []byte("requirements.txt\n"), 0o644))

		ws, err := Build(root, Options{
			Patterns:     []string{"requirements.txt", "pyproject.toml", "setup.cfg"},
			IgnoreFile:   ".bootstrapignore",
			Requirements: "requirements.txt",
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"pyproject.toml", "setup.cfg", "requirements.txt"}, ws.Rel())
		assert.Equal(t, 3, ws.Len())
		assert.False(t, ws.Empty())
	})

	t.Run("requirements implied without pattern", func(t *testing.T) {
		root := t.TempDir()
		writeFiles(t, root, "requirements.txt", "setup.cfg")

		ws, err := Build(root, Options{Patterns: []string{"setup.cfg"}, Requirements: "requirements.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"setup.cfg", "requirements.txt"}, ws.Rel())
	})

	t.Run("no duplicate requirements", func(t *testing.T) {
		root := t.TempDir()
		writeFiles(t, root, "requirements.txt")

		ws, err := Build(root, Options{Patterns: []string{"requirements.txt"}, Requirements: "requirements.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"requirements.txt"}, ws.Rel())
		assert.Equal(t, []string{filepath.Join(ws.Root(), "requirements.txt")}, ws.Abs())
	})

	t.Run("ignore pattern removes matched file", func(t *testing.T) {
		root := t.TempDir()
		writeFiles(t, root, "a.txt", "b.txt")
		require.NoError(t, os.WriteFile(filepath.Join(root, ".bootstrapignore"), []byte("b.txt\n"), 0o644))

		ws, err := Build(root, Options{Patterns: []string{"*.txt"}, IgnoreFile: ".bootstrapignore"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, ws.Rel())
	})

	t.Run("empty project", func(t *testing.T) {
		ws, err := Build(t.TempDir(), Options{Patterns: []string{"requirements.txt"}, Requirements: "requirements.txt"})
		require.NoError(t, err)
		assert.True(t, ws.Empty())
		assert.Empty(t, ws.Rel())
	})
}
