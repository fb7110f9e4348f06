package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pybootstrap/internal/resolver"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestEmptyDigest(t *testing.T) {
	sum := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(sum[:]), EmptyDigest)

	first, err := Files(t.TempDir(), nil)
	require.NoError(t, err)
	second, err := Files(t.TempDir(), []string{})
	require.NoError(t, err)

	assert.Equal(t, EmptyDigest, first)
	assert.Equal(t, first, second)
}

func TestFilesFormat(t *testing.T) {
	root := t.TempDir()
	a := write(t, root, "requirements.txt", "flask==3.0\n")
	b := write(t, root, "sub/setup.cfg", "[metadata]\n")

	got, err := Files(root, []string{a, b})
	require.NoError(t, err)

	h := sha256.New()
	h.Write([]byte("\n--file--\nrequirements.txt"))
	h.Write([]byte("flask==3.0\n"))
	h.Write([]byte("\n--file--\nsub/setup.cfg"))
	h.Write([]byte("[metadata]\n"))

	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), got)
	assert.Len(t, got, 64)
}

func TestFilesIdempotent(t *testing.T) {
	root := t.TempDir()
	a := write(t, root, "requirements.txt", "requests\n")

	first, err := Files(root, []string{a})
	require.NoError(t, err)

	// Touching the file without changing content keeps the digest.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(a, later, later))

	second, err := Files(root, []string{a})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFilesDetectsSingleByteChange(t *testing.T) {
	root := t.TempDir()
	a := write(t, root, "requirements.txt", "requests==2.31.0\n")

	before, err := Files(root, []string{a})
	require.NoError(t, err)

	write(t, root, "requirements.txt", "requests==2.31.1\n")
	after, err := Files(root, []string{a})
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestFilesPathIsPartOfDigest(t *testing.T) {
	root := t.TempDir()
	a := write(t, root, "a.txt", "same")
	b := write(t, root, "b.txt", "same")

	da, err := Files(root, []string{a})
	require.NoError(t, err)
	db, err := Files(root, []string{b})
	require.NoError(t, err)

	assert.NotEqual(t, da, db)
}

func TestFilesMissingFile(t *testing.T) {
	root := t.TempDir()
	_, err := Files(root, []string{filepath.Join(root, "gone.txt")})
	assert.Error(t, err)
}

func TestWatchSet(t *testing.T) {
	root := t.TempDir()

	empty, err := WatchSet(resolver.NewWatchSet(root, nil))
	require.NoError(t, err)
	assert.Equal(t, Empty, empty)

	a := write(t, root, "requirements.txt", "x")
	digest, err := WatchSet(resolver.NewWatchSet(root, []string{a}))
	require.NoError(t, err)

	direct, err := Files(root, []string{a})
	require.NoError(t, err)
	assert.Equal(t, direct, digest)
}

func TestResolvedOrderIsDiscoveryIndependent(t *testing.T) {
	root := t.TempDir()
	write(t, root, "setup.cfg", "cfg")
	write(t, root, "pyproject.toml", "toml")
	write(t, root, "requirements.txt", "req")

	forward, err := resolver.Resolve(root, []string{"setup.cfg", "pyproject.toml", "requirements.txt"})
	require.NoError(t, err)
	backward, err := resolver.Resolve(root, []string{"requirements.txt", "pyproject.toml", "setup.cfg"})
	require.NoError(t, err)

	d1, err := Files(root, forward)
	require.NoError(t, err)
	d2, err := Files(root, backward)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}
