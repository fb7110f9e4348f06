// Package fingerprint computes the content digest that decides whether the
// dependencies of a project changed since the last install.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/conneroisu/pybootstrap/internal/errors"
	"github.com/conneroisu/pybootstrap/internal/resolver"
)

// Separator is written before every file entry.
const Separator = "\n--file--\n"

// Empty is the value persisted when nothing is watched.
const Empty = ""

// EmptyDigest is the SHA-256 of no input, returned by Files for an empty list.
const EmptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Files hashes the given files in order. Each entry contributes the
// separator, the slash-separated path relative to root and the raw file
// bytes. Modification times and other metadata are never included.
func Files(root string, files []string) (string, error) {
	h := sha256.New()

	for _, file := range files {
		rel, err := filepath.Rel(root, file)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeInternal, errors.ErrCodeFingerprint, "file is outside the project root").
				WithPath(file)
		}

		io.WriteString(h, Separator)
		io.WriteString(h, filepath.ToSlash(rel))

		if err := copyFile(h, file); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.FileOperationError("read", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return errors.FileOperationError("read", path, err)
	}
	return nil
}

// WatchSet fingerprints a resolved WatchSet. An empty set yields Empty so the
// persisted state records that nothing was watched.
func WatchSet(ws resolver.WatchSet) (string, error) {
	if ws.Empty() {
		return Empty, nil
	}
	return Files(ws.Root(), ws.Abs())
}
