//go:build property
// +build property

package fingerprint

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestFingerprintProperties covers order independence after sorting,
// idempotence and sensitivity to single-byte edits.
func TestFingerprintProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("sorted discovery order yields identical fingerprints", prop.ForAll(
		func(contents []string, seed int64) bool {
			root := t.TempDir()
			files := make([]string, 0, len(contents))
			for i, c := range contents {
				p := filepath.Join(root, fmt.Sprintf("f%03d.txt", i))
				if err := os.WriteFile(p, []byte(c), 0o644); err != nil {
					return false
				}
				files = append(files, p)
			}

			shuffled := append([]string(nil), files...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			sort.Strings(shuffled)

			a, err := Files(root, files)
			if err != nil {
				return false
			}
			b, err := Files(root, shuffled)
			if err != nil {
				return false
			}
			return a == b
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Int64(),
	))

	properties.Property("repeated runs are idempotent", prop.ForAll(
		func(content string) bool {
			root := t.TempDir()
			p := filepath.Join(root, "requirements.txt")
			if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
				return false
			}
			a, err1 := Files(root, []string{p})
			b, err2 := Files(root, []string{p})
			return err1 == nil && err2 == nil && a == b
		},
		gen.AnyString(),
	))

	properties.Property("any single byte change alters the fingerprint", prop.ForAll(
		func(content []byte, index int, delta byte) bool {
			if len(content) == 0 || delta == 0 {
				return true
			}
			root := t.TempDir()
			p := filepath.Join(root, "pyproject.toml")
			if err := os.WriteFile(p, content, 0o644); err != nil {
				return false
			}
			before, err := Files(root, []string{p})
			if err != nil {
				return false
			}

			changed := append([]byte(nil), content...)
			i := index % len(changed)
			changed[i] += delta
			if err := os.WriteFile(p, changed, 0o644); err != nil {
				return false
			}
			after, err := Files(root, []string{p})
			if err != nil {
				return false
			}
			return before != after
		},
		gen.SliceOf(gen.UInt8()),
		gen.IntRange(0, 1<<16),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
