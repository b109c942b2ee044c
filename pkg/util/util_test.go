// --- START OF NEW FILE pkg/util/util_test.go ---
package util_test // Test package name convention

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackvity/corpus-converter/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesIgnore(t *testing.T) {
	testCases := []struct {
		name          string
		patterns      []string
		fileName      string
		expectedMatch bool
	}{
		{name: "Exact name", patterns: []string{"README.txt"}, fileName: "README.txt", expectedMatch: true},
		{name: "Extension glob", patterns: []string{"*.log"}, fileName: "run.log", expectedMatch: true},
		{name: "Glob does not match other extension", patterns: []string{"*.log"}, fileName: "records.jsonl", expectedMatch: false},
		{name: "Double star prefix stripped", patterns: []string{"**/*.bak"}, fileName: "a.bak", expectedMatch: true},
		{name: "Rooted pattern stripped", patterns: []string{"/manifest.xml"}, fileName: "manifest.xml", expectedMatch: true},
		{name: "Full path uses base name", patterns: []string{"*.md5"}, fileName: "/drops/2024/file.md5", expectedMatch: true},
		{name: "Directory pattern never matches files", patterns: []string{"tmp/"}, fileName: "tmp", expectedMatch: false},
		{name: "Comment ignored", patterns: []string{"# *.jsonl"}, fileName: "a.jsonl", expectedMatch: false},
		{name: "Malformed pattern ignored", patterns: []string{"[", "*.tsv"}, fileName: "a.tsv", expectedMatch: true},
		{name: "No patterns", patterns: nil, fileName: "a.tsv", expectedMatch: false},
		{name: "Empty name", patterns: []string{"*"}, fileName: "", expectedMatch: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedMatch, util.MatchesIgnore(tc.patterns, tc.fileName))
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Run("Writes new file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "out.json")
		err := util.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
			_, err := io.WriteString(w, "hello")
			return err
		})
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("Replaces existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.json")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
		require.NoError(t, util.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
			_, err := io.WriteString(w, "new")
			return err
		}))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("Writer failure leaves no trace", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "out.json")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
		writeErr := errors.New("boom")
		err := util.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
			_, _ = io.WriteString(w, "partial")
			return writeErr
		})
		require.ErrorIs(t, err, writeErr)

		data, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.Equal(t, "old", string(data), "Original content must survive a failed write")
		entries, readErr := os.ReadDir(dir)
		require.NoError(t, readErr)
		assert.Len(t, entries, 1, "Temporary file must be removed")
	})
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	exists, err := util.FileExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)

	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	exists, err = util.FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, util.SyncDir(dir))
}

// --- END OF NEW FILE pkg/util/util_test.go ---
