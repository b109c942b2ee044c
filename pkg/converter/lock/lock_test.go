package lock_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stackvity/corpus-converter/pkg/converter/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.lock")

	l, err := lock.Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	// flock locks are per open file description, so a second open in the same process conflicts.
	_, err = lock.Acquire(path)
	require.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, l.Release())
	require.NoError(t, l.Release(), "Release is idempotent")

	l2, err := lock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquire_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "corpus.lock")
	l, err := lock.Acquire(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })
	assert.FileExists(t, path)
}

func TestRelease_NilLock(t *testing.T) {
	var l *lock.Lock
	assert.NoError(t, l.Release())
}
