package filecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.html")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpenMapsContent(t *testing.T) {
	path := writeTempFile(t, "<html>hi</html>")
	c := New()

	m, err := c.Open(path)
	require.NoError(t, err)
	defer m.Release()

	assert.Equal(t, "<html>hi</html>", string(m.Bytes()))
	assert.EqualValues(t, len("<html>hi</html>"), m.Size())
}

func TestConcurrentOpensShareOneMapping(t *testing.T) {
	path := writeTempFile(t, "shared content")
	c := New()

	m1, err := c.Open(path)
	require.NoError(t, err)
	m2, err := c.Open(path)
	require.NoError(t, err)

	assert.Same(t, m1, m2, "two opens of the same path should share one mapping")

	m1.Release()
	m2.Release()
}

func TestReleaseLastRefEvicts(t *testing.T) {
	path := writeTempFile(t, "evict me")
	c := New()

	m1, err := c.Open(path)
	require.NoError(t, err)
	m1.Release()

	sh := c.shardFor(path)
	sh.mu.RLock()
	_, stillCached := sh.entries[path]
	sh.mu.RUnlock()
	assert.False(t, stillCached)
}

func TestOpenMissingFileErrors(t *testing.T) {
	c := New()
	_, err := c.Open(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
