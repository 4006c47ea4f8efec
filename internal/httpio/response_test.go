package httpio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/tinywebd/internal/buffer"
	"github.com/ehrlich-b/tinywebd/internal/filecache"
)

func writeRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestMakeResponseServesExistingFile(t *testing.T) {
	dir := writeRoot(t, map[string]string{"index.html": "<html>hi</html>"})
	r := NewResponse(filecache.New())
	r.Init(dir, "/index.html", true, -1)

	buf := buffer.New(256)
	r.MakeResponse(buf)

	out := string(buf.Peek())
	assert.Contains(t, out, "HTTP/1.1 200 OK\r\n")
	assert.Contains(t, out, "Connection: keep-alive\r\n")
	assert.Contains(t, out, "Content-type: text/html\r\n")
	assert.Contains(t, out, "Content-length: 15\r\n\r\n")
	assert.EqualValues(t, 15, r.FileSize())
	assert.Equal(t, "<html>hi</html>", string(r.FileBody()))
}

func TestMakeResponseMissingFileIs404(t *testing.T) {
	dir := writeRoot(t, map[string]string{"404.html": "not found page"})
	r := NewResponse(filecache.New())
	r.Init(dir, "/missing.html", false, -1)

	buf := buffer.New(256)
	r.MakeResponse(buf)

	out := string(buf.Peek())
	assert.Contains(t, out, "HTTP/1.1 404 Not Found\r\n")
	assert.Contains(t, out, "Connection: close\r\n")
	assert.Equal(t, "not found page", string(r.FileBody()))
}

func TestMakeResponseUnreadableFileIs403(t *testing.T) {
	dir := writeRoot(t, map[string]string{
		"403.html": "forbidden page",
		"secret":   "top secret",
	})
	require.NoError(t, os.Chmod(filepath.Join(dir, "secret"), 0o200))

	r := NewResponse(filecache.New())
	r.Init(dir, "/secret", true, -1)

	buf := buffer.New(256)
	r.MakeResponse(buf)

	assert.Contains(t, string(buf.Peek()), "HTTP/1.1 403 Forbidden\r\n")
}

func TestMimeTypeFallsBackToPlainText(t *testing.T) {
	dir := writeRoot(t, map[string]string{"blob.bin": "raw bytes"})
	r := NewResponse(filecache.New())
	r.Init(dir, "/blob.bin", true, -1)

	buf := buffer.New(256)
	r.MakeResponse(buf)

	assert.Contains(t, string(buf.Peek()), "Content-type: text/plain\r\n")
}

func TestMimeTypePreservesTrailingSpaceQuirk(t *testing.T) {
	dir := writeRoot(t, map[string]string{"app.js": "console.log(1)"})
	r := NewResponse(filecache.New())
	r.Init(dir, "/app.js", true, -1)

	buf := buffer.New(256)
	r.MakeResponse(buf)

	assert.Contains(t, string(buf.Peek()), "Content-type: text/javascript \r\n")
}
