package httpio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/tinywebd/internal/filecache"
)

type stubVerifier struct {
	ok  bool
	err error
}

func (s stubVerifier) Verify(ctx context.Context, username, password string, isLogin bool) (bool, error) {
	return s.ok, s.err
}

// failVerifier fails the test if Verify is ever called; used to prove a
// request never reaches the verifier routing branch.
type failVerifier struct{ t *testing.T }

func (f failVerifier) Verify(ctx context.Context, username, password string, isLogin bool) (bool, error) {
	f.t.Fatal("verifier should not be invoked for this request")
	return false, nil
}

// readAll drains every byte currently available on a non-blocking fd.
func readAll(t *testing.T, fd int) string {
	t.Helper()
	var out []byte
	tmp := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, tmp)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return string(out)
			}
			t.Fatalf("read: %v", err)
		}
		if n == 0 {
			return string(out)
		}
		out = append(out, tmp[:n]...)
	}
}

func socketPair(t *testing.T) (client, server int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

func TestConnProcessServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>hi</html>"), 0o644))

	client, server := socketPair(t)
	defer unix.Close(client)

	c := NewConn(filecache.New())
	c.Init(server, "test-peer", false, dir)

	_, err := unix.Write(client, []byte("GET /index HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"))
	require.NoError(t, err)

	_, err = c.Read()
	require.NoError(t, err)

	keepAlive, err := c.Process(context.Background(), stubVerifier{ok: true})
	require.NoError(t, err)
	assert.True(t, keepAlive)

	done, err := c.Write()
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, c.Close())
}

func TestConnProcessLoginRoutesThroughVerifier(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome.html"), []byte("hi bob"), 0o644))

	client, server := socketPair(t)
	defer unix.Close(client)

	c := NewConn(filecache.New())
	c.Init(server, "test-peer", false, dir)

	body := "username=bob&password=hi"
	req := "POST /login HTTP/1.1\r\nConnection: close\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Content-Length: 24\r\n\r\n" + body
	_, err := unix.Write(client, []byte(req))
	require.NoError(t, err)

	_, err = c.Read()
	require.NoError(t, err)

	keepAlive, err := c.Process(context.Background(), stubVerifier{ok: true})
	require.NoError(t, err)
	assert.False(t, keepAlive)

	done, err := c.Write()
	require.NoError(t, err)
	assert.True(t, done)

	resp := readAll(t, client)
	assert.Contains(t, resp, "hi bob")
}

// TestConnProcessLoginPathWithoutFormContentTypeFallsThrough proves that a
// POST to a login/register path without the urlencoded Content-Type never
// reaches the verifier: the request is treated as a plain static request
// and, with no such file on disk, served as a 404.
func TestConnProcessLoginPathWithoutFormContentTypeFallsThrough(t *testing.T) {
	dir := t.TempDir()

	client, server := socketPair(t)
	defer unix.Close(client)

	c := NewConn(filecache.New())
	c.Init(server, "test-peer", false, dir)

	body := "username=bob&password=hi"
	req := "POST /login HTTP/1.1\r\nConnection: close\r\n" +
		"Content-Length: 24\r\n\r\n" + body
	_, err := unix.Write(client, []byte(req))
	require.NoError(t, err)

	_, err = c.Read()
	require.NoError(t, err)

	keepAlive, err := c.Process(context.Background(), failVerifier{t: t})
	require.NoError(t, err)
	assert.False(t, keepAlive)

	done, err := c.Write()
	require.NoError(t, err)
	assert.True(t, done)

	resp := readAll(t, client)
	assert.Contains(t, resp, "404")
}

func TestConnProcessIncompleteRequestReportsNeedMoreData(t *testing.T) {
	_, server := socketPair(t)
	dir := t.TempDir()

	c := NewConn(filecache.New())
	c.Init(server, "test-peer", false, dir)
	c.readBuf.AppendString("GET /index HTTP/1.1\r\nHost: incompl")

	_, err := c.Process(context.Background(), stubVerifier{ok: true})
	assert.ErrorIs(t, err, errNeedMoreData)
}
