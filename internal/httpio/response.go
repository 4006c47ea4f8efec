// Package httpio implements the response builder and connection engine:
// the part of the request/response cycle that touches the filesystem and
// the socket.
package httpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ehrlich-b/tinywebd/internal/buffer"
	"github.com/ehrlich-b/tinywebd/internal/filecache"
)

// suffixType maps a file extension to its MIME type. The trailing spaces on
// ".css"/".js" are carried over unchanged from the reference table.
var suffixType = map[string]string{
	".html":  "text/html",
	".xml":   "text/xml",
	".xhtml": "application/xhtml+xml",
	".txt":   "text/plain",
	".rtf":   "application/rtf",
	".pdf":   "application/pdf",
	".word":  "application/nsword",
	".png":   "image/png",
	".gif":   "image/gif",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".au":    "audio/basic",
	".mpeg":  "video/mpeg",
	".mpg":   "video/mpeg",
	".avi":   "video/x-msvideo",
	".gz":    "application/x-gzip",
	".tar":   "application/x-tar",
	".css":   "text/css ",
	".js":    "text/javascript ",
}

var codeStatus = map[int]string{
	200: "OK",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
}

var codePath = map[int]string{
	400: "/400.html",
	403: "/403.html",
	404: "/404.html",
}

// Response builds one HTTP response: status line, headers, and a body
// either served from a cached mmap or a canned inline error page.
type Response struct {
	cache *filecache.Cache

	code      int
	path      string
	srcDir    string
	keepAlive bool

	mapped *filecache.Mapping
}

// NewResponse creates a Response drawing file bodies from cache.
func NewResponse(cache *filecache.Cache) *Response {
	return &Response{cache: cache}
}

// Init resets the response for a new request. code is -1 to let
// MakeResponse derive it from stat, or a pre-determined error code.
func (r *Response) Init(srcDir, path string, keepAlive bool, code int) {
	r.releaseMapping()
	r.srcDir = srcDir
	r.path = path
	r.keepAlive = keepAlive
	r.code = code
}

func (r *Response) releaseMapping() {
	if r.mapped != nil {
		r.mapped.Release()
		r.mapped = nil
	}
}

// StatusCode returns the status code MakeResponse settled on. Only
// meaningful after MakeResponse has run.
func (r *Response) StatusCode() int { return r.code }

// FileSize returns the mapped body's length, or 0 if there is none.
func (r *Response) FileSize() int64 {
	if r.mapped == nil {
		return 0
	}
	return r.mapped.Size()
}

// FileBody returns the mapped body's bytes, or nil if there is none.
func (r *Response) FileBody() []byte {
	if r.mapped == nil {
		return nil
	}
	return r.mapped.Bytes()
}

// MakeResponse derives the status code from stat-ing srcDir+path: a missing
// path or a directory gives 404 and a file that is not world-readable gives
// 403, whatever code Init set; otherwise a code of -1 becomes 200 and a code
// set by Init is kept. It then rewrites the path to a canned error page when
// needed, and appends the status line, headers, and body into buf.
func (r *Response) MakeResponse(buf *buffer.Buffer) {
	fullPath := filepath.Join(r.srcDir, r.path)
	info, err := os.Stat(fullPath)

	switch {
	case err != nil || info.IsDir():
		r.code = 404
	case !worldReadable(info):
		r.code = 403
	case r.code == -1:
		r.code = 200
	}

	if errPath, isErr := codePath[r.code]; isErr {
		r.path = errPath
		fullPath = filepath.Join(r.srcDir, r.path)
		info, err = os.Stat(fullPath)
	}

	r.addStateLine(buf)
	r.addHeader(buf)
	r.addContent(buf, fullPath, info, err)
}

func worldReadable(info os.FileInfo) bool {
	return info.Mode().Perm()&0o004 != 0
}

func (r *Response) addStateLine(buf *buffer.Buffer) {
	status, ok := codeStatus[r.code]
	if !ok {
		r.code = 400
		status = codeStatus[400]
	}
	buf.AppendString(fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.code, status))
}

func (r *Response) addHeader(buf *buffer.Buffer) {
	if r.keepAlive {
		buf.AppendString("Connection: keep-alive\r\n")
		buf.AppendString("keep-alive: max=6, timeout=120\r\n")
	} else {
		buf.AppendString("Connection: close\r\n")
	}
	buf.AppendString("Content-type: " + r.mimeType() + "\r\n")
}

func (r *Response) mimeType() string {
	idx := strings.LastIndex(r.path, ".")
	if idx < 0 {
		return "text/plain"
	}
	if t, ok := suffixType[r.path[idx:]]; ok {
		return t
	}
	return "text/plain"
}

func (r *Response) addContent(buf *buffer.Buffer, fullPath string, info os.FileInfo, statErr error) {
	if statErr != nil {
		r.errorContent(buf, "the requested file was not found on this server")
		return
	}

	m, err := r.cache.Open(fullPath)
	if err != nil {
		r.errorContent(buf, "the server could not read the requested file")
		return
	}
	r.mapped = m
	buf.AppendString(fmt.Sprintf("Content-length: %d\r\n\r\n", info.Size()))
}

// errorContent writes a canned inline HTML error page as the response body
// when the requested/error file itself could not be opened.
func (r *Response) errorContent(buf *buffer.Buffer, message string) {
	status := codeStatus[r.code]
	body := fmt.Sprintf("<html><title>Error</title><body bgcolor=\"ffffff\">%d : %s\n<p>%s</p><hr><em>tinywebd</em></body></html>",
		r.code, status, message)
	buf.AppendString(fmt.Sprintf("Content-length: %d\r\n\r\n", len(body)))
	buf.AppendString(body)
}

// Close releases any held mapping; safe to call multiple times.
func (r *Response) Close() {
	r.releaseMapping()
}
