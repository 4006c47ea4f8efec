// Package httpparse implements the incremental HTTP/1.1 request parser:
// request line, headers, and a urlencoded body, with static path rewriting
// and login/register field extraction.
package httpparse

import (
	"regexp"
	"strings"

	"github.com/ehrlich-b/tinywebd/internal/buffer"
)

// ParseState tracks which part of the request is being read.
type ParseState int

const (
	StateRequestLine ParseState = iota
	StateHeaders
	StateBody
	StateFinish
)

// defaultHTML is the set of extensionless paths that resolve to an
// index.html-style file.
var defaultHTML = map[string]bool{
	"/index":    true,
	"/register": true,
	"/login":    true,
	"/welcome":  true,
	"/video":    true,
	"/picture":  true,
}

// defaultHTMLTag maps a login/register page to which verify routine
// applies to its POST.
var defaultHTMLTag = map[string]int{
	"/register.html": 0,
	"/login.html":    1,
}

var (
	requestLineRE = regexp.MustCompile(`^([^ ]*) ([^ ]*) HTTP/([^ \r\n]*)`)
	headerRE      = regexp.MustCompile(`^([^:]*): ?(.*)`)
)

// Request holds the parsed fields of one HTTP request.
type Request struct {
	Method  string
	Path    string
	Version string
	Headers map[string]string
	Body    string

	state ParseState
	tag   int // DEFAULT_HTML_TAG value when the path is login/register.
}

// New returns a fresh Request ready to parse incrementally.
func New() *Request {
	return &Request{Headers: make(map[string]string), state: StateRequestLine}
}

// Reset clears r for reuse on a new request.
func (r *Request) Reset() {
	r.Method, r.Path, r.Version, r.Body = "", "", "", ""
	for k := range r.Headers {
		delete(r.Headers, k)
	}
	r.state = StateRequestLine
	r.tag = -1
}

// IsKeepAlive reports whether the parsed request asked to keep the
// connection alive (HTTP/1.1 defaults to keep-alive unless told
// otherwise; HTTP/1.0 defaults to close unless told otherwise).
func (r *Request) IsKeepAlive() bool {
	conn := strings.ToLower(r.Headers["Connection"])
	if r.Version == "1.1" {
		return conn != "close"
	}
	return conn == "keep-alive"
}

// IsFormURLEncoded reports whether the request declared a urlencoded form
// body, the Content-Type the login/register routes require.
func (r *Request) IsFormURLEncoded() bool {
	ct := strings.ToLower(r.Headers["Content-Type"])
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

// Finished reports whether parsing has consumed a full request.
func (r *Request) Finished() bool { return r.state == StateFinish }

// Parse consumes as much of buf's readable bytes as form a complete line or
// body, advancing buf's read cursor. Call repeatedly as more bytes arrive;
// it returns when the buffer runs out of complete lines or parsing
// finishes.
func (r *Request) Parse(buf *buffer.Buffer) error {
	for buf.ReadableBytes() > 0 && r.state != StateFinish {
		if r.state == StateBody {
			// The body is the remainder of the buffer; the caller is
			// responsible for knowing Content-Length (static POST bodies
			// in this server are always the full urlencoded payload sent
			// in one request).
			r.parseBody(string(buf.Peek()))
			buf.Retrieve(buf.ReadableBytes())
			break
		}

		line, ok := nextLine(buf)
		if !ok {
			break
		}
		switch r.state {
		case StateRequestLine:
			if err := r.parseRequestLine(line); err != nil {
				return err
			}
			r.state = StateHeaders
		case StateHeaders:
			r.parseHeader(line)
		}
	}
	return nil
}

// nextLine extracts and retrieves one CRLF-terminated line (without the
// CRLF) from buf. If no CRLF is present yet, it returns ok=false and
// leaves the buffer untouched (more bytes are expected to arrive). An
// empty line (just CRLF) comes back as ""; parseHeader treats it as the end
// of the header block.
func nextLine(buf *buffer.Buffer) (string, bool) {
	data := buf.Peek()
	idx := strings.Index(string(data), "\r\n")
	if idx < 0 {
		return "", false
	}
	line := string(data[:idx])
	buf.Retrieve(idx + 2)
	return line, true
}

func (r *Request) parseRequestLine(line string) error {
	m := requestLineRE.FindStringSubmatch(line)
	if m == nil {
		return errBadRequestLine
	}
	r.Method = m[1]
	r.Path = rewritePath(m[2])
	r.Version = m[3]
	return nil
}

func (r *Request) parseHeader(line string) {
	if line == "" {
		// blank line: transition to body, or finish if there is none.
		if r.Method == "POST" {
			r.state = StateBody
		} else {
			r.state = StateFinish
		}
		return
	}
	m := headerRE.FindStringSubmatch(line)
	if m == nil {
		r.state = StateBody
		return
	}
	r.Headers[m[1]] = m[2]
}

func (r *Request) parseBody(body string) {
	r.Body = body
	r.state = StateFinish
}

func rewritePath(path string) string {
	if path == "/" {
		return "/index.html"
	}
	if defaultHTML[path] {
		return path + ".html"
	}
	return path
}

// LoginTag reports which verify flow a POSTed path maps to: 0 for
// register, 1 for login, and false if the path is neither.
func LoginTag(path string) (tag int, ok bool) {
	tag, ok = defaultHTMLTag[path]
	return tag, ok
}

// ParseURLEncoded decodes an application/x-www-form-urlencoded body into
// its key/value pairs, correctly writing the raw decoded byte for each %HH
// escape (rather than re-encoding it as two ASCII decimal digits).
func ParseURLEncoded(body string) map[string]string {
	out := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inKey := true

	flush := func() {
		if key.Len() > 0 {
			out[key.String()] = val.String()
		}
		key.Reset()
		val.Reset()
		inKey = true
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '=' && inKey:
			inKey = false
		case c == '&':
			flush()
		case c == '+':
			writeRune(&key, &val, inKey, ' ')
		case c == '%' && i+2 < len(body):
			hi := hexDigit(body[i+1])
			lo := hexDigit(body[i+2])
			if hi >= 0 && lo >= 0 {
				writeRune(&key, &val, inKey, byte(hi<<4|lo))
				i += 2
			} else {
				writeRune(&key, &val, inKey, c)
			}
		default:
			writeRune(&key, &val, inKey, c)
		}
	}
	flush()
	return out
}

func writeRune(key, val *strings.Builder, inKey bool, b byte) {
	if inKey {
		key.WriteByte(b)
	} else {
		val.WriteByte(b)
	}
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

type parseError string

func (e parseError) Error() string { return string(e) }

const errBadRequestLine = parseError("httpparse: malformed request line")
