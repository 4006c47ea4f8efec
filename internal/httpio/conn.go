package httpio

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/tinywebd/internal/buffer"
	"github.com/ehrlich-b/tinywebd/internal/constants"
	"github.com/ehrlich-b/tinywebd/internal/filecache"
	"github.com/ehrlich-b/tinywebd/internal/httpparse"
	"github.com/ehrlich-b/tinywebd/internal/interfaces"
)

// Conn is one client connection's I/O and protocol state: read buffer,
// request parser, response builder, and write buffer, driven by the
// reactor's readiness notifications.
type Conn struct {
	fd       int
	peerAddr string
	isET     bool
	srcDir   string

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer
	request  *httpparse.Request
	response *Response

	headerOff int // bytes of writeBuf already flushed
	bodyOff   int // bytes of the mapped file body already flushed
	keepAlive bool
	closed    bool

	reqStart time.Time // zero when no request is in flight
	bytesIn  uint64
	bytesOut uint64
}

// NewConn returns a Conn ready for Init, drawing static file bodies from
// cache.
func NewConn(cache *filecache.Cache) *Conn {
	return &Conn{
		readBuf:  buffer.New(constants.InitBufferSize),
		writeBuf: buffer.New(constants.InitBufferSize),
		request:  httpparse.New(),
		response: NewResponse(cache),
	}
}

// Init (re)binds the Conn to a freshly accepted fd.
func (c *Conn) Init(fd int, peerAddr string, isET bool, srcDir string) {
	c.fd = fd
	c.peerAddr = peerAddr
	c.isET = isET
	c.srcDir = srcDir
	c.closed = false
	c.readBuf.RetrieveAll()
	c.writeBuf.RetrieveAll()
	c.request.Reset()
	c.headerOff = 0
	c.bodyOff = 0
	c.reqStart = time.Time{}
	c.bytesIn = 0
	c.bytesOut = 0
}

// Fd returns the connection's socket descriptor.
func (c *Conn) Fd() int { return c.fd }

// PeerAddr returns the connection's remote address as recorded at accept
// time.
func (c *Conn) PeerAddr() string { return c.peerAddr }

// KeepAlive reports whether the most recently processed request asked to
// keep the connection open.
func (c *Conn) KeepAlive() bool { return c.keepAlive }

// Close releases the response's mapping and closes fd. Safe to call more
// than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.response.Close()
	return unix.Close(c.fd)
}

// Read fills the read buffer from the socket. In edge-triggered mode it
// loops until the kernel reports no more data (EAGAIN) since a single
// readiness notification won't repeat; in level-triggered mode one read is
// enough because epoll will notify again if bytes remain.
func (c *Conn) Read() (int, error) {
	total := 0
	for {
		n, err := c.readBuf.ReadFd(c.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			if total == 0 {
				return 0, nil
			}
			return total, nil
		}
		total += n
		if !c.isET {
			return total, nil
		}
	}
}

// Process parses a complete request out of the read buffer and builds the
// corresponding response, routing login/register POSTs through verifier. It
// reports whether the connection should remain open after the response is
// written.
func (c *Conn) Process(ctx context.Context, verifier interfaces.Verifier) (keepAlive bool, err error) {
	if c.reqStart.IsZero() {
		c.reqStart = time.Now()
	}
	before := c.readBuf.ReadableBytes()
	parseErr := c.request.Parse(c.readBuf)
	c.bytesIn += uint64(before - c.readBuf.ReadableBytes())

	if parseErr != nil {
		c.keepAlive = false
		c.buildErrorResponse(400, false)
		c.armWritev()
		return false, nil
	}
	if !c.request.Finished() {
		// Not enough bytes yet; caller should keep reading.
		return true, errNeedMoreData
	}

	keepAlive = c.request.IsKeepAlive()
	c.keepAlive = keepAlive
	path := c.request.Path
	code := -1

	if c.request.Method == "POST" && c.request.IsFormURLEncoded() {
		if tag, ok := httpparse.LoginTag(path); ok {
			fields := httpparse.ParseURLEncoded(c.request.Body)
			ok, verr := verifier.Verify(ctx, fields["username"], fields["password"], tag == 1)
			switch {
			case verr != nil:
				path = "/error.html"
			case ok:
				path = "/welcome.html"
			default:
				path = "/login.html"
			}
		}
	}

	c.response.Init(c.srcDir, path, keepAlive, code)
	c.writeBuf.RetrieveAll()
	c.response.MakeResponse(c.writeBuf)
	c.bytesOut = uint64(len(c.writeBuf.Peek())) + uint64(c.response.FileSize())
	c.armWritev()

	c.request.Reset()
	return keepAlive, nil
}

// errNeedMoreData signals Process that the request is incomplete; the
// caller should return to epoll and wait for more readable bytes rather
// than treating this as an error.
var errNeedMoreData = fmt.Errorf("httpio: incomplete request")

func (c *Conn) buildErrorResponse(code int, keepAlive bool) {
	c.response.Init(c.srcDir, "/400.html", keepAlive, code)
	c.writeBuf.RetrieveAll()
	c.response.MakeResponse(c.writeBuf)
	c.bytesOut = uint64(len(c.writeBuf.Peek())) + uint64(c.response.FileSize())
}

// ConsumeObservation returns the metrics for the just-completed
// request/response cycle and clears them so the next request starts fresh.
// Call it once Write reports the response fully flushed.
func (c *Conn) ConsumeObservation() (statusCode int, bytesIn, bytesOut, latencyNs uint64) {
	statusCode = c.response.StatusCode()
	bytesIn = c.bytesIn
	bytesOut = c.bytesOut
	if !c.reqStart.IsZero() {
		latencyNs = uint64(time.Since(c.reqStart))
	}
	c.reqStart = time.Time{}
	c.bytesIn = 0
	c.bytesOut = 0
	return statusCode, bytesIn, bytesOut, latencyNs
}

// armWritev resets the flush offsets so Write starts from the beginning of
// the freshly built header buffer and mapped file body (if any).
func (c *Conn) armWritev() {
	c.headerOff = 0
	c.bodyOff = 0
}

// segments returns the header and body byte slices still left to write,
// recomputed fresh each call since the underlying buffer/mapping don't
// move during the lifetime of one response.
func (c *Conn) segments() (header, body []byte) {
	return c.writeBuf.Peek()[c.headerOff:], c.response.FileBody()[c.bodyOff:]
}

func (c *Conn) bytesToWrite() int {
	header, body := c.segments()
	return len(header) + len(body)
}

func mkIovec(p []byte) unix.Iovec {
	var iov unix.Iovec
	if len(p) > 0 {
		iov.Base = &p[0]
	}
	iov.SetLen(len(p))
	return iov
}

// Write drains the staged response via writev, looping to absorb partial
// writes. In non-edge-triggered mode it keeps writing while more than
// ETWriteThreshold bytes remain so a large static file doesn't trickle out
// one readiness notification at a time; in edge-triggered mode it must loop
// until EAGAIN since there may be no further EPOLLOUT notification. It
// reports done=true once every staged byte has been written.
func (c *Conn) Write() (done bool, err error) {
	for {
		header, body := c.segments()
		if len(header) == 0 && len(body) == 0 {
			return true, nil
		}

		iov := make([]unix.Iovec, 0, 2)
		if len(header) > 0 {
			iov = append(iov, mkIovec(header))
		}
		if len(body) > 0 {
			iov = append(iov, mkIovec(body))
		}

		n, werr := unix.Writev(c.fd, iov)
		if werr != nil {
			if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
				return false, nil
			}
			return false, werr
		}
		if n == 0 {
			return false, nil
		}
		c.advance(n, len(header))

		remaining := c.bytesToWrite()
		if remaining == 0 {
			return true, nil
		}
		if !c.isET && remaining > constants.ETWriteThreshold {
			continue
		}
		if !c.isET {
			return false, nil
		}
	}
}

// advance records n written bytes against the header offset first, then
// the body offset, mirroring the order writev drained the two segments in.
func (c *Conn) advance(n, headerLen int) {
	if headerLen > 0 {
		take := n
		if take > headerLen {
			take = headerLen
		}
		c.headerOff += take
		n -= take
	}
	c.bodyOff += n
}
