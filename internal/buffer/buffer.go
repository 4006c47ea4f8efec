// Package buffer provides a growable byte buffer with separate read and
// write cursors, tuned for the request/response path of a single
// connection: append bytes from the wire, peek/retrieve them for parsing,
// and hand readable bytes back to writev without copying.
package buffer

import (
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/tinywebd/internal/constants"
	"github.com/ehrlich-b/tinywebd/internal/queue"
)

// Buffer is a growable byte buffer with independent read/write cursors.
// It is not safe for concurrent use; each connection owns its own buffer.
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// New returns a Buffer with the given initial capacity.
func New(initSize int) *Buffer {
	if initSize <= 0 {
		initSize = constants.InitBufferSize
	}
	return &Buffer{buf: make([]byte, initSize)}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int { return b.writePos - b.readPos }

// WritableBytes returns the number of bytes available to write without
// growing the buffer.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writePos }

// RecyclableBytes returns the number of bytes at the front of the buffer
// that have already been consumed and can be reclaimed by compaction.
func (b *Buffer) RecyclableBytes() int { return b.readPos }

// Peek returns the slice of unread bytes without advancing the read cursor.
func (b *Buffer) Peek() []byte { return b.buf[b.readPos:b.writePos] }

// Retrieve advances the read cursor by n bytes.
func (b *Buffer) Retrieve(n int) { b.readPos += n }

// RetrieveUntil advances the read cursor up to (but not past) end, where end
// points into the slice previously returned by Peek.
func (b *Buffer) RetrieveUntil(end []byte) {
	cur := b.Peek()
	n := len(cur) - len(end)
	b.Retrieve(n)
}

// RetrieveAll resets the buffer to empty, reusing its backing array.
func (b *Buffer) RetrieveAll() {
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllString returns all readable bytes as a string and empties the
// buffer.
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// BeginWrite returns the slice starting at the write cursor with len(s) == 0
// and cap(s) == WritableBytes, suitable for a direct syscall fill followed
// by HasWritten.
func (b *Buffer) BeginWrite() []byte {
	return b.buf[b.writePos:b.writePos]
}

// HasWritten advances the write cursor by n bytes, as if n bytes had just
// been written into the slice returned by BeginWrite.
func (b *Buffer) HasWritten(n int) { b.writePos += n }

// EnsureWritableBytes guarantees at least n writable bytes, compacting or
// growing the backing array as needed.
func (b *Buffer) EnsureWritableBytes(n int) {
	if n > b.WritableBytes() {
		b.makeSpace(n)
	}
}

// Append copies data into the buffer, growing it if necessary.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritableBytes(len(data))
	copy(b.buf[b.writePos:], data)
	b.HasWritten(len(data))
}

// AppendString is a convenience wrapper around Append.
func (b *Buffer) AppendString(s string) { b.Append([]byte(s)) }

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.RecyclableBytes() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.buf[:b.writePos])
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}

// ReadFd fills the buffer from fd using a two-segment scatter read: the
// primary iovec is the buffer's own writable region, the secondary is a
// scratch region pulled from queue's size-bucketed buffer pool that
// absorbs whatever doesn't fit, appended afterward. Returns the number of
// bytes read and the errno on failure.
func (b *Buffer) ReadFd(fd int) (int, error) {
	scratch := queue.GetBuffer(constants.ReadScratchSize)
	defer queue.PutBuffer(scratch)

	writable := b.WritableBytes()
	iov := []unix.Iovec{
		mkIovec(b.buf[b.writePos:]),
		mkIovec(scratch),
	}

	n, err := unix.Readv(fd, iov)
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.HasWritten(n)
	} else {
		b.writePos = len(b.buf)
		b.Append(scratch[:n-writable])
	}
	return n, nil
}

// WriteFd writes readable bytes to fd with a single write(2) call and
// advances the read cursor by the number of bytes actually written.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return n, err
	}
	b.Retrieve(n)
	return n, nil
}

func mkIovec(p []byte) unix.Iovec {
	var iov unix.Iovec
	if len(p) > 0 {
		iov.Base = &p[0]
	}
	iov.SetLen(len(p))
	return iov
}
