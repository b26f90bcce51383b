package stream

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/vertextoedge/url-retriever/internal/port"
)

var lastID atomic.Uint64

// Conn adapts a response body or data connection to port.Conn
type Conn struct {
	id     uint64
	kind   port.ChannelKind
	reader io.Reader
}

// Ensure Conn implements port.Conn
var _ port.Conn = (*Conn)(nil)

// NewConn wraps r. secure selects the TLS read primitive.
func NewConn(r io.Reader, secure bool) *Conn {
	kind := port.ChannelPlain
	if secure {
		kind = port.ChannelSecure
	}
	return &Conn{
		id:     lastID.Add(1),
		kind:   kind,
		reader: r,
	}
}

// ID returns the unique connection ID
func (c *Conn) ID() uint64 {
	return c.id
}

// Kind returns the channel kind
func (c *Conn) Kind() port.ChannelKind {
	return c.kind
}

// Read reads from the plain channel
func (c *Conn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

// ReadSecure reads from the TLS channel. Decryption happens below the
// reader, so both primitives share it.
func (c *Conn) ReadSecure(p []byte) (int, error) {
	return c.reader.Read(p)
}

// Buffer holds bytes prefetched from one connection
type Buffer struct {
	owner uint64
	data  []byte
}

// Ensure Buffer implements port.ReadBuffer
var _ port.ReadBuffer = (*Buffer)(nil)

// NewBuffer creates a buffer of data read from the connection owner
func NewBuffer(owner uint64, data []byte) *Buffer {
	return &Buffer{owner: owner, data: data}
}

// Owner returns the ID of the source connection
func (b *Buffer) Owner() uint64 {
	return b.owner
}

// Flush moves up to len(p) bytes into p
func (b *Buffer) Flush(p []byte) int {
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n
}

// Len returns the number of bytes still buffered
func (b *Buffer) Len() int {
	return len(b.data)
}

// Peek returns the buffered bytes without consuming them
func (b *Buffer) Peek() []byte {
	return b.data
}

// Sniff reads up to n bytes from c into a buffer it owns. A short read
// at end of stream is not an error.
func Sniff(c *Conn, n int) (*Buffer, error) {
	data := make([]byte, n)
	m, empty := 0, 0
	var err error
	for m < n && err == nil {
		var k int
		k, err = c.reader.Read(data[m:])
		m += k
		if k == 0 && err == nil {
			if empty++; empty >= 100 {
				err = io.ErrNoProgress
			}
		}
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return NewBuffer(c.id, data[:m]), err
}
