package port

import "io"

// ChannelKind tells which read primitive a connection uses
type ChannelKind int

const (
	ChannelPlain ChannelKind = iota
	ChannelSecure
)

// Conn is an open data connection the transfer engine drains.
// Read is the plain-channel primitive and ReadSecure the TLS one; the
// engine picks between them by Kind.
type Conn interface {
	// ID identifies the connection so prefetched buffers can be matched
	ID() uint64

	// Kind returns the channel kind
	Kind() ChannelKind

	// Read reads from a plain channel
	Read(p []byte) (int, error)

	// ReadSecure reads from a secure channel
	ReadSecure(p []byte) (int, error)
}

// ReadBuffer holds bytes already read from a connection, for example
// while sniffing the content type
type ReadBuffer interface {
	// Owner returns the ID of the connection the bytes came from
	Owner() uint64

	// Flush moves up to len(p) buffered bytes into p.
	// Returns 0 once the buffer is empty.
	Flush(p []byte) int
}

// Output is the destination of a transfer.
// Flush pushes buffered bytes to storage so write errors surface early.
type Output interface {
	io.Writer
	Flush() error
}

// Progress receives transfer progress for one drain call
type Progress interface {
	// Update reports n more bytes
	Update(n int64)

	// Finish is called exactly once when the transfer ends
	Finish()
}

// ProgressFactory creates a Progress for a transfer that starts at
// restart bytes and expects expected bytes in total (0 if unknown)
type ProgressFactory interface {
	NewProgress(restart, expected int64) Progress
}
