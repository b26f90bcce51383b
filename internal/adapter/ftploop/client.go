package ftploop

import (
	"context"
	"io"
	"time"

	"github.com/jlaffaye/ftp"
)

// Client is the subset of an FTP control connection the loop uses
type Client interface {
	Login(user, password string) error
	FileSize(path string) (int64, error)
	RetrFrom(path string, offset uint64) (io.ReadCloser, error)
	List(path string) ([]*ftp.Entry, error)
	Quit() error
}

// Dialer opens a control connection to addr
type Dialer func(ctx context.Context, addr string) (Client, error)

// NewDialer returns a Dialer backed by github.com/jlaffaye/ftp
func NewDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, addr string) (Client, error) {
		conn, err := ftp.Dial(addr,
			ftp.DialWithContext(ctx),
			ftp.DialWithTimeout(timeout),
		)
		if err != nil {
			return nil, err
		}
		return &serverConn{ServerConn: conn}, nil
	}
}

// serverConn narrows RetrFrom to an io.ReadCloser
type serverConn struct {
	*ftp.ServerConn
}

func (c *serverConn) RetrFrom(path string, offset uint64) (io.ReadCloser, error) {
	return c.ServerConn.RetrFrom(path, offset)
}
