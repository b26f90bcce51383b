package ftploop

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/vertextoedge/url-retriever/internal/adapter/stream"
	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/port"
	"github.com/vertextoedge/url-retriever/internal/service/accounting"
	"github.com/vertextoedge/url-retriever/internal/service/transfer"
)

// ListingFile is written for every retrieved directory
const ListingFile = ".listing"

const (
	anonymousUser     = "anonymous"
	anonymousPassword = "anonymous@"
	defaultPort       = "21"
)

// Config contains FTP loop configuration
type Config struct {
	// Tries is the number of attempts per URL; 0 means unlimited
	Tries int

	// Continue resumes partially downloaded files with REST
	Continue bool

	// MaxDepth bounds recursive directory descent
	MaxDepth int

	Timeout time.Duration
}

// DefaultConfig returns default FTP loop configuration
func DefaultConfig() *Config {
	return &Config{
		Tries:    20,
		MaxDepth: 5,
		Timeout:  30 * time.Second,
	}
}

// Loop implements port.FTPLoop
type Loop struct {
	config  *Config
	dial    Dialer
	files   port.OutputFiles
	engine  *transfer.Engine
	backoff port.Backoff
	ledger  *accounting.Ledger
	logger  *zap.Logger
}

// Ensure Loop implements port.FTPLoop
var _ port.FTPLoop = (*Loop)(nil)

// New creates a new FTP loop. A nil dial uses github.com/jlaffaye/ftp.
func New(
	cfg *Config,
	dial Dialer,
	files port.OutputFiles,
	engine *transfer.Engine,
	backoff port.Backoff,
	ledger *accounting.Ledger,
	logger *zap.Logger,
) *Loop {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dial == nil {
		dial = NewDialer(cfg.Timeout)
	}
	return &Loop{
		config:  cfg,
		dial:    dial,
		files:   files,
		engine:  engine,
		backoff: backoff,
		ledger:  ledger,
		logger:  logger,
	}
}

// Fetch retrieves a file or, for directory URLs, the directory listing
func (l *Loop) Fetch(ctx context.Context, req port.FTPRequest) domain.Outcome {
	last := domain.Failed(domain.StatusNoConnection)
	for attempt := 1; l.config.Tries == 0 || attempt <= l.config.Tries; attempt++ {
		if err := l.backoff.DelayBeforeRetry(ctx, attempt, 0); err != nil {
			l.logger.Info("retrieval canceled", zap.String("url", req.URL.Raw), zap.Error(err))
			return last
		}

		outcome, err := l.attempt(ctx, req)
		if err == nil {
			return outcome
		}
		last = outcome

		if !domain.IsRetryable(err) || ctx.Err() != nil {
			l.logger.Error("FTP retrieval failed",
				zap.String("url", req.URL.Raw),
				zap.Int("attempt", attempt),
				zap.Stringer("status", outcome.Status),
				zap.Error(err))
			return outcome
		}

		l.logger.Warn("FTP attempt failed",
			zap.String("url", req.URL.Raw),
			zap.Int("attempt", attempt),
			zap.Error(err))
		l.backoff.Notice(attempt, l.config.Tries)
	}
	return last
}

func (l *Loop) attempt(ctx context.Context, req port.FTPRequest) (domain.Outcome, error) {
	u := req.URL
	ctrlPort := u.Port
	if ctrlPort == "" {
		ctrlPort = defaultPort
	}

	c, err := l.dial(ctx, net.JoinHostPort(u.Host, ctrlPort))
	if err != nil {
		return domain.Failed(domain.StatusNoConnection), domain.NewRetryableError(err, 0)
	}
	defer c.Quit()

	user, password := u.User, u.Password
	if user == "" {
		user, password = anonymousUser, anonymousPassword
	}
	if err := c.Login(user, password); err != nil {
		return domain.Failed(domain.StatusNoConnection), fmt.Errorf("login as %s: %w", user, err)
	}

	remote := remotePath(u)
	if u.IsDirectory() {
		return l.listing(ctx, c, u, remote, req.Recursive, 0)
	}
	return l.retrieve(ctx, c, remote, l.files.LocalPath(u))
}

// retrieve downloads one remote file into localFile
func (l *Loop) retrieve(ctx context.Context, c Client, remote, localFile string) (domain.Outcome, error) {
	var restart int64
	if l.config.Continue && l.files.Exists(localFile) {
		if size, err := l.files.Size(localFile); err == nil {
			restart = size
		}
	}

	var expected int64
	useExpected := false
	if size, err := c.FileSize(remote); err == nil && size >= 0 {
		expected, useExpected = size, true
		if restart >= size && restart > 0 {
			l.logger.Info("file already fully retrieved", zap.String("local_file", localFile))
			return domain.Completed(localFile, isHTMLFile(localFile), 0), nil
		}
	}

	resp, err := c.RetrFrom(remote, uint64(restart))
	if err != nil {
		if isPermanent(err) {
			return domain.Failed(domain.StatusNoConnection), fmt.Errorf("RETR %s: %w", remote, err)
		}
		return domain.Failed(domain.StatusNoConnection), domain.NewRetryableError(err, 0)
	}
	defer resp.Close()

	out, err := l.files.Open(localFile, restart > 0)
	if err != nil {
		return domain.Failed(domain.StatusWriteError), err
	}

	length, code, drainErr := l.engine.Drain(ctx, stream.NewConn(resp, false), nil, out, restart, expected, useExpected)
	closeErr := out.Close()

	n := length - restart
	if n > 0 {
		l.ledger.Increase(uint64(n))
	}

	switch code {
	case transfer.CodeWriteError:
		return domain.Partial(domain.StatusWriteError, localFile, n), drainErr
	case transfer.CodeReadError:
		return domain.Partial(domain.StatusNoConnection, localFile, n), domain.NewRetryableError(drainErr, 0)
	}
	if closeErr != nil {
		return domain.Partial(domain.StatusWriteError, localFile, n),
			fmt.Errorf("%w: %w", domain.ErrWriteFailed, closeErr)
	}
	if useExpected && length < expected {
		return domain.Partial(domain.StatusNoConnection, localFile, n),
			domain.NewRetryableError(fmt.Errorf("%w: got %d of %d bytes", domain.ErrPrematureEOF, length, expected), 0)
	}

	l.logger.Info("saved",
		zap.String("remote", remote),
		zap.String("local_file", localFile),
		zap.Int64("bytes", n))
	return domain.Completed(localFile, isHTMLFile(localFile), n), nil
}

// listing writes the directory listing and, when recursive, retrieves
// the files it names
func (l *Loop) listing(ctx context.Context, c Client, u domain.URL, remote string, recursive bool, depth int) (domain.Outcome, error) {
	entries, err := c.List(remote)
	if err != nil {
		if isPermanent(err) {
			return domain.Failed(domain.StatusNoConnection), fmt.Errorf("LIST %s: %w", remote, err)
		}
		return domain.Failed(domain.StatusNoConnection), domain.NewRetryableError(err, 0)
	}

	listFile := filepath.Join(filepath.Dir(l.files.LocalPath(u)), ListingFile)
	written, err := l.writeListing(listFile, entries)
	if err != nil {
		return domain.Failed(domain.StatusWriteError), err
	}
	total := written

	if recursive && depth < l.config.MaxDepth {
		for _, e := range entries {
			if ctx.Err() != nil {
				break
			}
			if e.Name == "." || e.Name == ".." {
				continue
			}

			child := u
			child.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(e.Name)
			childRemote := path.Join(remote, e.Name)

			var outcome domain.Outcome
			var err error
			switch e.Type {
			case ftp.EntryTypeFile:
				outcome, err = l.retrieve(ctx, c, childRemote, l.files.LocalPath(child))
			case ftp.EntryTypeFolder:
				child.Path += "/"
				outcome, err = l.listing(ctx, c, child, childRemote, true, depth+1)
			default:
				continue
			}
			if err != nil {
				// One bad entry does not fail the directory
				l.logger.Warn("skipping listed entry",
					zap.Error(domain.NewSkippableError(err, childRemote)))
			}
			total += outcome.Bytes
		}
	}

	return domain.Completed(listFile, false, total), nil
}

func (l *Loop) writeListing(listFile string, entries []*ftp.Entry) (int64, error) {
	out, err := l.files.Open(listFile, false)
	if err != nil {
		return 0, err
	}

	var written int64
	for _, e := range entries {
		n, err := fmt.Fprintf(out, "%s %12d %s %s\n", entryKind(e.Type), e.Size, e.Time.UTC().Format(time.RFC3339), e.Name)
		written += int64(n)
		if err != nil {
			out.Close()
			return written, fmt.Errorf("%w: %w", domain.ErrWriteFailed, err)
		}
	}
	if err := out.Close(); err != nil {
		return written, fmt.Errorf("%w: %w", domain.ErrWriteFailed, err)
	}
	return written, nil
}

func entryKind(t ftp.EntryType) string {
	switch t {
	case ftp.EntryTypeFolder:
		return "d"
	case ftp.EntryTypeLink:
		return "l"
	default:
		return "-"
	}
}

// remotePath returns the unescaped server path of u
func remotePath(u domain.URL) string {
	p, err := url.PathUnescape(u.Path)
	if err != nil {
		p = u.Path
	}
	if p == "" {
		return "/"
	}
	return p
}

// isPermanent reports a 5xx FTP reply, which another attempt cannot fix
func isPermanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}

func isHTMLFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}
