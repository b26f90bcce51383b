package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/port"
)

// Code is the result of a Drain call
type Code int

const (
	// CodeEOF means the connection reached a clean end of stream
	CodeEOF Code = 0

	// CodeReadError means reading from the connection failed
	CodeReadError Code = -1

	// CodeWriteError means writing to the output failed
	CodeWriteError Code = -2
)

// DefaultChunkSize is the read size used when no length limit applies
const DefaultChunkSize = 8192

// maxEmptyReads bounds consecutive (0, nil) reads before giving up
const maxEmptyReads = 100

// Config contains transfer engine configuration
type Config struct {
	// ChunkSize is the maximum bytes read per iteration
	ChunkSize int

	// LimitRate caps throughput in bytes per second; 0 disables it
	LimitRate int64

	// Verbose enables progress reporting
	Verbose bool
}

// DefaultConfig returns default engine configuration
func DefaultConfig() *Config {
	return &Config{ChunkSize: DefaultChunkSize}
}

// Engine drains connections into output files
type Engine struct {
	config   *Config
	progress port.ProgressFactory
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New creates a new Engine. progress may be nil when Verbose is off.
func New(cfg *Config, progress port.ProgressFactory, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	e := &Engine{
		config:   cfg,
		progress: progress,
		logger:   logger,
	}
	if cfg.LimitRate > 0 {
		burst := cfg.ChunkSize
		if int64(burst) < cfg.LimitRate {
			burst = int(cfg.LimitRate)
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.LimitRate), burst)
	}
	return e
}

// Drain reads conn until it closes, fails, or expected bytes have been
// read, writing everything to out. It returns the total length including
// restart, which is where an appended file resumes.
//
// Bytes prefetched in buf are written first when buf belongs to conn.
// When useExpected is false expected is only passed to progress; when it
// is true the transfer stops at expected bytes, so zero means nothing is
// read at all.
//
// The returned error carries the underlying cause for CodeReadError and
// CodeWriteError and is nil for CodeEOF.
func (e *Engine) Drain(
	ctx context.Context,
	conn port.Conn,
	buf port.ReadBuffer,
	out port.Output,
	restart, expected int64,
	useExpected bool,
) (int64, Code, error) {
	length := restart
	chunk := make([]byte, e.config.ChunkSize)

	var progress port.Progress
	if e.config.Verbose && e.progress != nil {
		progress = e.progress.NewProgress(restart, expected)
		defer progress.Finish()
	}

	if buf != nil && buf.Owner() == conn.ID() {
		flushed := false
		for {
			n := buf.Flush(chunk)
			if n == 0 {
				break
			}
			if _, err := out.Write(chunk[:n]); err != nil {
				return length, CodeWriteError, fmt.Errorf("%w: %w", domain.ErrWriteFailed, err)
			}
			if progress != nil {
				progress.Update(int64(n))
			}
			length += int64(n)
			flushed = true
		}
		if flushed {
			if err := out.Flush(); err != nil {
				return length, CodeWriteError, fmt.Errorf("%w: %w", domain.ErrWriteFailed, err)
			}
		}
	}

	empty := 0
	for !useExpected || length < expected {
		want := len(chunk)
		if useExpected && expected-length < int64(want) {
			want = int(expected - length)
		}

		n, err := e.read(conn, chunk[:want])
		if n > 0 {
			empty = 0
			if _, werr := out.Write(chunk[:n]); werr != nil {
				return length, CodeWriteError, fmt.Errorf("%w: %w", domain.ErrWriteFailed, werr)
			}
			if werr := out.Flush(); werr != nil {
				return length, CodeWriteError, fmt.Errorf("%w: %w", domain.ErrWriteFailed, werr)
			}
			if progress != nil {
				progress.Update(int64(n))
			}
			length += int64(n)

			if e.limiter != nil {
				if lerr := e.limiter.WaitN(ctx, n); lerr != nil {
					return length, CodeReadError, fmt.Errorf("%w: %w", domain.ErrReadFailed, lerr)
				}
			}
		}

		switch {
		case errors.Is(err, io.EOF):
			return length, CodeEOF, nil
		case err != nil:
			return length, CodeReadError, fmt.Errorf("%w: %w", domain.ErrReadFailed, err)
		case n == 0:
			empty++
			if empty >= maxEmptyReads {
				return length, CodeReadError, fmt.Errorf("%w: %w", domain.ErrReadFailed, io.ErrNoProgress)
			}
		}
	}

	return length, CodeEOF, nil
}

// read calls the read primitive matching the connection's channel
func (e *Engine) read(conn port.Conn, p []byte) (int, error) {
	if conn.Kind() == port.ChannelSecure {
		return conn.ReadSecure(p)
	}
	return conn.Read(p)
}
