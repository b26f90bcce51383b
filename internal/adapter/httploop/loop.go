package httploop

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/url-retriever/internal/adapter/stream"
	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/port"
	"github.com/vertextoedge/url-retriever/internal/service/accounting"
	"github.com/vertextoedge/url-retriever/internal/service/transfer"
)

// sniffLen is how much of the body is prefetched to detect content type
const sniffLen = 512

// Config contains HTTP loop configuration
type Config struct {
	// Tries is the number of attempts per URL; 0 means unlimited
	Tries int

	// Continue resumes partially downloaded files with a Range request
	Continue bool

	UserAgent     string
	Timeout       time.Duration
	SkipTLSVerify bool
}

// DefaultConfig returns default HTTP loop configuration
func DefaultConfig() *Config {
	return &Config{
		Tries:     20,
		UserAgent: "url-retriever/1.0",
		Timeout:   15 * time.Minute,
	}
}

// Loop implements port.HTTPLoop with net/http
type Loop struct {
	config  *Config
	files   port.OutputFiles
	engine  *transfer.Engine
	backoff port.Backoff
	ledger  *accounting.Ledger
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// Ensure Loop implements port.HTTPLoop
var _ port.HTTPLoop = (*Loop)(nil)

// New creates a new HTTP loop
func New(
	cfg *Config,
	files port.OutputFiles,
	engine *transfer.Engine,
	backoff port.Backoff,
	ledger *accounting.Ledger,
	logger *zap.Logger,
) *Loop {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Loop{
		config:  cfg,
		files:   files,
		engine:  engine,
		backoff: backoff,
		ledger:  ledger,
		logger:  logger,
		clients: make(map[string]*http.Client),
	}
}

// Fetch retrieves req.URL into its local file, retrying transient
// failures up to the configured number of tries
func (l *Loop) Fetch(ctx context.Context, req port.HTTPRequest) domain.Outcome {
	client := l.client(req.Proxy)
	localFile := l.files.LocalPath(req.URL)

	last := domain.Failed(domain.StatusNoConnection)
	resume := l.config.Continue
	var retryAfter time.Duration
	for attempt := 1; l.config.Tries == 0 || attempt <= l.config.Tries; attempt++ {
		if err := l.backoff.DelayBeforeRetry(ctx, attempt, retryAfter); err != nil {
			l.logger.Info("retrieval canceled", zap.String("url", req.URL.Raw), zap.Error(err))
			return last
		}

		outcome, err := l.attempt(ctx, client, req, localFile, resume)
		if err == nil {
			return outcome
		}
		last = outcome

		if !domain.IsRetryable(err) || ctx.Err() != nil {
			l.logger.Error("HTTP retrieval failed",
				zap.String("url", req.URL.Raw),
				zap.Int("attempt", attempt),
				zap.Stringer("status", outcome.Status),
				zap.Error(err))
			return outcome
		}

		fields := []zap.Field{
			zap.String("url", req.URL.Raw),
			zap.Int("attempt", attempt),
			zap.Error(err),
		}
		retryAfter, _ = domain.GetRetryAfter(err)
		if retryAfter > 0 {
			fields = append(fields, zap.Duration("retry_after", retryAfter))
		}
		l.logger.Warn("HTTP attempt failed", fields...)
		l.backoff.Notice(attempt, l.config.Tries)

		// Later attempts pick up where a partial transfer stopped.
		if outcome.LocalFile != "" {
			resume = true
		}
	}
	return last
}

// attempt performs one request. A nil error means the outcome is final;
// retryable errors are wrapped in domain.RetryableError.
func (l *Loop) attempt(
	ctx context.Context,
	client *http.Client,
	req port.HTTPRequest,
	localFile string,
	resume bool,
) (domain.Outcome, error) {
	var restart int64
	if resume && l.files.Exists(localFile) {
		if size, err := l.files.Size(localFile); err == nil {
			restart = size
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL.Raw, nil)
	if err != nil {
		return domain.Failed(domain.StatusURLError), fmt.Errorf("build request: %w", err)
	}
	if l.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", l.config.UserAgent)
	}
	if req.Referrer != "" {
		httpReq.Header.Set("Referer", req.Referrer)
	}
	if restart > 0 {
		httpReq.Header.Set("Range", "bytes="+strconv.FormatInt(restart, 10)+"-")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Failed(domain.StatusNoConnection), ctx.Err()
		}
		return domain.Failed(domain.StatusNoConnection), domain.NewRetryableError(err, 0)
	}
	defer resp.Body.Close()

	l.logger.Debug("HTTP response",
		zap.String("url", req.URL.Raw),
		zap.Int("status_code", resp.StatusCode),
		zap.Int64("restart", restart))

	switch {
	case isRedirect(resp.StatusCode, resp.Header.Get("Location")):
		return domain.Redirect(resp.Header.Get("Location")), nil

	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && restart > 0:
		// Nothing left to fetch.
		l.logger.Info("file already fully retrieved", zap.String("local_file", localFile))
		return domain.Completed(localFile, isHTMLFile(localFile), 0), nil

	case resp.StatusCode >= 500:
		return domain.Failed(domain.StatusHTTPError),
			domain.NewRetryableError(fmt.Errorf("server error: %s", resp.Status), parseRetryAfter(resp))

	case resp.StatusCode >= 400:
		return domain.Failed(domain.StatusHTTPError), fmt.Errorf("client error: %s", resp.Status)
	}

	return l.receive(ctx, resp, localFile, restart)
}

// receive streams a successful response body into localFile
func (l *Loop) receive(ctx context.Context, resp *http.Response, localFile string, restart int64) (domain.Outcome, error) {
	appendMode := restart > 0 && resp.StatusCode == http.StatusPartialContent
	if !appendMode {
		restart = 0
	}

	var expected int64
	useExpected := resp.ContentLength >= 0
	if useExpected {
		expected = restart + resp.ContentLength
	}

	conn := stream.NewConn(resp.Body, resp.TLS != nil)
	buf, err := stream.Sniff(conn, sniffLen)
	if err != nil {
		return domain.Failed(domain.StatusNoConnection),
			domain.NewRetryableError(fmt.Errorf("%w: %w", domain.ErrReadFailed, err), 0)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(buf.Peek())
	}
	html := isHTML(contentType)

	out, err := l.files.Open(localFile, appendMode)
	if err != nil {
		return domain.Failed(domain.StatusWriteError), err
	}

	length, code, drainErr := l.engine.Drain(ctx, conn, buf, out, restart, expected, useExpected)
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
		zap.String("url", resp.Request.URL.String()),
		zap.String("local_file", localFile),
		zap.Int64("bytes", n),
		zap.Bool("html", html))
	return domain.Completed(localFile, html, n), nil
}

// client returns the HTTP client for a proxy, creating it on first use.
// Redirects are never followed by the client itself.
func (l *Loop) client(proxy *domain.URL) *http.Client {
	key := ""
	if proxy != nil {
		key = proxy.Raw
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.clients[key]; ok {
		return c
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true, // Bytes are stored as served
	}
	if l.config.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if proxy != nil {
		if proxyURL, err := url.Parse(proxy.Raw); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			registerProxiedSchemes(transport, proxyURL)
		}
	}

	c := &http.Client{
		Timeout:   l.config.Timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	l.clients[key] = c
	return c
}

// Close releases idle connections of every client
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.clients {
		c.CloseIdleConnections()
	}
}

// isRedirect reports whether a response redirects. 300 Multiple Choices
// only does when it names a Location; otherwise its body is the document.
func isRedirect(code int, location string) bool {
	switch code {
	case http.StatusMultipleChoices:
		return location != ""
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// isHTML reports whether a Content-Type names an HTML document
func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	switch strings.ToLower(mediaType) {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

func isHTMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

// parseRetryAfter reads a Retry-After header given in seconds
func parseRetryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
