package port

import (
	"context"
	"time"

	"github.com/vertextoedge/url-retriever/internal/domain"
)

// URLParser parses and merges URLs
type URLParser interface {
	// Parse parses text into a canonical URL.
	// Returns an error wrapping domain.ErrInvalidURL on failure.
	Parse(raw string) (domain.URL, error)

	// Merge resolves location against base. Absolute locations are
	// returned unchanged.
	Merge(base, location string) string
}

// ProxyResolver decides which proxy serves a URL
type ProxyResolver interface {
	// Enabled reports whether proxying is globally on
	Enabled() bool

	// Proxy returns the proxy URL configured for scheme, or ""
	Proxy(scheme string) string

	// Exempt reports whether host bypasses the proxy
	Exempt(host string) bool
}

// HTTPRequest is one HTTP(S) retrieval handed to the HTTP loop
type HTTPRequest struct {
	URL      domain.URL
	Referrer string

	// Proxy is set when the request goes through an HTTP proxy
	Proxy *domain.URL
}

// HTTPLoop retrieves a URL over HTTP(S), retrying as configured.
// A redirect response is reported as domain.StatusRedirected.
type HTTPLoop interface {
	Fetch(ctx context.Context, req HTTPRequest) domain.Outcome
}

// FTPRequest is one FTP retrieval handed to the FTP loop
type FTPRequest struct {
	URL domain.URL

	// Recursive allows descending into directory listings
	Recursive bool
}

// FTPLoop retrieves a URL over FTP
type FTPLoop interface {
	Fetch(ctx context.Context, req FTPRequest) domain.Outcome
}

// Registry records fully retrieved files for later recursive processing
type Registry interface {
	// RegisterDownload records that url was saved to localFile
	RegisterDownload(url, localFile string) error

	// RegisterHTML records that localFile holds HTML fetched from url
	RegisterHTML(url, localFile string) error
}

// Descender crawls onward from a retrieved HTML file
type Descender interface {
	Descend(ctx context.Context, localFile, finalURL string) domain.Status
}

// RobotsPolicy answers robots.txt queries
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// URLSource yields the URLs of a batch in order
type URLSource interface {
	// Next returns the next URL, or false when the source is exhausted
	Next() (string, bool)

	// Err returns the error that ended iteration early, if any
	Err() error
}

// Backoff paces the attempts a protocol loop makes for one URL
type Backoff interface {
	// DelayBeforeRetry waits before attempt (counted from 1), for no
	// less than atLeast
	DelayBeforeRetry(ctx context.Context, attempt int, atLeast time.Duration) error

	// Notice reports the failure of attempt; 0 maxAttempts means unlimited
	Notice(attempt, maxAttempts int)
}

// LinkExtractor lists the URLs an HTML file refers to
type LinkExtractor interface {
	// Links returns absolute URLs found in localFile, resolving relative
	// references against baseURL
	Links(localFile, baseURL string) ([]string, error)
}
