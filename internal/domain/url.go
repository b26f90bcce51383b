package domain

import "strings"

// Supported URL schemes
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeFTP   = "ftp"
)

// URL is a parsed target URL. Raw holds the canonical string form and is
// the identity used for redirect cycle detection and registration.
type URL struct {
	Raw      string
	Scheme   string
	Host     string
	Port     string
	Path     string
	User     string
	Password string
}

// String returns the canonical form
func (u URL) String() string {
	return u.Raw
}

// IsZero reports whether the URL was never parsed
func (u URL) IsZero() bool {
	return u.Raw == ""
}

// IsHTTP returns true for http and https URLs
func (u URL) IsHTTP() bool {
	return u.Scheme == SchemeHTTP || u.Scheme == SchemeHTTPS
}

// IsDirectory returns true when the path names a directory
func (u URL) IsDirectory() bool {
	return u.Path == "" || strings.HasSuffix(u.Path, "/")
}
