package urlparse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/vertextoedge/url-retriever/internal/domain"
)

var defaultPorts = map[string]string{
	domain.SchemeHTTP:  "80",
	domain.SchemeHTTPS: "443",
	domain.SchemeFTP:   "21",
}

// Parser implements port.URLParser on top of net/url
type Parser struct{}

// NewParser creates a new Parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses text into a canonical URL. Text without a scheme is
// taken as an http URL.
func (p *Parser) Parse(raw string) (domain.URL, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.URL{}, fmt.Errorf("%w: empty", domain.ErrInvalidURL)
	}
	if !strings.Contains(text, "://") {
		text = domain.SchemeHTTP + "://" + text
	}

	parsed, err := url.Parse(text)
	if err != nil {
		return domain.URL{}, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if _, ok := defaultPorts[scheme]; !ok {
		return domain.URL{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedScheme, parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return domain.URL{}, fmt.Errorf("%w: %s", domain.ErrMissingHost, raw)
	}

	port := parsed.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	u := domain.URL{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   path,
	}
	if parsed.User != nil {
		u.User = parsed.User.Username()
		u.Password, _ = parsed.User.Password()
	}

	canonical := url.URL{
		Scheme:   scheme,
		User:     parsed.User,
		Host:     hostPort(host, port),
		RawQuery: parsed.RawQuery,
	}
	canonical.Path, _ = url.PathUnescape(path)
	canonical.RawPath = path
	u.Raw = canonical.String()

	return u, nil
}

// Merge resolves location against base the way browsers do. When base
// cannot be parsed, location is returned unchanged.
func (p *Parser) Merge(base, location string) string {
	b, err := url.Parse(base)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return b.ResolveReference(ref).String()
}

func hostPort(host, port string) string {
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port == "" {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}
