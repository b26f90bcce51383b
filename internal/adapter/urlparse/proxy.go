package urlparse

import (
	"strings"

	"github.com/vertextoedge/url-retriever/internal/domain"
)

// ProxyConfig holds per-scheme proxy settings
type ProxyConfig struct {
	Enabled    bool
	HTTPProxy  string
	HTTPSProxy string
	FTPProxy   string

	// NoProxy lists host suffixes that bypass the proxy
	NoProxy []string
}

// ProxyResolver implements port.ProxyResolver from static settings
type ProxyResolver struct {
	enabled bool
	proxies map[string]string
	noProxy []string
}

// NewProxyResolver creates a new ProxyResolver
func NewProxyResolver(cfg ProxyConfig) *ProxyResolver {
	noProxy := make([]string, 0, len(cfg.NoProxy))
	for _, s := range cfg.NoProxy {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			noProxy = append(noProxy, s)
		}
	}
	return &ProxyResolver{
		enabled: cfg.Enabled,
		proxies: map[string]string{
			domain.SchemeHTTP:  cfg.HTTPProxy,
			domain.SchemeHTTPS: cfg.HTTPSProxy,
			domain.SchemeFTP:   cfg.FTPProxy,
		},
		noProxy: noProxy,
	}
}

// Enabled reports whether proxying is on
func (r *ProxyResolver) Enabled() bool {
	return r.enabled
}

// Proxy returns the proxy configured for scheme, or ""
func (r *ProxyResolver) Proxy(scheme string) string {
	return r.proxies[strings.ToLower(scheme)]
}

// Exempt reports whether host matches a no_proxy entry. An entry
// matches the host itself and any subdomain; "*" matches everything.
func (r *ProxyResolver) Exempt(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range r.noProxy {
		if suffix == "*" {
			return true
		}
		bare := strings.TrimPrefix(suffix, ".")
		if host == bare || strings.HasSuffix(host, "."+bare) {
			return true
		}
	}
	return false
}
