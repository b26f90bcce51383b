package httploop

import (
	"encoding/base64"
	"net/http"
	"net/url"
)

// proxiedSchemes are retrieved through an HTTP proxy although net/http
// cannot dial them itself
var proxiedSchemes = []string{"ftp"}

// proxyTransport forwards a request to an HTTP proxy with the target in
// absolute form, e.g. "GET ftp://host/path HTTP/1.1"
type proxyTransport struct {
	proxy *url.URL
	next  http.RoundTripper
}

func (p *proxyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	// An opaque URL is written verbatim as the request target.
	out.URL = &url.URL{
		Scheme: p.proxy.Scheme,
		Host:   p.proxy.Host,
		Opaque: req.URL.String(),
	}
	out.Host = req.URL.Host
	if user := p.proxy.User; user != nil {
		password, _ := user.Password()
		creds := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + password))
		out.Header.Set("Proxy-Authorization", "Basic "+creds)
	}

	resp, err := p.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

// registerProxiedSchemes routes proxiedSchemes of transport to proxyURL
func registerProxiedSchemes(transport *http.Transport, proxyURL *url.URL) {
	direct := transport.Clone()
	direct.Proxy = nil
	for _, scheme := range proxiedSchemes {
		transport.RegisterProtocol(scheme, &proxyTransport{proxy: proxyURL, next: direct})
	}
}
