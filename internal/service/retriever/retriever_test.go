package retriever

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/vertextoedge/url-retriever/internal/adapter/urlparse"
	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/domain/event"
	"github.com/vertextoedge/url-retriever/internal/port"
	"github.com/vertextoedge/url-retriever/internal/service/accounting"
)

// mockHTTPLoop answers each URL with a fixed outcome
type mockHTTPLoop struct {
	outcomes map[string]domain.Outcome
	calls    []port.HTTPRequest
}

func (m *mockHTTPLoop) Fetch(ctx context.Context, req port.HTTPRequest) domain.Outcome {
	m.calls = append(m.calls, req)
	if o, ok := m.outcomes[req.URL.Raw]; ok {
		return o
	}
	return domain.Failed(domain.StatusNoConnection)
}

type mockFTPLoop struct {
	outcome domain.Outcome
	calls   []port.FTPRequest
}

func (m *mockFTPLoop) Fetch(ctx context.Context, req port.FTPRequest) domain.Outcome {
	m.calls = append(m.calls, req)
	return m.outcome
}

type registration struct {
	url, file string
	html      bool
}

type mockRegistry struct {
	registered []registration
	err        error
}

func (m *mockRegistry) RegisterDownload(url, localFile string) error {
	m.registered = append(m.registered, registration{url, localFile, false})
	return m.err
}

func (m *mockRegistry) RegisterHTML(url, localFile string) error {
	m.registered = append(m.registered, registration{url, localFile, true})
	return m.err
}

type staticProxies struct {
	enabled bool
	proxies map[string]string
	exempt  map[string]bool
}

func (p staticProxies) Enabled() bool              { return p.enabled }
func (p staticProxies) Proxy(scheme string) string { return p.proxies[scheme] }
func (p staticProxies) Exempt(host string) bool    { return p.exempt[host] }

type fixture struct {
	r        *Retriever
	http     *mockHTTPLoop
	ftp      *mockFTPLoop
	registry *mockRegistry
	ledger   *accounting.Ledger
	stats    *event.StatsHandler
}

func newFixture(cfg *Config, proxies port.ProxyResolver) *fixture {
	f := &fixture{
		http:     &mockHTTPLoop{outcomes: map[string]domain.Outcome{}},
		ftp:      &mockFTPLoop{outcome: domain.Completed("/out/f", false, 1)},
		registry: &mockRegistry{},
		ledger:   accounting.New(0),
		stats:    event.NewStatsHandler(),
	}
	dispatcher := event.NewInMemoryDispatcher()
	dispatcher.Subscribe(f.stats)
	f.r = New(cfg, urlparse.NewParser(), proxies, f.http, f.ftp, f.registry, f.ledger, dispatcher, zap.NewNop())
	return f
}

func TestRetrieve_Success(t *testing.T) {
	f := newFixture(nil, nil)
	f.http.outcomes["http://h.example/"] = domain.Completed("/out/h.example/index.html", true, 42)

	res := f.r.Retrieve(context.Background(), "h.example", "")

	if res.Status != domain.StatusOK {
		t.Fatalf("Status = %v, want ok", res.Status)
	}
	if res.LocalFile != "/out/h.example/index.html" || res.FinalURL != "http://h.example/" {
		t.Errorf("result = %+v", res)
	}
	want := []registration{
		{"http://h.example/", "/out/h.example/index.html", false},
		{"http://h.example/", "/out/h.example/index.html", true},
	}
	if len(f.registry.registered) != 2 || f.registry.registered[0] != want[0] || f.registry.registered[1] != want[1] {
		t.Errorf("registered = %+v, want %+v", f.registry.registered, want)
	}
	if f.ledger.Retrievals() != 1 {
		t.Errorf("Retrievals() = %d, want 1", f.ledger.Retrievals())
	}
	if f.stats.Stats()["retrieved"] != 1 {
		t.Errorf("stats = %v", f.stats.Stats())
	}
}

func TestRetrieve_NonHTMLRegistersDownloadOnly(t *testing.T) {
	f := newFixture(nil, nil)
	f.http.outcomes["http://h/a.bin"] = domain.Completed("/out/a.bin", false, 1)

	f.r.Retrieve(context.Background(), "http://h/a.bin", "")

	if len(f.registry.registered) != 1 || f.registry.registered[0].html {
		t.Errorf("registered = %+v, want one plain download", f.registry.registered)
	}
}

func TestRetrieve_PartialIsNotRegistered(t *testing.T) {
	f := newFixture(nil, nil)
	f.http.outcomes["http://h/a"] = domain.Partial(domain.StatusNoConnection, "/out/a", 10)

	res := f.r.Retrieve(context.Background(), "http://h/a", "")

	if res.Status != domain.StatusNoConnection {
		t.Errorf("Status = %v, want no_connection", res.Status)
	}
	if len(f.registry.registered) != 0 {
		t.Errorf("registered = %+v, want none", f.registry.registered)
	}
}

func TestRetrieve_RegistryErrorIsNotFatal(t *testing.T) {
	f := newFixture(nil, nil)
	f.registry.err = errors.New("disk full")
	f.http.outcomes["http://h/a"] = domain.Completed("/out/a", false, 1)

	if res := f.r.Retrieve(context.Background(), "http://h/a", ""); res.Status != domain.StatusOK {
		t.Errorf("Status = %v, want ok", res.Status)
	}
}

func TestRetrieve_InvalidURL(t *testing.T) {
	f := newFixture(nil, nil)

	res := f.r.Retrieve(context.Background(), "gopher://h/x", "")

	if res.Status != domain.StatusURLError {
		t.Errorf("Status = %v, want url_error", res.Status)
	}
	if len(f.http.calls)+len(f.ftp.calls) != 0 {
		t.Error("a protocol loop was called for an invalid URL")
	}
	if f.ledger.Retrievals() != 1 {
		t.Errorf("Retrievals() = %d, want 1", f.ledger.Retrievals())
	}
}

func TestRetrieve_RedirectFollowed(t *testing.T) {
	f := newFixture(nil, nil)
	f.http.outcomes["http://h/a/b"] = domain.Redirect("../c")
	f.http.outcomes["http://h/c"] = domain.Completed("/out/c", false, 3)

	res := f.r.Retrieve(context.Background(), "http://h/a/b", "")

	if res.Status != domain.StatusOK {
		t.Fatalf("Status = %v, want ok", res.Status)
	}
	if res.FinalURL != "http://h/c" {
		t.Errorf("FinalURL = %q, want http://h/c", res.FinalURL)
	}
	if len(f.http.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(f.http.calls))
	}
	if f.registry.registered[0].url != "http://h/c" {
		t.Errorf("registered under %q, want final URL", f.registry.registered[0].url)
	}
	if f.stats.Stats()["redirects"] != 1 {
		t.Errorf("redirects = %d, want 1", f.stats.Stats()["redirects"])
	}
	if f.ledger.Retrievals() != 1 {
		t.Errorf("Retrievals() = %d, want 1", f.ledger.Retrievals())
	}
}

func TestRetrieve_RedirectCycle(t *testing.T) {
	f := newFixture(nil, nil)
	f.http.outcomes["http://h/a"] = domain.Redirect("http://h/b")
	f.http.outcomes["http://h/b"] = domain.Redirect("http://h/a")

	res := f.r.Retrieve(context.Background(), "http://h/a", "")

	if res.Status != domain.StatusRedirectCycle {
		t.Errorf("Status = %v, want redirect_cycle", res.Status)
	}
	if len(f.http.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(f.http.calls))
	}
	if f.stats.Stats()["cycles"] != 1 {
		t.Errorf("cycles = %d, want 1", f.stats.Stats()["cycles"])
	}
	if f.ledger.Retrievals() != 1 {
		t.Errorf("Retrievals() = %d, want 1", f.ledger.Retrievals())
	}
}

func TestRetrieve_SelfRedirect(t *testing.T) {
	f := newFixture(nil, nil)
	f.http.outcomes["http://h/a"] = domain.Redirect("/a")

	res := f.r.Retrieve(context.Background(), "http://h/a", "")

	if res.Status != domain.StatusRedirectCycle {
		t.Errorf("Status = %v, want redirect_cycle", res.Status)
	}
	if len(f.http.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(f.http.calls))
	}
}

func TestRetrieve_RedirectErrors(t *testing.T) {
	tests := []struct {
		name     string
		location string
	}{
		{"empty location", ""},
		{"unsupported scheme", "gopher://h/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil, nil)
			f.http.outcomes["http://h/a"] = domain.Outcome{
				Status:      domain.StatusRedirected,
				NewLocation: tt.location,
				LocalFile:   "/out/a",
			}

			res := f.r.Retrieve(context.Background(), "http://h/a", "")

			if res.Status != domain.StatusURLError {
				t.Errorf("Status = %v, want url_error", res.Status)
			}
			if res.LocalFile != "" {
				t.Errorf("LocalFile = %q, want dropped", res.LocalFile)
			}
			if len(f.registry.registered) != 0 {
				t.Error("redirect hop was registered")
			}
		})
	}
}

func TestRetrieve_TooManyRedirects(t *testing.T) {
	f := newFixture(&Config{MaxRedirects: 2}, nil)
	f.http.outcomes["http://h/1"] = domain.Redirect("/2")
	f.http.outcomes["http://h/2"] = domain.Redirect("/3")
	f.http.outcomes["http://h/3"] = domain.Redirect("/4")

	res := f.r.Retrieve(context.Background(), "http://h/1", "")

	if res.Status != domain.StatusTooManyRedirects {
		t.Errorf("Status = %v, want too_many_redirects", res.Status)
	}
	if len(f.http.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(f.http.calls))
	}
}

func TestRetrieve_Referrer(t *testing.T) {
	f := newFixture(&Config{Referrer: "http://default.example/"}, nil)
	f.http.outcomes["http://h/a"] = domain.Completed("/out/a", false, 1)

	f.r.Retrieve(context.Background(), "http://h/a", "")
	f.r.Retrieve(context.Background(), "http://h/a", "http://given.example/")

	if f.http.calls[0].Referrer != "http://default.example/" {
		t.Errorf("default referrer = %q", f.http.calls[0].Referrer)
	}
	if f.http.calls[1].Referrer != "http://given.example/" {
		t.Errorf("given referrer = %q", f.http.calls[1].Referrer)
	}
	if f.ledger.Retrievals() != 2 {
		t.Errorf("Retrievals() = %d, want 2", f.ledger.Retrievals())
	}
}

func TestRetrieve_FTP(t *testing.T) {
	t.Run("recursion passed through", func(t *testing.T) {
		f := newFixture(&Config{Recursive: true}, nil)

		res := f.r.Retrieve(context.Background(), "ftp://ftp.h/pub/", "")

		if res.Status != domain.StatusOK {
			t.Errorf("Status = %v, want ok", res.Status)
		}
		if len(f.ftp.calls) != 1 || !f.ftp.calls[0].Recursive {
			t.Errorf("ftp calls = %+v, want one recursive call", f.ftp.calls)
		}
	})

	t.Run("recursion off after redirect", func(t *testing.T) {
		f := newFixture(&Config{Recursive: true}, nil)
		f.http.outcomes["http://h/dl"] = domain.Redirect("ftp://ftp.h/pub/")

		f.r.Retrieve(context.Background(), "http://h/dl", "")

		if len(f.ftp.calls) != 1 || f.ftp.calls[0].Recursive {
			t.Errorf("ftp calls = %+v, want one non-recursive call", f.ftp.calls)
		}
		if !f.r.config.Recursive {
			t.Error("shared recursion setting was changed")
		}
	})
}

func TestRetrieve_Proxy(t *testing.T) {
	tests := []struct {
		name       string
		proxies    staticProxies
		url        string
		wantStatus domain.Status
		wantProxy  string
		wantHTTP   int
	}{
		{
			name:       "proxy used",
			proxies:    staticProxies{enabled: true, proxies: map[string]string{"http": "http://proxy:3128/"}},
			url:        "http://h/a",
			wantStatus: domain.StatusOK,
			wantProxy:  "http://proxy:3128/",
			wantHTTP:   1,
		},
		{
			name:       "ftp through http proxy",
			proxies:    staticProxies{enabled: true, proxies: map[string]string{"ftp": "http://proxy:3128/"}},
			url:        "ftp://ftp.h/f",
			wantStatus: domain.StatusNoConnection,
			wantProxy:  "http://proxy:3128/",
			wantHTTP:   1,
		},
		{
			name:       "disabled",
			proxies:    staticProxies{enabled: false, proxies: map[string]string{"http": "http://proxy:3128/"}},
			url:        "http://h/a",
			wantStatus: domain.StatusOK,
			wantHTTP:   1,
		},
		{
			name:       "exempt host",
			proxies:    staticProxies{enabled: true, proxies: map[string]string{"http": "http://proxy:3128/"}, exempt: map[string]bool{"h": true}},
			url:        "http://h/a",
			wantStatus: domain.StatusOK,
			wantHTTP:   1,
		},
		{
			name:       "non-http proxy",
			proxies:    staticProxies{enabled: true, proxies: map[string]string{"http": "ftp://proxy/"}},
			url:        "http://h/a",
			wantStatus: domain.StatusProxyError,
		},
		{
			name:       "unparsable proxy",
			proxies:    staticProxies{enabled: true, proxies: map[string]string{"http": "http://proxy:port/"}},
			url:        "http://h/a",
			wantStatus: domain.StatusProxyError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil, tt.proxies)
			f.http.outcomes["http://h/a"] = domain.Completed("/out/a", false, 1)

			res := f.r.Retrieve(context.Background(), tt.url, "")

			if res.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", res.Status, tt.wantStatus)
			}
			if len(f.http.calls) != tt.wantHTTP {
				t.Fatalf("http calls = %d, want %d", len(f.http.calls), tt.wantHTTP)
			}
			if tt.wantHTTP > 0 {
				got := ""
				if p := f.http.calls[0].Proxy; p != nil {
					got = p.Raw
				}
				if got != tt.wantProxy {
					t.Errorf("proxy = %q, want %q", got, tt.wantProxy)
				}
			}
			if len(f.ftp.calls) != 0 {
				t.Error("ftp loop called")
			}
			if f.ledger.Retrievals() != 1 {
				t.Errorf("Retrievals() = %d, want 1", f.ledger.Retrievals())
			}
		})
	}
}
