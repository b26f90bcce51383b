package retriever

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/domain/event"
	"github.com/vertextoedge/url-retriever/internal/port"
	"github.com/vertextoedge/url-retriever/internal/service/accounting"
)

// Config contains retriever configuration
type Config struct {
	// Referrer is sent when the caller supplies none
	Referrer string

	// Recursive enables recursive FTP retrieval
	Recursive bool

	// MaxRedirects bounds the hops of one retrieval; 0 means unbounded
	MaxRedirects int
}

// DefaultConfig returns default retriever configuration
func DefaultConfig() *Config {
	return &Config{MaxRedirects: 20}
}

// Result is the outcome of one Retrieve call
type Result struct {
	Status domain.Status

	// LocalFile is the file the transfer wrote, if any
	LocalFile string

	// FinalURL is the canonical URL after following redirects
	FinalURL string

	Flags domain.Flags
}

// Retriever picks the transport for a URL and follows redirects
type Retriever struct {
	config   *Config
	parser   port.URLParser
	proxies  port.ProxyResolver
	http     port.HTTPLoop
	ftp      port.FTPLoop
	registry port.Registry
	ledger   *accounting.Ledger
	events   event.EventDispatcher
	logger   *zap.Logger
}

// New creates a new Retriever
func New(
	cfg *Config,
	parser port.URLParser,
	proxies port.ProxyResolver,
	http port.HTTPLoop,
	ftp port.FTPLoop,
	registry port.Registry,
	ledger *accounting.Ledger,
	events event.EventDispatcher,
	logger *zap.Logger,
) *Retriever {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	return &Retriever{
		config:   cfg,
		parser:   parser,
		proxies:  proxies,
		http:     http,
		ftp:      ftp,
		registry: registry,
		ledger:   ledger,
		events:   events,
		logger:   logger,
	}
}

// attempt is the state carried from one redirect hop to the next
type attempt struct {
	current domain.URL

	// visited holds every URL of the redirect chain; nil until the
	// first redirect
	visited map[string]struct{}
	hops    int
}

// step is what one hop produced: either a next state or a final result
type step struct {
	next  *attempt
	final Result
}

// Retrieve fetches rawURL, following redirects, and registers the
// downloaded file. referrer may be empty.
func (r *Retriever) Retrieve(ctx context.Context, rawURL, referrer string) (res Result) {
	start := time.Now()
	defer func() {
		r.events.Dispatch(event.NewURLRetrieved(rawURL, res.FinalURL, res.LocalFile, res.Status, res.Flags.HTML, time.Since(start)))
		r.ledger.RecordRetrieval()
	}()

	u, err := r.parser.Parse(rawURL)
	if err != nil {
		r.logger.Error("invalid URL", zap.String("url", rawURL), zap.Error(err))
		return Result{Status: domain.StatusURLError}
	}
	if referrer == "" {
		referrer = r.config.Referrer
	}

	state := &attempt{current: u}
	for {
		s := r.hop(ctx, state, referrer)
		if s.next == nil {
			return s.final
		}
		state = s.next
	}
}

// hop performs one transfer for state.current and decides whether to
// continue with a redirect target
func (r *Retriever) hop(ctx context.Context, state *attempt, referrer string) step {
	outcome, status := r.dispatch(ctx, state, referrer)
	if status != domain.StatusOK {
		return step{final: Result{Status: status}}
	}

	if outcome.Status != domain.StatusRedirected {
		return step{final: r.finish(state.current, outcome)}
	}

	// Redirect: any local file of this hop is dropped.
	if outcome.NewLocation == "" {
		r.logger.Error("redirect rejected",
			zap.String("url", state.current.Raw),
			zap.Error(domain.ErrMissingLocation))
		return step{final: Result{Status: domain.StatusURLError}}
	}

	// Servers often send relative locations; resolve them like browsers do.
	merged := r.parser.Merge(state.current.Raw, outcome.NewLocation)
	next, err := r.parser.Parse(merged)
	if err != nil {
		r.logger.Error("invalid redirect location",
			zap.String("url", state.current.Raw),
			zap.String("location", merged),
			zap.Error(err))
		return step{final: Result{Status: domain.StatusURLError}}
	}

	if state.visited == nil {
		state.visited = map[string]struct{}{state.current.Raw: {}}
	}
	if _, seen := state.visited[next.Raw]; seen {
		r.events.Dispatch(event.NewRedirectCycleDetected(next.Raw, state.hops+1))
		return step{final: Result{Status: domain.StatusRedirectCycle}}
	}
	if r.config.MaxRedirects > 0 && state.hops >= r.config.MaxRedirects {
		r.logger.Warn("too many redirects",
			zap.String("url", next.Raw),
			zap.Int("max_redirects", r.config.MaxRedirects))
		return step{final: Result{Status: domain.StatusTooManyRedirects}}
	}
	state.visited[next.Raw] = struct{}{}

	r.events.Dispatch(event.NewRedirectFollowed(state.current.Raw, next.Raw, state.hops+1))
	return step{next: &attempt{
		current: next,
		visited: state.visited,
		hops:    state.hops + 1,
	}}
}

// dispatch selects the protocol loop for the current URL. A non-OK
// status means no transfer took place.
func (r *Retriever) dispatch(ctx context.Context, state *attempt, referrer string) (domain.Outcome, domain.Status) {
	u := state.current

	if r.useProxy(u) {
		proxy, err := r.resolveProxy(u.Scheme)
		if err != nil {
			r.logger.Error("proxy configuration error",
				zap.String("url", u.Raw),
				zap.String("scheme", u.Scheme),
				zap.Error(err))
			return domain.Outcome{}, domain.StatusProxyError
		}
		return r.http.Fetch(ctx, port.HTTPRequest{URL: u, Referrer: referrer, Proxy: &proxy}), domain.StatusOK
	}

	switch u.Scheme {
	case domain.SchemeHTTP, domain.SchemeHTTPS:
		return r.http.Fetch(ctx, port.HTTPRequest{URL: u, Referrer: referrer}), domain.StatusOK
	case domain.SchemeFTP:
		// A redirect must not start a recursive FTP retrieval.
		recursive := r.config.Recursive && state.visited == nil
		return r.ftp.Fetch(ctx, port.FTPRequest{URL: u, Recursive: recursive}), domain.StatusOK
	default:
		r.logger.Error("unsupported scheme", zap.String("url", u.Raw), zap.String("scheme", u.Scheme))
		return domain.Outcome{}, domain.StatusURLError
	}
}

// useProxy reports whether u should go through a proxy
func (r *Retriever) useProxy(u domain.URL) bool {
	if r.proxies == nil || !r.proxies.Enabled() {
		return false
	}
	return r.proxies.Proxy(u.Scheme) != "" && !r.proxies.Exempt(u.Host)
}

// resolveProxy parses the proxy configured for scheme
func (r *Retriever) resolveProxy(scheme string) (domain.URL, error) {
	raw := r.proxies.Proxy(scheme)
	if raw == "" {
		return domain.URL{}, domain.ErrProxyNotFound
	}
	proxy, err := r.parser.Parse(raw)
	if err != nil {
		return domain.URL{}, err
	}
	if proxy.Scheme != domain.SchemeHTTP {
		return domain.URL{}, errors.Join(domain.ErrProxyScheme, errors.New(proxy.Raw))
	}
	return proxy, nil
}

// finish registers a completed download and builds the final result
func (r *Retriever) finish(u domain.URL, outcome domain.Outcome) Result {
	if outcome.LocalFile != "" && outcome.Flags.Retrieved {
		if err := r.registry.RegisterDownload(u.Raw, outcome.LocalFile); err != nil {
			r.logger.Warn("failed to register download",
				zap.String("url", u.Raw),
				zap.String("local_file", outcome.LocalFile),
				zap.Error(err))
		}
		if outcome.Flags.HTML {
			if err := r.registry.RegisterHTML(u.Raw, outcome.LocalFile); err != nil {
				r.logger.Warn("failed to register html",
					zap.String("url", u.Raw),
					zap.String("local_file", outcome.LocalFile),
					zap.Error(err))
			}
		}
	}

	return Result{
		Status:    outcome.Status,
		LocalFile: outcome.LocalFile,
		FinalURL:  u.Raw,
		Flags:     outcome.Flags,
	}
}
