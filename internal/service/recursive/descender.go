package recursive

import (
	"context"

	"go.uber.org/zap"

	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/domain/event"
	"github.com/vertextoedge/url-retriever/internal/port"
	"github.com/vertextoedge/url-retriever/internal/service/accounting"
	"github.com/vertextoedge/url-retriever/internal/service/retriever"
)

// Retriever retrieves one URL
type Retriever interface {
	Retrieve(ctx context.Context, rawURL, referrer string) retriever.Result
}

// Config contains recursion settings
type Config struct {
	// MaxDepth is how many link levels below the start page are followed
	MaxDepth int

	// SpanHosts allows following links to other hosts
	SpanHosts bool

	// Robots honours robots.txt
	Robots bool

	// DeleteAfter removes descendant files once processed
	DeleteAfter bool
}

// DefaultConfig returns default recursion settings
func DefaultConfig() *Config {
	return &Config{MaxDepth: 5, Robots: true}
}

// Descender crawls breadth-first from a retrieved HTML page
type Descender struct {
	config    *Config
	retriever Retriever
	parser    port.URLParser
	links     port.LinkExtractor
	robots    port.RobotsPolicy
	files     port.OutputFiles
	ledger    *accounting.Ledger
	events    event.EventDispatcher
	logger    *zap.Logger

	// visited holds every URL queued during the run
	visited map[string]struct{}
}

// Ensure Descender implements port.Descender
var _ port.Descender = (*Descender)(nil)

// New creates a new Descender. robots may be nil.
func New(
	cfg *Config,
	r Retriever,
	parser port.URLParser,
	links port.LinkExtractor,
	robots port.RobotsPolicy,
	files port.OutputFiles,
	ledger *accounting.Ledger,
	events event.EventDispatcher,
	logger *zap.Logger,
) *Descender {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	return &Descender{
		config:    cfg,
		retriever: r,
		parser:    parser,
		links:     links,
		robots:    robots,
		files:     files,
		ledger:    ledger,
		events:    events,
		logger:    logger,
		visited:   make(map[string]struct{}),
	}
}

type page struct {
	localFile string
	url       string
	depth     int
}

// Descend retrieves the pages reachable from localFile, which holds the
// HTML fetched from finalURL. Returns StatusQuotaExceeded when the quota
// ends the crawl, StatusNoConnection when ctx does, else StatusOK.
func (d *Descender) Descend(ctx context.Context, localFile, finalURL string) domain.Status {
	var startHost string
	if start, err := d.parser.Parse(finalURL); err == nil {
		startHost = start.Host
		d.visited[start.Raw] = struct{}{}
	}
	d.visited[finalURL] = struct{}{}

	queue := []page{{localFile: localFile, url: finalURL}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, status := d.expand(ctx, cur, startHost)
		if status != domain.StatusOK {
			return status
		}
		queue = append(queue, children...)

		if cur.depth > 0 {
			d.deleteAfter(cur.localFile)
		}
	}
	return domain.StatusOK
}

// expand retrieves the links of one page and returns the HTML pages
// among them for the next level
func (d *Descender) expand(ctx context.Context, cur page, startHost string) ([]page, domain.Status) {
	if d.config.MaxDepth > 0 && cur.depth >= d.config.MaxDepth {
		return nil, domain.StatusOK
	}

	links, err := d.links.Links(cur.localFile, cur.url)
	if err != nil {
		d.logger.Warn("failed to read links", zap.String("local_file", cur.localFile), zap.Error(err))
		return nil, domain.StatusOK
	}

	var next []page
	for _, raw := range links {
		if ctx.Err() != nil {
			return nil, domain.StatusNoConnection
		}
		if d.ledger.ExceedsQuota() {
			d.events.Dispatch(event.NewQuotaExceeded(d.ledger.Downloaded(), d.ledger.Quota()))
			return nil, domain.StatusQuotaExceeded
		}
		link, err := d.parser.Parse(raw)
		if err != nil {
			d.logger.Debug("skipping unparsable link", zap.String("url", raw), zap.Error(err))
			continue
		}
		if !d.accept(ctx, link, startHost) {
			continue
		}
		d.visited[link.Raw] = struct{}{}

		res := d.retriever.Retrieve(ctx, link.Raw, cur.url)
		if res.FinalURL != "" {
			d.visited[res.FinalURL] = struct{}{}
		}
		if res.Status != domain.StatusOK || res.LocalFile == "" {
			continue
		}

		if res.Flags.HTML {
			next = append(next, page{localFile: res.LocalFile, url: res.FinalURL, depth: cur.depth + 1})
		} else {
			d.deleteAfter(res.LocalFile)
		}
	}
	return next, domain.StatusOK
}

// accept reports whether the canonical link should be retrieved
func (d *Descender) accept(ctx context.Context, link domain.URL, startHost string) bool {
	if _, seen := d.visited[link.Raw]; seen {
		return false
	}
	if !d.config.SpanHosts && link.Host != startHost {
		d.logger.Debug("skipping foreign host", zap.String("url", link.Raw))
		return false
	}
	if d.config.Robots && d.robots != nil && !d.robots.Allowed(ctx, link.Raw) {
		d.logger.Debug("excluded by robots.txt", zap.String("url", link.Raw))
		return false
	}
	return true
}

func (d *Descender) deleteAfter(localFile string) {
	if !d.config.DeleteAfter || !d.files.Exists(localFile) {
		return
	}
	if err := d.files.Remove(localFile); err != nil {
		d.logger.Error("failed to remove file", zap.String("local_file", localFile), zap.Error(err))
		return
	}
	d.events.Dispatch(event.NewFileRemoved(localFile, "delete_after"))
}
