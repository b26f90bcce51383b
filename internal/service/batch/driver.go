package batch

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

// Config contains batch configuration
type Config struct {
	// Recursive descends into every retrieved HTML page
	Recursive bool

	// DeleteAfter removes each local file once it has been processed
	DeleteAfter bool
}

// Driver runs the retriever over a list of URLs
type Driver struct {
	config    *Config
	retriever Retriever
	descender port.Descender
	files     port.OutputFiles
	ledger    *accounting.Ledger
	events    event.EventDispatcher
	logger    *zap.Logger

	// retained counts retrieved files still present on disk
	retained int
}

// New creates a new batch Driver. descender may be nil when recursion
// is off.
func New(
	cfg *Config,
	r Retriever,
	descender port.Descender,
	files port.OutputFiles,
	ledger *accounting.Ledger,
	events event.EventDispatcher,
	logger *zap.Logger,
) *Driver {
	if cfg == nil {
		cfg = &Config{}
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	return &Driver{
		config:    cfg,
		retriever: r,
		descender: descender,
		files:     files,
		ledger:    ledger,
		events:    events,
		logger:    logger,
	}
}

// RetrieveAll retrieves every URL of source in order. It returns the
// aggregate status and the number of URLs taken from source, including
// one that was refused because the quota was already exceeded.
//
// The aggregate status is the first fatal item status, or
// StatusQuotaExceeded when the quota stopped the batch.
func (d *Driver) RetrieveAll(ctx context.Context, source port.URLSource) (domain.Status, int) {
	status := domain.StatusOK
	count := 0

	for {
		rawURL, ok := source.Next()
		if !ok {
			break
		}
		count++

		if d.ledger.ExceedsQuota() {
			d.logger.Warn("stopping batch",
				zap.Error(domain.ErrQuotaExceeded),
				zap.Uint64("downloaded", d.ledger.Downloaded()),
				zap.Uint64("quota", d.ledger.Quota()))
			d.events.Dispatch(event.NewQuotaExceeded(d.ledger.Downloaded(), d.ledger.Quota()))
			status = domain.StatusQuotaExceeded
			break
		}
		if err := ctx.Err(); err != nil {
			d.logger.Warn("batch interrupted", zap.Int("count", count), zap.Error(err))
			if status == domain.StatusOK {
				status = domain.StatusNoConnection
			}
			break
		}

		itemStatus := d.process(ctx, rawURL)
		if itemStatus == domain.StatusQuotaExceeded {
			status = itemStatus
		} else if itemStatus.Fatal() && status == domain.StatusOK {
			status = itemStatus
		}
	}

	if err := source.Err(); err != nil {
		d.logger.Error("failed to read URL list", zap.Error(err))
	}

	return status, count
}

// process retrieves one URL, descends into it if asked and applies the
// delete-after policy
func (d *Driver) process(ctx context.Context, rawURL string) domain.Status {
	res := d.retriever.Retrieve(ctx, rawURL, "")
	status := res.Status

	if d.config.Recursive && d.descender != nil && res.Status == domain.StatusOK && res.Flags.HTML && res.LocalFile != "" {
		status = d.descender.Descend(ctx, res.LocalFile, res.FinalURL)
	}

	if d.config.DeleteAfter && res.LocalFile != "" && d.files.Exists(res.LocalFile) {
		d.logger.Info("Removing file", zap.String("local_file", res.LocalFile))
		if err := d.files.Remove(res.LocalFile); err != nil {
			d.logger.Error("failed to remove file",
				zap.String("local_file", res.LocalFile),
				zap.Error(err))
		} else {
			d.events.Dispatch(event.NewFileRemoved(res.LocalFile, "delete_after"))
		}
		res.Flags.Retrieved = false
	}

	if res.Flags.Retrieved {
		d.retained++
	}
	return status
}

// Retained returns how many retrieved files the batch kept on disk
func (d *Driver) Retained() int {
	return d.retained
}
