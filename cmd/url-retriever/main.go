package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/url-retriever/internal/adapter/filesystem"
	"github.com/vertextoedge/url-retriever/internal/adapter/ftploop"
	"github.com/vertextoedge/url-retriever/internal/adapter/httploop"
	"github.com/vertextoedge/url-retriever/internal/adapter/robots"
	"github.com/vertextoedge/url-retriever/internal/adapter/source"
	"github.com/vertextoedge/url-retriever/internal/adapter/sqlite"
	"github.com/vertextoedge/url-retriever/internal/adapter/urlparse"
	"github.com/vertextoedge/url-retriever/internal/config"
	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/domain/event"
	"github.com/vertextoedge/url-retriever/internal/domain/vo"
	"github.com/vertextoedge/url-retriever/internal/logger"
	"github.com/vertextoedge/url-retriever/internal/port"
	"github.com/vertextoedge/url-retriever/internal/progress"
	"github.com/vertextoedge/url-retriever/internal/service/accounting"
	"github.com/vertextoedge/url-retriever/internal/service/backoff"
	"github.com/vertextoedge/url-retriever/internal/service/batch"
	"github.com/vertextoedge/url-retriever/internal/service/recursive"
	"github.com/vertextoedge/url-retriever/internal/service/retriever"
	"github.com/vertextoedge/url-retriever/internal/service/transfer"
)

const version = "0.1.0"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "url-retriever [URL...]",
		Short: "Retrieve files over HTTP, HTTPS and FTP",
		Long: `url-retriever downloads URLs into a local directory tree, following
redirects, retrying transient failures and resuming partial files.

Retrieve a single file:
  url-retriever https://example.com/file.tar.gz

Retrieve a list of URLs with a 100 MB quota:
  url-retriever -i urls.txt --quota 100M

Mirror a site two levels deep:
  url-retriever -r -l 2 https://example.com/`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
)

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "Path to configuration file")

	// Retrieval
	f.IntP("tries", "t", 20, "Number of attempts per URL (0 means unlimited)")
	f.StringP("wait", "w", "0s", "Pause between retrievals")
	f.String("waitretry", "10s", "Cap of the linear backoff between retries")
	f.StringP("quota", "Q", "0", "Download quota, e.g. 500K or 2G (0 means none)")
	f.BoolP("continue", "c", false, "Resume partially downloaded files")
	f.Bool("delete-after", false, "Delete files after retrieving them")
	f.BoolP("verbose", "v", true, "Report progress while transferring")
	f.String("progress", "auto", "Progress style: auto, bar or dot")
	f.String("referer", "", "Referer header for the first request")
	f.Int("max-redirect", 20, "Maximum redirects per URL (0 means unlimited)")
	f.String("limit-rate", "0", "Bandwidth limit per second, e.g. 200K")
	f.StringP("directory", "P", ".", "Directory to save files under")
	f.StringP("user-agent", "U", "url-retriever/"+version, "User-Agent header")
	f.StringP("timeout", "T", "15m", "Network timeout")
	f.Bool("no-check-cert", false, "Skip TLS certificate verification")
	f.Bool("proxy", true, "Use proxies from the environment or configuration")

	// Recursion
	f.BoolP("recursive", "r", false, "Follow links of retrieved HTML pages")
	f.IntP("level", "l", 5, "Maximum recursion depth")
	f.BoolP("span-hosts", "H", false, "Follow links to other hosts")
	f.Bool("robots", true, "Honour robots.txt when recursing")

	// Input
	f.StringP("input-file", "i", "", "Read URLs from file (- for standard input)")
	f.BoolP("force-html", "F", false, "Treat the input file as HTML")
	f.StringP("base", "B", "", "Base URL for relative links of HTML input")

	// Logging and registry
	f.String("log-level", "info", "Log level: debug, info, warn or error")
	f.String("log-format", "text", "Log format: json or text")
	f.String("registry", ":memory:", "Path of the download registry database")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries a non-zero exit code for a completed run
type exitError struct {
	status domain.Status
}

func (e *exitError) Error() string {
	return fmt.Sprintf("retrieval finished with status %s", e.status)
}

func run(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(args) == 0 && cfg.Input.File == "" {
		return fmt.Errorf("no URLs given; pass URLs or --input-file")
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Info("starting url-retriever",
		zap.String("version", version),
		zap.String("output_dir", cfg.Retrieval.OutputDir),
	)

	// Initialize filesystem manager
	files, err := filesystem.NewManager(cfg.Retrieval.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	// Open download registry
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open registry %s: %w", cfg.Database.Path, err)
	}
	defer store.Close()

	// Events
	stats := event.NewStatsHandler()
	dispatcher := event.NewInMemoryDispatcher()
	dispatcher.Subscribe(event.NewLoggingHandler(zapLogger))
	dispatcher.Subscribe(stats)

	// Run-wide accounting and pacing
	ledger := accounting.New(cfg.Retrieval.GetQuota())
	scheduler := backoff.New(&backoff.Config{
		Wait:      cfg.Retrieval.GetWait(),
		WaitRetry: cfg.Retrieval.GetWaitRetry(),
	}, zapLogger)

	var progressFactory port.ProgressFactory
	if cfg.Retrieval.Verbose {
		progressFactory = progress.NewFactory(progress.Options{
			Output: os.Stderr,
			Style:  progressStyle(cfg.Retrieval.Progress),
		})
	}
	engine := transfer.New(&transfer.Config{
		ChunkSize: transfer.DefaultChunkSize,
		LimitRate: cfg.Retrieval.GetLimitRate(),
		Verbose:   cfg.Retrieval.Verbose,
	}, progressFactory, zapLogger)

	// Transport loops
	httpLoop := httploop.New(&httploop.Config{
		Tries:         cfg.Retrieval.Tries,
		Continue:      cfg.Retrieval.Continue,
		UserAgent:     cfg.Retrieval.UserAgent,
		Timeout:       cfg.Retrieval.GetTimeout(),
		SkipTLSVerify: cfg.Retrieval.SkipTLSVerify,
	}, files, engine, scheduler, ledger, zapLogger)
	defer httpLoop.Close()

	ftpLoop := ftploop.New(&ftploop.Config{
		Tries:    cfg.Retrieval.Tries,
		Continue: cfg.Retrieval.Continue,
		MaxDepth: cfg.Recursion.MaxDepth,
		Timeout:  cfg.Retrieval.GetTimeout(),
	}, nil, files, engine, scheduler, ledger, zapLogger)

	proxies := urlparse.NewProxyResolver(urlparse.ProxyConfig{
		Enabled:    cfg.Proxy.Enabled,
		HTTPProxy:  cfg.Proxy.HTTP,
		HTTPSProxy: cfg.Proxy.HTTPS,
		FTPProxy:   cfg.Proxy.FTP,
		NoProxy:    cfg.Proxy.NoProxy,
	})

	parser := urlparse.NewParser()
	ret := retriever.New(&retriever.Config{
		Referrer:     cfg.Retrieval.Referer,
		Recursive:    cfg.Recursion.Enabled,
		MaxRedirects: cfg.Retrieval.MaxRedirects,
	}, parser, proxies, httpLoop, ftpLoop, store, ledger, dispatcher, zapLogger)

	var descender port.Descender
	if cfg.Recursion.Enabled {
		var policy port.RobotsPolicy
		if cfg.Recursion.Robots {
			policy = robots.NewAgent(&http.Client{Timeout: cfg.Retrieval.GetTimeout()}, cfg.Retrieval.UserAgent, zapLogger)
		}
		descender = recursive.New(&recursive.Config{
			MaxDepth:    cfg.Recursion.MaxDepth,
			SpanHosts:   cfg.Recursion.SpanHosts,
			Robots:      cfg.Recursion.Robots,
			DeleteAfter: cfg.Retrieval.DeleteAfter,
		}, ret, parser, source.NewFileLinks(source.PageSelectors...), policy, files, ledger, dispatcher, zapLogger)
	}

	driver := batch.New(&batch.Config{
		Recursive:   cfg.Recursion.Enabled,
		DeleteAfter: cfg.Retrieval.DeleteAfter,
	}, ret, descender, files, ledger, dispatcher, zapLogger)

	// Input
	var urls port.URLSource = source.NewSlice(args)
	if cfg.Input.File != "" {
		src, closer, err := source.Open(source.Options{
			Path: cfg.Input.File,
			HTML: cfg.Input.HTML,
			Base: cfg.Input.Base,
		})
		if err != nil {
			return err
		}
		defer closer.Close()
		urls = src
	}

	// Cancel the batch on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status, count := driver.RetrieveAll(ctx, urls)

	if cfg.Retrieval.DeleteAfter {
		if err := files.CleanEmptyDirs(); err != nil {
			zapLogger.Warn("failed to clean empty directories", zap.Error(err))
		}
	}

	printSummary(os.Stderr, count, driver.Retained(), ledger, stats.Stats())
	zapLogger.Info("url-retriever finished",
		zap.Stringer("status", status),
		zap.Int("urls", count),
		zap.Int("retrievals", ledger.Retrievals()),
		zap.Uint64("downloaded", ledger.Downloaded()),
	)

	if status.Fatal() {
		return &exitError{status: status}
	}
	return nil
}

func progressStyle(name string) progress.Style {
	switch name {
	case "bar":
		return progress.StyleBar
	case "dot":
		return progress.StyleDot
	default:
		return progress.StyleAuto
	}
}

func printSummary(w io.Writer, count, retained int, ledger *accounting.Ledger, stats map[string]int) {
	fmt.Fprintf(w, "FINISHED run %s: %d URLs, %d retrieved, %d kept, %d failed, %s downloaded",
		logger.RunID(), count, stats["retrieved"], retained, stats["failed"], vo.ByteSize(ledger.Downloaded()))
	if quota := ledger.Quota(); quota > 0 {
		fmt.Fprintf(w, " (quota %s)", vo.ByteSize(quota))
	}
	fmt.Fprintln(w)
	if ledger.ExceedsQuota() {
		fmt.Fprintf(w, "Download quota (%s) EXCEEDED!\n", vo.ByteSize(ledger.Quota()))
	}
}
