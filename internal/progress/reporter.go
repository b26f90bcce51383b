package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/vertextoedge/url-retriever/internal/domain/vo"
	"github.com/vertextoedge/url-retriever/internal/port"
	"github.com/vertextoedge/url-retriever/internal/util/ratelimiter"
)

// Style selects how progress is drawn
type Style int

const (
	// StyleAuto picks StyleBar on terminals and StyleDot elsewhere
	StyleAuto Style = iota

	// StyleBar redraws one line with a carriage return
	StyleBar

	// StyleDot prints a dot per DotBytes and a summary every line
	StyleDot
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// Style is the drawing style.
	// Default: StyleAuto
	Style Style

	// UpdateInterval bounds how often the bar is redrawn.
	// Default: 200ms
	UpdateInterval time.Duration

	// DotBytes is the number of bytes one dot stands for.
	// Default: 1KB
	DotBytes int64

	// DotsPerLine is the number of dots per output line.
	// Default: 50
	DotsPerLine int

	// Now is the time source.
	// Default: time.Now
	Now func() time.Time
}

// Factory creates reporters sharing the same options
type Factory struct {
	opts Options
}

// Ensure Factory implements port.ProgressFactory
var _ port.ProgressFactory = (*Factory)(nil)

// NewFactory creates a new Factory, resolving StyleAuto against Output
func NewFactory(opts Options) *Factory {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 200 * time.Millisecond
	}
	if opts.DotBytes <= 0 {
		opts.DotBytes = vo.KB
	}
	if opts.DotsPerLine <= 0 {
		opts.DotsPerLine = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Style == StyleAuto {
		opts.Style = StyleDot
		if f, ok := opts.Output.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			opts.Style = StyleBar
		}
	}
	return &Factory{opts: opts}
}

// NewProgress starts a reporter for one transfer
func (f *Factory) NewProgress(restart, expected int64) port.Progress {
	r := &Reporter{
		opts:     f.opts,
		restart:  restart,
		expected: expected,
		start:    f.opts.Now(),
		throttle: ratelimiter.New(f.opts.UpdateInterval).WithClock(f.opts.Now),
	}
	if restart > 0 {
		fmt.Fprintf(r.opts.Output, "    [ skipping %s ]\n", vo.ByteSize(restart))
	}
	return r
}

// Reporter outputs human-readable progress for one transfer.
type Reporter struct {
	opts     Options
	restart  int64
	expected int64
	received int64
	start    time.Time
	throttle *ratelimiter.Limiter
	dots     int64
	finished bool
}

// Update records n more bytes
func (r *Reporter) Update(n int64) {
	if r.finished {
		return
	}
	r.received += n

	switch r.opts.Style {
	case StyleDot:
		r.printDots()
	default:
		if allowed, _ := r.throttle.Allow(); allowed {
			r.printBar()
		}
	}
}

// Finish prints the final line. Later calls are ignored.
func (r *Reporter) Finish() {
	if r.finished {
		return
	}
	r.finished = true

	switch r.opts.Style {
	case StyleDot:
		fmt.Fprintf(r.opts.Output, " %s\n", r.summary())
	default:
		r.printBar()
		fmt.Fprintln(r.opts.Output)
	}
}

// Received returns the bytes received since the restart offset
func (r *Reporter) Received() int64 {
	return r.received
}

func (r *Reporter) printBar() {
	fmt.Fprintf(r.opts.Output, "\r%s", r.summary())
}

// printDots prints one dot per DotBytes received and ends a line with a
// summary every DotsPerLine dots
func (r *Reporter) printDots() {
	target := r.received / r.opts.DotBytes
	for r.dots < target {
		if r.dots%int64(r.opts.DotsPerLine) == 0 {
			fmt.Fprintf(r.opts.Output, "%8dK ", (r.restart+r.dots*r.opts.DotBytes)/vo.KB)
		}
		fmt.Fprint(r.opts.Output, ".")
		r.dots++
		if r.dots%int64(r.opts.DotsPerLine) == 0 {
			fmt.Fprintf(r.opts.Output, " %s\n", r.summary())
		}
	}
}

// summary returns "NN% size rate", omitting the percentage when the
// expected length is unknown
func (r *Reporter) summary() string {
	total := r.restart + r.received
	elapsed := r.opts.Now().Sub(r.start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	var b strings.Builder
	if r.expected > 0 {
		pct := float64(total) / float64(r.expected) * 100
		if pct > 100 {
			pct = 100
		}
		fmt.Fprintf(&b, "%3.0f%% ", pct)
	}
	fmt.Fprintf(&b, "%s %s", vo.ByteSize(total), vo.FormatRate(r.received, elapsed, true))
	return b.String()
}
