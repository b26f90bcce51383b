package event

import (
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case RedirectFollowed:
		h.logger.Info("following redirect",
			zap.String("from", e.From),
			zap.String("to", e.To),
			zap.Int("hop", e.Hop),
		)
	case RedirectCycleDetected:
		h.logger.Warn("redirection cycle detected",
			zap.String("url", e.URL),
			zap.Int("hops", e.Hops),
		)
	case URLRetrieved:
		fields := []zap.Field{
			zap.String("url", e.URL),
			zap.String("final_url", e.FinalURL),
			zap.String("local_file", e.LocalFile),
			zap.Stringer("status", e.Status),
			zap.Bool("html", e.HTML),
			zap.Duration("duration", e.Duration),
		}
		if e.Status.Fatal() {
			h.logger.Warn("retrieval failed", fields...)
		} else {
			h.logger.Info("retrieval finished", fields...)
		}
	case FileRemoved:
		h.logger.Info("removed local file",
			zap.String("local_file", e.LocalFile),
			zap.String("reason", e.Reason),
		)
	case QuotaExceeded:
		h.logger.Warn("download quota exceeded",
			zap.Uint64("downloaded", e.Downloaded),
			zap.Uint64("quota", e.Quota),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
		)
	}
	return nil
}

// HandledEvents returns all events (wildcard)
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"}
}

// StatsHandler counts retrieval events for the end-of-run summary
type StatsHandler struct {
	retrieved int
	failed    int
	redirects int
	cycles    int
	removed   int
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{}
}

// Handle updates counters based on the event
func (h *StatsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case URLRetrieved:
		if e.Status.Fatal() {
			h.failed++
		} else {
			h.retrieved++
		}
	case RedirectFollowed:
		h.redirects++
	case RedirectCycleDetected:
		h.cycles++
	case FileRemoved:
		h.removed++
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *StatsHandler) HandledEvents() []string {
	return []string{
		"url.retrieved",
		"redirect.followed",
		"redirect.cycle_detected",
		"file.removed",
	}
}

// Stats returns current counters
func (h *StatsHandler) Stats() map[string]int {
	return map[string]int{
		"retrieved": h.retrieved,
		"failed":    h.failed,
		"redirects": h.redirects,
		"cycles":    h.cycles,
		"removed":   h.removed,
	}
}
