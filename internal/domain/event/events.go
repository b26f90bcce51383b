package event

import (
	"time"

	"github.com/vertextoedge/url-retriever/internal/domain"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// RedirectFollowed is raised when the retriever moves to a new location
type RedirectFollowed struct {
	BaseEvent
	From string
	To   string
	Hop  int
}

// EventName returns the event name
func (e RedirectFollowed) EventName() string {
	return "redirect.followed"
}

// NewRedirectFollowed creates a new RedirectFollowed event
func NewRedirectFollowed(from, to string, hop int) RedirectFollowed {
	return RedirectFollowed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		From:      from,
		To:        to,
		Hop:       hop,
	}
}

// RedirectCycleDetected is raised when a redirect points back into the chain
type RedirectCycleDetected struct {
	BaseEvent
	URL  string
	Hops int
}

// EventName returns the event name
func (e RedirectCycleDetected) EventName() string {
	return "redirect.cycle_detected"
}

// NewRedirectCycleDetected creates a new RedirectCycleDetected event
func NewRedirectCycleDetected(url string, hops int) RedirectCycleDetected {
	return RedirectCycleDetected{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		Hops:      hops,
	}
}

// URLRetrieved is raised once per finished retrieval, whatever its status
type URLRetrieved struct {
	BaseEvent
	URL       string
	FinalURL  string
	LocalFile string
	Status    domain.Status
	HTML      bool
	Duration  time.Duration
}

// EventName returns the event name
func (e URLRetrieved) EventName() string {
	return "url.retrieved"
}

// NewURLRetrieved creates a new URLRetrieved event
func NewURLRetrieved(url, finalURL, localFile string, status domain.Status, html bool, duration time.Duration) URLRetrieved {
	return URLRetrieved{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		FinalURL:  finalURL,
		LocalFile: localFile,
		Status:    status,
		HTML:      html,
		Duration:  duration,
	}
}

// FileRemoved is raised when a retrieved file is deleted after processing
type FileRemoved struct {
	BaseEvent
	LocalFile string
	Reason    string
}

// EventName returns the event name
func (e FileRemoved) EventName() string {
	return "file.removed"
}

// NewFileRemoved creates a new FileRemoved event
func NewFileRemoved(localFile, reason string) FileRemoved {
	return FileRemoved{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		LocalFile: localFile,
		Reason:    reason,
	}
}

// QuotaExceeded is raised when a batch stops on the download quota
type QuotaExceeded struct {
	BaseEvent
	Downloaded uint64
	Quota      uint64
}

// EventName returns the event name
func (e QuotaExceeded) EventName() string {
	return "quota.exceeded"
}

// NewQuotaExceeded creates a new QuotaExceeded event
func NewQuotaExceeded(downloaded, quota uint64) QuotaExceeded {
	return QuotaExceeded{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		Downloaded: downloaded,
		Quota:      quota,
	}
}
