package accounting

import (
	"math"
	"sync"
)

// Ledger tracks bytes downloaded during one run against the quota, plus
// the number of retrievals performed.
//
// Once the byte counter overflows it is pinned at the maximum value and
// never changes again; quota checks then assume the quota is not exceeded.
type Ledger struct {
	mu         sync.Mutex
	quota      uint64
	downloaded uint64
	overflow   bool
	retrievals int
}

// New creates a Ledger. A zero quota disables quota checks.
func New(quota uint64) *Ledger {
	return &Ledger{quota: quota}
}

// Increase adds n bytes to the downloaded counter
func (l *Ledger) Increase(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.overflow {
		return
	}
	old := l.downloaded
	l.downloaded += n
	if l.downloaded < old {
		l.overflow = true
		l.downloaded = math.MaxUint64
	}
}

// ExceedsQuota returns true if the downloaded bytes are strictly above the
// quota. Returns false when no quota is set or the counter overflowed.
func (l *Ledger) ExceedsQuota() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.quota == 0 {
		return false
	}
	if l.overflow {
		return false
	}
	return l.downloaded > l.quota
}

// Downloaded returns the downloaded byte counter
func (l *Ledger) Downloaded() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.downloaded
}

// Overflowed reports whether the counter wrapped around
func (l *Ledger) Overflowed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overflow
}

// Quota returns the configured quota in bytes
func (l *Ledger) Quota() uint64 {
	return l.quota
}

// RecordRetrieval counts one finished retrieval
func (l *Ledger) RecordRetrieval() {
	l.mu.Lock()
	l.retrievals++
	l.mu.Unlock()
}

// Retrievals returns the number of finished retrievals
func (l *Ledger) Retrievals() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retrievals
}
