package backoff

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config contains the wait settings between retrievals
type Config struct {
	// Wait is slept before every retrieval except the first of the run
	Wait time.Duration

	// WaitRetry caps the linear backoff applied to retries of one URL.
	// Attempt n waits min(n-1 seconds, WaitRetry).
	WaitRetry time.Duration
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Scheduler computes and performs delays between retrieval attempts.
// The first call of the run never sleeps.
type Scheduler struct {
	config *Config
	sleep  Sleeper
	logger *zap.Logger

	mu    sync.Mutex
	first bool
}

// New creates a new Scheduler
func New(cfg *Config, logger *zap.Logger) *Scheduler {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Scheduler{
		config: cfg,
		sleep:  sleepContext,
		logger: logger,
		first:  true,
	}
}

// WithSleeper replaces the sleep function, for tests
func (s *Scheduler) WithSleeper(sleep Sleeper) *Scheduler {
	s.sleep = sleep
	return s
}

// Delay returns how long attempt should wait, and marks the first
// attempt of the run as done
func (s *Scheduler) Delay(attempt int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.first {
		s.first = false
		return 0
	}

	if s.config.WaitRetry > 0 && attempt > 1 {
		d := time.Duration(attempt-1) * time.Second
		if d > s.config.WaitRetry {
			d = s.config.WaitRetry
		}
		return d
	}
	if s.config.Wait > 0 {
		return s.config.Wait
	}
	return 0
}

// DelayBeforeRetry sleeps before attempt (counted from 1). atLeast is a
// server supplied floor, such as Retry-After, raising the scheduled delay.
// Returns the context error if ctx ends while sleeping.
func (s *Scheduler) DelayBeforeRetry(ctx context.Context, attempt int, atLeast time.Duration) error {
	d := s.Delay(attempt)
	if d < atLeast {
		d = atLeast
	}
	if d <= 0 {
		return nil
	}
	s.logger.Debug("waiting before retrieval",
		zap.Int("attempt", attempt),
		zap.Duration("delay", d))
	return s.sleep(ctx, d)
}

// Notice reports what happens after a failed attempt: giving up when
// attempt is the last allowed one, retrying otherwise.
// A maxAttempts of 0 means unlimited.
func (s *Scheduler) Notice(attempt, maxAttempts int) {
	if attempt == maxAttempts {
		s.logger.Info("Giving up.", zap.Int("attempt", attempt))
		return
	}
	s.logger.Info("Retrying.", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
