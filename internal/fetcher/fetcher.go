package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/jkaberg/genie-hass/internal/hub"
	"github.com/jkaberg/genie-hass/internal/rituals"
	"github.com/sirupsen/logrus"
)

// HubSource is the remote "get hubs" operation.
type HubSource interface {
	GetHubs(ctx context.Context) (hub.Hubs, error)
}

// Fetcher owns the cached hub mapping shared by every sensor view.
//
// Refresh contacts the source at most once per interval. Failures are logged
// and swallowed; the previous mapping stays in place. Callers see the same
// thing whether data is fresh, stale, or was never fetched.
type Fetcher struct {
	source   HubSource
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time

	mu          sync.RWMutex
	hubs        hub.Hubs
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a Fetcher. A non-positive interval disables throttling.
func New(source HubSource, interval time.Duration, logger *logrus.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:   source,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		hubs:     hub.Hubs{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Refresh re-fetches the hub mapping unless the last attempt is younger than
// the interval.
func (f *Fetcher) Refresh(ctx context.Context) {
	f.mu.Lock()
	now := f.now()
	if !f.lastAttempt.IsZero() && f.interval > 0 && now.Sub(f.lastAttempt) < f.interval {
		f.mu.Unlock()
		return
	}
	f.lastAttempt = now
	f.mu.Unlock()

	hubs, err := f.source.GetHubs(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = err
	if err != nil {
		if ctx.Err() != nil {
			f.logger.WithError(err).Debug("fetcher: fetch cancelled")
			return
		}
		f.logger.WithError(err).WithField("kind", rituals.KindOf(err).String()).Warn("fetcher: failed to fetch hubs, keeping previous data")
		return
	}
	if hubs == nil {
		hubs = hub.Hubs{}
	}
	f.hubs = hubs
	f.lastSuccess = now
	f.logger.WithField("hubs", len(hubs)).Debug("fetcher: hub data refreshed")
}

// Hubs returns the current mapping. Callers must treat it as read-only.
func (f *Fetcher) Hubs() hub.Hubs {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hubs
}

// LastError is the error of the most recent attempt, nil after a success.
func (f *Fetcher) LastError() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastErr
}

// LastSuccess is the time of the most recent successful fetch.
func (f *Fetcher) LastSuccess() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastSuccess
}
