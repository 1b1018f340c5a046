/*
scheduler.go - Background calendar refresh

PURPOSE:
  Keeps every open calendar current. It refetches all calendars when a
  "something changed" signal arrives (debounced) and on a fixed interval
  as a fallback when signals are lost.

DESIGN:
  - Runs one background goroutine around realtime.Watch
  - A burst of signals inside the debounce window yields one refresh
  - Refresh failures are logged; calendars keep their last good snapshot
    unless the fetch itself failed, in which case they read unallocated

CONFIGURATION:
  - Debounce: Quiet period after the last signal (default: 250ms)
  - Interval: Fallback refresh period, 0 disables it (default: 5m)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRefreshScheduler(handler.Calendars, subscriber, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Refresh endpoint (manual trigger)
  - realtime/watch.go: Debounce loop
*/
package api

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/leave-calendar/realtime"
)

// RefreshScheduler refreshes calendars on change signals.
type RefreshScheduler struct {
	Calendars  *Calendars
	Subscriber realtime.Subscriber
	Debounce   time.Duration
	Interval   time.Duration
	Enabled    bool

	logger  *slog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
	runs    int
}

// NewRefreshScheduler creates a new scheduler.
func NewRefreshScheduler(cals *Calendars, sub realtime.Subscriber, logger *slog.Logger) *RefreshScheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RefreshScheduler{
		Calendars:  cals,
		Subscriber: sub,
		Debounce:   250 * time.Millisecond,
		Interval:   5 * time.Minute,
		Enabled:    true,
		logger:     logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("disabled, not starting")
		return
	}
	if rs.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.logger.Info("started", "debounce", rs.Debounce, "interval", rs.Interval)
}

// Stop stops the scheduler and waits for an in-flight refresh.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	cancel := rs.cancel
	rs.cancel = nil
	rs.mu.Unlock()

	if cancel != nil {
		cancel()
		rs.wg.Wait()
		rs.logger.Info("stopped")
	}
}

func (rs *RefreshScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	err := realtime.Watch(ctx, rs.Subscriber, rs.RunNow, realtime.WatchOptions{
		Debounce: rs.Debounce,
		Interval: rs.Interval,
		Logger:   rs.logger,
	})
	if err != nil {
		rs.logger.Error("change subscription failed", "err", err)
	}
}

// RunNow refreshes every open calendar once.
func (rs *RefreshScheduler) RunNow(ctx context.Context) {
	start := time.Now()
	n, err := rs.Calendars.RefreshAll(ctx)

	rs.mu.Lock()
	rs.lastRun = start
	rs.runs++
	rs.mu.Unlock()

	if err != nil {
		rs.logger.Warn("refresh completed with errors", "calendars", n, "err", err)
		return
	}
	rs.logger.Debug("refresh completed", "calendars", n, "took", time.Since(start))
}

// Stats returns the number of refreshes run and when the last one started.
func (rs *RefreshScheduler) Stats() (runs int, lastRun time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.runs, rs.lastRun
}
