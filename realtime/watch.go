package realtime

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// WatchOptions tunes Watch.
type WatchOptions struct {
	// Debounce waits this long after the last signal of a burst.
	Debounce time.Duration

	// Interval refreshes even without signals; 0 disables it.
	Interval time.Duration

	Logger *slog.Logger
}

// Watch calls refresh after every (debounced) signal from sub and on every
// interval tick. It blocks until ctx is cancelled or the subscription ends.
func Watch(ctx context.Context, sub Subscriber, refresh func(context.Context), opts WatchOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	signals, err := sub.Subscribe(ctx)
	if err != nil {
		return err
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-signals:
			if !ok {
				logger.Info("change subscription ended")
				return nil
			}
			if opts.Debounce <= 0 {
				refresh(ctx)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				timer.Reset(opts.Debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			logger.Debug("change signal, refreshing")
			refresh(ctx)

		case <-tick:
			logger.Debug("interval refresh")
			refresh(ctx)
		}
	}
}
