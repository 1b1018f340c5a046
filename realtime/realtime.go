/*
Package realtime carries the "something changed" signal that triggers a
calendar refetch.

PURPOSE:
  A signal has no payload. Receivers never apply deltas; they refetch both
  snapshots for their window. Two transports are provided:

    Broadcaster  in-process fan-out (single instance, tests)
    Redis        pub/sub channel shared by every instance

COALESCING:
  Subscriber channels hold at most one pending signal. A burst of changes
  while a refresh is running collapses into one more refresh.

SEE ALSO:
  - watch.go: Debounced refresh loop
  - calendar/calendar.go: Refresh
*/
package realtime

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("realtime: closed")

// Subscriber delivers change signals until ctx is cancelled, then closes
// the channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan struct{}, error)
}

// Publisher announces that allotments or requests changed.
type Publisher interface {
	Publish(ctx context.Context) error
}

// =============================================================================
// BROADCASTER - In-process transport
// =============================================================================

type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

var (
	_ Subscriber = (*Broadcaster)(nil)
	_ Publisher  = (*Broadcaster)(nil)
)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan struct{}]struct{})}
}

func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan struct{}, 1)
	b.subs[ch] = struct{}{}
	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *Broadcaster) remove(ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish signals every subscriber without blocking.
func (b *Broadcaster) Publish(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for ch := range b.subs {
		notify(ch)
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
