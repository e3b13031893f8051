package changefeed

import (
	"context"
	"sync"
	"time"

	"github.com/rzpsarthak13/sqlkit/internal/core"
)

// MemoryFeed buffers events in a channel until they are drained. It is
// meant for tests and for in-process consumers.
type MemoryFeed struct {
	events chan *core.ChangeEvent
	mu     sync.RWMutex
	closed bool
}

// NewMemoryFeed creates a feed holding at most bufferSize events.
func NewMemoryFeed(bufferSize int) *MemoryFeed {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &MemoryFeed{events: make(chan *core.ChangeEvent, bufferSize)}
}

// Publish buffers ev. It never blocks: a full buffer returns ErrFeedFull.
func (f *MemoryFeed) Publish(ctx context.Context, ev *core.ChangeEvent) error {
	if err := validate(ev); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFeedClosed
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case f.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFeedFull
	}
}

// Drain returns up to max buffered events in publish order, without waiting.
func (f *MemoryFeed) Drain(ctx context.Context, max int) ([]*core.ChangeEvent, error) {
	if max <= 0 {
		max = 100
	}
	out := make([]*core.ChangeEvent, 0, max)
	for len(out) < max {
		select {
		case ev, ok := <-f.events:
			if !ok {
				return out, nil
			}
			out = append(out, ev)
		case <-ctx.Done():
			return out, ctx.Err()
		default:
			return out, nil
		}
	}
	return out, nil
}

// Len returns the number of buffered events.
func (f *MemoryFeed) Len() int {
	return len(f.events)
}

// Close stops accepting events. Buffered events can still be drained.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	close(f.events)
	return nil
}
