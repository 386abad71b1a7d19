package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Bus distributes events to subscribers with filtering.
//
// Publish never blocks on a slow subscriber: each subscription has its own
// buffered channel, and events are dropped per-subscriber when the buffer is
// full so other subscribers and the publisher are unaffected.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscription
	nextID      atomic.Uint64
	options     busOptions
	closed      bool
}

// subscription is a single subscriber with its filter and buffer.
type subscription struct {
	id        uint64
	ch        chan Event
	filter    Filter
	ctx       context.Context
	cancel    context.CancelFunc
	dropped   atomic.Int64
	closeOnce sync.Once
}

// close tears the subscription down exactly once, whether triggered by the
// subscriber's cleanup or by Bus.Close.
func (s *subscription) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.ch)
	})
}

type busOptions struct {
	defaultBufferSize int
	dropHandler       func(event Event, subscriberID uint64)
}

// BusOption is a functional option for configuring Bus.
type BusOption func(*busOptions)

// WithDefaultBufferSize sets the buffer size used when Subscribe is called
// with bufferSize 0. Default: 128.
func WithDefaultBufferSize(size int) BusOption {
	return func(opts *busOptions) {
		if size > 0 {
			opts.defaultBufferSize = size
		}
	}
}

// WithDropHandler sets a callback invoked when an event is dropped for a
// slow subscriber.
func WithDropHandler(handler func(event Event, subscriberID uint64)) BusOption {
	return func(opts *busOptions) {
		if handler != nil {
			opts.dropHandler = handler
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	options := busOptions{
		defaultBufferSize: 128,
		dropHandler:       func(Event, uint64) {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Bus{
		subscribers: make(map[uint64]*subscription),
		options:     options,
	}
}

// Publish sends the event to all matching subscribers. It returns an error
// only when the bus is closed.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, sub := range b.subscribers {
		select {
		case <-sub.ctx.Done():
			continue
		default:
		}
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			b.options.dropHandler(event, sub.id)
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned cleanup function must be
// called to release the subscription; the channel is closed by cleanup.
func (b *Bus) Subscribe(ctx context.Context, filter Filter, bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = b.options.defaultBufferSize
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:     b.nextID.Add(1),
		ch:     make(chan Event, bufferSize),
		filter: filter,
		ctx:    subCtx,
		cancel: cancel,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		delete(b.subscribers, sub.id)
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, cleanup
}

// Close shuts the bus down and closes all subscriber channels. Publish fails
// afterwards.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subscribers {
		sub.close()
		delete(b.subscribers, id)
	}
	return nil
}
