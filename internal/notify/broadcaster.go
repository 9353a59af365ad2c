package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Event is a single item delivered to Broadcaster subscribers.
// Exactly one of Notification and SessionExpired is set.
type Event struct {
	Notification   *Notification   `json:"notification,omitempty"`
	SessionExpired *SessionExpired `json:"session_expired,omitempty"`
}

// Broadcaster fans out events to any number of subscribers.
//
// Delivery is non-blocking: a subscriber whose buffer is full misses the
// event rather than stalling the request that produced it.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	buffer      int
}

// Compile-time check to ensure Broadcaster implements Notifier
var _ Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster whose subscriptions buffer up to buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Notify broadcasts n.
func (b *Broadcaster) Notify(ctx context.Context, n Notification) {
	b.publish(ctx, Event{Notification: &n})
}

// SessionExpired broadcasts ev.
func (b *Broadcaster) SessionExpired(ctx context.Context, ev SessionExpired) {
	b.publish(ctx, Event{SessionExpired: &ev})
}

func (b *Broadcaster) publish(ctx context.Context, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			slog.DebugContext(ctx, "dropping event for slow subscriber")
		}
	}
}
