package events

import (
	"sync"
)

// Subscriber represents a channel that receives events.
type Subscriber chan Event

// Bus buffers, persists and fans out events. Most callers use the package
// level functions, which act on a process-wide default bus.
type Bus struct {
	buffer *RingBuffer

	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}

	sinkMu          sync.RWMutex
	sink            Sink
	sinkErrorLogged bool
}

// NewBus creates a bus that keeps the last bufferSize events.
func NewBus(bufferSize int) *Bus {
	return &Bus{
		buffer:      NewRingBuffer(bufferSize),
		subscribers: make(map[Subscriber]struct{}),
	}
}

var defaultBus = NewBus(256)

// Default returns the process-wide bus.
func Default() *Bus {
	return defaultBus
}

// Subscribe adds a new subscriber and returns its channel.
// The channel has a buffer to prevent blocking on slow clients.
func (b *Bus) Subscribe() Subscriber {
	ch := make(Subscriber, 64) // Buffer to avoid blocking Emit
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unsubscribing a
// channel that is already gone is a no-op.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// CloseAllSubscribers closes and removes every subscriber. Used on shutdown.
func (b *Bus) CloseAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		close(sub)
		delete(b.subscribers, sub)
	}
}

// broadcast sends an event to all subscribers.
// Non-blocking: if a subscriber's buffer is full, the event is dropped for that subscriber.
func (b *Bus) broadcast(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- e:
		default:
			// Buffer full, drop event for this slow subscriber
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// RecentEvents returns the last n events from the ring buffer.
// If n is greater than available events, returns all available.
func (b *Bus) RecentEvents(n int) []Event {
	all := b.buffer.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Snapshot returns every buffered event, oldest first.
func (b *Bus) Snapshot() []Event {
	return b.buffer.Snapshot()
}

// TotalCount returns how many events were emitted since start or the last Clear.
func (b *Bus) TotalCount() uint64 {
	return b.buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func (b *Bus) Clear() {
	b.buffer.Clear()
}

// Package-level helpers act on the default bus.

func Subscribe() Subscriber { return defaultBus.Subscribe() }

func Unsubscribe(sub Subscriber) { defaultBus.Unsubscribe(sub) }

func CloseAllSubscribers() { defaultBus.CloseAllSubscribers() }

func SubscriberCount() int { return defaultBus.SubscriberCount() }

func RecentEvents(n int) []Event { return defaultBus.RecentEvents(n) }

func Snapshot() []Event { return defaultBus.Snapshot() }

func Clear() { defaultBus.Clear() }
