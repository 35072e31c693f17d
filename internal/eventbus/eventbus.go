// Package eventbus carries engine notifications to in-process observers such
// as the session archiver and the MQTT notifier.
package eventbus

import "sync"

// Event is any value published on the bus.
type Event any

// EventBus is the publish/subscribe contract between the engine and its
// observers.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// subBuffer is the per-subscriber channel depth. A subscriber that falls
// this far behind starts losing events.
const subBuffer = 16

// Bus fans every published event out to all subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

func New() *Bus { return &Bus{} }

// Publish delivers e to every subscriber without blocking. Slow subscribers
// drop events rather than stalling the publisher.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel. Subscribing
// to a closed bus yields an already-closed channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe detaches the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
