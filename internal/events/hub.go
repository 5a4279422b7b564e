// Package events fans stay transitions out to interested subscribers
// (the archive writer, live WebSocket clients).
//
// Publish never blocks. A buffered subscriber whose buffer is full misses the
// event, and the drop is reported through the OnDrop callback. A lossless
// subscriber (SubscribeAll) queues without bound and receives every event in
// publish order.
package events

import (
	"sync"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// Hub is a non-blocking publish/subscribe fan-out for domain.StayEvent.
// The zero value is not usable; construct it with NewHub.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan domain.StayEvent
	lossless map[int]*backlog
	nextID   int
	closed   bool

	// OnDrop is called with the subscriber name whenever an event is dropped.
	OnDrop func(subscriber string)
	names  map[int]string
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs:     make(map[int]chan domain.StayEvent),
		lossless: make(map[int]*backlog),
		names:    make(map[int]string),
	}
}

// Subscribe registers a subscriber with a buffer of size buf. The returned
// cancel func unregisters it and closes the channel; it is safe to call more
// than once. Subscribing to a closed hub returns an already-closed channel.
func (h *Hub) Subscribe(name string, buf int) (<-chan domain.StayEvent, func()) {
	ch := make(chan domain.StayEvent, buf)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.names[id] = name
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				delete(h.names, id)
				close(c)
			}
		})
	}
}

// SubscribeAll registers a subscriber that never misses an event. Events are
// queued in memory until the subscriber reads them, in the order they were
// published. The returned cancel func unregisters it and closes the channel,
// discarding anything still queued. Close instead delivers the queue before
// closing the channel, so a reader that keeps draining sees every event
// published before Close.
func (h *Hub) SubscribeAll(name string) (<-chan domain.StayEvent, func()) {
	b := newBacklog()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		b.finish()
		return b.out, func() {}
	}
	id := h.nextID
	h.nextID++
	h.lossless[id] = b
	h.names[id] = name
	h.mu.Unlock()

	var once sync.Once
	return b.out, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.lossless[id]; ok {
				delete(h.lossless, id)
				delete(h.names, id)
			}
			h.mu.Unlock()
			b.cancel()
		})
	}
}

// Publish delivers ev to every lossless subscriber and to every buffered
// subscriber with room.
func (h *Hub) Publish(ev domain.StayEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, b := range h.lossless {
		b.push(ev)
	}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			if h.OnDrop != nil {
				h.OnDrop(h.names[id])
			}
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs) + len(h.lossless)
}

// Close unregisters every subscriber and closes their channels; lossless
// subscribers get their queued events first. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
		delete(h.names, id)
	}
	for id, b := range h.lossless {
		b.finish()
		delete(h.lossless, id)
		delete(h.names, id)
	}
}
