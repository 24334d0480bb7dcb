package docstore

import (
	"strings"
	"sync"
)

// Hub fans change notifications out to prefix subscribers.
//
// A subscriber's channel holds at most one pending signal, so a burst of
// writes collapses into one wake-up; the subscriber re-reads the current
// documents when it wakes, and never misses the final state.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscription
}

type subscription struct {
	prefix string
	ch     chan struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscription)}
}

// Subscribe registers interest in keys under prefix. The returned channel
// is signalled once immediately so the subscriber sends its first snapshot.
// Call cancel to unregister.
func (h *Hub) Subscribe(prefix string) (<-chan struct{}, func()) {
	sub := &subscription{prefix: prefix, ch: make(chan struct{}, 1)}
	sub.ch <- struct{}{}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish signals every subscriber whose prefix covers key.
func (h *Hub) Publish(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if !strings.HasPrefix(key, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default: // already pending
		}
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
