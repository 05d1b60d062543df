// Package events is an in-memory change notification hub. The storage layer
// publishes an event after every committed write so that long-lived views
// can refresh without polling.
package events

import (
	"sync"
)

// Topics published by the storage layer.
const (
	TopicCourses  = "courses"
	TopicVideos   = "videos"
	TopicProgress = "progress"
	TopicNotes    = "notes"
	TopicSettings = "settings"
)

// Event describes a committed change.
type Event struct {
	Topic string
	Type  string   // e.g. "created", "updated", "deleted"
	IDs   []string // ids of the affected records
}

// subscriberBuffer is how many events a subscriber may fall behind before
// further events are dropped for it.
const subscriberBuffer = 16

// Hub is an in-memory pub/sub hub keyed by topic.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[chan Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers a listener on topic. It returns a receive-only channel
// and an unsubscribe function that closes the channel. Calling unsubscribe
// more than once is safe.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[chan Event]struct{})
	}
	h.clients[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.clients[topic], ch)
			if len(h.clients[topic]) == 0 {
				delete(h.clients, topic)
			}
			close(ch)
		})
	}

	return ch, unsub
}

// Publish sends ev to every subscriber of ev.Topic.
// Non-blocking: subscribers with a full buffer miss the event.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients[ev.Topic] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of listeners on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[topic])
}
