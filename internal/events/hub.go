// Package events fans session changes out to live subscribers.
package events

import (
	"sync"
	"time"
)

// Event kinds pushed to subscribers.
const (
	TypeState        = "state"
	TypeMessage      = "message"
	TypeTyping       = "typing"
	TypeRecording    = "recording"
	TypeDraft        = "draft"
	TypeNotification = "notification"
)

// Event is one pushed notification.
type Event struct {
	Type      string `json:"type"`
	ChatID    string `json:"chatId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher is the write side used by services.
type Publisher interface {
	Publish(evt Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Hub delivers events to every subscriber. Slow subscribers lose events
// rather than blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{subs: make(map[int]chan Event), buffer: buffer}
}

// Publish stamps evt and offers it to all subscribers.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
