package channel

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub fans events out to subscribers. Each subscriber has its own buffer;
// events for a subscriber whose buffer is full are dropped.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
	log    logrus.FieldLogger
}

// NewHub creates a hub whose subscribers each buffer up to buffer events.
func NewHub(buffer int, log logrus.FieldLogger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
		log:    log.WithField("component", "hub"),
	}
}

// Subscribe returns an event stream and a function that ends the
// subscription and closes the stream.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish sends ev to every subscriber, dropping it for any that are full.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.WithFields(logrus.Fields{"method": ev.Method, "id": ev.ID}).Warn("subscriber buffer full, dropping event")
		}
	}
}
