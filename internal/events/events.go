// Package events implements a minimal in-process pub/sub used to signal
// cache invalidation: the scorer publishes after writing signal_scores,
// the lifecycle engine publishes after a narrative state change, and the
// cache layer subscribes to invalidate the affected key prefix (spec §4.9
// "Cache is write-invalidated on job completion").
package events

import "sync"

// Topic names the two invalidation triggers; kept as a closed set rather
// than a generic string topic so typos fail at compile time.
type Topic string

const (
	TopicSignalsChanged    Topic = "signals_changed"
	TopicNarrativesChanged Topic = "narratives_changed"
)

// Handler receives an emitted event. Handlers run synchronously on the
// publishing goroutine; keep them fast (a cache prefix invalidation, not a
// network call).
type Handler func()

// Bus is a process-local publish/subscribe registry.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: map[Topic][]Handler{}}
}

// Subscribe registers h to run whenever topic is published.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish runs every handler registered for topic.
func (b *Bus) Publish(topic Topic) {
	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h()
	}
}
