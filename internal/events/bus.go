// Package events fans job lifecycle and progress events out to subscribers such as
// the SSE stream.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one published event.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Bus delivers events to every subscriber. Slow subscribers drop events rather
// than block the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	log    zerolog.Logger
}

// NewBus creates an empty bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		log:  log.With().Str("service", "events").Logger(),
	}
}

// Emit publishes an event. It satisfies work.EventEmitter.
func (b *Bus) Emit(eventType string, data any) {
	event := Event{Type: eventType, Timestamp: time.Now(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.log.Warn().Int("subscriber", id).Str("event_type", eventType).Msg("Subscriber full, dropping event")
		}
	}
	b.log.Debug().Str("event_type", eventType).Int("subscribers", len(b.subs)).Msg("Event emitted")
}

// Subscribe registers a subscriber with the given buffer. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
