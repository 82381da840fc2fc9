package events

import (
	"sync"

	"github.com/google/uuid"

	"offerswap/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Typed carries a canonical event payload.
type Typed struct {
	evt *types.Event
}

// Wrap adapts a canonical payload to the Event interface.
func Wrap(evt *types.Event) Typed { return Typed{evt: evt} }

func (t Typed) EventType() string {
	if t.evt == nil {
		return ""
	}
	return t.evt.Type
}

// Event returns the canonical payload.
func (t Typed) Event() *types.Event { return t.evt }

// Payload extracts the canonical payload from evt when it carries one.
func Payload(evt Event) (*types.Event, bool) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return nil, false
	}
	payload := carrier.Event()
	return payload, payload != nil
}

// Buffer collects the events of a single transaction so they can be dropped
// when the transaction fails.
type Buffer struct {
	events []*types.Event
}

func (b *Buffer) Emit(evt Event) {
	if payload, ok := Payload(evt); ok {
		b.events = append(b.events, payload)
	}
}

// Drain returns the collected events and empties the buffer.
func (b *Buffer) Drain() []*types.Event {
	out := b.events
	b.events = nil
	return out
}

// Reset discards the collected events.
func (b *Buffer) Reset() { b.events = nil }

// Bus fans committed events out to subscribers. Slow subscribers lose events
// rather than stalling block production.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan types.Event
	size int
}

// NewBus returns a bus whose subscriber channels hold size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 64
	}
	return &Bus{subs: make(map[string]chan types.Event), size: size}
}

// Subscribe registers a subscriber and returns its id and channel.
func (b *Bus) Subscribe() (string, <-chan types.Event) {
	id := uuid.NewString()
	ch := make(chan types.Event, b.size)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe closes and removes the subscriber channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers evt to every subscriber without blocking.
func (b *Bus) Publish(evt types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close unsubscribes everyone.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
