// Package event provides a synchronous publish/subscribe bus with typed
// payloads. Components coordinate through the bus instead of importing one
// another, so each state slice keeps a single writer.
package event

import "sync"

// Event is implemented by every payload type dispatched on the Bus. The
// name must be stable; it identifies the topic a subscriber registers for.
type Event interface {
	EventName() string
}

type subscription struct {
	id      uint64
	handler func(Event)
}

// Bus dispatches events synchronously, in registration order, to the
// subscribers present at the moment Publish is called. Subscribers added
// during or after a Publish never receive that occurrence.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs map[string][]subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Publish delivers e to every current subscriber for its event name.
// Handlers run on the caller's goroutine; Publish returns after the last
// handler does.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	// Snapshot so handlers may subscribe/unsubscribe without deadlock and
	// without receiving the in-flight event.
	current := append([]subscription(nil), b.subs[e.EventName()]...)
	b.mu.Unlock()

	for _, sub := range current {
		sub.handler(e)
	}
}

func (b *Bus) subscribe(name string, handler func(Event)) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[name]
		for i, sub := range list {
			if sub.id == id {
				b.subs[name] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
		// Already removed: unsubscribing twice is a no-op.
	}
}

// Subscribe registers handler for events of type E and returns an
// idempotent unsubscribe function.
func Subscribe[E Event](b *Bus, handler func(E)) func() {
	var zero E
	return b.subscribe(zero.EventName(), func(e Event) {
		if typed, ok := e.(E); ok {
			handler(typed)
		}
	})
}
