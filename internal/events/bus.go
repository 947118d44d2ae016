// ABOUTME: Typed event bus that carries session, relay and watcher events upward
// ABOUTME: Delivers in subscription order from a copy-on-write handler list; handler panics are contained

package events

import (
	"sync"

	"github.com/mauromedda/ucm-bridge/internal/log"
)

// Handler receives one event.
type Handler[T any] func(T)

type subscription[T any] struct {
	id int
	h  Handler[T]
}

// Bus fans events out to its subscribers. Publish never blocks on the
// bus itself: handlers run synchronously on the publisher's goroutine
// against a snapshot taken at publish time.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   []subscription[T] // replaced, never mutated in place
	nextID int
}

// New returns an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe appends h and returns a func that removes it. The func is
// idempotent.
func (b *Bus[T]) Subscribe(h Handler[T]) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	next := make([]subscription[T], len(b.subs), len(b.subs)+1)
	copy(next, b.subs)
	b.subs = append(next, subscription[T]{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { b.remove(id) }) }
}

func (b *Bus[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		if s.id != id {
			next = append(next, s)
		}
	}
	b.subs = next
}

// Publish delivers event to every current subscriber, oldest first.
func (b *Bus[T]) Publish(event T) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		deliver(s.h, event)
	}
}

// Count returns the number of subscribers.
func (b *Bus[T]) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func deliver[T any](h Handler[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			log.With("events").Error("handler panic: %v", r)
		}
	}()
	h(event)
}
