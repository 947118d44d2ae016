// ABOUTME: OutputBuffer holds raw session output published before a terminal attaches
// ABOUTME: The first subscriber receives the backlog as one event, then live output in order

package terminal

import (
	"sync"

	"github.com/mauromedda/ucm-bridge/internal/events"
)

// OutputBuffer is a Subscriber that never misses the session's first
// bytes. Create it before starting the session.
type OutputBuffer struct {
	mu      sync.Mutex
	backlog []byte
	handler events.Handler[events.Event]
	cancel  func()
}

// NewOutputBuffer subscribes to sub for raw output immediately.
func NewOutputBuffer(sub Subscriber) *OutputBuffer {
	b := &OutputBuffer{}
	b.cancel = sub.Subscribe(events.OnlyKinds(b.publish, events.KindRawOutput))
	return b
}

func (b *OutputBuffer) publish(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler != nil {
		b.handler(e)
		return
	}
	b.backlog = append(b.backlog, e.Data...)
}

// Subscribe flushes the backlog to h and forwards later output to it.
// One handler at a time; a new one replaces the old.
func (b *OutputBuffer) Subscribe(h events.Handler[events.Event]) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.backlog) > 0 {
		h(events.Event{Kind: events.KindRawOutput, Data: b.backlog})
		b.backlog = nil
	}
	b.handler = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handler = nil
	}
}

// Close detaches from the upstream subscriber.
func (b *OutputBuffer) Close() {
	b.cancel()
}
