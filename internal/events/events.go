// ABOUTME: Event kinds and payloads surfaced to the editor by the bridge
// ABOUTME: raw-output, context-changed, process-exited, lock-conflict, file-changed

package events

import "time"

// Kind names an event as the editor sees it.
type Kind string

const (
	KindRawOutput      Kind = "raw-output"
	KindContextChanged Kind = "context-changed"
	KindProcessExited  Kind = "process-exited"
	KindLockConflict   Kind = "lock-conflict"
	KindFileChanged    Kind = "file-changed"
)

// Event is the single payload type carried by the bridge's bus. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"sessionId,omitempty"`

	// raw-output
	Data []byte `json:"data,omitempty"`

	// context-changed
	Project string `json:"project,omitempty"`
	Branch  string `json:"branch,omitempty"`

	// process-exited: "stopped" or "exited"
	State string `json:"state,omitempty"`
	Err   string `json:"error,omitempty"`

	// file-changed
	Path       string    `json:"path,omitempty"`
	ChangeType string    `json:"changeType,omitempty"`
	DetectedAt time.Time `json:"detectedAt,omitzero"`
}

// Publisher accepts events. *Bus[Event] satisfies it.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }

// Discard is a Publisher that drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})

// OnlyKinds wraps h so it only sees events of the listed kinds.
func OnlyKinds(h Handler[Event], kinds ...Kind) Handler[Event] {
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(e Event) {
		if _, ok := set[e.Kind]; ok {
			h(e)
		}
	}
}
