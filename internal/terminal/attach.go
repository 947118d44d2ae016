// ABOUTME: Attach connects a local Terminal to a running session: keystrokes in, raw output out, resizes forwarded
// ABOUTME: Ends on the detach key, end of input, context cancellation or session exit; raw mode is always restored

package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/mauromedda/ucm-bridge/internal/events"
	"github.com/mauromedda/ucm-bridge/internal/log"
)

// DetachKey is Ctrl-].
const DetachKey byte = 0x1d

var logger = log.With("terminal")

// Target is the session being attached to.
type Target interface {
	Write(p []byte) error
	Resize(rows, cols uint16) error
	Done() <-chan struct{}
}

// Subscriber delivers session events.
type Subscriber interface {
	Subscribe(h events.Handler[events.Event]) func()
}

// Reason says why Attach returned.
type Reason int

const (
	Detached Reason = iota
	InputClosed
	Cancelled
	SessionEnded
)

func (r Reason) String() string {
	switch r {
	case Detached:
		return "detached"
	case InputClosed:
		return "input closed"
	case Cancelled:
		return "cancelled"
	case SessionEnded:
		return "session ended"
	default:
		return "unknown"
	}
}

// Attach mirrors target on t until one side ends. The goroutine reading in
// is left blocked if in never returns; callers pass stdin and exit soon
// after.
func Attach(ctx context.Context, t Terminal, in io.Reader, target Target, sub Subscriber) (Reason, error) {
	if err := t.EnterRawMode(); err != nil && !errors.Is(err, ErrNotTerminal) {
		return 0, err
	}
	defer func() { _ = t.ExitRawMode() }()

	unsubscribe := sub.Subscribe(events.OnlyKinds(func(e events.Event) {
		_, _ = t.Write(e.Data)
	}, events.KindRawOutput))
	defer unsubscribe()

	if rows, cols, err := t.Size(); err == nil && rows > 0 && cols > 0 {
		if err := target.Resize(rows, cols); err != nil {
			logger.Debug("initial resize: %v", err)
		}
	}
	stopResize := t.OnResize(func(rows, cols uint16) {
		if err := target.Resize(rows, cols); err != nil {
			logger.Debug("resize to %dx%d: %v", rows, cols, err)
		}
	})
	defer stopResize()

	inputDone := make(chan inputResult, 1)
	go func() {
		defer RecoverGoroutine(t)
		inputDone <- pumpInput(in, target)
	}()

	select {
	case <-ctx.Done():
		return Cancelled, nil
	case <-target.Done():
		return SessionEnded, nil
	case r := <-inputDone:
		return r.reason, r.err
	}
}

type inputResult struct {
	reason Reason
	err    error
}

func pumpInput(in io.Reader, target Target) inputResult {
	buf := make([]byte, 1024)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			detach := false
			for i, b := range chunk {
				if b == DetachKey {
					chunk, detach = chunk[:i], true
					break
				}
			}
			if len(chunk) > 0 {
				if werr := target.Write(chunk); werr != nil {
					return inputResult{SessionEnded, nil}
				}
			}
			if detach {
				return inputResult{Detached, nil}
			}
		}
		if errors.Is(err, io.EOF) {
			return inputResult{InputClosed, nil}
		}
		if err != nil {
			return inputResult{InputClosed, fmt.Errorf("reading input: %w", err)}
		}
	}
}

// RecoverGoroutine restores the terminal and reports a panic in a
// goroutine that runs while raw mode is on.
func RecoverGoroutine(t Terminal) {
	r := recover()
	if r == nil {
		return
	}
	_ = t.ExitRawMode()
	fmt.Fprintf(os.Stderr, "\ngoroutine panic: %v\n\n%s\n", r, debug.Stack())
}
