// ABOUTME: Local terminal abstraction for attaching to a session: raw mode, size, output and resize notifications
// ABOUTME: Console is the real TTY backed by golang.org/x/term; Virtual stands in for it in tests

package terminal

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when raw mode is requested on a non-TTY.
var ErrNotTerminal = errors.New("terminal: input is not a terminal")

// Terminal is the local side of an attached session.
type Terminal interface {
	EnterRawMode() error
	ExitRawMode() error
	// Size returns the dimensions in rows and columns.
	Size() (rows, cols uint16, err error)
	Write(p []byte) (int, error)
	// OnResize calls fn with the new size after every resize until the
	// returned stop func is called.
	OnResize(fn func(rows, cols uint16)) (stop func())
}

// Console is the process's controlling terminal.
type Console struct {
	in  *os.File
	out *os.File

	mu       sync.Mutex
	oldState *term.State
}

// NewConsole returns a Console reading from in and writing to out.
func NewConsole(in, out *os.File) *Console {
	return &Console{in: in, out: out}
}

// IsTerminal reports whether the input is a TTY.
func (c *Console) IsTerminal() bool {
	return term.IsTerminal(int(c.in.Fd()))
}

// EnterRawMode switches the input to raw mode, saving the previous state.
func (c *Console) EnterRawMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oldState != nil {
		return nil
	}
	if !c.IsTerminal() {
		return ErrNotTerminal
	}
	state, err := term.MakeRaw(int(c.in.Fd()))
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	c.oldState = state
	return nil
}

// ExitRawMode restores the saved state. Safe to call when not in raw mode.
func (c *Console) ExitRawMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oldState == nil {
		return nil
	}
	if err := term.Restore(int(c.in.Fd()), c.oldState); err != nil {
		return fmt.Errorf("exiting raw mode: %w", err)
	}
	c.oldState = nil
	return nil
}

// Size returns the output's dimensions.
func (c *Console) Size() (rows, cols uint16, err error) {
	w, h, err := term.GetSize(int(c.out.Fd()))
	if err != nil {
		return 0, 0, fmt.Errorf("getting terminal size: %w", err)
	}
	return uint16(h), uint16(w), nil
}

func (c *Console) Write(p []byte) (int, error) {
	n, err := c.out.Write(p)
	if err != nil {
		return n, fmt.Errorf("writing to terminal: %w", err)
	}
	return n, nil
}
