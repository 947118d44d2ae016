// ABOUTME: Virtual is an in-memory Terminal for tests of attach and rendering
// ABOUTME: Captures output, counts raw-mode transitions and fires resize callbacks on demand

package terminal

import (
	"bytes"
	"sync"
)

// Virtual is a Terminal without a TTY.
type Virtual struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	rows     uint16
	cols     uint16
	raw      bool
	enters   int
	exits    int
	resizeFn func(rows, cols uint16)
}

// NewVirtual returns a Virtual of the given size.
func NewVirtual(rows, cols uint16) *Virtual {
	return &Virtual{rows: rows, cols: cols}
}

func (v *Virtual) EnterRawMode() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.raw = true
	v.enters++
	return nil
}

func (v *Virtual) ExitRawMode() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.raw {
		v.exits++
	}
	v.raw = false
	return nil
}

func (v *Virtual) Size() (rows, cols uint16, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rows, v.cols, nil
}

func (v *Virtual) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buf.Write(p)
}

func (v *Virtual) OnResize(fn func(rows, cols uint16)) (stop func()) {
	v.mu.Lock()
	v.resizeFn = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		v.resizeFn = nil
		v.mu.Unlock()
	}
}

// Output returns everything written so far.
func (v *Virtual) Output() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buf.String()
}

// IsRaw reports whether raw mode is on.
func (v *Virtual) IsRaw() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.raw
}

// Transitions returns how many times raw mode was entered and left.
func (v *Virtual) Transitions() (enters, exits int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enters, v.exits
}

// SetSize changes the size and fires the resize callback, if any.
func (v *Virtual) SetSize(rows, cols uint16) {
	v.mu.Lock()
	v.rows, v.cols = rows, cols
	fn := v.resizeFn
	v.mu.Unlock()
	if fn != nil {
		fn(rows, cols)
	}
}
