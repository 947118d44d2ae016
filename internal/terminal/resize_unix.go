// ABOUTME: SIGWINCH handling for Console resize notifications
// ABOUTME: One goroutine per registration, stopped by the returned func

//go:build unix

package terminal

import (
	"os"
	"os/signal"
	"syscall"
)

// OnResize calls fn with the new size on every SIGWINCH.
func (c *Console) OnResize(fn func(rows, cols uint16)) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	quit := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGWINCH)

	go func() {
		for {
			select {
			case <-quit:
				return
			case <-sigCh:
				rows, cols, err := c.Size()
				if err != nil {
					continue
				}
				fn(rows, cols)
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		signal.Stop(sigCh)
		close(quit)
	}
}
