// ABOUTME: Console resize notifications on platforms without SIGWINCH
// ABOUTME: Registration is a no-op; the session keeps its initial size

//go:build !unix

package terminal

// OnResize never fires without SIGWINCH.
func (c *Console) OnResize(func(rows, cols uint16)) (stop func()) {
	return func() {}
}
