// ABOUTME: Unix-specific process group termination for the tool running under the pty
// ABOUTME: The pty makes the child a session leader, so its pid is also its process group id

//go:build unix

package session

import (
	"errors"
	"io"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// killProcGroup kills the entire process group of the command.
func killProcGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// transientReadError reports read errors that should be retried.
func transientReadError(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

// hangup reports errors that mean the pty's other side went away, which
// Linux signals with EIO rather than EOF.
func hangup(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, unix.EIO) || errors.Is(err, os.ErrClosed)
}
