// ABOUTME: Process termination and read-error classification on platforms without Unix process groups
// ABOUTME: Kills only the direct child; pseudo-terminals are unsupported there, so Spawn fails early

//go:build !unix

package session

import (
	"errors"
	"io"
	"os"
	"os/exec"
)

// killProcGroup kills the command's process.
func killProcGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// transientReadError reports read errors that should be retried.
func transientReadError(error) bool {
	return false
}

// hangup reports errors that mean the pty's other side went away.
func hangup(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}
