// ABOUTME: Tests for process-group termination and read-error classification
// ABOUTME: Runs on every platform against the build-tagged implementation

package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
)

func TestHangupClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{io.EOF, true},
		{fmt.Errorf("read /dev/ptmx: %w", os.ErrClosed), true},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := hangup(tt.err); got != tt.want {
			t.Errorf("hangup(%v) = %v, want %v", tt.err, got, tt.want)
		}
		if transientReadError(tt.err) {
			t.Errorf("transientReadError(%v) = true, want false", tt.err)
		}
	}
}

func TestKillProcGroupUnstarted(t *testing.T) {
	t.Parallel()

	if err := killProcGroup(exec.Command("true")); err != nil {
		t.Errorf("killProcGroup on unstarted command = %v, want nil", err)
	}
}
