// ABOUTME: Tests for the output tracker's throttled parsing, dedup, trimming and lock detection
// ABOUTME: Drives the tracker directly with synthetic pty chunks

package session

import (
	"strings"
	"testing"
)

func testTracker() *outputTracker {
	return newOutputTracker(trackerConfig{
		parseEvery:   5,
		smallChunk:   256,
		bufferMax:    1024,
		bufferKeep:   512,
		lockSentinel: "Failed to obtain a file lock",
	})
}

func TestTrackerDetectsPrompt(t *testing.T) {
	t.Parallel()

	tr := testTracker()
	res := tr.Feed([]byte("\x1b[1mtour/main\x1b[0m> "))
	if !res.changed {
		t.Fatal("expected context change")
	}
	if res.context != (Context{"tour", "main"}) {
		t.Errorf("context = %+v, want tour/main", res.context)
	}
	if tr.Context() != res.context {
		t.Errorf("Context() = %+v, want %+v", tr.Context(), res.context)
	}
}

func TestTrackerDedupsUnchangedContext(t *testing.T) {
	t.Parallel()

	tr := testTracker()
	if !tr.Feed([]byte("p/b> ")).changed {
		t.Fatal("first prompt should change context")
	}
	if tr.Feed([]byte("ls\r\np/b> ")).changed {
		t.Error("same prompt reported as a change")
	}
	res := tr.Feed([]byte("switch p/c\r\np/c> "))
	if !res.changed || res.context != (Context{"p", "c"}) {
		t.Errorf("switch not detected: %+v", res)
	}
}

func TestTrackerThrottlesLargeChunks(t *testing.T) {
	t.Parallel()

	tr := testTracker()
	big := strings.Repeat("x", 300) + "\np/b> "
	for i := 1; i <= 4; i++ {
		if tr.Feed([]byte(big)).changed {
			t.Fatalf("parsed on large read %d before the threshold", i)
		}
	}
	if !tr.Feed([]byte(big)).changed {
		t.Error("expected a parse on the fifth read")
	}
}

func TestTrackerTrimsBuffer(t *testing.T) {
	t.Parallel()

	tr := testTracker()
	for range 10 {
		tr.Feed([]byte(strings.Repeat("y", 300)))
	}
	if len(tr.buf) > 1024 {
		t.Errorf("buffer length = %d, want <= 1024", len(tr.buf))
	}
}

func TestTrackerLockSentinel(t *testing.T) {
	t.Parallel()

	tr := testTracker()
	tr.Feed([]byte("Failed to obtain "))
	res := tr.Feed([]byte("a file lock\r\n"))
	if !res.locked {
		t.Error("sentinel split across chunks not detected")
	}
}

func TestTrackerNoLockWithoutSentinel(t *testing.T) {
	t.Parallel()

	tr := newOutputTracker(trackerConfig{parseEvery: 1, smallChunk: 1, bufferMax: 64, bufferKeep: 32})
	if tr.Feed([]byte("Failed to obtain a file lock")).locked {
		t.Error("lock reported with detection disabled")
	}
}
