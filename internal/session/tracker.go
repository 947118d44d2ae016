// ABOUTME: Output tracker: trailing text buffer, throttled prompt parsing and lock-sentinel detection
// ABOUTME: Pure state machine fed one pty chunk at a time by the session actor

package session

import (
	"strings"

	"github.com/mauromedda/ucm-bridge/internal/ansi"
)

// trackerConfig bounds the tracker's buffer and parse cadence.
type trackerConfig struct {
	parseEvery   int
	smallChunk   int
	bufferMax    int
	bufferKeep   int
	lockSentinel string
	parser       ContextParser
}

// feedResult reports what a chunk changed.
type feedResult struct {
	changed bool
	context Context
	locked  bool
}

// outputTracker holds the trailing window of terminal output.
type outputTracker struct {
	cfg             trackerConfig
	buf             []byte
	readsSinceParse int
	current         Context
}

func newOutputTracker(cfg trackerConfig) *outputTracker {
	if cfg.parser == nil {
		cfg.parser = PromptParser{}
	}
	return &outputTracker{
		cfg: cfg,
		buf: make([]byte, 0, cfg.bufferMax+4096),
	}
}

// Feed appends chunk to the window. The lock sentinel is checked on every
// chunk; the prompt is parsed once parseEvery reads have accumulated or
// when the chunk is small, since prompts arrive as short writes.
func (t *outputTracker) Feed(chunk []byte) feedResult {
	t.buf = append(t.buf, chunk...)
	t.readsSinceParse++

	text := ansi.Plain(string(t.buf))

	var res feedResult
	if t.cfg.lockSentinel != "" && strings.Contains(text, t.cfg.lockSentinel) {
		res.locked = true
		return res
	}

	if t.readsSinceParse >= t.cfg.parseEvery || len(chunk) < t.cfg.smallChunk {
		t.readsSinceParse = 0
		if ctx, ok := t.cfg.parser.Parse(text); ok && ctx != t.current {
			t.current = ctx
			res.changed = true
			res.context = ctx
		}
	}

	if len(t.buf) > t.cfg.bufferMax {
		keep := t.buf[len(t.buf)-t.cfg.bufferKeep:]
		t.buf = append(t.buf[:0], keep...)
	}
	return res
}

// Context returns the last detected context.
func (t *outputTracker) Context() Context {
	return t.current
}
