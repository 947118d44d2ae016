// ABOUTME: Tests for the per-file watcher against real temp files
// ABOUTME: Modified and deleted events, debouncing, filtering to watched files and idempotence

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauromedda/ucm-bridge/internal/events"
)

type sink struct {
	mu  sync.Mutex
	evs []events.Event
}

func (s *sink) Publish(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, e)
}

func (s *sink) all() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.evs...)
}

func (s *sink) count(path, change string) int {
	n := 0
	for _, e := range s.all() {
		if e.Path == path && e.ChangeType == change {
			n++
		}
	}
	return n
}

func newManager(t *testing.T, debounce time.Duration) (*Manager, *sink) {
	t.Helper()
	s := &sink{}
	m, err := New(s, debounce)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, s
}

func tempFile(t *testing.T, name string) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("a = 1\n"), 0o644))
	return p
}

func TestWatchReportsModification(t *testing.T) {
	t.Parallel()

	m, s := newManager(t, 0)
	p := tempFile(t, "scratch.u")
	require.NoError(t, m.Watch(p))

	require.NoError(t, os.WriteFile(p, []byte("a = 2\n"), 0o644))
	assert.Eventually(t, func() bool { return s.count(p, ChangeModified) > 0 }, 3*time.Second, 10*time.Millisecond)

	e := s.all()[0]
	assert.Equal(t, events.KindFileChanged, e.Kind)
	assert.False(t, e.DetectedAt.IsZero())
}

func TestWatchReportsDeletion(t *testing.T) {
	t.Parallel()

	m, s := newManager(t, 0)
	p := tempFile(t, "gone.u")
	require.NoError(t, m.Watch(p))

	require.NoError(t, os.Remove(p))
	assert.Eventually(t, func() bool { return s.count(p, ChangeDeleted) == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatchIgnoresSiblings(t *testing.T) {
	t.Parallel()

	m, s := newManager(t, 0)
	p := tempFile(t, "watched.u")
	sibling := filepath.Join(filepath.Dir(p), "other.u")
	require.NoError(t, m.Watch(p))

	require.NoError(t, os.WriteFile(sibling, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(p, []byte("y"), 0o644))
	assert.Eventually(t, func() bool { return s.count(p, ChangeModified) > 0 }, 3*time.Second, 10*time.Millisecond)
	for _, e := range s.all() {
		assert.Equal(t, p, e.Path)
	}
}

func TestDebounceDropsRepeats(t *testing.T) {
	t.Parallel()

	m, s := newManager(t, time.Hour)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	p := "/tmp/debounce-test.u"
	m.files[p] = struct{}{}

	m.handle(fsnotify.Event{Name: p, Op: fsnotify.Write})
	m.handle(fsnotify.Event{Name: p, Op: fsnotify.Write})
	m.handle(fsnotify.Event{Name: p, Op: fsnotify.Create})
	assert.Equal(t, 1, s.count(p, ChangeModified))

	// deletions are never debounced
	m.handle(fsnotify.Event{Name: p, Op: fsnotify.Remove})
	m.handle(fsnotify.Event{Name: p, Op: fsnotify.Remove})
	assert.Equal(t, 2, s.count(p, ChangeDeleted))

	now = now.Add(2 * time.Hour)
	m.handle(fsnotify.Event{Name: p, Op: fsnotify.Write})
	assert.Equal(t, 2, s.count(p, ChangeModified))

	m.handle(fsnotify.Event{Name: p, Op: fsnotify.Chmod})
	assert.Len(t, s.all(), 4)
}

func TestWatchIdempotent(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, 0)
	p := tempFile(t, "twice.u")
	require.NoError(t, m.Watch(p))
	require.NoError(t, m.Watch(p))
	assert.Equal(t, []string{p}, m.Watched())

	require.NoError(t, m.Unwatch(p))
	require.NoError(t, m.Unwatch(p))
	require.NoError(t, m.Unwatch("/never/watched"))
	assert.Empty(t, m.Watched())
}

func TestUnwatchKeepsSharedDirectory(t *testing.T) {
	t.Parallel()

	m, s := newManager(t, 0)
	a := tempFile(t, "a.u")
	b := filepath.Join(filepath.Dir(a), "b.u")
	require.NoError(t, os.WriteFile(b, nil, 0o644))
	require.NoError(t, m.Watch(a))
	require.NoError(t, m.Watch(b))
	require.NoError(t, m.Unwatch(a))

	require.NoError(t, os.WriteFile(b, []byte("changed"), 0o644))
	assert.Eventually(t, func() bool { return s.count(b, ChangeModified) > 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatchMissingDirectory(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, 0)
	assert.Error(t, m.Watch("/definitely/not/here/file.u"))
	assert.Empty(t, m.Watched())
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, 0)
	require.NoError(t, m.Close())
	assert.NoError(t, m.Close())
	assert.ErrorIs(t, m.Watch(tempFile(t, "late.u")), ErrClosed)
}
