// ABOUTME: Per-file change watcher built on fsnotify directory watches
// ABOUTME: Emits file-changed events (modified or deleted) with per-path debouncing of repeats

package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mauromedda/ucm-bridge/internal/events"
	"github.com/mauromedda/ucm-bridge/internal/log"
)

// Change types carried in file-changed events.
const (
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
)

// DefaultDebounce drops repeated non-delete events for a path.
const DefaultDebounce = 100 * time.Millisecond

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("watcher closed")

var logger = log.With("watcher")

// Manager watches individual files. Each file's parent directory is
// watched instead of the file, so saves that replace the file by rename
// are still seen.
type Manager struct {
	fsw      *fsnotify.Watcher
	pub      events.Publisher
	debounce time.Duration
	now      func() time.Time

	mu     sync.Mutex
	closed bool
	files  map[string]struct{}
	dirs   map[string]int
	last   map[string]time.Time

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a Manager publishing to pub. debounce <= 0 selects
// DefaultDebounce.
func New(pub events.Publisher, debounce time.Duration) (*Manager, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if pub == nil {
		pub = events.Discard
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	m := &Manager{
		fsw:      fsw,
		pub:      pub,
		debounce: debounce,
		now:      time.Now,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]int),
		last:     make(map[string]time.Time),
	}
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

// Watch starts watching path. Watching a path twice is a no-op.
func (m *Manager) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.files[abs]; ok {
		return nil
	}
	dir := filepath.Dir(abs)
	if m.dirs[dir] == 0 {
		if err := m.fsw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	m.dirs[dir]++
	m.files[abs] = struct{}{}
	logger.Debug("watching %s", abs)
	return nil
}

// Unwatch stops watching path. Unwatching an unwatched path is a no-op.
func (m *Manager) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[abs]; !ok {
		return nil
	}
	delete(m.files, abs)
	delete(m.last, abs)

	dir := filepath.Dir(abs)
	m.dirs[dir]--
	if m.dirs[dir] <= 0 {
		delete(m.dirs, dir)
		if !m.closed {
			if err := m.fsw.Remove(dir); err != nil {
				logger.Debug("removing watch on %s: %v", dir, err)
			}
		}
	}
	logger.Debug("unwatched %s", abs)
	return nil
}

// Watched returns the watched paths, sorted.
func (m *Manager) Watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close stops watching everything. Safe to call more than once.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		err = m.fsw.Close()
		m.wg.Wait()
	})
	return err
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-m.fsw.Events:
			if !ok {
				return
			}
			m.handle(ev)
		case err, ok := <-m.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("fsnotify: %v", err)
		}
	}
}

func (m *Manager) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	change, ok := classify(ev)
	if !ok {
		return
	}

	m.mu.Lock()
	if _, watched := m.files[path]; !watched {
		m.mu.Unlock()
		return
	}
	now := m.now()
	if change != ChangeDeleted {
		if prev, ok := m.last[path]; ok && now.Sub(prev) < m.debounce {
			m.mu.Unlock()
			logger.Debug("skipping repeat event for %s (%v since last)", path, now.Sub(prev))
			return
		}
	}
	m.last[path] = now
	m.mu.Unlock()

	logger.Info("file %s: %s", change, path)
	m.pub.Publish(events.Event{
		Kind:       events.KindFileChanged,
		Path:       path,
		ChangeType: change,
		DetectedAt: now,
	})
}

// classify maps an fsnotify op to a change type. A rename counts as a
// deletion only when the file is gone afterwards.
func classify(ev fsnotify.Event) (string, bool) {
	switch {
	case ev.Has(fsnotify.Remove):
		return ChangeDeleted, true
	case ev.Has(fsnotify.Rename):
		if _, err := os.Stat(ev.Name); err != nil {
			return ChangeDeleted, true
		}
		return ChangeModified, true
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		return ChangeModified, true
	default:
		return "", false
	}
}
