// ABOUTME: File watching for editor buffers, created on first use
// ABOUTME: Changes are published on the Manager's bus as file-changed events

package bridge

import "github.com/mauromedda/ucm-bridge/internal/watcher"

// Watch starts watching path for external changes.
func (m *Manager) Watch(path string) error {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watcher == nil {
		w, err := watcher.New(m.bus, m.cfg.Watcher.Debounce)
		if err != nil {
			return err
		}
		m.watcher = w
	}
	return m.watcher.Watch(path)
}

// Unwatch stops watching path.
func (m *Manager) Unwatch(path string) error {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Unwatch(path)
}

// Watched lists the watched paths.
func (m *Manager) Watched() []string {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Watched()
}
