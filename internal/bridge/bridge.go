// ABOUTME: Coordinator that owns the interactive session, its protocol relay, the RPC client and the file watcher
// ABOUTME: Exposes the editor-facing operations and reports everything through one event bus

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/mauromedda/ucm-bridge/internal/config"
	"github.com/mauromedda/ucm-bridge/internal/events"
	"github.com/mauromedda/ucm-bridge/internal/log"
	"github.com/mauromedda/ucm-bridge/internal/mcp"
	"github.com/mauromedda/ucm-bridge/internal/ports"
	"github.com/mauromedda/ucm-bridge/internal/relay"
	"github.com/mauromedda/ucm-bridge/internal/session"
	"github.com/mauromedda/ucm-bridge/internal/watcher"
)

// ErrNoSession is returned by session operations when none is running.
var ErrNoSession = errors.New("no active session")

var logger = log.With("bridge")

// StartRequest asks for an interactive session.
type StartRequest struct {
	WorkingDirectory string `json:"workingDirectory,omitempty"`
}

// ServicePorts are the ports an editor needs to reach the session.
type ServicePorts struct {
	ControlPort  int `json:"controlPort"`
	ProtocolPort int `json:"protocolPort"`
	RelayPort    int `json:"relayPort"`
}

// Manager coordinates one interactive session at a time plus on-demand
// semantic operations. It is safe for concurrent use.
type Manager struct {
	cfg *config.Config
	bus *events.Bus[events.Event]

	mu          sync.Mutex
	sess        *session.Session
	relay       *relay.Relay
	relayPort   int
	relayCancel context.CancelFunc
	relayDone   chan struct{}

	// rpcMu admits one RPC operation at a time and guards client.
	rpcMu   sync.Mutex
	client  *mcp.Client
	dialRPC func(ctx context.Context) (mcp.Transport, error)

	watchMu sync.Mutex
	watcher *watcher.Manager
}

// New returns a Manager. A nil bus gets a private one.
func New(cfg *config.Config, bus *events.Bus[events.Event]) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if bus == nil {
		bus = events.New[events.Event]()
	}
	m := &Manager{cfg: cfg, bus: bus}
	m.dialRPC = m.spawnRPC
	return m
}

// Subscribe registers h for every event and returns its unsubscribe func.
func (m *Manager) Subscribe(h events.Handler[events.Event]) func() {
	return m.bus.Subscribe(h)
}

// StartSession returns the running session's ports, or spawns a session
// and its relay. A session that already ended is replaced.
func (m *Manager) StartSession(ctx context.Context, req StartRequest) (ServicePorts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil && m.sess.IsRunning() {
		return m.portsLocked(), nil
	}
	m.teardownLocked()

	// Held until the relay serves on it, so the session's own port scan
	// cannot pick it.
	res, err := ports.Reserve(m.cfg.Ports.RelayStart)
	if err != nil {
		return ServicePorts{}, fmt.Errorf("allocating relay port from %d: %w", m.cfg.Ports.RelayStart, err)
	}
	ln := res.Listener()

	sess, err := session.Spawn(ctx, session.OptionsFromConfig(m.cfg, req.WorkingDirectory), m.bus)
	if err != nil {
		_ = ln.Close()
		return ServicePorts{}, err
	}

	upstream := net.JoinHostPort("127.0.0.1", strconv.Itoa(sess.Ports().Protocol))
	r := relay.New(relay.Options{Upstream: upstream, MaxMessageBytes: m.cfg.Relay.MaxMessageBytes})
	rctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Serve(rctx, ln); err != nil {
			logger.Warn("relay stopped: %v", err)
		}
	}()

	m.sess = sess
	m.relay = r
	m.relayPort = res.Port()
	m.relayCancel = cancel
	m.relayDone = done

	p := m.portsLocked()
	logger.Info("session %s started: control %d, protocol %d, relay %d", sess.ID(), p.ControlPort, p.ProtocolPort, p.RelayPort)
	return p, nil
}

// StopSession stops the session and its relay. Without a session it is a
// no-op.
func (m *Manager) StopSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	err := m.sess.Stop()
	m.teardownLocked()
	return err
}

// teardownLocked stops the relay and forgets the session. Requires mu.
func (m *Manager) teardownLocked() {
	if m.relayCancel != nil {
		m.relayCancel()
		_ = m.relay.Close()
		<-m.relayDone
	}
	if m.sess != nil {
		_ = m.sess.Stop()
	}
	m.sess, m.relay, m.relayCancel, m.relayDone, m.relayPort = nil, nil, nil, nil, 0
}

func (m *Manager) portsLocked() ServicePorts {
	p := m.sess.Ports()
	return ServicePorts{ControlPort: p.Control, ProtocolPort: p.Protocol, RelayPort: m.relayPort}
}

// Ports returns the current session's ports; ok is false without one.
func (m *Manager) Ports() (ServicePorts, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ServicePorts{}, false
	}
	return m.portsLocked(), true
}

// Session returns the current session, or nil.
func (m *Manager) Session() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

func (m *Manager) current() (*session.Session, error) {
	if s := m.Session(); s != nil {
		return s, nil
	}
	return nil, ErrNoSession
}

// Write sends input to the session.
func (m *Manager) Write(p []byte) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	return s.Write(p)
}

// Resize resizes the session's terminal.
func (m *Manager) Resize(rows, cols uint16) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	return s.Resize(rows, cols)
}

// Context returns the session's last detected project and branch.
func (m *Manager) Context() (session.Context, error) {
	s, err := m.current()
	if err != nil {
		return session.Context{}, err
	}
	return s.Context(), nil
}

// SwitchContext switches the session to project/branch.
func (m *Manager) SwitchContext(project, branch string) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	return s.SwitchContext(project, branch)
}

// Close stops everything the Manager started.
func (m *Manager) Close() error {
	var errs []error
	if err := m.StopSession(); err != nil {
		errs = append(errs, err)
	}

	m.rpcMu.Lock()
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing RPC client: %w", err))
		}
		m.client = nil
	}
	m.rpcMu.Unlock()

	m.watchMu.Lock()
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing watcher: %w", err))
		}
		m.watcher = nil
	}
	m.watchMu.Unlock()

	return errors.Join(errs...)
}
