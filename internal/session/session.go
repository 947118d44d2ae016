// ABOUTME: ProcessSession: the tool attached to a pseudo-terminal, owned by a single actor goroutine
// ABOUTME: FIFO write queue, dedicated pty reader, raw-output events before parsing, ordered event dispatch

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/mauromedda/ucm-bridge/internal/config"
	"github.com/mauromedda/ucm-bridge/internal/events"
	"github.com/mauromedda/ucm-bridge/internal/log"
	"github.com/mauromedda/ucm-bridge/internal/metrics"
	"github.com/mauromedda/ucm-bridge/internal/ports"
)

// ErrSessionClosed is returned by operations on a session in a terminal state.
var ErrSessionClosed = errors.New("session is not running")

const (
	readBufferSize = 4096
	retryBackoff   = 10 * time.Millisecond
	// exitGrace bounds how long output is still drained after the process
	// exits while a grandchild keeps the pty open.
	exitGrace = 500 * time.Millisecond
	queueSize = 256
)

var logger = log.With("session")

// Options configures Spawn.
type Options struct {
	Binary string
	Args   []string
	// ControlPortFlag precedes the control port on the command line;
	// empty means the port is not passed.
	ControlPortFlag  string
	ControlPortStart int
	// ProtocolPort pins the protocol port; zero negotiates one from
	// ProtocolPortStart and exports it through ProtocolEnv.
	ProtocolPort      int
	ProtocolPortStart int
	ProtocolEnv       string

	Dir       string
	ExtraPath []string
	Env       map[string]string

	Rows, Cols uint16

	ParseEvery   int
	SmallChunk   int
	BufferMax    int
	BufferKeep   int
	LockSentinel string
	// Parser defaults to PromptParser.
	Parser ContextParser
}

// OptionsFromConfig maps bridge configuration onto session options.
func OptionsFromConfig(cfg *config.Config, dir string) Options {
	return Options{
		Binary:            cfg.Tool.Binary,
		Args:              append([]string(nil), cfg.Tool.Args...),
		ControlPortFlag:   cfg.Tool.ControlPortFlag,
		ControlPortStart:  cfg.Ports.ControlStart,
		ProtocolPort:      cfg.Ports.ProtocolFixed,
		ProtocolPortStart: cfg.Ports.ProtocolStart,
		ProtocolEnv:       cfg.Ports.ProtocolEnv,
		Dir:               dir,
		ExtraPath:         cfg.Tool.ExtraPath,
		Env:               cfg.Tool.Env,
		Rows:              cfg.Terminal.Rows,
		Cols:              cfg.Terminal.Cols,
		ParseEvery:        cfg.Terminal.ParseEvery,
		SmallChunk:        cfg.Terminal.SmallChunk,
		BufferMax:         cfg.Terminal.BufferMax,
		BufferKeep:        cfg.Terminal.BufferKeep,
		LockSentinel:      cfg.Tool.LockSentinel,
	}
}

func (o Options) withDefaults() Options {
	d := config.Default()
	if o.ControlPortStart == 0 {
		o.ControlPortStart = d.Ports.ControlStart
	}
	if o.ProtocolPortStart == 0 {
		o.ProtocolPortStart = d.Ports.ProtocolStart
	}
	if o.Rows == 0 {
		o.Rows = d.Terminal.Rows
	}
	if o.Cols == 0 {
		o.Cols = d.Terminal.Cols
	}
	if o.ParseEvery <= 0 {
		o.ParseEvery = d.Terminal.ParseEvery
	}
	if o.SmallChunk <= 0 {
		o.SmallChunk = d.Terminal.SmallChunk
	}
	if o.BufferMax <= 0 {
		o.BufferMax = d.Terminal.BufferMax
	}
	if o.BufferKeep <= 0 || o.BufferKeep > o.BufferMax {
		o.BufferKeep = o.BufferMax / 2
	}
	return o
}

// Ports are the tool's listening ports for this session.
type Ports struct {
	Control  int `json:"controlPort"`
	Protocol int `json:"protocolPort"`
}

type readResult struct {
	data []byte
	err  error
}

type resizeRequest struct {
	rows, cols uint16
	reply      chan error
}

type snapshot struct {
	state State
	ctx   Context
}

// Session is one tool process under a pseudo-terminal. All mutable state is
// owned by the run goroutine; public methods talk to it over channels.
type Session struct {
	id    string
	ports Ports
	cmd   *exec.Cmd
	ptmx  *os.File
	pub   events.Publisher

	// actor-owned
	state   State
	tracker *outputTracker
	waitErr error

	chunks    chan readResult
	writes    chan []byte
	writeErrs chan error
	resizes   chan resizeRequest
	queries   chan chan snapshot
	stops     chan chan struct{}
	exited    chan error
	outbox    chan events.Event

	// closed when the actor reaches a terminal state; final is valid after.
	closed chan struct{}
	final  snapshot
	// done is closed once every event has been delivered.
	done chan struct{}
}

// Spawn allocates ports, starts the tool under a new pseudo-terminal and
// begins reading its output. Events are delivered to pub in order on a
// dedicated goroutine. ctx only bounds the start; the session outlives it.
func Spawn(ctx context.Context, opts Options, pub events.Publisher) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("spawning tool: %w", err)
	}
	opts = opts.withDefaults()
	if pub == nil {
		pub = events.Discard
	}

	home, _ := os.UserHomeDir()
	pathValue := searchPath(opts.ExtraPath, home, os.Getenv("PATH"))
	bin, err := lookPath(opts.Binary, pathValue)
	if err != nil {
		return nil, fmt.Errorf("spawning tool: %w", err)
	}

	var held []*ports.Reservation
	releaseAll := func() {
		for _, r := range held {
			r.Release()
		}
	}

	protocolPort := opts.ProtocolPort
	if protocolPort == 0 {
		r, err := ports.Reserve(opts.ProtocolPortStart)
		if err != nil {
			return nil, fmt.Errorf("allocating protocol port from %d: %w", opts.ProtocolPortStart, err)
		}
		held = append(held, r)
		protocolPort = r.Port()
	}

	ctrl, err := ports.Reserve(opts.ControlPortStart)
	if err == nil && ctrl.Port() == protocolPort {
		// Only possible with a pinned protocol port that is not bound yet.
		ctrl.Release()
		ctrl, err = ports.Reserve(protocolPort + 1)
	}
	if err != nil {
		releaseAll()
		return nil, fmt.Errorf("allocating control port from %d: %w", opts.ControlPortStart, err)
	}
	held = append(held, ctrl)

	args := append([]string(nil), opts.Args...)
	if opts.ControlPortFlag != "" {
		args = append(args, opts.ControlPortFlag, strconv.Itoa(ctrl.Port()))
	}

	cmd := exec.Command(bin, args...)
	cmd.Env = buildEnv(os.Environ(), pathValue, home, opts.ProtocolEnv, negotiated(opts, protocolPort), opts.Env)
	cmd.Dir = opts.Dir
	if cmd.Dir == "" {
		cmd.Dir = home
	}

	// The tool binds these ports itself; hand them over just before start.
	releaseAll()
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		return nil, fmt.Errorf("starting %s under pty: %w", bin, err)
	}

	s := &Session{
		id:    uuid.NewString(),
		ports: Ports{Control: ctrl.Port(), Protocol: protocolPort},
		cmd:   cmd,
		ptmx:  ptmx,
		pub:   pub,
		state: StateRunning,
		tracker: newOutputTracker(trackerConfig{
			parseEvery:   opts.ParseEvery,
			smallChunk:   opts.SmallChunk,
			bufferMax:    opts.BufferMax,
			bufferKeep:   opts.BufferKeep,
			lockSentinel: opts.LockSentinel,
			parser:       opts.Parser,
		}),
		chunks:    make(chan readResult, 64),
		writes:    make(chan []byte, queueSize),
		writeErrs: make(chan error, 1),
		resizes:   make(chan resizeRequest),
		queries:   make(chan chan snapshot),
		stops:     make(chan chan struct{}),
		exited:    make(chan error, 1),
		outbox:    make(chan events.Event, queueSize),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}

	logger.Info("spawned %s (pid %d) session %s in %s, control port %d, protocol port %d",
		bin, cmd.Process.Pid, s.id, cmd.Dir, s.ports.Control, s.ports.Protocol)

	go s.dispatch()
	go s.readLoop()
	go s.writeLoop()
	go func() { s.exited <- cmd.Wait() }()
	go s.run()
	return s, nil
}

// negotiated returns the port to export through ProtocolEnv, or 0 when the
// protocol port is pinned and the tool already knows it.
func negotiated(opts Options, port int) int {
	if opts.ProtocolPort != 0 {
		return 0
	}
	return port
}

// ID returns the session's unique handle.
func (s *Session) ID() string { return s.id }

// Ports returns the tool's control and protocol ports.
func (s *Session) Ports() Ports { return s.ports }

// Done is closed after the session reached a terminal state and all of its
// events were delivered.
func (s *Session) Done() <-chan struct{} { return s.done }

// Write queues p for the tool's input. Writes are applied in submission
// order by a single writer. Returns ErrSessionClosed once the session ended.
func (s *Session) Write(p []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	buf := append([]byte(nil), p...)
	select {
	case <-s.closed:
		return ErrSessionClosed
	case s.writes <- buf:
		return nil
	}
}

// Resize changes the pseudo-terminal's window size.
func (s *Session) Resize(rows, cols uint16) error {
	reply := make(chan error, 1)
	select {
	case <-s.closed:
		return ErrSessionClosed
	case s.resizes <- resizeRequest{rows: rows, cols: cols, reply: reply}:
		return <-reply
	}
}

// SwitchContext types the tool's switch command for project/branch.
func (s *Session) SwitchContext(project, branch string) error {
	if project == "" || branch == "" || strings.ContainsAny(project+branch, " \t\r\n") {
		return fmt.Errorf("switching to %q/%q: project and branch must be non-empty words", project, branch)
	}
	return s.Write([]byte("switch " + project + "/" + branch + "\n"))
}

// Context returns the last context detected from the prompt.
func (s *Session) Context() Context {
	return s.snapshot().ctx
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.snapshot().state
}

// IsRunning reports whether the session has not reached a terminal state.
func (s *Session) IsRunning() bool {
	return !s.State().Terminal()
}

// Stop kills the tool and ends the session. Stopping a session that already
// ended is a no-op and publishes nothing.
func (s *Session) Stop() error {
	reply := make(chan struct{})
	select {
	case <-s.closed:
		return nil
	case s.stops <- reply:
		<-reply
		return nil
	}
}

func (s *Session) snapshot() snapshot {
	reply := make(chan snapshot, 1)
	select {
	case <-s.closed:
		return s.final
	case s.queries <- reply:
		return <-reply
	}
}

// run is the actor loop; it is the only goroutine that touches actor-owned fields.
func (s *Session) run() {
	defer close(s.closed)

	var grace <-chan time.Time
	for {
		select {
		case r := <-s.chunks:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					s.finish(StateExited, s.waitErr)
				} else {
					s.finish(StateExited, fmt.Errorf("reading pty: %w", r.err))
				}
				return
			}
			if s.handleChunk(r.data) {
				return
			}
		case err := <-s.writeErrs:
			s.finish(StateExited, fmt.Errorf("writing pty: %w", err))
			return
		case req := <-s.resizes:
			req.reply <- s.resize(req.rows, req.cols)
		case reply := <-s.queries:
			reply <- snapshot{state: s.state, ctx: s.tracker.Context()}
		case reply := <-s.stops:
			s.finish(StateStopped, nil)
			close(reply)
			return
		case err := <-s.exited:
			s.waitErr = err
			grace = time.After(exitGrace)
		case <-grace:
			s.finish(StateExited, s.waitErr)
			return
		}
	}
}

// handleChunk publishes raw output, then scrapes it. Reports whether the
// session became terminal.
func (s *Session) handleChunk(data []byte) bool {
	metrics.SessionOutputBytes.Add(float64(len(data)))
	s.emit(events.Event{Kind: events.KindRawOutput, Data: data})

	res := s.tracker.Feed(data)
	if res.locked {
		logger.Warn("session %s: lock conflict detected; another instance holds the codebase", s.id)
		s.finish(StateDead, nil)
		return true
	}
	if res.changed {
		logger.Debug("session %s: context changed to %s", s.id, res.context)
		s.emit(events.Event{
			Kind:    events.KindContextChanged,
			Project: res.context.Project,
			Branch:  res.context.Branch,
		})
	}
	return false
}

func (s *Session) resize(rows, cols uint16) error {
	if rows == 0 || cols == 0 {
		return fmt.Errorf("resizing pty to %dx%d: dimensions must be non-zero", rows, cols)
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resizing pty to %dx%d: %w", rows, cols, err)
	}
	return nil
}

// finish moves the session to a terminal state, releases the process and
// pty, and publishes the closing event.
func (s *Session) finish(state State, cause error) {
	s.state = state
	if err := killProcGroup(s.cmd); err != nil {
		logger.Debug("session %s: killing process group: %v", s.id, err)
	}
	_ = s.ptmx.Close()

	switch state {
	case StateDead:
		s.emit(events.Event{Kind: events.KindLockConflict})
	default:
		e := events.Event{Kind: events.KindProcessExited, State: state.String()}
		if cause != nil {
			e.Err = cause.Error()
		}
		s.emit(e)
	}
	logger.Info("session %s %s", s.id, state)

	s.final = snapshot{state: state, ctx: s.tracker.Context()}
	close(s.outbox)
}

func (s *Session) emit(e events.Event) {
	e.SessionID = s.id
	metrics.SessionEvents.WithLabelValues(string(e.Kind)).Inc()
	s.outbox <- e
}

// dispatch delivers events in order, off the actor goroutine, so handlers
// may call back into the session.
func (s *Session) dispatch() {
	defer close(s.done)
	for e := range s.outbox {
		s.pub.Publish(e)
	}
}

func (s *Session) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case s.chunks <- readResult{data: chunk}:
			case <-s.closed:
				return
			}
		}
		if err == nil {
			continue
		}
		if transientReadError(err) {
			time.Sleep(retryBackoff)
			continue
		}
		if hangup(err) {
			err = io.EOF
		}
		select {
		case s.chunks <- readResult{err: err}:
		case <-s.closed:
		}
		return
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case p := <-s.writes:
			if _, err := s.ptmx.Write(p); err != nil {
				select {
				case s.writeErrs <- err:
				case <-s.closed:
				}
				return
			}
		}
	}
}
