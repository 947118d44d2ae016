// ABOUTME: ProtocolRelay: bridges WebSocket clients to the tool's Content-Length framed TCP endpoint
// ABOUTME: One errgroup per connection; either direction ending tears down and joins both

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/mauromedda/ucm-bridge/internal/frame"
	"github.com/mauromedda/ucm-bridge/internal/log"
	"github.com/mauromedda/ucm-bridge/internal/metrics"
)

const closeWriteTimeout = time.Second

var logger = log.With("relay")

// Options configures a Relay.
type Options struct {
	// Upstream is the tool's protocol endpoint, e.g. "127.0.0.1:5757".
	Upstream string
	// MaxMessageBytes caps a single message in either direction.
	MaxMessageBytes int
	// CheckOrigin vets the upgrade request. Nil accepts every origin:
	// the relay only listens on loopback and editor webviews send
	// arbitrary origins.
	CheckOrigin func(*http.Request) bool
}

// Relay accepts WebSocket clients and connects each to its own upstream
// TCP connection. Connections share nothing but the options.
type Relay struct {
	opts     Options
	upgrader websocket.Upgrader
	dialer   net.Dialer
	srv      *http.Server

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup

	closeOnce sync.Once
}

// New returns a Relay for opts.
func New(opts Options) *Relay {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = frame.DefaultMaxMessageBytes
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	base, cancel := context.WithCancel(context.Background())
	r := &Relay{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
		},
		base:   base,
		cancel: cancel,
	}
	r.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	return r
}

// Serve accepts clients on ln until ctx is cancelled, Close is called or
// the listener fails. A clean shutdown returns nil.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	logger.Info("listening on %s, upstream %s", ln.Addr(), r.opts.Upstream)
	err := r.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serving relay on %s: %w", ln.Addr(), err)
}

// Close stops accepting clients, tears down every open connection and
// waits for their handlers to return. It is safe to call more than once.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.cancel()
		err = r.srv.Close()
		r.conns.Wait()
	})
	return err
}

// ServeHTTP upgrades the request and bridges it until either side ends.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		http.Error(w, "relay closed", http.StatusServiceUnavailable)
		return
	}
	r.conns.Add(1)
	r.mu.Unlock()
	defer r.conns.Done()

	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warn("upgrade from %s: %v", req.RemoteAddr, err)
		return
	}
	r.bridge(ws, req.RemoteAddr)
}

// directionError tags a failure with the side of the bridge that saw it.
type directionError struct {
	dir string
	err error
}

func (e *directionError) Error() string { return e.dir + ": " + e.err.Error() }
func (e *directionError) Unwrap() error { return e.err }

func (r *Relay) bridge(ws *websocket.Conn, remote string) {
	metrics.RelayConnections.Inc()
	metrics.RelayActive.Inc()
	defer metrics.RelayActive.Dec()

	ws.SetReadLimit(int64(r.opts.MaxMessageBytes))

	up, err := r.dialer.DialContext(r.base, "tcp", r.opts.Upstream)
	if err != nil {
		logger.Warn("connection %s: dialing upstream %s: %v", remote, r.opts.Upstream, err)
		closeWith(ws, websocket.CloseTryAgainLater, "upstream unavailable")
		_ = ws.Close()
		return
	}
	logger.Debug("connection %s: bridged to %s", remote, up.RemoteAddr())

	g, ctx := errgroup.WithContext(r.base)
	g.Go(func() error {
		return &directionError{dir: metrics.DirClientToTool, err: clientToTool(ws, up)}
	})
	g.Go(func() error {
		return &directionError{dir: metrics.DirToolToClient, err: toolToClient(up, ws, r.opts.MaxMessageBytes)}
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = up.Close()
		_ = ws.Close()
		return nil
	})

	err = g.Wait()
	r.report(remote, err)
}

// report logs how a connection ended.
func (r *Relay) report(remote string, err error) {
	switch {
	case err == nil, r.base.Err() != nil:
		logger.Debug("connection %s: closed", remote)
	case isFramingError(err):
		metrics.RelayFramingErrors.Inc()
		logger.Warn("connection %s: framing error on %v", remote, err)
	case isCleanClose(err):
		logger.Debug("connection %s: closed (%v)", remote, err)
	default:
		logger.Warn("connection %s: %v", remote, err)
	}
}

// clientToTool frames each WebSocket message for the tool. It always
// returns a non-nil error so the group cancels the other direction.
func clientToTool(ws *websocket.Conn, up net.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if err := frame.WriteMessage(up, data); err != nil {
			return err
		}
		metrics.RelayBytes.WithLabelValues(metrics.DirClientToTool).Add(float64(len(data)))
	}
}

// toolToClient forwards each framed tool message as one text message. A
// malformed frame closes the client with a protocol-error status.
func toolToClient(up net.Conn, ws *websocket.Conn, max int) error {
	fr := frame.NewReader(up, max)
	for {
		body, err := fr.ReadMessage()
		if err != nil {
			if isFramingError(err) {
				closeWith(ws, websocket.CloseProtocolError, "framing error")
			}
			return err
		}
		if err := ws.WriteMessage(websocket.TextMessage, body); err != nil {
			return err
		}
		metrics.RelayBytes.WithLabelValues(metrics.DirToolToClient).Add(float64(len(body)))
	}
}

func isFramingError(err error) bool {
	for _, target := range []error{
		frame.ErrMissingContentLength,
		frame.ErrInvalidContentLength,
		frame.ErrMessageTooLarge,
		frame.ErrHeaderTooLarge,
		frame.ErrInvalidUTF8,
		io.ErrUnexpectedEOF,
		websocket.ErrReadLimit,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isCleanClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

func closeWith(ws *websocket.Conn, code int, text string) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(closeWriteTimeout))
}
