// ABOUTME: Stdio transport: spawns the tool's RPC server and exchanges newline-delimited JSON-RPC
// ABOUTME: One request in flight at a time; foreign lines are skipped; Close kills the process once

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mauromedda/ucm-bridge/internal/log"
)

const (
	maxScannerBuffer = 10 * 1024 * 1024 // 10MB
	waitDelay        = 2 * time.Second
)

var logger = log.With("mcp")

// StdioTransport communicates with a server via the stdin/stdout of a
// spawned process. Requests are not pipelined: Send holds the transport
// until its response line arrives.
type StdioTransport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner

	mu     sync.Mutex // serializes Send and Notify
	nextID atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewStdioTransport starts command with args. env, when non-empty,
// replaces the inherited environment. ctx only bounds the start; the
// process lives until Close.
func NewStdioTransport(ctx context.Context, command string, args []string, env []string) (*StdioTransport, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("starting RPC server %q: %w", command, err)
	}

	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = env
	}
	cmd.Stderr = &stderrLogger{}
	// grandchildren holding stderr must not stall Close
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting RPC server %q: %w", command, err)
	}
	logger.Debug("started %s %v (pid %d)", command, args, cmd.Process.Pid)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)

	return &StdioTransport{
		cmd:     cmd,
		stdin:   stdin,
		scanner: scanner,
		closed:  make(chan struct{}),
	}, nil
}

// Send writes req and reads lines until the response carrying req's id.
// Cancelling ctx closes the transport, since the line stream can no
// longer be trusted.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isClosed() {
		return nil, ErrTransportClosed
	}

	req.JSONRPC = jsonRPCVersion
	if req.ID == 0 {
		req.ID = t.nextID.Add(1)
	}

	if err := t.writeLine(req); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("writing %s request: %w: %w", req.Method, ErrTransportClosed, err)
	}

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := t.readResponse(req.ID)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			_ = t.Close()
			return nil, fmt.Errorf("awaiting %s response: %w", req.Method, r.err)
		}
		return r.resp, nil
	case <-ctx.Done():
		_ = t.Close()
		<-done
		return nil, ctx.Err()
	case <-t.closed:
		<-done
		return nil, ErrTransportClosed
	}
}

// Notify sends a notification (no response expected).
func (t *StdioTransport) Notify(_ context.Context, notif *Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isClosed() {
		return ErrTransportClosed
	}
	notif.JSONRPC = jsonRPCVersion
	if err := t.writeLine(notif); err != nil {
		_ = t.Close()
		return fmt.Errorf("writing %s notification: %w: %w", notif.Method, ErrTransportClosed, err)
	}
	return nil
}

// Close kills the server and reaps it. Only the first call acts; later
// calls return the same result.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		_ = t.stdin.Close()
		if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			t.closeErr = fmt.Errorf("killing RPC server: %w", err)
		}
		// Wait reports the kill signal; only a failed kill is an error.
		_ = t.cmd.Wait()
		logger.Debug("RPC server (pid %d) stopped", t.cmd.Process.Pid)
	})
	return t.closeErr
}

func (t *StdioTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *StdioTransport) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	data = append(data, '\n')
	_, err = t.stdin.Write(data)
	return err
}

// inbound is any line the server writes; Method is set on server-initiated
// requests and notifications.
type inbound struct {
	Response
	Method string `json:"method,omitempty"`
}

// readResponse consumes lines until one is the response to id.
func (t *StdioTransport) readResponse(id int64) (*Response, error) {
	for t.scanner.Scan() {
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg inbound
		if err := json.Unmarshal(line, &msg); err != nil {
			logger.Debug("skipping unparseable line: %.120s", line)
			continue
		}
		if msg.Method != "" {
			logger.Debug("skipping server message %s", msg.Method)
			continue
		}
		if msg.ID != id {
			logger.Debug("skipping response for id %d while awaiting %d", msg.ID, id)
			continue
		}
		resp := msg.Response
		return &resp, nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}
	return nil, ErrTransportClosed
}

// stderrLogger forwards the server's stderr to the debug log line by line.
type stderrLogger struct {
	mu  sync.Mutex
	buf []byte
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimSpace(w.buf[:i]); len(line) > 0 {
			logger.Debug("stderr: %s", line)
		}
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > 4096 {
		logger.Debug("stderr: %s", w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}
