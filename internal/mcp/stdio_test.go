// ABOUTME: Tests for the stdio transport against a scripted fake server run through /bin/sh
// ABOUTME: Covers foreign-line skipping, id matching, server exit, cancellation and single teardown

package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeServer answers initialize after emitting noise (a notification, a
// foreign id and a non-JSON line), and answers tools/call by tool name.
const fakeServer = `
while IFS= read -r line; do
  id=$(printf '%s\n' "$line" | sed -n 's/^{"jsonrpc":"2.0","id":\([0-9][0-9]*\),.*/\1/p')
  [ -z "$id" ] && continue
  case "$line" in
    *'"method":"initialize"'*)
      echo '{"jsonrpc":"2.0","method":"notifications/message","params":{}}'
      echo '{"jsonrpc":"2.0","id":999,"result":{}}'
      echo 'not json at all'
      printf '{"jsonrpc":"2.0","id":%s,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake","version":"0.1"}}}\n' "$id" ;;
    *'"name":"boom"'*)
      printf '{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"boom failed"}}\n' "$id" ;;
    *'"name":"exit"'*)
      exit 0 ;;
    *'"name":"hang"'*)
      exec sleep 30 ;;
    *)
      printf '{"jsonrpc":"2.0","id":%s,"result":{"content":[{"type":"text","text":"ok %s"}]}}\n' "$id" "$id" ;;
  esac
done
`

func startFake(t *testing.T) (*StdioTransport, *Client) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	script := filepath.Join(t.TempDir(), "server.sh")
	if err := os.WriteFile(script, []byte(fakeServer), 0o644); err != nil {
		t.Fatal(err)
	}
	tr, err := NewStdioTransport(context.Background(), "/bin/sh", []string{script}, nil)
	if err != nil {
		t.Fatalf("NewStdioTransport: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	c := NewClient(tr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return tr, c
}

func TestStdioTransport_HandshakeSkipsForeignLines(t *testing.T) {
	t.Parallel()

	_, c := startFake(t)
	if got := c.ServerInfo().Name; got != "fake" {
		t.Errorf("server name = %q, want %q", got, "fake")
	}
}

func TestStdioTransport_SequentialCalls(t *testing.T) {
	t.Parallel()

	_, c := startFake(t)
	// initialize used id 1; the notification carries none
	for _, want := range []string{"ok 2", "ok 3", "ok 4"} {
		res, err := c.CallTool(context.Background(), "echo", nil)
		if err != nil {
			t.Fatalf("CallTool: %v", err)
		}
		if got := res.Text(); got != want {
			t.Errorf("Text() = %q, want %q", got, want)
		}
	}
}

func TestStdioTransport_ConcurrentCallsSerialized(t *testing.T) {
	t.Parallel()

	_, c := startFake(t)
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.CallTool(context.Background(), "echo", nil)
			if err != nil || res.IsError {
				t.Errorf("CallTool: %v %+v", err, res)
			}
		}()
	}
	wg.Wait()
}

func TestStdioTransport_ErrorObject(t *testing.T) {
	t.Parallel()

	_, c := startFake(t)
	res, err := c.CallTool(context.Background(), "boom", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || res.Text() != "boom failed" {
		t.Errorf("result = %+v", res)
	}
}

func TestStdioTransport_ServerExit(t *testing.T) {
	t.Parallel()

	_, c := startFake(t)
	_, err := c.CallTool(context.Background(), "exit", nil)
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("err = %v, want ErrTransportClosed", err)
	}
	_, err = c.CallTool(context.Background(), "echo", nil)
	if !errors.Is(err, ErrTransportClosed) {
		t.Errorf("after exit: err = %v, want ErrTransportClosed", err)
	}
}

func TestStdioTransport_CancelClosesTransport(t *testing.T) {
	t.Parallel()

	tr, c := startFake(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.CallTool(ctx, "hang", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("cancellation took %v", time.Since(start))
	}
	if !tr.isClosed() {
		t.Error("transport still open after cancellation")
	}
}

func TestStdioTransport_CloseOnce(t *testing.T) {
	t.Parallel()

	tr, _ := startFake(t)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = tr.Close()
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("Close #%d: %v", i, err)
		}
	}
	if _, err := tr.Send(context.Background(), &Request{Method: "ping"}); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Send after Close: err = %v, want ErrTransportClosed", err)
	}
	if err := tr.Notify(context.Background(), &Notification{Method: "x"}); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Notify after Close: err = %v, want ErrTransportClosed", err)
	}
}

func TestNewStdioTransport_MissingCommand(t *testing.T) {
	t.Parallel()

	if _, err := NewStdioTransport(context.Background(), "/nonexistent/rpc-server", nil, nil); err == nil {
		t.Error("expected error for missing command")
	}
}
