// ABOUTME: RPC client implementing the initialize handshake, tool listing and tool calling
// ABOUTME: Tool-level failures come back as results with IsError; Go errors mean the transport failed

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mauromedda/ucm-bridge/internal/metrics"
)

// ProtocolVersion is the protocol revision sent in initialize.
const ProtocolVersion = "2024-11-05"

// ClientInfo identifies this client in the handshake.
var ClientInfo = ServerInfo{Name: "ucm-bridge", Version: "1.0.0"}

// Client communicates with a single server.
type Client struct {
	transport Transport

	mu         sync.RWMutex
	connected  bool
	serverInfo ServerInfo
}

// NewClient creates a new client with the given transport.
func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// Connect performs the initialize handshake and sends
// notifications/initialized. An error response fails the handshake.
func (c *Client) Connect(ctx context.Context) error {
	params, _ := json.Marshal(map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      ClientInfo,
	})

	resp, err := c.transport.Send(ctx, &Request{
		Method: "initialize",
		Params: params,
	})
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize error: %w", resp.Error)
	}

	var result InitializeResult
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return fmt.Errorf("parsing initialize result: %w", err)
		}
	}

	if err := c.transport.Notify(ctx, &Notification{Method: "notifications/initialized"}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.connected = true
	c.mu.Unlock()
	logger.Info("connected to %s %s (protocol %s)", result.ServerInfo.Name, result.ServerInfo.Version, result.ProtocolVersion)
	return nil
}

// Connected reports whether the handshake completed.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ListTools requests the tool list from the server.
func (c *Client) ListTools(ctx context.Context) ([]MCPTool, error) {
	if !c.Connected() {
		return nil, ErrNotInitialized
	}
	resp, err := c.transport.Send(ctx, &Request{Method: "tools/list"})
	if err != nil {
		return nil, fmt.Errorf("tools/list request: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list error: %w", resp.Error)
	}

	var result struct {
		Tools []MCPTool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parsing tools list: %w", err)
	}

	return result.Tools, nil
}

// CallTool invokes a tool on the server. A JSON-RPC error object becomes
// a result with IsError set.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (result ToolCallResult, err error) {
	if !c.Connected() {
		return ToolCallResult{}, ErrNotInitialized
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "transport_error"
		case result.IsError:
			outcome = "tool_error"
		}
		metrics.RPCCallDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
	}()

	params, _ := json.Marshal(map[string]any{
		"name":      name,
		"arguments": args,
	})

	resp, err := c.transport.Send(ctx, &Request{
		Method: "tools/call",
		Params: params,
	})
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("tools/call %s: %w", name, err)
	}
	if resp.Error != nil {
		logger.Debug("tools/call %s: error %d: %s", name, resp.Error.Code, resp.Error.Message)
		return ToolCallResult{IsError: true, Content: []ContentItem{
			{Type: "text", Text: resp.Error.Message},
		}}, nil
	}

	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return ToolCallResult{}, fmt.Errorf("parsing %s result: %w", name, err)
	}
	return result, nil
}

// ServerInfo returns the server information from the handshake.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Close shuts down the client and transport.
func (c *Client) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return c.transport.Close()
}

// IsTransportError reports whether err means the client is unusable and
// must be replaced. Cancellation counts: it tears the transport down.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
