// ABOUTME: JSON-RPC 2.0 types and the Transport interface used to talk to the tool's RPC server
// ABOUTME: Defines Request, Response, Notification, error types and tools/call payloads

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

const jsonRPCVersion = "2.0"

var (
	// ErrNotInitialized is returned when a tool is called before Connect.
	ErrNotInitialized = errors.New("mcp: client not initialized")
	// ErrTransportClosed is returned once the subprocess is gone or the
	// transport was closed; the client must be discarded.
	ErrTransportClosed = errors.New("mcp: transport closed")
)

// Transport carries JSON-RPC messages to one server.
type Transport interface {
	// Send writes a request and blocks until its response arrives.
	Send(ctx context.Context, msg *Request) (*Response, error)
	// Notify sends a notification (no response expected).
	Notify(ctx context.Context, msg *Notification) error
	// Close shuts down the transport. Safe to call more than once.
	Close() error
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification is a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// ServerCapabilities describes what the server supports.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability indicates tools support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// MCPTool represents a tool exposed by the server.
type MCPTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCallResult holds the result of calling a tool.
type ToolCallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Text joins the text content items with newlines.
func (r ToolCallResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" || (c.Type == "" && c.Text != "") {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ContentItem is a piece of content in a tool result.
type ContentItem struct {
	Type string `json:"type"` // "text", "image", "resource"
	Text string `json:"text,omitempty"`
}

// InitializeResult is returned from the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ServerInfo identifies the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}
