// Package mcp bridges plugin-declared MCP servers into tool runners. Each
// declared server gets a lazily started stdio subprocess connection with an
// explicit lifecycle, and a Bridge memoizes connections so repeated
// dispatches against the same plugin reuse live sessions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openplugin/openplugin-go/plugin"
)

// State is the lifecycle phase of a server connection.
type State int

const (
	StateUnstarted State = iota
	StateStarting
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Tool describes one tool exposed by an MCP server.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Conn is one connection to an MCP server. The subprocess is spawned on
// first use, not at construction. A connection that entered StateFailed is
// re-established transparently on the next request; a closed connection
// stays closed.
//
// Conn satisfies provider.ToolRunner: in-flight requests are multiplexed
// over one session and correlated by request ID, so CallTool is safe to
// invoke from concurrent tool rounds.
type Conn struct {
	server string
	cfg    plugin.MCPServerConfig
	dial   Dialer
	logger *slog.Logger

	handshakeTimeout time.Duration
	callTimeout      time.Duration

	mu      sync.Mutex
	state   State
	session *mcp.ClientSession
}

// State reports the connection's current lifecycle phase.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Server returns the declared server name.
func (c *Conn) Server() string { return c.server }

// ensureSession returns a ready session, connecting or reconnecting as
// needed. Concurrent callers serialize on the handshake; once ready, they
// share the session.
func (c *Conn) ensureSession(ctx context.Context) (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady:
		return c.session, nil
	case StateClosed:
		return nil, ErrConnClosed
	}

	c.state = StateStarting
	c.logger.Debug("connecting to mcp server", "server", c.server, "command", c.cfg.Command)

	transport, err := c.dial(c.cfg)
	if err != nil {
		c.state = StateFailed
		return nil, &ConnectionError{Server: c.server, Kind: KindSpawn, Err: err}
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "openplugin",
		Version: "0.1.0",
	}, nil)

	hctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	session, err := client.Connect(hctx, transport, nil)
	if err != nil {
		c.state = StateFailed
		kind := KindSpawn
		if hctx.Err() != nil && ctx.Err() == nil {
			kind = KindHandshake
		}
		return nil, &ConnectionError{Server: c.server, Kind: kind, Err: err}
	}

	c.session = session
	c.state = StateReady
	c.logger.Info("mcp server connected", "server", c.server)
	return session, nil
}

// fail records a transport-level failure so the next request reconnects.
// A connection closed in the meantime stays closed.
func (c *Conn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateFailed
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
}

// ListTools returns the tools the server advertises.
func (c *Conn) ListTools(ctx context.Context) ([]Tool, error) {
	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := session.ListTools(cctx, &mcp.ListToolsParams{})
	if err != nil {
		if cctx.Err() != nil && ctx.Err() == nil {
			return nil, &TimeoutError{Server: c.server, Op: "tools/list", Err: err}
		}
		c.fail()
		return nil, fmt.Errorf("listing tools on %q: %w", c.server, err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

// CallTool invokes a tool and returns its content flattened to text. A
// failure the server reports as a tool result becomes a ToolError; the
// connection stays usable. Transport failures mark the connection failed
// so the next request reconnects.
func (c *Conn) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	session, err := c.ensureSession(ctx)
	if err != nil {
		return "", err
	}

	arguments := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("parsing arguments for tool %q: %w", name, err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := session.CallTool(cctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		if cctx.Err() != nil && ctx.Err() == nil {
			return "", &TimeoutError{Server: c.server, Op: "tools/call " + name, Err: err}
		}
		c.fail()
		return "", fmt.Errorf("calling tool %q on %q: %w", name, c.server, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", &ToolError{Server: c.server, Tool: name, Message: text}
	}
	return text, nil
}

// Close shuts the connection down. It is idempotent; later requests fail
// with ErrConnClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed

	if c.session != nil {
		session := c.session
		c.session = nil
		return session.Close()
	}
	return nil
}

// flattenContent joins result content into one text blob. Non-text items
// are represented as short descriptions.
func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		switch v := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s, %d bytes]", v.MIMEType, len(v.Data)))
		case *mcp.EmbeddedResource:
			if v.Resource != nil {
				parts = append(parts, fmt.Sprintf("[Resource: %s]", v.Resource.URI))
			} else {
				parts = append(parts, "[Resource: embedded]")
			}
		}
	}
	return strings.Join(parts, "\n")
}
