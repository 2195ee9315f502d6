package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openplugin/openplugin-go/plugin"
	"github.com/openplugin/openplugin-go/provider"
)

// Dialer builds the transport for a declared server. The default dialer
// spawns the configured command over stdio; tests substitute in-memory
// transports.
type Dialer func(cfg plugin.MCPServerConfig) (mcp.Transport, error)

func commandDialer(cfg plugin.MCPServerConfig) (mcp.Transport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// Bridge owns MCP server connections. Connections are keyed by plugin and
// server name and reused across dispatches; each is spawned lazily on its
// first request.
type Bridge struct {
	dial             Dialer
	logger           *slog.Logger
	handshakeTimeout time.Duration
	callTimeout      time.Duration

	mu    sync.Mutex
	conns map[string]*Conn
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithHandshakeTimeout bounds how long a server may take to complete the
// protocol handshake after spawning.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.handshakeTimeout = d }
}

// WithCallTimeout bounds individual tools/list and tools/call requests.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.callTimeout = d }
}

// WithDialer replaces the subprocess dialer.
func WithDialer(dial Dialer) Option {
	return func(b *Bridge) { b.dial = dial }
}

// NewBridge creates a bridge with no live connections.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		dial:             commandDialer,
		logger:           slog.New(slog.DiscardHandler),
		handshakeTimeout: 10 * time.Second,
		callTimeout:      30 * time.Second,
		conns:            make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Conn returns the connection for one declared server, creating it (but
// not spawning the process) on first request.
func (b *Bridge) Conn(pluginName, serverName string, cfg plugin.MCPServerConfig) *Conn {
	key := pluginName + "/" + serverName

	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.conns[key]; ok {
		return c
	}
	c := &Conn{
		server:           serverName,
		cfg:              cfg,
		dial:             b.dial,
		logger:           b.logger.With("plugin", pluginName),
		handshakeTimeout: b.handshakeTimeout,
		callTimeout:      b.callTimeout,
	}
	b.conns[key] = c
	return c
}

// ServerFailure reports one server that could not contribute tools.
type ServerFailure struct {
	Server string
	Err    error
}

// ToolSet connects to every server a plugin declares and aggregates their
// tools. Servers that fail to connect or list are reported as failures and
// skipped, so a plugin with one broken server still exposes the rest. When
// two servers advertise the same tool name, the first (in server name
// order) wins.
func (b *Bridge) ToolSet(ctx context.Context, p *plugin.Plugin) (*ToolSet, []ServerFailure) {
	set := &ToolSet{routes: make(map[string]*Conn)}
	var failures []ServerFailure

	names := make([]string, 0, len(p.MCPServers))
	for name := range p.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		conn := b.Conn(p.Name(), name, p.MCPServers[name])
		tools, err := conn.ListTools(ctx)
		if err != nil {
			b.logger.Warn("mcp server unavailable", "plugin", p.Name(), "server", name, "error", err)
			failures = append(failures, ServerFailure{Server: name, Err: err})
			continue
		}
		for _, t := range tools {
			if _, taken := set.routes[t.Name]; taken {
				b.logger.Warn("duplicate tool name, keeping first", "tool", t.Name, "server", name)
				continue
			}
			set.routes[t.Name] = conn
			set.defs = append(set.defs, provider.ToolDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
	}
	return set, failures
}

// Close shuts down every live connection. Safe to call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.conns = make(map[string]*Conn)
	b.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ToolSet is the aggregated tool surface of one plugin's servers. It
// satisfies provider.ToolRunner, routing each call to the connection that
// advertised the tool.
type ToolSet struct {
	defs   []provider.ToolDef
	routes map[string]*Conn
}

// Defs returns the aggregated tool descriptors.
func (s *ToolSet) Defs() []provider.ToolDef { return s.defs }

// Empty reports whether no server contributed any tool.
func (s *ToolSet) Empty() bool { return len(s.defs) == 0 }

// CallTool implements provider.ToolRunner.
func (s *ToolSet) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	conn, ok := s.routes[name]
	if !ok {
		return "", fmt.Errorf("tool not found: %q", name)
	}
	return conn.CallTool(ctx, name, args)
}
