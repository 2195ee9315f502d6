// Package dispatch resolves commands and agents against the plugin
// registry and executes them on a capability provider, offering the
// plugin's MCP tools along the way.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openplugin/openplugin-go/mcp"
	"github.com/openplugin/openplugin-go/provider"
	"github.com/openplugin/openplugin-go/registry"
)

// Kind selects which plugin component a request targets.
type Kind string

const (
	KindCommand Kind = "command"
	KindAgent   Kind = "agent"
)

// NotFoundError means the plugin exists but has no component with the
// requested name.
type NotFoundError struct {
	Plugin string
	Kind   Kind
	Name   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in plugin %q", e.Kind, e.Name, e.Plugin)
}

// ToolsUnavailableError is returned when Options.RequireTools is set and
// the plugin's MCP servers could not all contribute tools.
type ToolsUnavailableError struct {
	Plugin   string
	Failures []mcp.ServerFailure
}

func (e *ToolsUnavailableError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("plugin %q: tools required but no mcp bridge configured", e.Plugin)
	}
	return fmt.Sprintf("plugin %q: %d mcp server(s) unavailable", e.Plugin, len(e.Failures))
}

// Request names a plugin component to execute and carries the user input.
type Request struct {
	Plugin  string
	Kind    Kind
	Name    string
	Input   string
	Options Options
}

// Options tune a single dispatch.
type Options struct {
	Model         string
	Temperature   *float64
	MaxTokens     *int
	MaxToolRounds int
	// RequireTools fails the dispatch when any declared MCP server is
	// unavailable. The default is to degrade to a tool-less execution.
	RequireTools bool
}

// Result is the outcome of one dispatch.
type Result struct {
	ID        string
	Plugin    string
	Kind      Kind
	Name      string
	Text      string
	ToolCalls []provider.ToolCallRecord
	UsedTools bool
	Usage     provider.Usage
}

// Dispatcher routes execution requests to plugin commands and agents.
type Dispatcher struct {
	registry *registry.Registry
	bridge   *mcp.Bridge
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a dispatcher over a registry. The bridge may be nil; plugins
// that declare MCP servers then execute tool-less, unless the request sets
// RequireTools, which fails instead.
func New(reg *registry.Registry, bridge *mcp.Bridge, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		bridge:   bridge,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute resolves the request and runs it on the given provider.
// Resolution failures return before anything is spawned or called.
func (d *Dispatcher) Execute(ctx context.Context, p provider.Provider, req Request) (*Result, error) {
	plug, err := d.registry.Get(req.Plugin)
	if err != nil {
		return nil, err
	}

	var text string
	var ok bool
	switch req.Kind {
	case KindAgent:
		text, ok = plug.Agent(req.Name)
	default:
		text, ok = plug.Command(req.Name)
	}
	if !ok {
		return nil, &NotFoundError{Plugin: req.Plugin, Kind: req.Kind, Name: req.Name}
	}

	var tools []provider.ToolDef
	var runner provider.ToolRunner
	if plug.HasMCPServers() {
		if d.bridge == nil {
			if req.Options.RequireTools {
				return nil, &ToolsUnavailableError{Plugin: req.Plugin}
			}
			d.logger.Warn("no mcp bridge configured, executing without tools",
				"plugin", req.Plugin, "name", req.Name)
		} else {
			set, failures := d.bridge.ToolSet(ctx, plug)
			if len(failures) > 0 && req.Options.RequireTools {
				return nil, &ToolsUnavailableError{Plugin: req.Plugin, Failures: failures}
			}
			if !set.Empty() {
				tools = set.Defs()
				runner = set
			} else if len(failures) > 0 {
				d.logger.Warn("executing without tools", "plugin", req.Plugin, "name", req.Name)
			}
		}
	}

	callOpts := &provider.CallOptions{
		Model:         req.Options.Model,
		Temperature:   req.Options.Temperature,
		MaxTokens:     req.Options.MaxTokens,
		MaxToolRounds: req.Options.MaxToolRounds,
		Runner:        runner,
	}

	var res *provider.Result
	if req.Kind == KindAgent {
		res, err = p.ExecuteAgent(ctx, text, req.Input, tools, callOpts)
	} else {
		res, err = p.ExecuteCommand(ctx, text, req.Input, tools, callOpts)
	}
	if err != nil {
		return nil, err
	}

	d.logger.Info("dispatched",
		"plugin", req.Plugin, "kind", req.Kind, "name", req.Name,
		"used_tools", res.UsedTools(), "tokens", res.Usage.TotalTokens)

	return &Result{
		ID:        uuid.NewString(),
		Plugin:    req.Plugin,
		Kind:      req.Kind,
		Name:      req.Name,
		Text:      res.Text,
		ToolCalls: res.ToolCalls,
		UsedTools: res.UsedTools(),
		Usage:     res.Usage,
	}, nil
}

// Close releases the dispatcher's MCP connections.
func (d *Dispatcher) Close() error {
	if d.bridge == nil {
		return nil
	}
	return d.bridge.Close()
}
