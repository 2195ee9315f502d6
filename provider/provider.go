// Package provider defines the capability-provider abstraction: the
// vendor-facing Backend interface, the Engine that drives command, agent,
// and chat executions (including tool-call round trips), and the
// normalized error taxonomy shared by all backends.
package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
)

// Backend is the vendor surface: one non-streaming completion per call.
// Implementations normalize vendor failures into the package error types
// (AuthError, RateLimitError, InvalidRequestError, TransientError).
type Backend interface {
	// Name returns the backend identifier (e.g., "openai", "anthropic").
	Name() string

	// Complete executes one completion request.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ToolRunner executes a tool call requested by the model. The MCP bridge
// satisfies this for server-hosted tools; LocalToolSet for in-process ones.
type ToolRunner interface {
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Provider is the capability-provider contract consumed by the dispatcher.
// Engine is the canonical implementation; it is an interface so tests and
// callers can substitute policy layers.
type Provider interface {
	Name() string
	ExecuteCommand(ctx context.Context, commandText, userInput string, tools []ToolDef, opts *CallOptions) (*Result, error)
	ExecuteAgent(ctx context.Context, agentText, userInput string, tools []ToolDef, opts *CallOptions) (*Result, error)
	Chat(ctx context.Context, messages []Message, tools []ToolDef, opts *CallOptions) (*Result, error)
}

// DefaultMaxToolRounds bounds tool-call round trips per execution when
// CallOptions.MaxToolRounds is unset.
const DefaultMaxToolRounds = 8

// CallOptions tune a single execution.
type CallOptions struct {
	Model         string // overrides the engine's default model
	Temperature   *float64
	MaxTokens     *int
	MaxToolRounds int        // 0 means DefaultMaxToolRounds
	Runner        ToolRunner // executes tool calls; nil means tools cannot run
}

// Result is the outcome of one execution.
type Result struct {
	Text         string
	ToolCalls    []ToolCallRecord
	Usage        Usage
	FinishReason FinishReason
}

// UsedTools reports whether any tool call was executed during the run.
func (r *Result) UsedTools() bool { return len(r.ToolCalls) > 0 }

// ToolCallRecord documents one tool round trip performed during a run.
type ToolCallRecord struct {
	ID        string
	Tool      string
	Arguments string
	Output    string
	Err       string // non-empty when the tool itself failed
}

// Engine turns a Backend into a full capability provider: it builds the
// instructional context, offers tools, and runs the tool-call loop until
// the model produces a final answer.
type Engine struct {
	backend Backend
	model   string
	logger  *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine for the given backend and default model.
func NewEngine(backend Backend, model string, opts ...EngineOption) *Engine {
	e := &Engine{
		backend: backend,
		model:   model,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the underlying backend's identifier.
func (e *Engine) Name() string { return e.backend.Name() }

// ExecuteCommand runs a plugin command: commandText becomes the
// instructional context, userInput the task.
func (e *Engine) ExecuteCommand(ctx context.Context, commandText, userInput string, tools []ToolDef, opts *CallOptions) (*Result, error) {
	messages := []Message{
		SystemMessage("You are executing a plugin command. Here is the command definition:\n\n" + commandText),
		UserMessage(userInput),
	}
	return e.run(ctx, messages, tools, opts)
}

// ExecuteAgent runs a plugin agent: agentText is a broader behavioral
// specification rather than a single instruction.
func (e *Engine) ExecuteAgent(ctx context.Context, agentText, userInput string, tools []ToolDef, opts *CallOptions) (*Result, error) {
	messages := []Message{
		SystemMessage("You are an AI agent. Here is your agent definition:\n\n" + agentText),
		UserMessage(userInput),
	}
	return e.run(ctx, messages, tools, opts)
}

// Chat is the lower-level escape hatch for multi-turn use outside the
// plugin abstraction.
func (e *Engine) Chat(ctx context.Context, messages []Message, tools []ToolDef, opts *CallOptions) (*Result, error) {
	return e.run(ctx, messages, tools, opts)
}

// run drives the completion/tool-call loop. Tool failures are fed back to
// the model as error text and recorded on the result; they only abort the
// run when the context itself is done.
func (e *Engine) run(ctx context.Context, messages []Message, tools []ToolDef, opts *CallOptions) (*Result, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	model := opts.Model
	if model == "" {
		model = e.model
	}
	maxRounds := opts.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}

	msgs := slices.Clone(messages)
	result := &Result{}
	toolRounds := 0

	for {
		resp, err := e.backend.Complete(ctx, &Request{
			Model:       model,
			Messages:    msgs,
			Tools:       tools,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		result.Usage.add(resp.Usage)
		result.FinishReason = resp.FinishReason

		if len(resp.ToolCalls) == 0 {
			result.Text = resp.Content
			return result, nil
		}

		if opts.Runner == nil {
			// The model asked for tools we cannot execute. Surface the
			// text and the unanswered calls instead of pretending.
			result.Text = resp.Content
			for _, tc := range resp.ToolCalls {
				result.ToolCalls = append(result.ToolCalls, ToolCallRecord{
					ID:        tc.ID,
					Tool:      tc.Name,
					Arguments: tc.Arguments,
					Err:       "no tool runner configured",
				})
			}
			return result, nil
		}

		if toolRounds >= maxRounds {
			return nil, &ToolLoopError{Rounds: toolRounds}
		}
		toolRounds++

		msgs = append(msgs, AssistantMessageWithToolCalls(resp.Content, resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			record := ToolCallRecord{ID: tc.ID, Tool: tc.Name, Arguments: tc.Arguments}

			output, err := opts.Runner.CallTool(ctx, tc.Name, json.RawMessage(tc.Arguments))
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				e.logger.Warn("tool call failed", "tool", tc.Name, "error", err)
				record.Err = err.Error()
				output = "Error: " + err.Error()
			} else {
				record.Output = output
			}

			result.ToolCalls = append(result.ToolCalls, record)
			msgs = append(msgs, ToolMessage(tc.ID, output))
		}
	}
}
