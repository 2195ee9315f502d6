package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend replays canned responses and records every request.
type scriptedBackend struct {
	responses []*Response
	requests  []*Request
	err       error
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Complete(_ context.Context, req *Request) (*Response, error) {
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if len(b.responses) == 0 {
		return &Response{Content: "out of script"}, nil
	}
	resp := b.responses[0]
	b.responses = b.responses[1:]
	return resp, nil
}

type funcRunner func(ctx context.Context, name string, args json.RawMessage) (string, error)

func (f funcRunner) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	return f(ctx, name, args)
}

func TestExecuteCommand(t *testing.T) {
	backend := &scriptedBackend{responses: []*Response{
		{Content: "Once upon a time, it rained. The end.", FinishReason: FinishReasonStop,
			Usage: Usage{PromptTokens: 10, CompletionTokens: 12, TotalTokens: 22}},
	}}
	e := NewEngine(backend, "test-model")

	res, err := e.ExecuteCommand(context.Background(),
		"Write a story based on the user's request.",
		"Write a two-sentence story about rain.", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "Once upon a time, it rained. The end.", res.Text)
	assert.False(t, res.UsedTools())
	assert.Equal(t, 22, res.Usage.TotalTokens)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "executing a plugin command")
	assert.Contains(t, req.Messages[0].Content, "Write a story based on the user's request.")
	assert.Equal(t, RoleUser, req.Messages[1].Role)
	assert.Equal(t, "Write a two-sentence story about rain.", req.Messages[1].Content)
}

func TestExecuteAgent_SystemPrompt(t *testing.T) {
	backend := &scriptedBackend{responses: []*Response{{Content: "done"}}}
	e := NewEngine(backend, "test-model")

	_, err := e.ExecuteAgent(context.Background(), "You review code.", "review this", nil, nil)

	require.NoError(t, err)
	require.Len(t, backend.requests, 1)
	assert.Contains(t, backend.requests[0].Messages[0].Content, "agent definition")
	assert.Contains(t, backend.requests[0].Messages[0].Content, "You review code.")
}

func TestToolLoop(t *testing.T) {
	backend := &scriptedBackend{responses: []*Response{
		{
			ToolCalls:    []ToolCall{{ID: "call-1", Name: "get_weather", Arguments: `{"city":"Oslo"}`}},
			FinishReason: FinishReasonToolCalls,
			Usage:        Usage{TotalTokens: 5},
		},
		{Content: "It is raining in Oslo.", FinishReason: FinishReasonStop, Usage: Usage{TotalTokens: 7}},
	}}
	e := NewEngine(backend, "test-model")

	var gotName string
	var gotArgs string
	runner := funcRunner(func(_ context.Context, name string, args json.RawMessage) (string, error) {
		gotName = name
		gotArgs = string(args)
		return `{"temp": 4, "conditions": "rain"}`, nil
	})

	tools := []ToolDef{{Name: "get_weather", Description: "weather", Parameters: json.RawMessage(`{"type":"object"}`)}}
	res, err := e.ExecuteCommand(context.Background(), "cmd", "weather in Oslo",
		tools, &CallOptions{Runner: runner})

	require.NoError(t, err)
	assert.Equal(t, "It is raining in Oslo.", res.Text)
	assert.Equal(t, "get_weather", gotName)
	assert.Equal(t, `{"city":"Oslo"}`, gotArgs)
	assert.Equal(t, 12, res.Usage.TotalTokens)

	require.True(t, res.UsedTools())
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "call-1", res.ToolCalls[0].ID)
	assert.Equal(t, `{"temp": 4, "conditions": "rain"}`, res.ToolCalls[0].Output)
	assert.Empty(t, res.ToolCalls[0].Err)

	// The second request must contain the assistant tool-call message and
	// a tool result correlated by call ID.
	require.Len(t, backend.requests, 2)
	second := backend.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, RoleAssistant, second[2].Role)
	require.Len(t, second[2].ToolCalls, 1)
	assert.Equal(t, RoleTool, second[3].Role)
	assert.Equal(t, "call-1", second[3].ToolID)
	assert.Equal(t, `{"temp": 4, "conditions": "rain"}`, second[3].Content)
}

func TestToolLoop_ToolErrorFedBack(t *testing.T) {
	backend := &scriptedBackend{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "flaky", Arguments: `{}`}}},
		{Content: "could not use the tool"},
	}}
	e := NewEngine(backend, "m")

	runner := funcRunner(func(context.Context, string, json.RawMessage) (string, error) {
		return "", errors.New("boom")
	})

	res, err := e.Chat(context.Background(), []Message{UserMessage("hi")}, nil, &CallOptions{Runner: runner})

	require.NoError(t, err)
	assert.Equal(t, "could not use the tool", res.Text)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "boom", res.ToolCalls[0].Err)

	// The model sees the failure as tool output, not a dropped message.
	last := backend.requests[1].Messages
	assert.Equal(t, "Error: boom", last[len(last)-1].Content)
}

func TestToolLoop_Exceeded(t *testing.T) {
	// A backend that never stops asking for tools.
	backend := &scriptedBackend{}
	for range 10 {
		backend.responses = append(backend.responses, &Response{
			ToolCalls: []ToolCall{{ID: "c", Name: "t", Arguments: `{}`}},
		})
	}
	e := NewEngine(backend, "m")
	runner := funcRunner(func(context.Context, string, json.RawMessage) (string, error) {
		return "ok", nil
	})

	_, err := e.Chat(context.Background(), []Message{UserMessage("go")}, nil,
		&CallOptions{Runner: runner, MaxToolRounds: 2})

	var loopErr *ToolLoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, 2, loopErr.Rounds)
	// Two tool rounds plus the completion that asked for a third.
	assert.Len(t, backend.requests, 3)
}

func TestToolLoop_NoRunner(t *testing.T) {
	backend := &scriptedBackend{responses: []*Response{
		{Content: "partial", ToolCalls: []ToolCall{{ID: "c1", Name: "t", Arguments: `{}`}}},
	}}
	e := NewEngine(backend, "m")

	res, err := e.Chat(context.Background(), []Message{UserMessage("go")}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "partial", res.Text)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "no tool runner configured", res.ToolCalls[0].Err)
	assert.Len(t, backend.requests, 1)
}

func TestEngine_BackendErrorPropagates(t *testing.T) {
	backend := &scriptedBackend{err: &RateLimitError{Backend: "scripted", Message: "slow down"}}
	e := NewEngine(backend, "m")

	_, err := e.ExecuteCommand(context.Background(), "cmd", "in", nil, nil)

	var rlErr *RateLimitError
	assert.ErrorAs(t, err, &rlErr)
}

func TestCallOptions_ModelOverride(t *testing.T) {
	backend := &scriptedBackend{responses: []*Response{{Content: "x"}}}
	e := NewEngine(backend, "default-model")

	_, err := e.Chat(context.Background(), []Message{UserMessage("hi")}, nil,
		&CallOptions{Model: "override-model"})

	require.NoError(t, err)
	assert.Equal(t, "override-model", backend.requests[0].Model)
}

func TestLocalToolSet(t *testing.T) {
	set := NewLocalToolSet(
		LocalTool{
			Def: ToolDef{Name: "echo", Description: "echoes"},
			Run: func(_ context.Context, args json.RawMessage) (string, error) {
				return string(args), nil
			},
		},
		LocalTool{
			Def: ToolDef{Name: "fail", Description: "always fails"},
			Run: func(context.Context, json.RawMessage) (string, error) {
				return "", fmt.Errorf("nope")
			},
		},
	)

	defs := set.Defs()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "fail", defs[1].Name)

	out, err := set.CallTool(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)

	_, err = set.CallTool(context.Background(), "fail", nil)
	assert.Error(t, err)

	_, err = set.CallTool(context.Background(), "missing", nil)
	assert.ErrorContains(t, err, "tool not found")
}

func TestRegistry(t *testing.T) {
	Register("test-backend", func() (Backend, error) {
		return &scriptedBackend{}, nil
	})

	assert.True(t, IsRegistered("test-backend"))
	assert.Contains(t, Available(), "test-backend")
	assert.True(t, slices.IsSorted(Available()))

	b, err := Get("test-backend")
	require.NoError(t, err)
	assert.Equal(t, "scripted", b.Name())

	// Re-registering a name replaces the factory.
	Register("test-backend", func() (Backend, error) {
		return nil, errors.New("factory replaced")
	})
	_, err = Get("test-backend")
	assert.ErrorContains(t, err, "factory replaced")

	_, err = Get("no-such-backend")
	assert.ErrorContains(t, err, "unknown backend")
}
