package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// LocalTool is an in-process tool: a descriptor plus the function that
// executes it.
type LocalTool struct {
	Def ToolDef
	Run func(ctx context.Context, args json.RawMessage) (string, error)
}

// LocalToolSet holds in-process tools and satisfies ToolRunner, so locally
// defined tools plug into the engine the same way MCP-hosted ones do.
type LocalToolSet struct {
	tools map[string]LocalTool
	order []string
}

// NewLocalToolSet creates an empty tool set.
func NewLocalToolSet(tools ...LocalTool) *LocalToolSet {
	s := &LocalToolSet{tools: make(map[string]LocalTool)}
	s.Add(tools...)
	return s
}

// Add registers tools. A tool re-added under the same name replaces the
// previous one without changing its position.
func (s *LocalToolSet) Add(tools ...LocalTool) {
	for _, t := range tools {
		if _, ok := s.tools[t.Def.Name]; !ok {
			s.order = append(s.order, t.Def.Name)
		}
		s.tools[t.Def.Name] = t
	}
}

// Defs returns tool descriptors in registration order.
func (s *LocalToolSet) Defs() []ToolDef {
	defs := make([]ToolDef, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, s.tools[name].Def)
	}
	return defs
}

// CallTool implements ToolRunner.
func (s *LocalToolSet) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t, ok := s.tools[name]
	if !ok {
		return "", fmt.Errorf("tool not found: %q", name)
	}
	return t.Run(ctx, args)
}
