// Package plugin loads directory-based plugins: a JSON manifest plus
// markdown command, agent, and skill definitions.
package plugin

// Plugin is a loaded plugin bundle. The command, agent, and skill maps hold
// the raw file contents keyed by name; the core never interprets the
// markdown, it only hands the text to a capability provider.
type Plugin struct {
	Manifest Manifest

	// Name -> full file contents.
	Commands map[string]string
	Agents   map[string]string
	Skills   map[string]string

	// MCP server configurations, merged from the manifest's mcp_servers
	// block and .mcp.json (the latter wins on name collisions).
	MCPServers map[string]MCPServerConfig

	// Index holds optional frontmatter descriptions per component. It is
	// metadata for listing and routing only and is never injected into
	// dispatched text.
	Index Index

	// RootPath is the absolute plugin directory.
	RootPath string
}

// Manifest is the plugin.json schema.
type Manifest struct {
	Name         string                     `json:"name"`
	Version      string                     `json:"version"`
	Description  string                     `json:"description,omitempty"`
	Author       string                     `json:"author,omitempty"`
	Homepage     string                     `json:"homepage,omitempty"`
	Repository   string                     `json:"repository,omitempty"`
	License      string                     `json:"license,omitempty"`
	Keywords     []string                   `json:"keywords,omitempty"`
	Dependencies map[string]string          `json:"dependencies,omitempty"`
	MCPServers   map[string]MCPServerConfig `json:"mcp_servers,omitempty"`
}

// MCPServerConfig describes how to launch one MCP server subprocess.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Index maps component names to their frontmatter descriptions.
// Components without frontmatter have no entry.
type Index struct {
	Commands map[string]string
	Agents   map[string]string
	Skills   map[string]string
}

// Name returns the manifest name.
func (p *Plugin) Name() string { return p.Manifest.Name }

// Version returns the manifest version.
func (p *Plugin) Version() string { return p.Manifest.Version }

// Command returns the command text by name.
func (p *Plugin) Command(name string) (string, bool) {
	text, ok := p.Commands[name]
	return text, ok
}

// Agent returns the agent text by name.
func (p *Plugin) Agent(name string) (string, bool) {
	text, ok := p.Agents[name]
	return text, ok
}

// Skill returns the skill text by name.
func (p *Plugin) Skill(name string) (string, bool) {
	text, ok := p.Skills[name]
	return text, ok
}

// HasMCPServers reports whether the plugin declares any MCP servers.
func (p *Plugin) HasMCPServers() bool { return len(p.MCPServers) > 0 }
