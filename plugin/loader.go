package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	manifestDir   = ".claude-plugin"
	manifestFile  = "plugin.json"
	mcpConfigFile = ".mcp.json"

	// rootPlaceholder in MCP server commands, args, and env values is
	// replaced with the plugin's absolute root path.
	rootPlaceholder = "${PLUGIN_ROOT}"
)

// ManifestPath returns the manifest location for a plugin root directory.
func ManifestPath(root string) string {
	return filepath.Join(root, manifestDir, manifestFile)
}

// LoadManifest reads and validates a plugin manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ManifestError{Path: path, Kind: ManifestNotFound, Err: err}
		}
		return nil, &ManifestError{Path: path, Kind: ManifestMalformed, Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Path: path, Kind: ManifestMalformed, Err: err}
	}

	// name and version are the only hard requirements; semver shape is
	// deliberately not enforced to stay permissive with ecosystem manifests.
	if strings.TrimSpace(m.Name) == "" {
		return nil, &ManifestError{Path: path, Kind: ManifestMissingField, Field: "name"}
	}
	if strings.TrimSpace(m.Version) == "" {
		return nil, &ManifestError{Path: path, Kind: ManifestMissingField, Field: "version"}
	}

	return &m, nil
}

// Load loads a plugin from its root directory. The directory must contain
// .claude-plugin/plugin.json; commands/, agents/, skills/, and .mcp.json
// are all optional.
func Load(root string) (*Plugin, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving plugin path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("accessing plugin path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plugin path must be a directory: %s", absRoot)
	}

	manifest, err := LoadManifest(ManifestPath(absRoot))
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		Manifest:   *manifest,
		RootPath:   absRoot,
		MCPServers: make(map[string]MCPServerConfig),
		Index: Index{
			Commands: make(map[string]string),
			Agents:   make(map[string]string),
			Skills:   make(map[string]string),
		},
	}

	fsys := os.DirFS(absRoot)

	if p.Commands, err = loadComponents(fsys, absRoot, "commands", p.Index.Commands); err != nil {
		return nil, err
	}
	if p.Agents, err = loadComponents(fsys, absRoot, "agents", p.Index.Agents); err != nil {
		return nil, err
	}
	if p.Skills, err = loadSkills(fsys, absRoot, p.Index.Skills); err != nil {
		return nil, err
	}

	// Manifest-declared servers first, .mcp.json entries override.
	for name, cfg := range manifest.MCPServers {
		p.MCPServers[name] = expandServerConfig(cfg, absRoot)
	}
	fromFile, err := loadMCPConfig(filepath.Join(absRoot, mcpConfigFile), absRoot)
	if err != nil {
		return nil, err
	}
	for name, cfg := range fromFile {
		p.MCPServers[name] = cfg
	}

	return p, nil
}

// loadComponents reads every markdown file under dir (recursively, so
// commands may be grouped in subdirectories) into a name -> contents map.
// The name is the file stem; two files resolving to the same stem are a
// LoadError. A missing directory yields an empty map.
func loadComponents(fsys fs.FS, root, dir string, index map[string]string) (map[string]string, error) {
	out := make(map[string]string)

	matches, err := doublestar.Glob(fsys, dir+"/**/*.md")
	if err != nil {
		return nil, &LoadError{Dir: dir, Err: err}
	}

	for _, match := range matches {
		name := strings.TrimSuffix(path.Base(match), ".md")
		if _, ok := out[name]; ok {
			return nil, &LoadError{Dir: dir, Name: name, Err: ErrDuplicateName}
		}

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(match)))
		if err != nil {
			return nil, &LoadError{Dir: dir, Name: name, Err: err}
		}

		out[name] = string(data)
		if desc := extractDescription(data); desc != "" {
			index[name] = desc
		}
	}

	return out, nil
}

// loadSkills reads skills/<name>/SKILL.md files. The skill name is the
// subdirectory name.
func loadSkills(fsys fs.FS, root string, index map[string]string) (map[string]string, error) {
	out := make(map[string]string)

	matches, err := doublestar.Glob(fsys, "skills/*/SKILL.md")
	if err != nil {
		return nil, &LoadError{Dir: "skills", Err: err}
	}

	for _, match := range matches {
		name := path.Base(path.Dir(match))
		if _, ok := out[name]; ok {
			return nil, &LoadError{Dir: "skills", Name: name, Err: ErrDuplicateName}
		}

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(match)))
		if err != nil {
			return nil, &LoadError{Dir: "skills", Name: name, Err: err}
		}

		out[name] = string(data)
		if desc := extractDescription(data); desc != "" {
			index[name] = desc
		}
	}

	return out, nil
}

// loadMCPConfig reads a .mcp.json file with a top-level mcpServers mapping.
// A missing file is not an error.
func loadMCPConfig(path, root string) (map[string]MCPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading MCP config: %w", err)
	}

	var raw struct {
		MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing MCP config %s: %w", path, err)
	}

	out := make(map[string]MCPServerConfig, len(raw.MCPServers))
	for name, cfg := range raw.MCPServers {
		out[name] = expandServerConfig(cfg, root)
	}
	return out, nil
}

func expandServerConfig(cfg MCPServerConfig, root string) MCPServerConfig {
	expanded := MCPServerConfig{
		Command: expandRoot(cfg.Command, root),
		Args:    make([]string, len(cfg.Args)),
	}
	for i, arg := range cfg.Args {
		expanded.Args[i] = expandRoot(arg, root)
	}
	if len(cfg.Env) > 0 {
		expanded.Env = make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			expanded.Env[k] = expandRoot(v, root)
		}
	}
	return expanded
}

func expandRoot(s, root string) string {
	return strings.ReplaceAll(s, rootPlaceholder, root)
}
