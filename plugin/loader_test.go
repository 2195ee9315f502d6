package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePluginDir lays out a plugin fixture. Keys are slash-separated paths
// relative to the plugin root.
func writePluginDir(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

const storyManifest = `{
	"name": "story-plugin",
	"version": "1.0.0",
	"description": "Story writing helpers",
	"author": "Ada",
	"license": "MIT",
	"keywords": ["story", "writing"]
}`

func TestLoadManifest(t *testing.T) {
	t.Run("valid manifest", func(t *testing.T) {
		root := writePluginDir(t, map[string]string{
			".claude-plugin/plugin.json": storyManifest,
		})

		m, err := LoadManifest(ManifestPath(root))

		require.NoError(t, err)
		assert.Equal(t, "story-plugin", m.Name)
		assert.Equal(t, "1.0.0", m.Version)
		assert.Equal(t, "Story writing helpers", m.Description)
		assert.Equal(t, []string{"story", "writing"}, m.Keywords)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadManifest(filepath.Join(t.TempDir(), "nope", "plugin.json"))

		var merr *ManifestError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, ManifestNotFound, merr.Kind)
	})

	t.Run("malformed json", func(t *testing.T) {
		root := writePluginDir(t, map[string]string{
			".claude-plugin/plugin.json": `{"name": "x",`,
		})

		_, err := LoadManifest(ManifestPath(root))

		var merr *ManifestError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, ManifestMalformed, merr.Kind)
	})

	t.Run("missing name", func(t *testing.T) {
		root := writePluginDir(t, map[string]string{
			".claude-plugin/plugin.json": `{"version": "1.0.0"}`,
		})

		_, err := LoadManifest(ManifestPath(root))

		var merr *ManifestError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, ManifestMissingField, merr.Kind)
		assert.Equal(t, "name", merr.Field)
	})

	t.Run("missing version", func(t *testing.T) {
		root := writePluginDir(t, map[string]string{
			".claude-plugin/plugin.json": `{"name": "x"}`,
		})

		_, err := LoadManifest(ManifestPath(root))

		var merr *ManifestError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, ManifestMissingField, merr.Kind)
		assert.Equal(t, "version", merr.Field)
	})

	t.Run("loose version string is accepted", func(t *testing.T) {
		root := writePluginDir(t, map[string]string{
			".claude-plugin/plugin.json": `{"name": "x", "version": "v1-beta"}`,
		})

		m, err := LoadManifest(ManifestPath(root))

		require.NoError(t, err)
		assert.Equal(t, "v1-beta", m.Version)
	})
}

func TestLoad(t *testing.T) {
	root := writePluginDir(t, map[string]string{
		".claude-plugin/plugin.json": storyManifest,
		"commands/write.md": `---
description: Write a story
---
You are a creative writer. Write a story based on the user's request.`,
		"commands/edit.md":        "Edit the provided story.",
		"agents/critic.md":        "You are a literary critic.",
		"skills/outline/SKILL.md": "Outline stories before writing them.",
	})

	p, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "story-plugin", p.Name())
	assert.Equal(t, "1.0.0", p.Version())
	assert.Equal(t, root, p.RootPath)

	// Command text is the full file contents, frontmatter included.
	write, ok := p.Command("write")
	require.True(t, ok)
	assert.Contains(t, write, "---\ndescription: Write a story\n---")
	assert.Contains(t, write, "You are a creative writer.")

	edit, ok := p.Command("edit")
	require.True(t, ok)
	assert.Equal(t, "Edit the provided story.", edit)

	critic, ok := p.Agent("critic")
	require.True(t, ok)
	assert.Equal(t, "You are a literary critic.", critic)

	outline, ok := p.Skill("outline")
	require.True(t, ok)
	assert.Equal(t, "Outline stories before writing them.", outline)

	// Only frontmatter descriptions make it into the index.
	assert.Equal(t, "Write a story", p.Index.Commands["write"])
	_, indexed := p.Index.Commands["edit"]
	assert.False(t, indexed)

	assert.False(t, p.HasMCPServers())
}

func TestLoad_MissingDirectoriesYieldEmptyMaps(t *testing.T) {
	root := writePluginDir(t, map[string]string{
		".claude-plugin/plugin.json": storyManifest,
	})

	p, err := Load(root)

	require.NoError(t, err)
	assert.Empty(t, p.Commands)
	assert.Empty(t, p.Agents)
	assert.Empty(t, p.Skills)
	assert.NotNil(t, p.Commands)
}

func TestLoad_NestedCommandDirectories(t *testing.T) {
	root := writePluginDir(t, map[string]string{
		".claude-plugin/plugin.json": storyManifest,
		"commands/git/commit.md":     "Write a commit message.",
		"commands/review.md":         "Review the change.",
	})

	p, err := Load(root)

	require.NoError(t, err)
	assert.Len(t, p.Commands, 2)
	_, ok := p.Command("commit")
	assert.True(t, ok)
}

func TestLoad_DuplicateStemsFail(t *testing.T) {
	root := writePluginDir(t, map[string]string{
		".claude-plugin/plugin.json": storyManifest,
		"commands/a/draft.md":        "First draft command.",
		"commands/b/draft.md":        "Second draft command.",
	})

	_, err := Load(root)

	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "commands", lerr.Dir)
	assert.Equal(t, "draft", lerr.Name)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestLoad_MissingManifest(t *testing.T) {
	root := writePluginDir(t, map[string]string{
		"commands/write.md": "Write.",
	})

	_, err := Load(root)

	var merr *ManifestError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ManifestNotFound, merr.Kind)
}

func TestLoad_MCPServers(t *testing.T) {
	root := writePluginDir(t, map[string]string{
		".claude-plugin/plugin.json": `{
			"name": "tools-plugin",
			"version": "0.2.0",
			"mcp_servers": {
				"from-manifest": {"command": "serve-a"},
				"shared": {"command": "manifest-wins"}
			}
		}`,
		".mcp.json": `{
			"mcpServers": {
				"files": {
					"command": "${PLUGIN_ROOT}/bin/server",
					"args": ["--root", "${PLUGIN_ROOT}/data"],
					"env": {"SERVER_HOME": "${PLUGIN_ROOT}"}
				},
				"shared": {"command": "mcp-json-wins"}
			}
		}`,
	})

	p, err := Load(root)
	require.NoError(t, err)

	require.True(t, p.HasMCPServers())
	assert.Len(t, p.MCPServers, 3)

	files := p.MCPServers["files"]
	assert.Equal(t, filepath.Join(root, "bin/server"), files.Command)
	assert.Equal(t, []string{"--root", filepath.Join(root, "data")}, files.Args)
	assert.Equal(t, root, files.Env["SERVER_HOME"])

	assert.Equal(t, "serve-a", p.MCPServers["from-manifest"].Command)
	// .mcp.json overrides the manifest block on name collisions.
	assert.Equal(t, "mcp-json-wins", p.MCPServers["shared"].Command)
}

func TestLoad_MalformedMCPConfig(t *testing.T) {
	root := writePluginDir(t, map[string]string{
		".claude-plugin/plugin.json": storyManifest,
		".mcp.json":                  `{"mcpServers": [`,
	})

	_, err := Load(root)
	assert.Error(t, err)
}
