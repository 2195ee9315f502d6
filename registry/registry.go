// Package registry aggregates loaded plugins and exposes lookup by name.
package registry

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openplugin/openplugin-go/plugin"
)

// ErrDuplicatePlugin is wrapped by a LoadFailure when a second directory
// declares an already-registered plugin name. The first plugin wins; the
// later directory is rejected rather than silently replacing it.
var ErrDuplicatePlugin = errors.New("duplicate plugin name")

// PluginNotFoundError is returned by Get for unknown plugin names.
type PluginNotFoundError struct {
	Name string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("plugin not found: %q", e.Name)
}

// LoadFailure records one plugin directory that had a manifest but could
// not be loaded.
type LoadFailure struct {
	Dir string
	Err error
}

// Registry holds plugins keyed by manifest name, preserving directory-scan
// order for listing. It is populated by Load and read-only afterwards, so
// concurrent readers need no synchronization.
type Registry struct {
	names   []string
	plugins map[string]*plugin.Plugin
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report per-plugin load failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		plugins: make(map[string]*plugin.Plugin),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load scans the immediate subdirectories of pluginsDir and registers every
// plugin found. Subdirectories without a manifest are skipped; one broken
// plugin never aborts loading the others. Returns the number of plugins
// registered and the per-directory failures.
func (r *Registry) Load(pluginsDir string) (int, []LoadFailure, error) {
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return 0, nil, fmt.Errorf("reading plugins directory: %w", err)
	}

	loaded := 0
	var failures []LoadFailure

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		dir := filepath.Join(pluginsDir, entry.Name())

		// No manifest means this is not a plugin directory.
		if _, err := os.Stat(plugin.ManifestPath(dir)); err != nil {
			continue
		}

		p, err := plugin.Load(dir)
		if err != nil {
			r.logger.Warn("failed to load plugin", "dir", dir, "error", err)
			failures = append(failures, LoadFailure{Dir: dir, Err: err})
			continue
		}

		if _, exists := r.plugins[p.Name()]; exists {
			err := fmt.Errorf("%w: %q already loaded", ErrDuplicatePlugin, p.Name())
			r.logger.Warn("rejecting plugin", "dir", dir, "error", err)
			failures = append(failures, LoadFailure{Dir: dir, Err: err})
			continue
		}

		r.plugins[p.Name()] = p
		r.names = append(r.names, p.Name())
		loaded++
	}

	return loaded, failures, nil
}

// Add registers a single already-loaded plugin.
func (r *Registry) Add(p *plugin.Plugin) error {
	if _, exists := r.plugins[p.Name()]; exists {
		return fmt.Errorf("%w: %q already loaded", ErrDuplicatePlugin, p.Name())
	}
	r.plugins[p.Name()] = p
	r.names = append(r.names, p.Name())
	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (*plugin.Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, &PluginNotFoundError{Name: name}
	}
	return p, nil
}

// List yields plugin names in load order. The sequence is finite and
// restartable: ranging over it twice yields the same names.
func (r *Registry) List() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range r.names {
			if !yield(name) {
				return
			}
		}
	}
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int { return len(r.names) }
