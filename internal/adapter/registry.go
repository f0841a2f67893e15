package adapter

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/campwatch/internal/model"
)

// ErrUnknownAdapter is returned for a name that is not registered.
var ErrUnknownAdapter = errors.New("unknown adapter")

// Entry is a registered adapter: its configuration and how to build it.
type Entry struct {
	Config  model.CompetitorConfig
	Factory Factory
}

// Registry maps adapter names to entries. Adding a site needs only a new
// entry; the coordinator is unaware of individual sites.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register validates cfg and adds or replaces its entry. A nil factory
// means NewSite.
func (r *Registry) Register(cfg model.CompetitorConfig, factory Factory) error {
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	if factory == nil {
		factory = NewSite
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[cfg.Name] = Entry{Config: cfg, Factory: factory}
	return nil
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configs returns the configurations of names in order, or of every entry
// when names is empty.
func (r *Registry) Configs(names []string) ([]model.CompetitorConfig, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]model.CompetitorConfig, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		e, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, name)
		}
		out = append(out, e.Config)
	}
	return out, nil
}

// Build creates the adapter for cfg using its registered factory.
func (r *Registry) Build(cfg model.CompetitorConfig, deps Deps) (Adapter, error) {
	e, ok := r.Get(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, cfg.Name)
	}
	return e.Factory(cfg, deps)
}

// registryFile is the YAML layout of a registry file.
type registryFile struct {
	Competitors []model.CompetitorConfig `yaml:"competitors"`
}

// LoadFile registers every competitor in a YAML file. Entries override
// registered ones with the same name. Nothing is registered when any entry
// is invalid.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path) //#nosec G304 -- operator supplied registry path
	if err != nil {
		return fmt.Errorf("failed to read registry file: %w", err)
	}
	return r.LoadYAML(data)
}

// LoadYAML is LoadFile over raw bytes.
func (r *Registry) LoadYAML(data []byte) error {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: failed to parse registry: %v", ErrInvalidConfig, err)
	}

	var errs []error
	seen := make(map[string]bool, len(file.Competitors))
	for i := range file.Competitors {
		cfg := &file.Competitors[i]
		applyDefaults(cfg)
		if seen[cfg.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate name %q", ErrInvalidConfig, cfg.Name))
			continue
		}
		seen[cfg.Name] = true
		if err := Validate(*cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, cfg := range file.Competitors {
		if err := r.Register(cfg, nil); err != nil {
			return err
		}
	}
	return nil
}
