package plugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/rotate"
)

// Manager provides a mechanism for building plugins lazily and caching them.
// Plugins returned by the methods of this object will be constructed the first
// time they are requested. Every subsequent call will return the cached value.
type Manager struct {
	plugins config.PluginList
	cache   map[string]Instance
}

// NewManager returns a Manager object for the given configuration.
func NewManager(plugins config.PluginList) *Manager {
	return &Manager{
		plugins: plugins,
		cache:   make(map[string]Instance, len(plugins)),
	}
}

// Instance first checks to see if the named plugin has already been built and
// cached. If so, it short-circuits the build process and returns the cached
// copy. If not, it looks up the configuration for the named plugin and then
// calls the Build() function to build it. It caches the instance and returns
// it.
//
// If no plugin with the given name can be found it will return a nil instance
// and an error.
//
// If an error occurs building the plugin, it will return an nil instance and an
// error.
func (m *Manager) Instance(ctx context.Context, name string) (Instance, error) {
	lcname := strings.ToLower(name)
	if inst, ok := m.cache[lcname]; ok {
		return inst, nil
	}

	c, ok := m.plugins[lcname]
	if !ok {
		return nil, fmt.Errorf("no plugin configuration found for name %q", name)
	}

	inst, err := Build(ctx, &c)
	if err != nil {
		return nil, fmt.Errorf("error while building plugin %q in package %q: %w", name, c.Package, err)
	}

	m.cache[lcname] = inst

	return inst, nil
}

// Provider builds the named plugin and checks that it can issue keys.
func (m *Manager) Provider(ctx context.Context, name string) (rotate.Provider, error) {
	inst, err := m.Instance(ctx, name)
	if err != nil {
		return nil, err
	}

	p, ok := inst.(rotate.Provider)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not a key provider", name)
	}

	return p, nil
}

// Store builds the named plugin and checks that it can keep rotation state.
func (m *Manager) Store(ctx context.Context, name string) (rotate.Store, error) {
	inst, err := m.Instance(ctx, name)
	if err != nil {
		return nil, err
	}

	s, ok := inst.(rotate.Store)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not a parameter store", name)
	}

	return s, nil
}

// Mirror builds the named plugin and checks that it can receive keys.
func (m *Manager) Mirror(ctx context.Context, name string) (rotate.Mirror, error) {
	inst, err := m.Instance(ctx, name)
	if err != nil {
		return nil, err
	}

	mir, ok := inst.(rotate.Mirror)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not a mirror", name)
	}

	return mir, nil
}

// MirrorTargets builds every configured mirror and pairs it with its target.
func (m *Manager) MirrorTargets(ctx context.Context, mirrors []config.Mirror) ([]rotate.MirrorTarget, error) {
	mts := make([]rotate.MirrorTarget, 0, len(mirrors))
	for _, cm := range mirrors {
		mir, err := m.Mirror(ctx, cm.Plugin)
		if err != nil {
			return nil, err
		}

		mts = append(mts, rotate.MirrorTarget{
			Mirror: mir,
			Target: cm.Name,
			Keys:   cm.Keys,
		})
	}
	return mts, nil
}
