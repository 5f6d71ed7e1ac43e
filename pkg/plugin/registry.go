package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zostay/keyrotate/pkg/config"
)

// ErrUnknownPackage is returned when a plugin names a package that nothing
// registered.
var ErrUnknownPackage = errors.New("no plugin found for package")

// Instance is a constructed plugin. Each one serves as a rotate.Provider, a
// rotate.Store, or a rotate.Mirror (or more than one of these); the Manager
// checks which when the plugin is requested for a role.
type Instance interface {
	// Name is the descriptive name of the plugin used in logging messages.
	Name() string
}

// Builder constructs an Instance from its plugin configuration.
type Builder interface {
	Build(ctx context.Context, c *config.Plugin) (Instance, error)
}

var builders = make(map[string]Builder)

// Register adds a builder under a Go package path. The built-in plugins call it
// from init() with their own package path, which is what the default plugin
// configuration refers to. Registering the same package twice panics.
func Register(pkg string, b Builder) {
	if _, dup := builders[pkg]; dup {
		panic(fmt.Sprintf("plugin package %q is already registered", pkg))
	}
	builders[pkg] = b
}

// Get returns the builder registered for the package or nil.
func Get(pkg string) Builder {
	return builders[pkg]
}

// Packages lists the registered package paths in sorted order.
func Packages() []string {
	pkgs := make([]string, 0, len(builders))
	for pkg := range builders {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

// Build runs the builder registered for the configured package. An unknown
// package gives an error wrapping ErrUnknownPackage that lists what is
// registered.
func Build(ctx context.Context, c *config.Plugin) (Instance, error) {
	b := Get(c.Package)
	if b == nil {
		return nil, fmt.Errorf("%w %q (registered: %s)",
			ErrUnknownPackage, c.Package, strings.Join(Packages(), ", "))
	}

	return b.Build(ctx, c)
}
