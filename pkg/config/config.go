package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	kerrors "github.com/zostay/keyrotate/pkg/errors"
)

// Package paths of the built-in plugins. These are the names the plugins
// register themselves under.
const (
	IAMPackage      = "github.com/zostay/keyrotate/pkg/plugin/iam"
	SSMPackage      = "github.com/zostay/keyrotate/pkg/plugin/ssm"
	GithubPackage   = "github.com/zostay/keyrotate/pkg/plugin/github"
	CircleCIPackage = "github.com/zostay/keyrotate/pkg/plugin/circleci"
)

// Defaults used when neither the file, the environment, nor the command line
// says otherwise.
const (
	DefaultMaxActiveAgeDays        = 60
	DefaultDeleteAfterInactiveDays = 10
	DefaultProvider                = "iam"
	DefaultStore                   = "ssm"
	DefaultLockTTL                 = 5 * time.Minute
)

// ErrMissingPrincipal is returned when no principal has been configured.
var ErrMissingPrincipal = errors.New("no principal configured")

// KeyMap maps the keys produced by the rotation to the keys to use in a
// mirror.
type KeyMap map[string]string

// Plugin is used to load plugins that implement the various client
// interfaces.
type Plugin struct {
	name    string
	Package string         `yaml:"package"`
	Options map[string]any `yaml:"options"`
}

// Name returns the name of the plugin as configured via the key in the
// plugins configuration.
func (p *Plugin) Name() string {
	return p.name
}

// Option returns the named option as a string or the empty string.
func (p *Plugin) Option(key string) string {
	if v, ok := p.Options[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// PluginList maps plugin names to their configuration.
type PluginList map[string]Plugin

// Mirror describes an additional place newly created credentials are
// stored.
type Mirror struct {
	Plugin string `yaml:"plugin"`
	Name   string `yaml:"name"`
	Keys   KeyMap `yaml:"keys"`
}

// Lock configures the optional per-principal run lock.
type Lock struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// Enabled returns true when a lock server is configured.
func (l Lock) Enabled() bool {
	return l.RedisAddr != ""
}

// Metrics configures the optional metrics push.
type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// Config is the programmatic representation of the loaded configuration.
type Config struct {
	Principal          string `yaml:"principal"`
	CurrentAccessKeyID string `yaml:"current_access_key_id"`
	CurrentSecretKey   string `yaml:"current_secret_key"`

	Region          string `yaml:"region"`
	ParameterPrefix string `yaml:"parameter_prefix"`
	KMSKeyID        string `yaml:"kms_key_id"`

	MaxActiveAgeDays        int `yaml:"max_active_age_days"`
	DeleteAfterInactiveDays int `yaml:"delete_after_inactive_days"`

	DryRun bool `yaml:"dry_run"`

	Provider string     `yaml:"provider"`
	Store    string     `yaml:"store"`
	Plugins  PluginList `yaml:"plugins"`
	Mirrors  []Mirror   `yaml:"mirrors"`

	Lock    Lock    `yaml:"lock"`
	Metrics Metrics `yaml:"metrics"`
}

// Default returns the configuration used before anything is loaded.
func Default() *Config {
	return &Config{
		MaxActiveAgeDays:        DefaultMaxActiveAgeDays,
		DeleteAfterInactiveDays: DefaultDeleteAfterInactiveDays,
		Provider:                DefaultProvider,
		Store:                   DefaultStore,
		Plugins: PluginList{
			"iam":      {Package: IAMPackage},
			"ssm":      {Package: SSMPackage},
			"github":   {Package: GithubPackage},
			"circleci": {Package: CircleCIPackage},
		},
		Lock: Lock{
			TTL: DefaultLockTTL,
		},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	err = yaml.Unmarshal(data, c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	return c, nil
}

// inherit sets a plugin option from a top-level setting unless the plugin sets
// it itself.
func (c *Config) inherit(name, key, value string) {
	p, ok := c.Plugins[name]
	if !ok || value == "" || p.Option(key) != "" {
		return
	}

	opts := make(map[string]any, len(p.Options)+1)
	for k, v := range p.Options {
		opts[k] = v
	}
	opts[key] = value
	p.Options = opts
	c.Plugins[name] = p
}

// Prepare should be called after the configuration object has been fully
// loaded. This will normalize the configuration and fill in any details that
// can be inferred. It also checks for errors in the configuration that are
// unrelated to syntax.
//
// Returns an *errors.Aggregate holding every problem found or nil if no
// problem is found.
func (c *Config) Prepare() error {
	errs := kerrors.NewAggregate(nil)

	c.Principal = strings.TrimSpace(c.Principal)
	if c.Principal == "" {
		errs.Add(ErrMissingPrincipal)
	}

	if c.MaxActiveAgeDays < 0 {
		errs.Add(fmt.Errorf("max active age must not be negative, got %d days", c.MaxActiveAgeDays))
	}

	if c.DeleteAfterInactiveDays < 0 {
		errs.Add(fmt.Errorf("delete after inactive must not be negative, got %d days", c.DeleteAfterInactiveDays))
	}

	if (c.CurrentAccessKeyID == "") != (c.CurrentSecretKey == "") {
		errs.Add(errors.New("current access key id and current secret key must be given together"))
	}

	pl := make(PluginList, len(c.Plugins))
	for k, p := range c.Plugins {
		k = strings.ToLower(k)
		if p.Package == "" {
			errs.Add(fmt.Errorf("plugin %q has no package", k))
		}
		p.name = k
		pl[k] = p
	}
	c.Plugins = pl

	c.Provider = strings.ToLower(c.Provider)
	if _, ok := c.Plugins[c.Provider]; !ok {
		errs.Add(fmt.Errorf("provider plugin %q is not configured", c.Provider))
	}

	c.Store = strings.ToLower(c.Store)
	if _, ok := c.Plugins[c.Store]; !ok {
		errs.Add(fmt.Errorf("store plugin %q is not configured", c.Store))
	}

	c.inherit(c.Provider, "region", c.Region)
	c.inherit(c.Store, "region", c.Region)
	c.inherit(c.Store, "parameter_prefix", c.ParameterPrefix)
	c.inherit(c.Store, "kms_key_id", c.KMSKeyID)

	seen := make(map[string]struct{}, len(c.Mirrors))
	for i := range c.Mirrors {
		m := &c.Mirrors[i]
		m.Plugin = strings.ToLower(m.Plugin)
		if _, ok := c.Plugins[m.Plugin]; !ok {
			errs.Add(fmt.Errorf("mirror %q uses unknown plugin %q", m.Name, m.Plugin))
		}

		if m.Name == "" {
			errs.Add(fmt.Errorf("mirror %d using plugin %q has no name", i, m.Plugin))
		}

		id := m.Plugin + ":" + m.Name
		if _, dup := seen[id]; dup {
			errs.Add(fmt.Errorf("mirror %q for plugin %q is repeated twice in the configuration", m.Name, m.Plugin))
		}
		seen[id] = struct{}{}
	}

	if c.Lock.Enabled() && c.Lock.TTL <= 0 {
		errs.Add(fmt.Errorf("lock ttl must be positive, got %v", c.Lock.TTL))
	}

	return errs.ErrorOrNil()
}
