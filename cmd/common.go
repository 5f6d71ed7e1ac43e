package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/metrics"
	"github.com/zostay/keyrotate/pkg/plugin"
	"github.com/zostay/keyrotate/pkg/rotate"
	"github.com/zostay/keyrotate/pkg/secret"

	// built-in plugins
	_ "github.com/zostay/keyrotate/pkg/plugin/circleci"
	_ "github.com/zostay/keyrotate/pkg/plugin/github"
	_ "github.com/zostay/keyrotate/pkg/plugin/iam"
	_ "github.com/zostay/keyrotate/pkg/plugin/ssm"
)

// safeExit wipes guarded memory and exits.
var safeExit = memguard.SafeExit

// fatalw logs the failure, then purges every enclave and exits with status 1.
func fatalw(slog *zap.SugaredLogger, msg string, keysAndValues ...any) {
	slog.Errorw(msg, keysAndValues...)
	_ = slog.Sync()
	safeExit(1)
}

// defaultEnvFile is read when --env-file is not given and the file exists.
const defaultEnvFile = ".env"

// loadConfig layers the defaults, the configuration file, the dotenv file, the
// process environment, and the command-line flags, in that order, and then
// prepares the result.
func loadConfig(cmd *cobra.Command, lookupEnv config.LookupFunc) (*config.Config, error) {
	c := config.Default()
	if configFile != "" {
		var err error
		c, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	}

	lookups := []config.LookupFunc{lookupEnv}

	path := envFile
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); err == nil {
			path = defaultEnvFile
		}
	}

	if path != "" {
		fileLookup, err := config.EnvFile(path)
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, fileLookup)
	}

	err := c.ApplyEnv(config.Chain(lookups...))
	if err != nil {
		return nil, err
	}

	applyFlags(cmd.Flags(), c)

	err = c.Prepare()
	if err != nil {
		return nil, err
	}

	return c, nil
}

// applyFlags copies every flag given on the command line into c.
func applyFlags(fs *pflag.FlagSet, c *config.Config) {
	strs := map[string]*string{
		"principal":        &c.Principal,
		"access-key-id":    &c.CurrentAccessKeyID,
		"secret-key":       &c.CurrentSecretKey,
		"region":           &c.Region,
		"parameter-prefix": &c.ParameterPrefix,
		"kms-key-id":       &c.KMSKeyID,
		"lock-redis-addr":  &c.Lock.RedisAddr,
		"pushgateway-url":  &c.Metrics.PushgatewayURL,
	}
	for name, dst := range strs {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}

	ints := map[string]*int{
		"max-age-days":      &c.MaxActiveAgeDays,
		"delete-after-days": &c.DeleteAfterInactiveDays,
	}
	for name, dst := range ints {
		if fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}

	if fs.Changed("dry-run") {
		c.DryRun, _ = fs.GetBool("dry-run")
	}
}

// buildManager resolves the plugins named by the configuration and returns a
// rotation manager for the principal. Mirrors are only built when withMirrors
// is set.
func buildManager(
	ctx context.Context,
	c *config.Config,
	dryRun bool,
	withMirrors bool,
) (*rotate.Manager, *metrics.Recorder, error) {
	buildMgr := plugin.NewManager(c.Plugins)

	provider, err := buildMgr.Provider(ctx, c.Provider)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load key provider: %w", err)
	}

	store, err := buildMgr.Store(ctx, c.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load parameter store: %w", err)
	}

	recorder := metrics.New()
	opts := []rotate.Option{rotate.WithRecorder(recorder)}

	if withMirrors {
		mts, err := buildMgr.MirrorTargets(ctx, c.Mirrors)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load mirrors: %w", err)
		}
		opts = append(opts, rotate.WithMirrors(mts...))
	}

	m := rotate.New(
		provider,
		store,
		c.Principal,
		secret.NewCredential(c.CurrentAccessKeyID, c.CurrentSecretKey),
		rotate.Policy{
			MaxActiveAgeDays:        c.MaxActiveAgeDays,
			DeleteAfterInactiveDays: c.DeleteAfterInactiveDays,
		},
		dryRun,
		opts...,
	)

	return m, recorder, nil
}

// pushMetrics sends the run metrics when a Pushgateway is configured. A
// failure is logged and otherwise ignored.
func pushMetrics(ctx context.Context, c *config.Config, recorder *metrics.Recorder) {
	if c.Metrics.PushgatewayURL == "" {
		return
	}

	err := recorder.Push(ctx, c.Metrics.PushgatewayURL, c.Principal)
	if err != nil {
		config.LoggerFrom(ctx).Sugar().Warnw(
			"failed to push metrics",
			"principal", c.Principal,
			"pushgateway", c.Metrics.PushgatewayURL,
			"error", err,
		)
	}
}
