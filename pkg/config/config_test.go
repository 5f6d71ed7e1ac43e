package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/zostay/keyrotate/pkg/errors"
)

func mapLookup(vars map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestHappyDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, 60, c.MaxActiveAgeDays, "default max active age")
	assert.Equal(t, 10, c.DeleteAfterInactiveDays, "default delete after")
	assert.Equal(t, "iam", c.Provider, "default provider")
	assert.Equal(t, "ssm", c.Store, "default store")
	assert.Equal(t, 5*time.Minute, c.Lock.TTL, "default lock ttl")
	assert.False(t, c.Lock.Enabled(), "lock is off by default")
}

func TestHappyPrepare(t *testing.T) {
	c := Default()
	c.Principal = "  deploy-bot "
	c.Plugins["GitHub-Extra"] = Plugin{Package: GithubPackage}
	c.Mirrors = []Mirror{
		{Plugin: "GITHUB", Name: "zostay/postfix"},
		{Plugin: "github-extra", Name: "zostay/postfix"},
	}

	err := c.Prepare()
	require.NoError(t, err, "no error on happy prepare")

	assert.Equal(t, "deploy-bot", c.Principal, "principal is trimmed")
	assert.Contains(t, c.Plugins, "github-extra", "plugin names are lower cased")
	p := c.Plugins["github-extra"]
	assert.Equal(t, "github-extra", p.Name(), "plugin learns its name")
	assert.Equal(t, "github", c.Mirrors[0].Plugin, "mirror plugin names are lower cased")
}

func TestHappyPrepareInheritsPluginOptions(t *testing.T) {
	c := Default()
	c.Principal = "deploy-bot"
	c.Region = "us-east-2"
	c.ParameterPrefix = "/ci"
	c.Plugins["ssm"] = Plugin{
		Package: SSMPackage,
		Options: map[string]any{"region": "eu-west-1"},
	}

	require.NoError(t, c.Prepare(), "prepares")

	iam := c.Plugins["iam"]
	assert.Equal(t, "us-east-2", iam.Option("region"), "provider inherits the region")
	assert.Equal(t, "", iam.Option("parameter_prefix"), "provider does not get store options")

	ssm := c.Plugins["ssm"]
	assert.Equal(t, "eu-west-1", ssm.Option("region"), "plugin option wins")
	assert.Equal(t, "/ci", ssm.Option("parameter_prefix"), "store inherits the prefix")
	assert.Equal(t, "", ssm.Option("kms_key_id"), "unset settings are not inherited")
}

func TestSadPrepareCollectsEverything(t *testing.T) {
	c := Default()
	c.MaxActiveAgeDays = -1
	c.DeleteAfterInactiveDays = -2
	c.CurrentAccessKeyID = "AKIAEXAMPLE"
	c.Provider = "nope"
	c.Mirrors = []Mirror{
		{Plugin: "github", Name: "zostay/postfix"},
		{Plugin: "github", Name: "zostay/postfix"},
		{Plugin: "gitlab", Name: "zostay/other"},
	}

	err := c.Prepare()
	require.Error(t, err, "bad configuration is an error")
	assert.ErrorIs(t, err, ErrMissingPrincipal, "missing principal is reported")

	agg, ok := err.(*kerrors.Aggregate)
	require.True(t, ok, "prepare returns an aggregate")
	assert.Len(t, agg.Errors(), 7, "every problem is reported")

	assert.ErrorContains(t, err, "max active age must not be negative", "bad max age reported")
	assert.ErrorContains(t, err, "delete after inactive must not be negative", "bad delete after reported")
	assert.ErrorContains(t, err, "must be given together", "half a credential reported")
	assert.ErrorContains(t, err, `provider plugin "nope"`, "unknown provider reported")
	assert.ErrorContains(t, err, "is repeated twice", "duplicate mirror reported")
	assert.ErrorContains(t, err, `unknown plugin "gitlab"`, "unknown mirror plugin reported")
}

func TestSadPrepareLockTTL(t *testing.T) {
	c := Default()
	c.Principal = "deploy-bot"
	c.Lock.RedisAddr = "localhost:6379"
	c.Lock.TTL = 0

	err := c.Prepare()
	assert.ErrorContains(t, err, "lock ttl must be positive", "zero ttl with a lock is an error")
}

func TestHappyLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyrotate.yaml")
	err := os.WriteFile(path, []byte(`
principal: deploy-bot
region: us-east-2
max_active_age_days: 30
plugins:
  circleci:
    package: example.com/other/circleci
    options:
      host: https://circleci.example.com
mirrors:
  - plugin: github
    name: zostay/postfix
    keys:
      AWS_ACCESS_KEY_ID: DEPLOY_KEY_ID
lock:
  redis_addr: localhost:6379
  ttl: 2m
`), 0o600)
	require.NoError(t, err, "wrote config")

	c, err := Load(path)
	require.NoError(t, err, "config loads")

	assert.Equal(t, "deploy-bot", c.Principal, "principal from file")
	assert.Equal(t, "us-east-2", c.Region, "region from file")
	assert.Equal(t, 30, c.MaxActiveAgeDays, "max age from file")
	assert.Equal(t, 10, c.DeleteAfterInactiveDays, "delete after keeps default")
	assert.Equal(t, 2*time.Minute, c.Lock.TTL, "ttl from file")
	assert.Equal(t, IAMPackage, c.Plugins["iam"].Package, "default plugins survive")

	cci := c.Plugins["circleci"]
	assert.Equal(t, "example.com/other/circleci", cci.Package, "file overrides a default plugin")
	assert.Equal(t, "https://circleci.example.com", cci.Option("host"), "plugin options load")

	require.Len(t, c.Mirrors, 1, "one mirror")
	assert.Equal(t, KeyMap{"AWS_ACCESS_KEY_ID": "DEPLOY_KEY_ID"}, c.Mirrors[0].Keys, "mirror key map loads")

	assert.NoError(t, c.Prepare(), "loaded config prepares")
}

func TestSadLoad(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read configuration file", "missing file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("principal: [unclosed"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse configuration file", "bad yaml")
}

func TestHappyApplyEnv(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(mapLookup(map[string]string{
		"iam_user":             "deploy-bot",
		"access_key_id":        "AKIAEXAMPLE",
		"SECRET_KEY":           "hunter2",
		"region":               "eu-west-1",
		"max_age_in_days":      " 90 ",
		"delete_after_in_days": "",
		"pushgateway_url":      "http://pushgateway:9091",
	}))
	require.NoError(t, err, "env applies")

	assert.Equal(t, "deploy-bot", c.Principal, "principal from env")
	assert.Equal(t, "AKIAEXAMPLE", c.CurrentAccessKeyID, "key id from env")
	assert.Equal(t, "hunter2", c.CurrentSecretKey, "upper case names work too")
	assert.Equal(t, "eu-west-1", c.Region, "region from env")
	assert.Equal(t, 90, c.MaxActiveAgeDays, "max age is trimmed and parsed")
	assert.Equal(t, 10, c.DeleteAfterInactiveDays, "empty value keeps default")
	assert.Equal(t, "http://pushgateway:9091", c.Metrics.PushgatewayURL, "pushgateway from env")
}

func TestSadApplyEnv(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(mapLookup(map[string]string{
		"max_age_in_days":      "sixty",
		"delete_after_in_days": "1.5",
	}))

	require.Error(t, err, "bad numbers are an error")
	agg, ok := err.(*kerrors.Aggregate)
	require.True(t, ok, "apply env returns an aggregate")
	assert.Len(t, agg.Errors(), 2, "both bad numbers reported")
	assert.Equal(t, 60, c.MaxActiveAgeDays, "bad value leaves the default")
}

func TestHappyEnvFileChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("iam_user=from-file\nregion=us-west-2\n"), 0o600))

	fileLookup, err := EnvFile(path)
	require.NoError(t, err, "env file reads")

	lookup := Chain(
		mapLookup(map[string]string{"iam_user": "from-process"}),
		fileLookup,
	)

	c := Default()
	require.NoError(t, c.ApplyEnv(lookup))
	assert.Equal(t, "from-process", c.Principal, "earlier lookups win")
	assert.Equal(t, "us-west-2", c.Region, "later lookups fill the gaps")

	_, err = EnvFile(filepath.Join(t.TempDir(), "nope.env"))
	assert.ErrorContains(t, err, "failed to read environment file", "missing env file")
}
