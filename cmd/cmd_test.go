package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/rotate"
	"github.com/zostay/keyrotate/pkg/secret"
)

func TestApplyFlagsOnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.AddFlagSet(rootCmd.PersistentFlags())

	c := config.Default()
	c.Principal = "from-env"
	c.Region = "us-east-2"

	require.NoError(t, fs.Parse([]string{"--principal", "from-flag", "--max-age-days", "30", "--dry-run"}))
	applyFlags(fs, c)

	assert.Equal(t, "from-flag", c.Principal, "given flag wins")
	assert.Equal(t, "us-east-2", c.Region, "flag left at its default does not override")
	assert.Equal(t, 30, c.MaxActiveAgeDays, "int flag applied")
	assert.Equal(t, 10, c.DeleteAfterInactiveDays, "int flag left alone")
	assert.True(t, c.DryRun, "bool flag applied")
}

func TestNewPlanOutput(t *testing.T) {
	out := newPlanOutput(&rotate.Result{
		Principal: "deploy-bot",
		Stage:     rotate.StageStandby,
		Action: rotate.Action{
			Kind:     rotate.DeactivateKey,
			TargetID: "A",
			FollowUp: rotate.PersistDeactivationTimestamp,
			Rule:     rotate.RuleStandbyConfirmed,
			Reason:   "newer key B is in use, retiring A",
		},
	})

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"principal": "deploy-bot",
		"stage": "standby",
		"action": "deactivate-key",
		"target_id": "A",
		"follow_up": "persist-deactivation-timestamp",
		"rule": "standby-confirmed",
		"reason": "newer key B is in use, retiring A"
	}`, string(b))
}

func TestPrintCreated(t *testing.T) {
	buf := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	err := printCreated(cmd, secret.NewCredential("AKIANEW", "new-secret"))
	require.NoError(t, err, "printed")

	assert.Equal(t, "{\n  \"iam_key\": \"AKIANEW\",\n  \"iam_secret\": \"new-secret\"\n}\n", buf.String(), "indented JSON with the revealed secret")
}

func TestFatalwPurgesAndExits(t *testing.T) {
	codes := []int{}
	saved := safeExit
	safeExit = func(c int) { codes = append(codes, c) }
	defer func() { safeExit = saved }()

	core, logs := observer.New(zap.DebugLevel)
	fatalw(zap.New(core).Sugar(), "failed to complete key rotation", "principal", "deploy-bot")

	assert.Equal(t, []int{1}, codes, "exits through the purging exit with status 1")
	require.Equal(t, 1, logs.Len(), "one entry logged")
	entry := logs.All()[0]
	assert.Equal(t, zap.ErrorLevel, entry.Level, "logged at error level")
	assert.Equal(t, "failed to complete key rotation", entry.Message, "message logged")
	assert.Equal(t, "deploy-bot", entry.ContextMap()["principal"], "fields logged")
}
