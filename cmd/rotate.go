package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/lock"
	"github.com/zostay/keyrotate/pkg/secret"
)

var rotateCmd *cobra.Command

func initRotateCmd() {
	rotateCmd = &cobra.Command{
		Use:   "rotate",
		Short: "take one step through the key lifecycle of an IAM user",
		Long: `Loads the access keys of the IAM user and the stored deactivation time,
decides on at most one action, performs it, and stores the current key pair.

When a new key is created, it is printed to stdout as JSON and copied to every
configured mirror.`,
		Args: cobra.NoArgs,
		Run:  RunRotation,
	}

	rootCmd.AddCommand(rotateCmd)
}

// createdOutput is what is printed when a key is created.
type createdOutput struct {
	IAMKey    string `json:"iam_key"`
	IAMSecret string `json:"iam_secret"`
}

func RunRotation(cmd *cobra.Command, args []string) {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	ctx := cmd.Context()
	slog := config.LoggerFrom(ctx).Sugar()

	c, err := loadConfig(cmd, os.LookupEnv)
	if err != nil {
		fatalw(slog,
			"failed to load configuration",
			"error", err,
		)
		return
	}

	m, recorder, err := buildManager(ctx, c, c.DryRun, true)
	if err != nil {
		fatalw(slog,
			"failed to set up rotation",
			"principal", c.Principal,
			"error", err,
		)
		return
	}

	var locker lock.Locker = lock.Nop{}
	if c.Lock.Enabled() {
		locker = lock.Dial(c.Lock)
	}

	unlock, err := locker.Lock(ctx, c.Principal)
	if err != nil {
		fatalw(slog,
			"failed to take rotation lock",
			"principal", c.Principal,
			"error", err,
		)
		return
	}

	res, err := m.Rotate(ctx)

	if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
		slog.Errorw(
			"failed to release rotation lock",
			"principal", c.Principal,
			"error", uerr,
		)
	}

	pushMetrics(ctx, c, recorder)

	if res != nil && res.Created != nil {
		if perr := printCreated(cmd, *res.Created); perr != nil {
			fatalw(slog,
				"failed to print new credentials",
				"principal", c.Principal,
				"error", perr,
			)
			return
		}
	}

	if err != nil {
		fatalw(slog,
			"failed to complete key rotation",
			"principal", c.Principal,
			"error", err,
		)
	}
}

// printCreated writes the new key pair to stdout.
func printCreated(cmd *cobra.Command, cred secret.Credential) error {
	sk, err := cred.Secret.Reveal()
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(createdOutput{
		IAMKey:    cred.AccessKeyID,
		IAMSecret: sk,
	}, "", "  ")
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(append(out, '\n'))
	return err
}
