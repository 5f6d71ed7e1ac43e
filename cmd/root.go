package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zostay/keyrotate/pkg/config"
)

var (
	rootCmd *cobra.Command

	configFile string
	envFile    string
	verbose    bool

	principal       string
	accessKeyID     string
	secretKey       string
	region          string
	maxAgeDays      int
	deleteAfterDays int
	parameterPrefix string
	kmsKeyID        string
	dryRun          bool
	lockRedisAddr   string
	pushgatewayURL  string
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "keyrotate",
		Short: "tools for rotating AWS IAM access keys through a two-key lifecycle",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := config.ProductionLogger()
			if verbose {
				logger = config.DevelopmentLogger()
			}
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML configuration file")
	pf.StringVar(&envFile, "env-file", "", "dotenv file to read (defaults to .env when present)")
	pf.BoolVar(&verbose, "verbose", false, "log human-readable output at debug level")

	pf.StringVar(&principal, "principal", "", "IAM user whose keys are rotated")
	pf.StringVar(&accessKeyID, "access-key-id", "", "access key id currently handed out to consumers")
	pf.StringVar(&secretKey, "secret-key", "", "secret key currently handed out to consumers")
	pf.StringVar(&region, "region", "", "AWS region")
	pf.IntVar(&maxAgeDays, "max-age-days", config.DefaultMaxActiveAgeDays, "a lone active key older than this many days gets a standby")
	pf.IntVar(&deleteAfterDays, "delete-after-days", config.DefaultDeleteAfterInactiveDays, "an inactive key is deleted this many days after deactivation")
	pf.StringVar(&parameterPrefix, "parameter-prefix", "", "prefix of the parameter store names")
	pf.StringVar(&kmsKeyID, "kms-key-id", "", "KMS key used to encrypt stored credentials")
	pf.BoolVar(&dryRun, "dry-run", false, "a dry-run describes what would happen without doing it")
	pf.StringVar(&lockRedisAddr, "lock-redis-addr", "", "redis server used to lock out concurrent runs")
	pf.StringVar(&pushgatewayURL, "pushgateway-url", "", "Prometheus Pushgateway that receives run metrics")

	initRotateCmd()
	initPlanCmd()
	initVersionCmd()
}

// Execute runs the command line.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	cobra.CheckErr(err)
}
