package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/rotate"
)

var planCmd *cobra.Command

func initPlanCmd() {
	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "print the action the next rotation would take without taking it",
		Args:  cobra.NoArgs,
		Run:   RunPlan,
	}

	rootCmd.AddCommand(planCmd)
}

// planOutput is the JSON form of a planned action.
type planOutput struct {
	Principal string `json:"principal"`
	Stage     string `json:"stage"`
	Action    string `json:"action"`
	TargetID  string `json:"target_id,omitempty"`
	FollowUp  string `json:"follow_up"`
	Rule      string `json:"rule"`
	Reason    string `json:"reason"`
}

func newPlanOutput(res *rotate.Result) planOutput {
	return planOutput{
		Principal: res.Principal,
		Stage:     res.Stage.String(),
		Action:    res.Action.Kind.String(),
		TargetID:  res.Action.TargetID,
		FollowUp:  res.Action.FollowUp.String(),
		Rule:      res.Action.Rule.String(),
		Reason:    res.Action.Reason,
	}
}

func RunPlan(cmd *cobra.Command, args []string) {
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

	m, _, err := buildManager(ctx, c, true, false)
	if err != nil {
		fatalw(slog,
			"failed to set up rotation",
			"principal", c.Principal,
			"error", err,
		)
		return
	}

	res, err := m.Plan(ctx)
	if err != nil {
		fatalw(slog,
			"failed to plan key rotation",
			"principal", c.Principal,
			"error", err,
		)
		return
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	err = enc.Encode(newPlanOutput(res))
	if err != nil {
		fatalw(slog,
			"failed to print plan",
			"principal", c.Principal,
			"error", err,
		)
	}
}
