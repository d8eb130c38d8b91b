package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/grantcheck/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <grant-id>",
	Short: "Verify a single grant on demand",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initVerify(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.Verifier.Verify(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

var batchBudgetSecs int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one verification batch over the candidate set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initVerify(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		budgetSecs := batchBudgetSecs
		if budgetSecs == 0 {
			budgetSecs = cfg.Verify.BatchBudgetSecs
		}

		summary := env.Orchestrator.Run(ctx, verify.NewBudget(time.Duration(budgetSecs)*time.Second))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchBudgetSecs, "budget", 0, "wall-clock budget in seconds (default from config)")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(batchCmd)
}
