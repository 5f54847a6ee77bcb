package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var remindDryRun bool

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Evaluate activity and email reminders to flagged participants",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "remind")
		if err != nil {
			return err
		}
		defer env.Close()

		table, records, err := evaluate(ctx, env)
		if err != nil {
			return err
		}

		reminders := table.Reminders()
		if len(reminders) == 0 {
			zap.L().Info("no participants to remind")
			fmt.Fprintln(os.Stderr, "No participants to remind.")
			return nil
		}

		if remindDryRun {
			fmt.Printf("Would remind %d participant(s):\n", len(reminders))
			for _, row := range reminders {
				kind := "mild"
				if row.Severe {
					kind = "severe"
				}
				fmt.Printf("  %s <%s> (%s)\n", row.Session, row.Email, kind)
			}
			return nil
		}

		run, err := persistSnapshot(ctx, env.Store, table, records)
		if err != nil {
			return err
		}

		outcomes := initRunner().Run(ctx, table.Rows)
		if err := env.Store.SaveDispatchOutcomes(ctx, run.ID, outcomes); err != nil {
			return err
		}

		sent, failed := 0, 0
		for _, o := range outcomes {
			if o.Sent {
				sent++
			} else {
				failed++
			}
		}
		zap.L().Info("reminder dispatch complete",
			zap.String("run_id", run.ID),
			zap.Int("sent", sent),
			zap.Int("failed", failed),
		)

		fmt.Printf("Reminders sent: %d, failed: %d (run %s)\n", sent, failed, run.ID)
		return nil
	},
}

func init() {
	remindCmd.Flags().BoolVar(&remindDryRun, "dry-run", false, "list who would be reminded without sending")
	rootCmd.AddCommand(remindCmd)
}
