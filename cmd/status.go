package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harborlab/cohortwatch/internal/export"
	"github.com/harborlab/cohortwatch/internal/model"
)

var (
	statusFormat     string
	statusCSVPath    string
	statusXLSXPath   string
	statusNoSnapshot bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Evaluate participant activity and print the status table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "status")
		if err != nil {
			return err
		}
		defer env.Close()

		table, records, err := evaluate(ctx, env)
		if err != nil {
			return err
		}

		if !statusNoSnapshot {
			run, err := persistSnapshot(ctx, env.Store, table, records)
			if err != nil {
				return err
			}
			zap.L().Info("snapshot saved",
				zap.String("run_id", run.ID),
				zap.Int("participants", run.Participants),
				zap.Int("reminded", run.Reminded),
				zap.Int("severe", run.Severe),
			)
		}

		if statusCSVPath != "" {
			f, err := os.Create(statusCSVPath)
			if err != nil {
				return eris.Wrap(err, "create csv file")
			}
			defer f.Close() //nolint:errcheck
			if err := export.WriteCSV(f, table); err != nil {
				return err
			}
			zap.L().Info("csv written", zap.String("path", statusCSVPath))
		}

		if statusXLSXPath != "" {
			if err := export.WriteXLSX(statusXLSXPath, table); err != nil {
				return err
			}
			zap.L().Info("xlsx written", zap.String("path", statusXLSXPath))
		}

		switch statusFormat {
		case "table":
			formatStatusTable(os.Stdout, table)
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(table); err != nil {
				return eris.Wrap(err, "encode status table")
			}
		case "yaml":
			if err := export.WriteYAML(os.Stdout, table); err != nil {
				return err
			}
		default:
			return eris.Errorf("unknown format: %s", statusFormat)
		}

		return nil
	},
}

// formatStatusTable renders the status table for terminal reading. The week
// vector is compacted to one character per week: X active, - inactive,
// blank space where the participant has no data.
func formatStatusTable(w io.Writer, table *model.StatusTable) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tEMAIL\tWEEKS\tINACTIVE\tSTREAKS\tREMIND\tSEVERE\tACTIVITY")

	for _, row := range table.Rows {
		var activity strings.Builder
		for _, active := range row.Weeks {
			if active {
				activity.WriteByte('X')
			} else {
				activity.WriteByte('-')
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			row.Session,
			row.Email,
			row.Duration,
			row.CurrentInactiveWeeks,
			row.InactiveStreaks,
			strconv.FormatBool(row.Remind),
			strconv.FormatBool(row.Severe),
			activity.String(),
		)
	}
	tw.Flush()

	if len(table.Skipped) > 0 {
		fmt.Fprintf(w, "\n%d session(s) skipped:\n", len(table.Skipped))
		for _, s := range table.Skipped {
			fmt.Fprintf(w, "  %s: %s\n", s.Session, s.Reason)
		}
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "output format: table, json, yaml")
	statusCmd.Flags().StringVar(&statusCSVPath, "csv", "", "also write the table as CSV to this path")
	statusCmd.Flags().StringVar(&statusXLSXPath, "xlsx", "", "also write the table as XLSX to this path")
	statusCmd.Flags().BoolVar(&statusNoSnapshot, "no-snapshot", false, "skip persisting the evaluation to the store")
	rootCmd.AddCommand(statusCmd)
}
