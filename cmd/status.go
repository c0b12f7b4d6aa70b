package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the load run log",
	Long:  "Lists recent dataset loads, newest first, with row counts and failures.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gw, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer gw.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := gw.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(runs) == 0 {
			zap.L().Info("no load runs found, run 'load' to load datasets")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("limit", 50, "max number of runs to display")
	rootCmd.AddCommand(statusCmd)
}

// formatRuns writes a tabular representation of run log entries to w.
func formatRuns(out io.Writer, runs []store.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATASET\tSTATUS\tSTARTED\tDURATION\tROWS\tUNRESOLVED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------\t--------\t----\t----------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}

		unresolved := "-"
		if v, ok := r.Metadata["unresolved"]; ok {
			unresolved = fmt.Sprint(v)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Dataset,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Rows,
			unresolved,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
