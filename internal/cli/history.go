package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amesworks/groundwork/internal/history"
)

const historyTimeLayout = "2006-01-02 15:04:05"

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return usagef("--limit must be positive")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				cmd.Println("no runs recorded yet")
				return nil
			}
			tw := newTabWriter(cmd)
			fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tFINISHED")
			for _, run := range runs {
				finished := "-"
				if !run.FinishedAt.IsZero() {
					finished = run.FinishedAt.Format(historyTimeLayout)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					run.RunID, run.Status, run.StartedAt.Format(historyTimeLayout), finished)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of runs to list")
	cmd.AddCommand(newHistoryShowCmd(opts))
	return cmd
}

func newHistoryShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the stage results of one run",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.StageRuns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := newTabWriter(cmd)
			fmt.Fprintln(tw, "STAGE\tSTATUS\tDURATION\tMESSAGE")
			for _, rec := range records {
				duration := "-"
				if !rec.FinishedAt.IsZero() && !rec.StartedAt.IsZero() {
					duration = rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String()
				}
				message := rec.Message
				if metrics := formatStageMetrics(rec.Metrics); metrics != "" {
					if message != "" {
						message += " "
					}
					message += "(" + metrics + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.StageID, rec.Status, duration, message)
			}
			return tw.Flush()
		},
	}
}

func newTabWriter(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
}

func formatStageMetrics(metrics map[string]int) string {
	if len(metrics) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, metrics[key]))
	}
	return strings.Join(parts, " ")
}
