package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"qtrace/internal/config"
)

var historyLimit int

// historyCmd lists traces recorded by earlier runs
var historyCmd = &cobra.Command{
	Use:   "history <deployment>",
	Short: "List traces recorded for a deployment",
	Long: `List traces recorded for a deployment, newest first.

Traces are recorded when history.enabled is set in the config file.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listHistory(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of traces to show")
}

func listHistory(ctx context.Context, deployment string, stdout io.Writer) error {
	// Only the history section matters here; Loki and graph-node may be unset.
	cfg, _, err := setup(config.Read)
	if err != nil {
		return err
	}

	history, err := openHistory(cfg.History.Path)
	if err != nil {
		return err
	}
	defer history.Close()

	records, err := history.RecentTraces(ctx, deployment, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(stdout, "No traces recorded for %s\n", deployment)
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tQUERY ID\tBLOCK\tTOTAL\tQUERY\tOTHER\t")
	for _, r := range records {
		flag := ""
		if r.Inconsistent {
			flag = " (inconsistent)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%dms\t%dms\t%dms%s\t\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.QueryID, r.Block,
			r.Elapsed.Milliseconds(), r.QueryTime.Milliseconds(), r.OtherTime.Milliseconds(), flag)
	}
	return w.Flush()
}
