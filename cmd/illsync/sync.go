package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/illsync/internal/debug"
	"github.com/steveyegge/illsync/internal/sweep"
	"github.com/steveyegge/illsync/internal/types"
	"github.com/steveyegge/illsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Aliases: []string{"sweep"},
	Short:   "Refresh every open request from the broker",
	Long: `Fetch the broker status of every request that is not closed or cancelled
and record any change locally. Nothing is pushed to the broker.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if !cmd.Flags().Changed("concurrency") {
			concurrency = settings.Sweep.Concurrency
		}
		dirFlag, _ := cmd.Flags().GetString("direction")
		if dirFlag == "" && len(settings.Sweep.Directions) == 1 {
			dirFlag = settings.Sweep.Directions[0]
		}

		opts := []sweep.Option{sweep.WithConcurrency(concurrency), sweep.WithLogger(logger)}
		if dirFlag != "" {
			dir, err := types.ParseDirection(dirFlag)
			if err != nil {
				return err
			}
			opts = append(opts, sweep.WithDirection(dir))
		}

		summary, err := sweep.New(store, svc, opts...).Run(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(summary)
		}

		printed := false
		for _, r := range summary.Results {
			if debug.IsQuiet() {
				break
			}
			if r.Error != "" || r.Changed {
				printed = true
			}
			switch {
			case r.Error != "":
				fmt.Fprintf(stdout, "%s %d (%s): %s\n", ui.RenderFail(ui.IconFail), r.RequestID, r.OrderID, r.Error)
			case r.Changed:
				fmt.Fprintf(stdout, "%s %d (%s): %s %s %s\n", ui.RenderPass(ui.IconPass), r.RequestID, r.OrderID,
					r.From, ui.Arrow, ui.RenderStatus(r.To))
			}
		}
		if printed {
			fmt.Fprintln(stdout, ui.RenderSeparator())
		}
		icon, failed := ui.RenderAccent(ui.IconInfo), fmt.Sprintf("%d failed", summary.Failed)
		if summary.Failed > 0 {
			icon, failed = ui.RenderWarn(ui.IconWarn), ui.RenderWarn(failed)
		}
		fmt.Fprintf(stdout, "%s %s refreshed, %d unchanged, %s, %d skipped\n",
			icon, ui.RenderAccent(fmt.Sprintf("%d", summary.Refreshed)), summary.Unchanged, failed, summary.Skipped)
		if summary.Failed > 0 {
			return errOutcomeFailed
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("concurrency", sweep.DefaultConcurrency, "Parallel broker fetches")
	syncCmd.Flags().StringP("direction", "d", "", "Only in or out requests")
	rootCmd.AddCommand(syncCmd)
}
