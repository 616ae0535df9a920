package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/illsync/internal/debug"
	"github.com/steveyegge/illsync/internal/types"
	"github.com/steveyegge/illsync/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		dirFlag, _ := cmd.Flags().GetString("direction")
		limit, _ := cmd.Flags().GetInt("limit")
		sortSpec, _ := cmd.Flags().GetString("sort")

		filter := types.RequestFilter{Status: status, Limit: limit}
		if dirFlag != "" {
			dir, err := types.ParseDirection(dirFlag)
			if err != nil {
				return err
			}
			filter.Direction = dir
		}
		if sortSpec != "" {
			filter.Sort = types.ParseRequestSortOrder(sortSpec)
			if len(filter.Sort) == 0 {
				return fmt.Errorf("invalid sort order %q (fields: updated, placed, status, orderid)", sortSpec)
			}
			debug.Logf("list sort order: %s\n", types.EncodeRequestSortOrder(filter.Sort))
		}

		reqs, err := store.ListRequests(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			if reqs == nil {
				reqs = []*types.Request{}
			}
			return outputJSON(reqs)
		}

		rows := make([]ui.RequestRow, 0, len(reqs))
		for _, r := range reqs {
			title, err := svc.Attributes().Value(rootCtx, r.ID, types.AttrTitle)
			if err != nil {
				return err
			}
			rows = append(rows, ui.RequestRow{Request: r, Title: title})
		}
		fmt.Fprintln(stdout, ui.RenderRequests(rows))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show REQUEST_ID",
	Short: "Show a request with all of its attributes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		req, err := store.GetRequest(rootCtx, id)
		if err != nil {
			return err
		}
		view, err := svc.Attributes().View(rootCtx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]any{"request": req, "attributes": view})
		}
		fmt.Fprintln(stdout, ui.RenderRequest(req, view, svc.Graph()))
		return nil
	},
}

func init() {
	listCmd.Flags().StringP("status", "s", "", "Only requests in this status code (e.g. IN_ANK)")
	listCmd.Flags().StringP("direction", "d", "", "Only in or out requests")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of requests (0 = all)")
	listCmd.Flags().String("sort", "", "Sort order, e.g. \"status-asc,updated-desc\"")
	rootCmd.AddCommand(listCmd, showCmd)
}
