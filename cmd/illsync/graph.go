package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/ui"
)

var graphCmd = &cobra.Command{
	Use:         "graph",
	Short:       "Print the request status graph",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		g := statusgraph.Default()
		if err := g.Validate(); err != nil {
			return err
		}
		asYAML, _ := cmd.Flags().GetBool("yaml")
		switch {
		case asYAML:
			out, err := g.YAML()
			if err != nil {
				return err
			}
			_, err = stdout.Write(out)
			return err
		case jsonOutput:
			return outputJSON(g.Nodes())
		default:
			fmt.Fprintln(stdout, ui.RenderGraph(g.Nodes()))
			return nil
		}
	},
}

func init() {
	graphCmd.Flags().Bool("yaml", false, "Output as YAML")
	rootCmd.AddCommand(graphCmd)
}
