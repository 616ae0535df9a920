package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/steveyegge/illsync/internal/config"
	"github.com/steveyegge/illsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Show or change configuration",
	Annotations: map[string]string{annotationNoStore: "true"},
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the effective value of a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !config.IsKnownKey(key) {
			return fmt.Errorf("unknown config key %q", key)
		}
		value := displayValue(key)
		if jsonOutput {
			return outputJSON(map[string]string{"key": key, "value": value})
		}
		fmt.Fprintln(stdout, value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Write a key to the project config.yaml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetYamlConfig(args[0], args[1]); err != nil {
			return err
		}
		path, _ := config.ProjectConfigPath()
		if jsonOutput {
			return outputJSON(map[string]string{"key": args[0], "value": args[1], "file": path})
		}
		fmt.Fprintf(stdout, "%s Set %s = %s (%s)\n", ui.RenderPass(ui.IconPass), args[0], args[1], ui.RenderMuted(path))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key with its effective value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := config.KeyNames()
		sort.Strings(names)
		if jsonOutput {
			out := make(map[string]string, len(names))
			for _, k := range names {
				out[k] = displayValue(k)
			}
			return outputJSON(out)
		}
		if path := config.ConfigFileUsed(); path != "" {
			fmt.Fprintln(stdout, ui.RenderMuted("# "+path))
		}
		for _, k := range names {
			key := config.LookupKey(k)
			fmt.Fprintf(stdout, "%s = %s  %s\n", k, displayValue(k), ui.RenderMuted("# "+key.EnvVar()))
		}
		return nil
	},
}

// displayValue masks secret keys.
func displayValue(key string) string {
	value := config.GetString(key)
	if k := config.LookupKey(key); k != nil && k.Secret && value != "" {
		return "********"
	}
	return value
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
