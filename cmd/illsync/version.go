package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of illsync (overridden by ldflags at build time)
	Version = "0.3.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag)
	Commit = ""
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		commit := resolveCommitHash()
		if jsonOutput {
			return outputJSON(map[string]string{"version": Version, "build": Build, "commit": commit})
		}
		if commit != "" {
			fmt.Fprintf(stdout, "illsync version %s (%s: %s)\n", Version, Build, commit)
		} else {
			fmt.Fprintf(stdout, "illsync version %s (%s)\n", Version, Build)
		}
		return nil
	},
}

// resolveCommitHash prefers the ldflag and falls back to the VCS stamp Go
// embeds in module builds.
func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 12 {
				return s.Value[:12]
			}
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
