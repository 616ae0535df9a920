// Command illsync drives interlibrary-loan requests through their lifecycle
// and keeps them in step with the Libris ILL broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/config"
	"github.com/steveyegge/illsync/internal/debug"
	"github.com/steveyegge/illsync/internal/lifecycle"
	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/telemetry"
	"github.com/steveyegge/illsync/internal/ui"
)

var (
	jsonOutput  bool
	verboseFlag bool // Enable verbose/debug output
	quietFlag   bool // Suppress non-essential output

	settings *config.Settings
	logger   *slog.Logger
	store    storage.Storage
	client   *broker.Client
	svc      *lifecycle.Service

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// stdout is swapped in tests.
	stdout io.Writer = os.Stdout
)

// annotationNoStore marks commands that run without opening storage.
const annotationNoStore = "illsync.nostore"

// errOutcomeFailed is returned after a failed outcome has been printed, so
// main exits non-zero without printing it twice.
var errOutcomeFailed = errors.New("action failed")

var rootCmd = &cobra.Command{
	Use:   "illsync",
	Short: "illsync - interlibrary loan requests synchronized with Libris",
	Long: `Track interlibrary loan requests locally and push every state change to the
Libris ILL broker. Incoming (IN) requests are ones your library lends out;
outgoing (OUT) requests are ones it borrows.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)

		if err := config.Initialize(); err != nil {
			return err
		}
		s, err := config.Load()
		if err != nil {
			return err
		}
		settings = s

		logger = newLogger(os.Stderr, settings.Log, verboseFlag)
		slog.SetDefault(logger)
		if jsonOutput || !ui.ShouldUseColor() {
			ui.DisableColor()
		}

		if err := telemetry.Init(rootCtx, "illsync", Version); err != nil {
			return err
		}
		if skipStore(cmd) {
			return nil
		}
		return openServices(rootCtx)
	},
}

// finalize runs after every command, including failed ones.
func finalize() {
	closeServices()
	telemetry.Shutdown(context.Background())
	if rootCancel != nil {
		rootCancel()
		rootCancel = nil
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	cobra.OnFinalize(finalize)
}

// skipStore reports whether cmd or any parent is marked annotationNoStore.
func skipStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoStore] == "true" {
			return true
		}
	}
	return false
}

// eventDir is where debug.LogEvent writes events.log: next to the config
// file in use, or .illsync under cwd.
func eventDir() string {
	if p := config.ConfigFileUsed(); p != "" {
		return filepath.Dir(p)
	}
	return config.DirName
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if !errors.Is(err, errOutcomeFailed) {
		if jsonOutput {
			outputJSONError(err, "")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
