package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/steveyegge/illsync/internal/types"
	"github.com/steveyegge/illsync/internal/ui"
)

// outputJSON outputs data as pretty-printed JSON
func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// outputJSONError outputs an error as JSON to stderr and exits with code 1.
func outputJSONError(err error, code string) {
	errObj := map[string]string{"error": err.Error()}
	if code != "" {
		errObj["code"] = code
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(errObj) // Best effort: if JSON encoding fails, error is already printed to stderr
	os.Exit(1)
}

// printOutcome writes out in the selected format and turns a failed outcome
// into errOutcomeFailed.
func printOutcome(out types.Outcome) error {
	if jsonOutput {
		if err := outputJSON(out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(stdout, ui.RenderOutcome(out))
	}
	if out.Failed() {
		return errOutcomeFailed
	}
	return nil
}
