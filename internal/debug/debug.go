// Package debug holds the env-gated diagnostic output used across illsync.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var (
	enabled     = os.Getenv("ILL_DEBUG") != ""
	verboseMode = false
	quietMode   = false
	logMutex    sync.Mutex
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet suppresses non-essential output
func SetQuiet(quiet bool) {
	quietMode = quiet
}

func IsQuiet() bool {
	return quietMode
}

// Logf writes to stderr when ILL_DEBUG is set or --verbose was given.
func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// PrintNormal prints to stdout unless quiet mode is on.
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// LogEvent appends one line to <dir>/events.log:
//
//	TIMESTAMP|EVENT|REQUEST_ID|ACTOR|DETAILS
//
// Failures are ignored; the event log is best-effort.
func LogEvent(dir, event string, requestID int64, details string) {
	if dir == "" {
		return
	}
	actor := os.Getenv("ILL_ACTOR")
	if actor == "" {
		actor = os.Getenv("USER")
	}
	if actor == "" {
		actor = "unknown"
	}
	id := "none"
	if requestID > 0 {
		id = strconv.FormatInt(requestID, 10)
	}
	entry := fmt.Sprintf("%s|%s|%s|%s|%s\n",
		time.Now().UTC().Format(time.RFC3339), event, id, actor, details)

	logMutex.Lock()
	defer logMutex.Unlock()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.WriteString(entry)
}
