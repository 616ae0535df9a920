package storage

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// SQLiteConnString builds a modernc SQLite connection string with the
// pragmas every illsync database uses.
//
// Includes busy_timeout, foreign_keys and time_format. Honors the
// ILL_LOCK_TIMEOUT env var for busy timeout (default 30s). ":memory:" is
// returned unchanged. If path is already a file: URI, pragmas are appended
// only if absent.
func SQLiteConnString(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" {
		return path
	}

	busy := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("ILL_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := int64(busy / time.Millisecond)

	if !strings.HasPrefix(path, "file:") {
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", path, busyMs)
	}

	conn := path
	sep := "?"
	if strings.Contains(conn, "?") {
		sep = "&"
	}
	if !strings.Contains(conn, "_pragma=busy_timeout") {
		conn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, busyMs)
		sep = "&"
	}
	if !strings.Contains(conn, "_pragma=foreign_keys") {
		conn += sep + "_pragma=foreign_keys(ON)"
		sep = "&"
	}
	if !strings.Contains(conn, "_time_format=") {
		conn += sep + "_time_format=sqlite"
	}
	return conn
}
