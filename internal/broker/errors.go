package broker

import (
	"errors"
	"fmt"

	"github.com/steveyegge/illsync/internal/types"
)

var (
	// ErrUnmappedStatus means the broker returned a status string the
	// translation table does not know.
	ErrUnmappedStatus = errors.New("unmapped broker status")

	// ErrNoData means the broker answered but returned zero records.
	ErrNoData = errors.New("broker returned no data")
)

// UnmappedStatusError carries the raw status that failed to translate.
type UnmappedStatusError struct {
	Raw       string
	Direction types.Direction
}

func (e *UnmappedStatusError) Error() string {
	return fmt.Sprintf("unmapped broker status %q (direction %s)", e.Raw, e.Direction)
}

// Unwrap lets errors.Is match ErrUnmappedStatus.
func (e *UnmappedStatusError) Unwrap() error { return ErrUnmappedStatus }

// APIError is a non-2xx reply from the broker. Its message is the HTTP
// status line so callers can surface it verbatim.
type APIError struct {
	StatusCode int
	Status     string // e.g. "409 Conflict"
	Body       string
}

func (e *APIError) Error() string {
	return e.Status
}

// IsTransient reports whether retrying the same GET might succeed.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
