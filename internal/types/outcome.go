package types

// NextView tells the caller which screen to show after an action.
type NextView string

const (
	ViewRequest NextView = "illview" // single-request view
	ViewList    NextView = "illlist" // request list
)

// Outcome is the result every lifecycle action returns. Errors are reported
// in-band (Error=1 plus Status/Message) rather than as Go errors.
type Outcome struct {
	Error   int            `json:"error"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Method  string         `json:"method"`
	Stage   string         `json:"stage"`
	Next    NextView       `json:"next"`
	Value   map[string]any `json:"value"`
}

// Failed reports whether the outcome carries an error.
func (o *Outcome) Failed() bool {
	return o != nil && o.Error != 0
}

// Well-known Outcome.Status values for validation failures.
const (
	StatusUnknownRequest    = "unknown_request"
	StatusNotRenewed        = "not_renewed"
	StatusItemAlreadyTagged = "item_already_tagged"
	StatusUnmapped          = "unmapped_status"
	StatusBrokerError       = "broker_error"
	StatusInvalidTransition = "invalid_transition"
	StatusInvalidParams     = "invalid_params"
	StatusDuplicate         = "duplicate_request"
	StatusInternal          = "internal_error"
)
