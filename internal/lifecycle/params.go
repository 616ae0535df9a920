package lifecycle

import (
	"fmt"
	"strings"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/types"
)

// Phase is the sub-step of a two-phase action.
type Phase int

const (
	// AwaitingInput returns a form descriptor and mutates nothing.
	AwaitingInput Phase = iota
	// Committing applies the submitted form.
	Committing
)

func (p Phase) String() string {
	if p == Committing {
		return "commit"
	}
	return "form"
}

// StageCommit is the stage label of a completed commit.
const StageCommit = "commit"

// ParseStage maps a wire stage label onto a phase. The commit stage of an
// action is labelled with the action's own name ("receive", "respond", ...)
// or the generic "commit"; anything else, including empty, asks for the form.
func ParseStage(method, stage string) Phase {
	stage = strings.TrimSpace(stage)
	if stage == method || stage == StageCommit {
		return Committing
	}
	return AwaitingInput
}

// Params is the tagged union of per-action parameters.
type Params interface {
	Method() string
}

// CreateParams carries broker-originated data for a new local request.
type CreateParams struct {
	Direction types.Direction
	Request   *broker.ILLRequest

	BiblioID  int64
	ItemID    int64
	PatronID  int64
	PartnerID int64
	Branch    string
	Cost      string
	Backend   string // defaults to "Libris"

	// Attributes are stored in addition to the broker record's own fields.
	Attributes map[string]string
}

// ConfirmParams drives the confirm form.
type ConfirmParams struct {
	Phase Phase
}

// ReceiveParams records the arrival of a loan or copy.
type ReceiveParams struct {
	Phase Phase

	Barcode     string // assigned to the request's item; refused if it already has one
	DueDateGuar string // guaranteed due date, any timeparsing expression
	DueDateMax  string // latest due date
	Notify      bool   // send the pickup notice to the patron
}

// RespondParams answers a read request on the broker.
type RespondParams struct {
	Phase Phase

	ResponseID    string // one of broker.ResponseOptions
	AddedResponse string
	MayReserve    bool
}

// SetStatusReadParams marks a request as read on the broker.
type SetStatusReadParams struct{}

// CloseParams closes an arrived or returned request.
type CloseParams struct{}

// RenewParams proposes a renewal.
type RenewParams struct{}

// CancelParams reverts a request locally.
type CancelParams struct{}

// StatusParams queries the attribute view.
type StatusParams struct {
	Phase Phase
}

// RefreshParams pulls the broker status without acting.
type RefreshParams struct{}

func (CreateParams) Method() string        { return statusgraph.ActionCreate }
func (ConfirmParams) Method() string       { return statusgraph.ActionConfirm }
func (ReceiveParams) Method() string       { return statusgraph.ActionReceive }
func (RespondParams) Method() string       { return statusgraph.ActionRespond }
func (SetStatusReadParams) Method() string { return statusgraph.ActionSetStatusRead }
func (CloseParams) Method() string         { return statusgraph.ActionClose }
func (RenewParams) Method() string         { return statusgraph.ActionRenew }
func (CancelParams) Method() string        { return statusgraph.ActionCancel }
func (StatusParams) Method() string        { return statusgraph.ActionStatus }
func (RefreshParams) Method() string       { return statusgraph.ActionRefresh }

// ParamsFromStage builds the params for method from a stage label and a flat
// field map, the shape used by the action invocation surface. Create is not
// supported here because it needs a broker record.
func ParamsFromStage(method, stage string, fields map[string]string) (Params, error) {
	phase := ParseStage(method, stage)
	switch method {
	case statusgraph.ActionConfirm:
		return ConfirmParams{Phase: phase}, nil
	case statusgraph.ActionReceive:
		return ReceiveParams{
			Phase:       phase,
			Barcode:     strings.TrimSpace(fields["barcode"]),
			DueDateGuar: fields[types.AttrDueDateGuar],
			DueDateMax:  fields[types.AttrDueDateMax],
			Notify:      isTruthy(fields["notify"]),
		}, nil
	case statusgraph.ActionRespond:
		return RespondParams{
			Phase:         phase,
			ResponseID:    fields[broker.FieldResponseID],
			AddedResponse: fields[broker.FieldAddedResponse],
			MayReserve:    isTruthy(fields[broker.FieldMayReserve]),
		}, nil
	case statusgraph.ActionSetStatusRead:
		return SetStatusReadParams{}, nil
	case statusgraph.ActionClose:
		return CloseParams{}, nil
	case statusgraph.ActionRenew:
		return RenewParams{}, nil
	case statusgraph.ActionCancel:
		return CancelParams{}, nil
	case statusgraph.ActionStatus:
		return StatusParams{Phase: phase}, nil
	case statusgraph.ActionRefresh:
		return RefreshParams{}, nil
	}
	return nil, fmt.Errorf("unknown method %q", method)
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
