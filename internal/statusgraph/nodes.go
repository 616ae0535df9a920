package statusgraph

import "github.com/steveyegge/illsync/internal/types"

// Short status codes shared by both sub-graphs. Full node ids are the code
// prefixed with the direction, e.g. "IN_LAST".
const (
	CodeNew         = "NY"
	CodeRead        = "LAST"
	CodeWaiting     = "VANT"
	CodeReserved    = "RESE"
	CodeMayReserve  = "KANRES"
	CodeNegative    = "NEG"
	CodeDelivered   = "LEV"
	CodeOutstanding = "UTEL"
	CodeVoided      = "MAKUL"
	CodeReceived    = "MOTT"
	CodeComment     = "KOMM"
	CodeReturned    = "RET"
	CodeArrived     = "ANK"
	CodeClosed      = "AVSL"
)

type template struct {
	code   string
	name   string
	ui     string
	method string
	next   []string
}

// The IN_ and OUT_ sub-graphs share one shape. Every prefixed node may also
// be cancelled; that edge is added when the table is expanded.
var templates = []template{
	{CodeNew, "New request", "Create", ActionCreate, []string{CodeRead, CodeVoided}},
	{CodeOutstanding, "Outstanding", "Create", ActionCreate, []string{CodeRead, CodeVoided}},
	{CodeRead, "Read", "Mark as read", ActionSetStatusRead,
		[]string{CodeWaiting, CodeReserved, CodeMayReserve, CodeNegative, CodeDelivered, CodeComment}},
	{CodeWaiting, "Waiting", "Respond", ActionRespond,
		[]string{CodeRead, CodeReserved, CodeNegative, CodeDelivered, CodeVoided}},
	{CodeComment, "Commented", "Respond", ActionRespond,
		[]string{CodeRead, CodeReserved, CodeMayReserve, CodeNegative, CodeDelivered}},
	{CodeReserved, "Reserved", "Respond", ActionRespond, []string{CodeNegative, CodeDelivered, CodeVoided}},
	{CodeMayReserve, "May be reserved", "Respond", ActionRespond, []string{CodeReserved, CodeNegative, CodeDelivered}},
	{CodeNegative, "Negative response", "Respond", ActionRespond, nil},
	{CodeDelivered, "Delivered", "Respond", ActionRespond, []string{CodeArrived, CodeReceived, CodeReturned}},
	{CodeVoided, "Voided by broker", "Refresh", ActionRefresh, nil},
	{CodeReceived, "Received by borrower", "Refresh", ActionRefresh, []string{CodeReturned, CodeClosed}},
	{CodeReturned, "Returned", "Refresh", ActionRefresh, []string{CodeClosed}},
	{CodeArrived, "Arrived", "Receive", ActionReceive, []string{CodeReturned, CodeClosed}},
	{CodeClosed, "Closed", "Close", ActionClose, nil},
}

// NodeID joins a direction and a short code into a node id.
func NodeID(dir types.Direction, code string) string {
	return string(dir) + "_" + code
}

// DefaultNodes expands the shared table into both sub-graphs plus the
// cancellation node.
func DefaultNodes() []Node {
	var nodes []Node
	for _, dir := range []types.Direction{types.DirectionOutgoing, types.DirectionIncoming} {
		for _, t := range templates {
			next := make([]string, 0, len(t.next)+1)
			for _, code := range t.next {
				next = append(next, NodeID(dir, code))
			}
			next = append(next, CancelledID)
			nodes = append(nodes, Node{
				ID:     NodeID(dir, t.code),
				Name:   t.name,
				UI:     t.ui,
				Method: t.method,
				Next:   next,
			})
		}
	}
	nodes = append(nodes, Node{
		ID:     CancelledID,
		Name:   "Reverted",
		UI:     "Cancel",
		Method: ActionCancel,
	})
	return nodes
}
