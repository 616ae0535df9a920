package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/notification"
	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/types"
)

// RenderOutcome formats a lifecycle outcome for the terminal.
func RenderOutcome(out types.Outcome) string {
	var b strings.Builder

	label := out.Method
	if out.Stage != "" && out.Stage != out.Method {
		label += " (" + out.Stage + ")"
	}
	if out.Failed() {
		fmt.Fprintf(&b, "%s %s: %s", RenderFail(IconFail), label, RenderFail(out.Status))
		if out.Message != "" {
			fmt.Fprintf(&b, "\n  %s", out.Message)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s", RenderPass(IconPass), label)
	if out.Status != "" {
		fmt.Fprintf(&b, " %s %s", Arrow, RenderStatus(out.Status))
	}
	if out.Message != "" {
		fmt.Fprintf(&b, "\n  %s", out.Message)
	}

	keys := make([]string, 0, len(out.Value))
	for k := range out.Value {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var blocks []string
	for _, k := range keys {
		switch val := out.Value[k].(type) {
		case []*notification.Notice:
			for _, n := range val {
				blocks = append(blocks, RenderNotice(n))
			}
		case []broker.ResponseOption:
			lines := []string{RenderHeader("responses")}
			for _, opt := range val {
				lines = append(lines, fmt.Sprintf("  %s  %s", opt.ID, opt.Label))
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		case []string:
			fmt.Fprintf(&b, "\n  %s%s", LabelStyle.Render(k), strings.Join(val, ", "))
		default:
			fmt.Fprintf(&b, "\n  %s%v", LabelStyle.Render(k), val)
		}
	}
	for _, block := range blocks {
		b.WriteString("\n\n")
		b.WriteString(block)
	}
	return b.String()
}

// RenderNotice frames a patron notice with its transport as the title.
func RenderNotice(n *notification.Notice) string {
	body := n.Content
	if n.Title != "" {
		body = lipgloss.NewStyle().Bold(true).Render(n.Title) + "\n\n" + body
	}
	head := RenderHeader(string(n.Transport)) + " " + RenderMuted(n.TemplateCode)
	return head + "\n" + NoticeStyle.Render(WrapText(body, 72))
}

// RequestRow is one line of the request list.
type RequestRow struct {
	Request *types.Request
	Title   string
}

// RenderRequests renders requests as a table.
func RenderRequests(rows []RequestRow) string {
	if len(rows) == 0 {
		return RenderMuted("No requests.")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(MutedStyle).
		Headers("ID", "ORDER", "DIR", "STATUS", "TITLE", "UPDATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Inherit(HeaderStyle)
			}
			if col == 3 {
				return style.Inherit(StatusStyle(rows[row].Request.Status))
			}
			return style
		})
	for _, r := range rows {
		updated := ""
		if !r.Request.Updated.IsZero() {
			updated = r.Request.Updated.Format("2006-01-02 15:04")
		}
		t.Row(
			fmt.Sprintf("%d", r.Request.ID),
			r.Request.OrderID,
			string(r.Request.Direction),
			r.Request.Status,
			Truncate(r.Title, 40),
			updated,
		)
	}
	return t.String()
}

// RenderRequest renders a single request and its attributes.
func RenderRequest(req *types.Request, attrs map[string]string, g *statusgraph.Graph) string {
	var b strings.Builder
	status := req.Status
	if g != nil {
		if n, err := g.Lookup(req.Status); err == nil {
			status = fmt.Sprintf("%s %s", req.Status, RenderMuted("("+n.Name+")"))
		}
	}
	fmt.Fprintf(&b, "%s %d\n", RenderHeader("request"), req.ID)
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  %s%s\n", LabelStyle.Render(label), value)
		}
	}
	field("status", StatusStyle(req.Status).Render(status))
	field("order id", req.OrderID)
	field("direction", string(req.Direction))
	field("backend", req.Backend)
	field("medium", req.Medium)
	field("cost", req.Cost)
	field("branch", req.Branch)
	if req.BiblioID != 0 {
		field("biblio", fmt.Sprintf("%d", req.BiblioID))
	}
	if req.ItemID != 0 {
		field("item", fmt.Sprintf("%d", req.ItemID))
	}
	if req.Placed != nil {
		field("placed", req.Placed.Format("2006-01-02 15:04"))
	}
	if req.Replied != nil {
		field("replied", req.Replied.Format("2006-01-02 15:04"))
	}
	if req.Completed != nil {
		field("completed", req.Completed.Format("2006-01-02 15:04"))
	}

	if len(attrs) > 0 {
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "\n%s\n", RenderHeader("attributes"))
		for _, k := range keys {
			field(k, attrs[k])
		}
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", RenderHeader("notes"), Indent(req.Notes, "  "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderGraph renders the status graph as a table of nodes and their
// outgoing actions.
func RenderGraph(nodes []statusgraph.Node) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(MutedStyle).
		Headers("ID", "NAME", "REACHED BY", "NEXT").
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Inherit(HeaderStyle)
			}
			return style
		})
	for _, n := range nodes {
		t.Row(n.ID, n.Name, n.Method, strings.Join(n.Next, ", "))
	}
	return t.String()
}
