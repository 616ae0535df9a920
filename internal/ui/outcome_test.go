package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/notification"
	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/types"
)

func init() {
	DisableColor()
}

func TestRenderOutcomeSuccess(t *testing.T) {
	got := RenderOutcome(types.Outcome{
		Method: "close",
		Stage:  "close",
		Status: "IN_AVSL",
		Value:  map[string]any{"holds_removed": 2, "status": "IN_AVSL", "actions": []string{"refresh"}},
	})
	assert.True(t, strings.HasPrefix(got, IconPass+" close "+Arrow+" IN_AVSL"), got)
	assert.Contains(t, got, "holds_removed")
	assert.Contains(t, got, "refresh")
	assert.NotContains(t, got, "(close)", "stage equal to method is not repeated")
}

func TestRenderOutcomeFailure(t *testing.T) {
	got := RenderOutcome(types.Outcome{
		Error:   1,
		Method:  "receive",
		Stage:   "commit",
		Status:  types.StatusItemAlreadyTagged,
		Message: "item 5 already has barcode B1",
		Value:   map[string]any{"ignored": true},
	})
	assert.Contains(t, got, IconFail+" receive (commit): item_already_tagged")
	assert.Contains(t, got, "item 5 already has barcode B1")
	assert.NotContains(t, got, "ignored")
}

func TestRenderOutcomeFormValues(t *testing.T) {
	got := RenderOutcome(types.Outcome{
		Method: "receive",
		Stage:  "receive",
		Value: map[string]any{
			"notices": []*notification.Notice{
				{Transport: notification.TransportSMS, TemplateCode: notification.CodePickupReady, Content: "Fjärrlån att hämta: Röda rummet"},
			},
			"responses": broker.ResponseOptions,
		},
	})
	assert.Contains(t, got, "SMS")
	assert.Contains(t, got, notification.CodePickupReady)
	assert.Contains(t, got, "Röda rummet")
	assert.Contains(t, got, "RESPONSES")
	assert.Contains(t, got, "2  Negativt svar")
}

func TestRenderRequests(t *testing.T) {
	assert.Equal(t, "No requests.", RenderRequests(nil))

	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	got := RenderRequests([]RequestRow{
		{Request: &types.Request{ID: 1, OrderID: "1001", Direction: types.DirectionIncoming, Status: "IN_LAST", Updated: updated}, Title: "Röda rummet"},
		{Request: &types.Request{ID: 2, Direction: types.DirectionOutgoing, Status: "REQREV"}, Title: strings.Repeat("x", 60)},
	})
	for _, want := range []string{"ORDER", "1001", "IN_LAST", "Röda rummet", "2024-05-01 10:00", "REQREV", "..."} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, strings.Repeat("x", 41))
}

func TestRenderRequest(t *testing.T) {
	placed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	req := &types.Request{
		ID: 7, OrderID: "1001", Status: "IN_ANK", Direction: types.DirectionIncoming,
		Backend: "Libris", BiblioID: 77, Placed: &placed, Notes: "first\nsecond",
	}
	got := RenderRequest(req, map[string]string{"title": "Röda rummet", "due_date_max": "2024-05-22"}, statusgraph.Default())
	assert.Contains(t, got, "REQUEST 7")
	assert.Contains(t, got, "IN_ANK (Arrived)")
	assert.Contains(t, got, "Röda rummet")
	assert.Contains(t, got, "2024-05-22")
	assert.Contains(t, got, "  second")
	assert.NotContains(t, got, "item", "zero item id is omitted")
	assert.Less(t, strings.Index(got, "due_date_max"), strings.Index(got, "title"))
}

func TestRenderGraph(t *testing.T) {
	g := statusgraph.Default()
	got := RenderGraph(g.Nodes())
	n, err := g.Lookup("IN_ANK")
	require.NoError(t, err)
	assert.Contains(t, got, "IN_ANK")
	assert.Contains(t, got, n.Name)
	assert.Contains(t, got, statusgraph.CancelledID)
}

func TestStatusStyle(t *testing.T) {
	tests := []struct {
		code string
		want lipgloss.Style
	}{
		{"IN_AVSL", MutedStyle},
		{"REQREV", MutedStyle},
		{"OUT_LEV", PassStyle},
		{"IN_NEG", FailStyle},
		{"IN_NY", WarnStyle},
		{"WEIRD", AccentStyle},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want.GetForeground(), StatusStyle(tt.code).GetForeground(), tt.code)
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "Röda r...", Truncate("Röda rummet", 9))
	assert.Equal(t, "...", Truncate("abcdef", 2))
	assert.Equal(t, "one two\nthree", WrapText("one two three", 8))
	assert.Equal(t, "a\n\nb", WrapText("a\n\nb", 0))
	assert.Equal(t, "> a\n\n> b", Indent("a\n\nb", "> "))
}
