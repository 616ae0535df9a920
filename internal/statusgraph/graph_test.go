package statusgraph

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultGraphIsClosed(t *testing.T) {
	g := Default()
	require.NoError(t, g.Validate())

	seen := make(map[string]bool)
	for _, n := range g.Nodes() {
		assert.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
		for _, next := range n.Next {
			_, err := g.Lookup(next)
			assert.NoError(t, err, "%s -> %s", n.ID, next)
		}
	}
	// Two mirrored sub-graphs plus the cancellation node.
	assert.Len(t, seen, 2*len(templates)+1)
}

func TestLookup(t *testing.T) {
	g := Default()

	n, err := g.Lookup("IN_LAST")
	require.NoError(t, err)
	assert.Equal(t, ActionSetStatusRead, n.Method)
	assert.Contains(t, n.Prev, "IN_NY")

	_, err = g.Lookup("IN_NOPE")
	assert.True(t, errors.Is(err, ErrNodeNotFound))

	n, err = g.Lookup(CancelledID)
	require.NoError(t, err)
	assert.Empty(t, n.Next)
}

func TestIsValidTransition(t *testing.T) {
	g := Default()
	tests := []struct {
		from   string
		action string
		want   bool
	}{
		{"IN_NY", ActionSetStatusRead, true},
		{"IN_LAST", ActionRespond, true},
		{"IN_LEV", ActionReceive, true},
		{"IN_ANK", ActionClose, true},
		{"IN_RET", ActionClose, true},
		{"IN_LEV", ActionClose, false},
		{"IN_NY", ActionReceive, false},
		{"IN_AVSL", ActionReceive, false},
		{"OUT_LAST", ActionRespond, true},
		{"OUT_AVSL", ActionCancel, true},
		{CancelledID, ActionCancel, false},
		{"IN_MISSING", ActionCancel, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"/"+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, g.IsValidTransition(tt.from, tt.action))
		})
	}
}

func TestCancelReachableFromEveryPrefixedNode(t *testing.T) {
	g := Default()
	for _, n := range g.Nodes() {
		if n.ID == CancelledID {
			continue
		}
		assert.True(t, g.IsValidTransition(n.ID, ActionCancel), n.ID)
	}
}

func TestActionsFrom(t *testing.T) {
	g := Default()
	assert.Equal(t, []string{ActionCancel, ActionClose, ActionRefresh}, g.ActionsFrom("IN_ANK"))
	assert.Nil(t, g.ActionsFrom("nope"))
}

func TestIsTerminal(t *testing.T) {
	g := Default()
	assert.True(t, g.IsTerminal("IN_AVSL"))
	assert.True(t, g.IsTerminal(CancelledID))
	assert.False(t, g.IsTerminal("OUT_LEV"))
	assert.False(t, g.IsTerminal("unknown"))
}

func TestNewRejectsBrokenGraphs(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []Node
		wantMsg string
	}{
		{
			name:    "dangling reference",
			nodes:   []Node{{ID: "A", Method: "x", Next: []string{"B"}}},
			wantMsg: `references unknown node "B"`,
		},
		{
			name:    "duplicate id",
			nodes:   []Node{{ID: "A", Method: "x"}, {ID: "A", Method: "y"}},
			wantMsg: `duplicate id "A"`,
		},
		{
			name:    "missing id",
			nodes:   []Node{{Method: "x"}},
			wantMsg: "id is required",
		},
		{
			name:    "missing method",
			nodes:   []Node{{ID: "A"}},
			wantMsg: "method is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.nodes)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg), err.Error())
		})
	}
}

func TestNodesReturnsCopy(t *testing.T) {
	g := Default()
	nodes := g.Nodes()
	nodes[0].Next[0] = "CLOBBERED"
	n, err := g.Lookup(nodes[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "CLOBBERED", n.Next[0])
}

func TestYAMLExport(t *testing.T) {
	data, err := Default().YAML()
	require.NoError(t, err)

	var decoded []Node
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Len(t, decoded, len(Default().Nodes()))
	assert.Equal(t, "OUT_NY", decoded[0].ID)
}
