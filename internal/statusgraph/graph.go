// Package statusgraph holds the static graph of ILL request states: which
// action produces each state and which states may follow it.
package statusgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Action names. These are also the method names accepted by the lifecycle.
const (
	ActionCreate        = "create"
	ActionConfirm       = "confirm"
	ActionReceive       = "receive"
	ActionRespond       = "respond"
	ActionSetStatusRead = "set_status_read"
	ActionClose         = "close"
	ActionRenew         = "renew"
	ActionCancel        = "cancel"
	ActionStatus        = "status"
	ActionRefresh       = "refresh"
)

// CancelledID is the unprefixed terminal node reached by cancel.
const CancelledID = "REQREV"

// ErrNodeNotFound is returned by Lookup for ids that are not in the graph.
var ErrNodeNotFound = errors.New("status node not found")

// Node is one state in the graph.
type Node struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	UI     string   `json:"ui" yaml:"ui"`         // label for the action leading here
	Method string   `json:"method" yaml:"method"` // action that produces this node
	Next   []string `json:"next_actions" yaml:"next_actions"`
	Prev   []string `json:"prev_actions,omitempty" yaml:"prev_actions,omitempty"` // informational only
}

// Graph is an immutable set of nodes keyed by id.
type Graph struct {
	nodes []Node
	byID  map[string]Node
}

// New builds a graph from nodes, filling Prev from the Next edges, and
// validates it.
func New(nodes []Node) (*Graph, error) {
	g := &Graph{byID: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		n.Next = append([]string(nil), n.Next...)
		n.Prev = nil
		g.nodes = append(g.nodes, n)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	for _, n := range g.nodes {
		g.byID[n.ID] = n
	}
	for _, n := range g.nodes {
		for _, next := range n.Next {
			target := g.byID[next]
			target.Prev = append(target.Prev, n.ID)
			g.byID[next] = target
		}
	}
	for i := range g.nodes {
		g.nodes[i] = g.byID[g.nodes[i].ID]
	}
	return g, nil
}

// Validate checks id uniqueness and that every referenced id is defined.
func (g *Graph) Validate() error {
	var errs []string
	ids := make(map[string]bool, len(g.nodes))
	for i, n := range g.nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Sprintf("nodes[%d]: id is required", i))
			continue
		}
		if ids[n.ID] {
			errs = append(errs, fmt.Sprintf("nodes[%d]: duplicate id %q", i, n.ID))
		}
		ids[n.ID] = true
		if n.Method == "" {
			errs = append(errs, fmt.Sprintf("nodes[%d] (%s): method is required", i, n.ID))
		}
	}
	for i, n := range g.nodes {
		for _, next := range n.Next {
			if !ids[next] {
				errs = append(errs, fmt.Sprintf("nodes[%d] (%s): next_actions references unknown node %q", i, n.ID, next))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("status graph validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Lookup returns the node with the given id.
func (g *Graph) Lookup(id string) (Node, error) {
	n, ok := g.byID[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return n, nil
}

// IsValidTransition reports whether action may be taken from the node fromID,
// i.e. some node listed in its next actions is produced by action.
func (g *Graph) IsValidTransition(fromID, action string) bool {
	from, ok := g.byID[fromID]
	if !ok {
		return false
	}
	for _, next := range from.Next {
		if g.byID[next].Method == action {
			return true
		}
	}
	return false
}

// ActionsFrom returns the distinct actions available from fromID, sorted.
func (g *Graph) ActionsFrom(fromID string) []string {
	from, ok := g.byID[fromID]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var actions []string
	for _, next := range from.Next {
		m := g.byID[next].Method
		if !seen[m] {
			seen[m] = true
			actions = append(actions, m)
		}
	}
	sort.Strings(actions)
	return actions
}

// IsTerminal reports whether no further state can follow id other than
// cancellation.
func (g *Graph) IsTerminal(id string) bool {
	n, ok := g.byID[id]
	if !ok {
		return false
	}
	for _, next := range n.Next {
		if next != CancelledID {
			return false
		}
	}
	return true
}

// Nodes returns a copy of the nodes in definition order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		n.Next = append([]string(nil), n.Next...)
		n.Prev = append([]string(nil), n.Prev...)
		out[i] = n
	}
	return out
}

// MarshalYAML renders the graph as a YAML sequence of nodes.
func (g *Graph) MarshalYAML() (interface{}, error) {
	return g.Nodes(), nil
}

// YAML returns the graph encoded as YAML.
func (g *Graph) YAML() ([]byte, error) {
	return yaml.Marshal(g)
}

var (
	defaultOnce  sync.Once
	defaultGraph *Graph
)

// Default returns the built-in ILL status graph. It panics if the built-in
// table is inconsistent, which the package tests guard against.
func Default() *Graph {
	defaultOnce.Do(func() {
		g, err := New(DefaultNodes())
		if err != nil {
			panic(err)
		}
		defaultGraph = g
	})
	return defaultGraph
}
