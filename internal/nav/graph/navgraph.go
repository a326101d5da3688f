package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"voxelnav.ai/internal/geom"
)

var ErrUnknownNode = errors.New("unknown node")

type Node struct {
	ID       NodeID     `json:"id"`
	Cell     geom.Vec3i `json:"cell"`
	Position geom.Vec3  `json:"position"`
}

type EdgeID int

// Edge is an undirected connection. A < B always.
type Edge struct {
	ID EdgeID `json:"id"`
	A  NodeID `json:"a"`
	B  NodeID `json:"b"`
}

// NavGraph is the immutable form of a MutableGraph. It is safe for concurrent readers.
type NavGraph struct {
	StructureID string             `json:"structure_id,omitempty"`
	Up          geom.AxisDirection `json:"up"`
	Nodes       []Node             `json:"nodes"`
	Edges       []Edge             `json:"edges"`

	index map[NodeID]int
	adj   map[NodeID][]NodeID
}

// Freeze copies g into a NavGraph. Edge ids follow ascending (A, B).
func Freeze(g *MutableGraph) *NavGraph {
	ng := &NavGraph{StructureID: g.StructureID, Up: g.Up}
	ng.Nodes = make([]Node, 0, g.Len())
	for _, n := range g.nodes {
		ng.Nodes = append(ng.Nodes, Node{ID: n.ID, Cell: n.Cell, Position: n.Position})
		for _, nb := range g.Neighbours(n.ID) {
			if nb > n.ID {
				ng.Edges = append(ng.Edges, Edge{ID: EdgeID(len(ng.Edges)), A: n.ID, B: nb})
			}
		}
	}
	ng.reindex()
	return ng
}

func (g *NavGraph) reindex() {
	g.index = make(map[NodeID]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
	g.adj = make(map[NodeID][]NodeID, len(g.Nodes))
	for _, e := range g.Edges {
		g.adj[e.A] = append(g.adj[e.A], e.B)
		g.adj[e.B] = append(g.adj[e.B], e.A)
	}
	for id := range g.adj {
		nbs := g.adj[id]
		sort.Slice(nbs, func(i, j int) bool { return nbs[i] < nbs[j] })
	}
}

// Validate checks that every edge joins two known, distinct nodes and that no
// pair of nodes is joined twice.
func (g *NavGraph) Validate() error {
	seenNodes := make(map[NodeID]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := seenNodes[n.ID]; dup {
			return fmt.Errorf("duplicate node %d", n.ID)
		}
		seenNodes[n.ID] = struct{}{}
	}
	type pair struct{ a, b NodeID }
	seenEdges := make(map[pair]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if _, ok := seenNodes[e.A]; !ok {
			return fmt.Errorf("edge %d: %w %d", e.ID, ErrUnknownNode, e.A)
		}
		if _, ok := seenNodes[e.B]; !ok {
			return fmt.Errorf("edge %d: %w %d", e.ID, ErrUnknownNode, e.B)
		}
		if e.A == e.B {
			return fmt.Errorf("edge %d: self loop on %d", e.ID, e.A)
		}
		p := pair{e.A, e.B}
		if p.a > p.b {
			p.a, p.b = p.b, p.a
		}
		if _, dup := seenEdges[p]; dup {
			return fmt.Errorf("edge %d: duplicate of %d-%d", e.ID, p.a, p.b)
		}
		seenEdges[p] = struct{}{}
	}
	return nil
}

func (g *NavGraph) UnmarshalJSON(b []byte) error {
	type plain NavGraph
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	ng := NavGraph(p)
	if err := ng.Validate(); err != nil {
		return fmt.Errorf("navgraph: %w", err)
	}
	ng.reindex()
	*g = ng
	return nil
}

func (g *NavGraph) Len() int { return len(g.Nodes) }

func (g *NavGraph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

func (g *NavGraph) Position(id NodeID) (geom.Vec3, bool) {
	n, ok := g.Node(id)
	return n.Position, ok
}

// Neighbors returns the ids adjacent to id in ascending order. The slice is shared; do not modify it.
func (g *NavGraph) Neighbors(id NodeID) []NodeID {
	return g.adj[id]
}

// NodeAtCell finds the node standing on cell c.
func (g *NavGraph) NodeAtCell(c geom.Vec3i) (NodeID, bool) {
	for _, n := range g.Nodes {
		if n.Cell == c {
			return n.ID, true
		}
	}
	return 0, false
}
