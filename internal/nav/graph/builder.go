package graph

import (
	"sort"

	"voxelnav.ai/internal/geom"
)

// NodeID identifies a node inside one graph. IDs are dense and start at zero.
type NodeID int

// MutableNode is one walkable cell. Neighbours are stored as ids, never as pointers.
type MutableNode struct {
	ID       NodeID
	Cell     geom.Vec3i
	Position geom.Vec3

	neighbours map[NodeID]struct{}
}

// MutableGraph owns every node; nodes[i].ID == i.
type MutableGraph struct {
	StructureID string
	Up          geom.AxisDirection

	nodes  []*MutableNode
	byCell map[geom.Vec3i]NodeID
}

func newMutableGraph(up geom.AxisDirection) *MutableGraph {
	return &MutableGraph{Up: up, byCell: map[geom.Vec3i]NodeID{}}
}

func (g *MutableGraph) Len() int { return len(g.nodes) }

func (g *MutableGraph) Node(id NodeID) (*MutableNode, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

// Nodes returns the nodes in id order.
func (g *MutableGraph) Nodes() []*MutableNode {
	out := make([]*MutableNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *MutableGraph) NodeAt(c geom.Vec3i) (NodeID, bool) {
	id, ok := g.byCell[c]
	return id, ok
}

// Neighbours returns the neighbour ids of id in ascending order.
func (g *MutableGraph) Neighbours(id NodeID) []NodeID {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	out := make([]NodeID, 0, len(n.neighbours))
	for nb := range n.neighbours {
		out = append(out, nb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *MutableGraph) Degree(id NodeID) int {
	n, ok := g.Node(id)
	if !ok {
		return 0
	}
	return len(n.neighbours)
}

// DegreeSum is the sum of all neighbour-set sizes; always twice the edge count.
func (g *MutableGraph) DegreeSum() int {
	sum := 0
	for _, n := range g.nodes {
		sum += len(n.neighbours)
	}
	return sum
}

func (g *MutableGraph) add(c geom.Vec3i, pos geom.Vec3) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &MutableNode{ID: id, Cell: c, Position: pos, neighbours: map[NodeID]struct{}{}})
	g.byCell[c] = id
	return id
}

// link connects a and b in both directions. Self links are ignored.
func (g *MutableGraph) link(a, b NodeID) {
	if a == b {
		return
	}
	g.nodes[a].neighbours[b] = struct{}{}
	g.nodes[b].neighbours[a] = struct{}{}
}

// horizontalSteps are the positive unit offsets along the two axes orthogonal to up.
func horizontalSteps(up geom.AxisDirection) [2]geom.Vec3i {
	a, b := up.HorizontalAxes()
	return [2]geom.Vec3i{unit(a), unit(b)}
}

func unit(c geom.Component) geom.Vec3i {
	switch c {
	case geom.CompX:
		return geom.Vec3i{X: 1}
	case geom.CompY:
		return geom.Vec3i{Y: 1}
	default:
		return geom.Vec3i{Z: 1}
	}
}

// Walkable reports whether an agent can stand on c: c is occupied and the cell one
// step along up is free.
func Walkable(cells CellSet, c geom.Vec3i, up geom.AxisDirection) bool {
	return cells.Has(c) && !cells.Has(c.Add(up.Vec3i()))
}

// Build turns a cell set into a navigation graph.
//
// A node is created for every walkable cell that does not itself rest on another
// occupied cell: a cell stacked on top of a floor cell is the obstacle that blocks
// that floor cell and never becomes a node. Nodes are linked when their cells are
// one step apart along one of the two horizontal axes. The input set is not modified.
func Build(cells CellSet, up geom.AxisDirection, place Placement) *MutableGraph {
	g := newMutableGraph(up)
	down := up.Opposite().Vec3i()
	for _, c := range cells.Sorted() {
		if !Walkable(cells, c, up) || cells.Has(c.Add(down)) {
			continue
		}
		g.add(c, place.Position(c))
	}
	g.linkAdjacent()
	return g
}

// BuildReachable keeps only the walkable cells of start's layer that can be reached
// from start by horizontal steps. The layer is defined by start, so cells resting on
// lower blocks are valid floor here. An unwalkable start yields an empty graph.
func BuildReachable(cells CellSet, up geom.AxisDirection, place Placement, start geom.Vec3i) *MutableGraph {
	g := newMutableGraph(up)
	if !Walkable(cells, start, up) {
		return g
	}

	steps := horizontalSteps(up)
	// Fixed neighbour order keeps the walk deterministic.
	var zero geom.Vec3i
	dirs := []geom.Vec3i{steps[0], zero.Sub(steps[0]), steps[1], zero.Sub(steps[1])}

	visited := NewCellSet(start)
	queue := []geom.Vec3i{start}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for _, d := range dirs {
			nb := cur.Add(d)
			if visited.Has(nb) || !Walkable(cells, nb, up) {
				continue
			}
			visited[nb] = struct{}{}
			queue = append(queue, nb)
		}
	}

	for _, c := range visited.Sorted() {
		g.add(c, place.Position(c))
	}
	g.linkAdjacent()
	return g
}

func (g *MutableGraph) linkAdjacent() {
	steps := horizontalSteps(g.Up)
	for _, n := range g.nodes {
		for _, s := range steps {
			if nb, ok := g.byCell[n.Cell.Add(s)]; ok {
				g.link(n.ID, nb)
			}
		}
	}
}
