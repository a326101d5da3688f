package graph

import (
	"github.com/dhconnelly/rtreego"

	"voxelnav.ai/internal/geom"
)

const pointTolerance = 1e-6

type spatialEntry struct {
	id  NodeID
	pos geom.Vec3
	box rtreego.Rect
}

func (e *spatialEntry) Bounds() rtreego.Rect { return e.box }

// SpatialIndex maps world positions onto the nodes of one NavGraph.
type SpatialIndex struct {
	tree *rtreego.Rtree
}

func NewSpatialIndex(g *NavGraph) *SpatialIndex {
	tree := rtreego.NewTree(3, 25, 50)
	for _, n := range g.Nodes {
		p := rtreego.Point{n.Position.X, n.Position.Y, n.Position.Z}
		tree.Insert(&spatialEntry{id: n.ID, pos: n.Position, box: p.ToRect(pointTolerance)})
	}
	return &SpatialIndex{tree: tree}
}

func (si *SpatialIndex) Len() int { return si.tree.Size() }

// Nearest returns the node closest to pos. Equal distances resolve to the lower id.
func (si *SpatialIndex) Nearest(pos geom.Vec3) (NodeID, bool) {
	p := rtreego.Point{pos.X, pos.Y, pos.Z}
	hit, ok := si.tree.NearestNeighbor(p).(*spatialEntry)
	if !ok || hit == nil {
		return 0, false
	}

	// The tree only guarantees some nearest entry; collect every entry at that
	// distance to make the choice deterministic.
	r := hit.pos.Distance(pos) + 2*pointTolerance
	box, err := rtreego.NewRect(
		rtreego.Point{pos.X - r, pos.Y - r, pos.Z - r},
		[]float64{2 * r, 2 * r, 2 * r},
	)
	if err != nil {
		return hit.id, true
	}
	best, bestDist := hit.id, hit.pos.Distance(pos)
	for _, s := range si.tree.SearchIntersect(box) {
		e := s.(*spatialEntry)
		d := e.pos.Distance(pos)
		if d < bestDist-1e-12 || (d <= bestDist+1e-12 && e.id < best) {
			best, bestDist = e.id, d
		}
	}
	return best, true
}
