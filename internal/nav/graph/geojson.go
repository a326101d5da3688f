package graph

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"voxelnav.ai/internal/geom"
)

// project drops the up component of v.
func project(up geom.AxisDirection, v geom.Vec3) orb.Point {
	a, b := up.HorizontalAxes()
	return orb.Point{v.Component(a), v.Component(b)}
}

// GeoJSON renders the graph as a flat map seen from above: nodes are points,
// edges are two-point line strings.
func (g *NavGraph) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range g.Nodes {
		f := geojson.NewFeature(project(g.Up, n.Position))
		f.Properties["kind"] = "node"
		f.Properties["id"] = int(n.ID)
		f.Properties["cell"] = n.Cell.String()
		fc.Append(f)
	}
	for _, e := range g.Edges {
		pa, _ := g.Position(e.A)
		pb, _ := g.Position(e.B)
		f := geojson.NewFeature(orb.LineString{project(g.Up, pa), project(g.Up, pb)})
		f.Properties["kind"] = "edge"
		f.Properties["id"] = int(e.ID)
		f.Properties["a"] = int(e.A)
		f.Properties["b"] = int(e.B)
		fc.Append(f)
	}
	return fc
}

// PathLineString projects a node path onto the horizontal plane.
func (g *NavGraph) PathLineString(path []NodeID) orb.LineString {
	ls := make(orb.LineString, 0, len(path))
	for _, id := range path {
		if p, ok := g.Position(id); ok {
			ls = append(ls, project(g.Up, p))
		}
	}
	return ls
}

// HorizontalLength is the length of path measured in the horizontal plane.
func (g *NavGraph) HorizontalLength(path []NodeID) float64 {
	return planar.Length(g.PathLineString(path))
}
