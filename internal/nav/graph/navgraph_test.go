package graph

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelnav.ai/internal/geom"
)

func TestFreeze(t *testing.T) {
	t.Run("rectangles keep counts", func(t *testing.T) {
		for _, dim := range [][2]int{{1, 5}, {4, 7}} {
			mg := Build(floor(dim[0], dim[1]), geom.Up, Placement{})
			ng := Freeze(mg)

			assert.Equal(t, mg.Len(), ng.Len())
			assert.Equal(t, edgeCount(mg), len(ng.Edges))
			require.NoError(t, ng.Validate())
		}
	})

	t.Run("holes and obstacles keep counts", func(t *testing.T) {
		mg := Build(nontrivialGrid(), geom.Up, Placement{})
		ng := Freeze(mg)

		assert.Equal(t, mg.Len(), ng.Len())
		assert.Equal(t, mg.DegreeSum()/2, len(ng.Edges))
	})

	t.Run("edges are ordered and unique", func(t *testing.T) {
		ng := Freeze(Build(floor(3, 3), geom.Up, Placement{}))
		for i, e := range ng.Edges {
			assert.Equal(t, EdgeID(i), e.ID)
			assert.Less(t, e.A, e.B)
			if i > 0 {
				p := ng.Edges[i-1]
				assert.True(t, p.A < e.A || (p.A == e.A && p.B < e.B))
			}
		}
	})

	t.Run("neighbors match mutable graph", func(t *testing.T) {
		mg := Build(nontrivialGrid(), geom.Up, Placement{})
		ng := Freeze(mg)
		for _, n := range mg.Nodes() {
			want := mg.Neighbours(n.ID)
			got := ng.Neighbors(n.ID)
			if len(want) == 0 {
				assert.Empty(t, got)
				continue
			}
			assert.Equal(t, want, got)
		}
	})
}

func TestNavGraphJSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		ng := Freeze(Build(floor(3, 4), geom.Up, Placement{CellSize: 2}))
		ng.StructureID = "maze"

		b, err := json.Marshal(ng)
		require.NoError(t, err)

		var got NavGraph
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, "maze", got.StructureID)
		assert.Equal(t, geom.Up, got.Up)
		assert.Equal(t, ng.Nodes, got.Nodes)
		assert.Equal(t, ng.Edges, got.Edges)
		assert.Equal(t, ng.Neighbors(4), got.Neighbors(4))
	})

	t.Run("rejects dangling edge", func(t *testing.T) {
		raw := `{"up":"UP","nodes":[{"id":0,"cell":{"x":0,"y":0,"z":0},"position":{"x":0,"y":0,"z":0}}],
			"edges":[{"id":0,"a":0,"b":7}]}`
		var g NavGraph
		err := json.Unmarshal([]byte(raw), &g)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownNode)
	})

	t.Run("rejects self loop and duplicates", func(t *testing.T) {
		nodes := []Node{{ID: 0}, {ID: 1}}
		g := &NavGraph{Nodes: nodes, Edges: []Edge{{ID: 0, A: 1, B: 1}}}
		assert.Error(t, g.Validate())

		g = &NavGraph{Nodes: nodes, Edges: []Edge{{ID: 0, A: 0, B: 1}, {ID: 1, A: 1, B: 0}}}
		assert.Error(t, g.Validate())
	})
}

func TestSpatialIndex(t *testing.T) {
	ng := Freeze(Build(floor(4, 4), geom.Up, Placement{}))
	si := NewSpatialIndex(ng)
	require.Equal(t, 16, si.Len())

	t.Run("exact position", func(t *testing.T) {
		want, ok := ng.NodeAtCell(geom.Vec3i{X: 3, Z: 2})
		require.True(t, ok)
		got, ok := si.Nearest(geom.Vec3{X: 3, Z: 2})
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("above the floor", func(t *testing.T) {
		want, _ := ng.NodeAtCell(geom.Vec3i{X: 4, Z: 4})
		got, ok := si.Nearest(geom.Vec3{X: 4.3, Y: 1.8, Z: 3.9})
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("ties go to the lower id", func(t *testing.T) {
		a, _ := ng.NodeAtCell(geom.Vec3i{X: 1, Z: 1})
		b, _ := ng.NodeAtCell(geom.Vec3i{X: 2, Z: 1})
		got, ok := si.Nearest(geom.Vec3{X: 1.5, Z: 1})
		require.True(t, ok)
		assert.Equal(t, min(a, b), got)
	})

	t.Run("empty graph", func(t *testing.T) {
		empty := NewSpatialIndex(Freeze(Build(CellSet{}, geom.Up, Placement{})))
		_, ok := empty.Nearest(geom.Vec3{})
		assert.False(t, ok)
	})
}

func TestGeoJSON(t *testing.T) {
	ng := Freeze(Build(floor(2, 3), geom.Up, Placement{}))
	fc := ng.GeoJSON()

	require.Len(t, fc.Features, ng.Len()+len(ng.Edges))
	nodes, edges := 0, 0
	for _, f := range fc.Features {
		switch f.Properties["kind"] {
		case "node":
			nodes++
			assert.Equal(t, "Point", f.Geometry.GeoJSONType())
		case "edge":
			edges++
			assert.Equal(t, "LineString", f.Geometry.GeoJSONType())
		}
	}
	assert.Equal(t, ng.Len(), nodes)
	assert.Equal(t, len(ng.Edges), edges)

	b, err := fc.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"FeatureCollection"`)
}

func TestHorizontalLength(t *testing.T) {
	ng := Freeze(Build(floor(3, 3), geom.Up, Placement{Origin: geom.Vec3{Y: 7}, CellSize: 2}))
	a, _ := ng.NodeAtCell(geom.Vec3i{X: 1, Z: 1})
	b, _ := ng.NodeAtCell(geom.Vec3i{X: 2, Z: 1})
	c, _ := ng.NodeAtCell(geom.Vec3i{X: 2, Z: 2})

	got := ng.HorizontalLength([]NodeID{a, b, c})
	assert.InDelta(t, 4, got, 1e-9)
	assert.Zero(t, ng.HorizontalLength(nil))
	assert.False(t, math.IsNaN(ng.HorizontalLength([]NodeID{a})))
}
