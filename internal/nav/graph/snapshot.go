package graph

import (
	"errors"
	"math"
	"sort"

	"voxelnav.ai/internal/geom"
)

// ErrStructureNotFound is returned by worlds asked for a structure they do not have.
var ErrStructureNotFound = errors.New("structure not found")

// Block is one occupied cell of a structure.
type Block struct {
	Cell geom.Vec3i `json:"cell" yaml:"cell"`
	Name string     `json:"name,omitempty" yaml:"name,omitempty"`
}

// Snapshot is a point-in-time observation of one connected structure.
type Snapshot struct {
	ID       string    `json:"id" yaml:"id"`
	Origin   geom.Vec3 `json:"origin" yaml:"origin"`
	CellSize float64   `json:"cell_size,omitempty" yaml:"cell_size,omitempty"`
	UpHint   geom.Vec3 `json:"up_hint" yaml:"up_hint"`
	Blocks   []Block   `json:"blocks" yaml:"blocks"`
}

// Cells returns the set of occupied cells.
func (s Snapshot) Cells() CellSet {
	cs := make(CellSet, len(s.Blocks))
	for _, b := range s.Blocks {
		cs[b.Cell] = struct{}{}
	}
	return cs
}

func (s Snapshot) Placement() Placement {
	return Placement{Origin: s.Origin, CellSize: s.CellSize}
}

// FindBlock returns the first block carrying the given name.
func (s Snapshot) FindBlock(name string) (Block, bool) {
	if name == "" {
		return Block{}, false
	}
	for _, b := range s.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// CellSet is a set of grid cells.
type CellSet map[geom.Vec3i]struct{}

func NewCellSet(cells ...geom.Vec3i) CellSet {
	cs := make(CellSet, len(cells))
	for _, c := range cells {
		cs[c] = struct{}{}
	}
	return cs
}

func (cs CellSet) Has(c geom.Vec3i) bool {
	_, ok := cs[c]
	return ok
}

// Sorted returns the cells in ascending (x, y, z) order.
func (cs CellSet) Sorted() []geom.Vec3i {
	out := make([]geom.Vec3i, 0, len(cs))
	for c := range cs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Placement maps local grid cells to world space.
type Placement struct {
	Origin   geom.Vec3
	CellSize float64
}

func (p Placement) size() float64 {
	if p.CellSize <= 0 {
		return 1
	}
	return p.CellSize
}

func (p Placement) Position(c geom.Vec3i) geom.Vec3 {
	return p.Origin.Add(c.Vec3().Scale(p.size()))
}

// CellAt returns the cell whose world position is closest to pos.
func (p Placement) CellAt(pos geom.Vec3) geom.Vec3i {
	s := p.size()
	d := pos.Sub(p.Origin)
	return geom.Vec3i{
		X: int(math.Round(d.X / s)),
		Y: int(math.Round(d.Y / s)),
		Z: int(math.Round(d.Z / s)),
	}
}
