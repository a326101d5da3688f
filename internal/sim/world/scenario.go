package world

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/graph"
)

// Scenario describes the structures and agents a simulated world starts with.
type Scenario struct {
	Name       string          `yaml:"name"`
	World      Config          `yaml:"world"`
	Structures []StructureSpec `yaml:"structures"`
	Agents     []AgentSpec     `yaml:"agents"`
}

// StructureSpec builds a structure from inclusive boxes of cells. Holes are carved
// after floors and walls are laid; Blocks are added last and may carry names.
type StructureSpec struct {
	ID       string        `yaml:"id"`
	Origin   geom.Vec3     `yaml:"origin"`
	CellSize float64       `yaml:"cell_size"`
	UpHint   geom.Vec3     `yaml:"up_hint"`
	Floors   []Box         `yaml:"floors"`
	Walls    []Box         `yaml:"walls"`
	Holes    []Box         `yaml:"holes"`
	Blocks   []graph.Block `yaml:"blocks"`
}

type Box struct {
	Min geom.Vec3i `yaml:"min"`
	Max geom.Vec3i `yaml:"max"`
}

func (b Box) each(fn func(c geom.Vec3i)) {
	for x := b.Min.X; x <= b.Max.X; x++ {
		for y := b.Min.Y; y <= b.Max.Y; y++ {
			for z := b.Min.Z; z <= b.Max.Z; z++ {
				fn(geom.Vec3i{X: x, Y: y, Z: z})
			}
		}
	}
}

// AgentSpec places an agent either on a structure cell or at a raw position.
type AgentSpec struct {
	ID        string      `yaml:"id"`
	Structure string      `yaml:"structure,omitempty"`
	Cell      *geom.Vec3i `yaml:"cell,omitempty"`
	Position  geom.Vec3   `yaml:"position,omitempty"`
	Forward   geom.Vec3   `yaml:"forward,omitempty"`
	// Height above the cell along the structure's up axis.
	Height float64 `yaml:"height,omitempty"`
}

func LoadScenario(path string) (Scenario, error) {
	var s Scenario
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

func (s Scenario) Validate() error {
	seen := map[string]bool{}
	for _, st := range s.Structures {
		if strings.TrimSpace(st.ID) == "" {
			return fmt.Errorf("structure id must not be empty")
		}
		if seen[st.ID] {
			return fmt.Errorf("duplicate structure id: %s", st.ID)
		}
		seen[st.ID] = true
		if st.CellSize < 0 {
			return fmt.Errorf("structure %s cell_size must be >= 0", st.ID)
		}
	}
	agents := map[string]bool{}
	for _, a := range s.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("agent id must not be empty")
		}
		if agents[a.ID] {
			return fmt.Errorf("duplicate agent id: %s", a.ID)
		}
		agents[a.ID] = true
		if a.Cell != nil && !seen[a.Structure] {
			return fmt.Errorf("agent %s placed on unknown structure %q", a.ID, a.Structure)
		}
	}
	return nil
}

// Snapshot materializes the structure.
func (st StructureSpec) Snapshot() graph.Snapshot {
	cells := graph.CellSet{}
	for _, f := range append(append([]Box(nil), st.Floors...), st.Walls...) {
		f.each(func(c geom.Vec3i) { cells[c] = struct{}{} })
	}
	for _, h := range st.Holes {
		h.each(func(c geom.Vec3i) { delete(cells, c) })
	}
	names := map[geom.Vec3i]string{}
	for _, b := range st.Blocks {
		cells[b.Cell] = struct{}{}
		if b.Name != "" {
			names[b.Cell] = b.Name
		}
	}
	snap := graph.Snapshot{ID: st.ID, Origin: st.Origin, CellSize: st.CellSize, UpHint: st.UpHint}
	snap.Blocks = make([]graph.Block, 0, len(cells))
	for _, c := range cells.Sorted() {
		snap.Blocks = append(snap.Blocks, graph.Block{Cell: c, Name: names[c]})
	}
	return snap
}

func (st StructureSpec) up() geom.AxisDirection {
	if st.UpHint.LengthSquared() == 0 {
		return geom.Up
	}
	return geom.ResolveAxis(st.UpHint)
}

// Build creates a world populated with the scenario's structures and agents.
func (s Scenario) Build(logger *log.Logger) (*World, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	w := New(s.World, logger)
	specs := map[string]StructureSpec{}
	for _, st := range s.Structures {
		w.AddStructure(st.Snapshot())
		specs[st.ID] = st
	}
	for _, a := range s.Agents {
		up := geom.Up.Vec3()
		pos := a.Position
		if a.Cell != nil {
			st := specs[a.Structure]
			up = st.up().Vec3()
			h := a.Height
			if h == 0 {
				h = 1
			}
			place := graph.Placement{Origin: st.Origin, CellSize: st.CellSize}
			pos = place.Position(*a.Cell).Add(up.Scale(h))
		}
		fwd := a.Forward
		if fwd.LengthSquared() == 0 {
			fwd = geom.Forward.Vec3()
			if fwd.Reject(up).LengthSquared() == 0 {
				fwd = geom.Right.Vec3()
			}
		}
		if err := w.AddAgent(a.ID, pos, fwd, up); err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.ID, err)
		}
	}
	return w, nil
}
