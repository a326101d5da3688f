package world

import (
	"fmt"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/persistence/snapshot"
)

// ExportSnapshot captures structures and agent poses at the current tick.
func (w *World) ExportSnapshot(scenario string) snapshot.WorldV1 {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := snapshot.WorldV1{
		Header: snapshot.Header{
			Version:  snapshot.Version,
			Scenario: scenario,
			Tick:     w.tick.Load(),
		},
		TickRate:     w.cfg.TickRateHz,
		YawPerTick:   w.cfg.YawPerTick,
		SpeedPerTick: w.cfg.SpeedPerTick,
	}
	for _, id := range w.structureIDsLocked() {
		s := w.structures[id]
		s.Blocks = append([]graph.Block(nil), s.Blocks...)
		snap.Structures = append(snap.Structures, s)
	}
	for _, id := range w.agentOrder {
		a := w.agents[id]
		snap.Agents = append(snap.Agents, snapshot.AgentV1{ID: a.id, Position: a.pos, Forward: a.forward, Up: a.up})
	}
	return snap
}

// ImportSnapshot replaces the world's structures, agents and tick. It fails while
// any agent is claimed.
func (w *World) ImportSnapshot(snap snapshot.WorldV1) error {
	agents := make(map[string]*agent, len(snap.Agents))
	order := make([]string, 0, len(snap.Agents))
	for _, a := range snap.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: empty agent id", ErrBadCommand)
		}
		if _, dup := agents[a.ID]; dup {
			return fmt.Errorf("%w: duplicate agent %s", ErrBadCommand, a.ID)
		}
		up := a.Up.Normalize()
		if up.LengthSquared() == 0 {
			up = geom.Up.Vec3()
		}
		fwd := a.Forward.Reject(up).Normalize()
		if fwd.LengthSquared() == 0 {
			return fmt.Errorf("%w: agent %s forward parallel to up", ErrBadCommand, a.ID)
		}
		agents[a.ID] = &agent{id: a.ID, pos: a.Position, forward: fwd, up: up}
		order = append(order, a.ID)
	}
	structures := make(map[string]graph.Snapshot, len(snap.Structures))
	for _, s := range snap.Structures {
		structures[s.ID] = s
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, a := range w.agents {
		if a.claimed {
			return fmt.Errorf("%w: %s", ErrAgentClaimed, id)
		}
	}
	w.agents, w.agentOrder, w.structures = agents, order, structures
	w.tick.Store(snap.Header.Tick)
	w.log.Printf("imported snapshot scenario=%s tick=%d agents=%d structures=%d",
		snap.Header.Scenario, snap.Header.Tick, len(order), len(structures))
	return nil
}
