package world

import (
	"context"

	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
)

// Handle drives one agent of an in-process world through the same surface a
// remote client offers.
type Handle struct {
	w  *World
	id string
}

func (w *World) Handle(agentID string) *Handle { return &Handle{w: w, id: agentID} }

func (h *Handle) AgentID() string { return h.id }

func (h *Handle) ObserveAgent(ctx context.Context) (motion.Observation, error) {
	if err := ctx.Err(); err != nil {
		return motion.Observation{}, err
	}
	return h.w.ObserveAgent(h.id)
}

func (h *Handle) ObserveStructure(ctx context.Context, id string) (graph.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return graph.Snapshot{}, err
	}
	return h.w.ObserveStructure(id)
}

func (h *Handle) Rotate(ctx context.Context, dir motion.RotationDirection, ticks int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.w.Rotate(h.id, dir, ticks)
}

func (h *Handle) Move(ctx context.Context, m motion.MovementType, ticks int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.w.Move(h.id, m, ticks)
}

func (h *Handle) Stop(ctx context.Context) error {
	return h.w.Stop(h.id)
}
