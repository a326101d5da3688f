// Package motion drives an agent toward target locations with a closed
// rotate/move feedback loop over a tick-based world.
package motion

import (
	"context"
	"strings"

	"voxelnav.ai/internal/geom"
)

// Observation is a single reading of the agent's state.
type Observation struct {
	Position           geom.Vec3 `json:"position"`
	OrientationForward geom.Vec3 `json:"orientation_forward"`
	OrientationUp      geom.Vec3 `json:"orientation_up"`
	Velocity           geom.Vec3 `json:"velocity"`
}

// Frame returns the orientation of the observed agent.
func (o Observation) Frame() geom.Frame {
	return geom.Frame{Forward: o.OrientationForward, Up: o.OrientationUp}
}

type RotationDirection string

const (
	RotateLeft  RotationDirection = "LEFT"
	RotateRight RotationDirection = "RIGHT"
)

func (d RotationDirection) Valid() bool { return d == RotateLeft || d == RotateRight }

type MovementType string

const (
	Walk   MovementType = "WALK"
	Run    MovementType = "RUN"
	Sprint MovementType = "SPRINT"
)

const (
	walkThreshold   = 0.4
	sprintThreshold = 1.6
)

// Speed is the analog stick magnitude the world uses for this movement type.
func (m MovementType) Speed() float64 {
	switch m {
	case Walk:
		return 0.2
	case Sprint:
		return 1.7
	default:
		return 1
	}
}

func (m MovementType) Valid() bool { return m == Walk || m == Run || m == Sprint }

// MovementTypeFromValue classifies a stick magnitude. The walk bound is exclusive
// and the sprint bound inclusive.
func MovementTypeFromValue(v float64) MovementType {
	switch {
	case v < walkThreshold:
		return Walk
	case v <= sprintThreshold:
		return Run
	default:
		return Sprint
	}
}

// ParseMovementType accepts the wire names case-insensitively. Empty means Run.
func ParseMovementType(s string) (MovementType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Run, true
	}
	m := MovementType(s)
	return m, m.Valid()
}

// World is the actuation and observation surface the controller needs.
// Rotate and Move are fire-and-forget: they return once the world accepted the command.
type World interface {
	ObserveAgent(ctx context.Context) (Observation, error)
	Rotate(ctx context.Context, dir RotationDirection, ticks int) error
	// Move walks forward along the agent's current heading.
	Move(ctx context.Context, movement MovementType, ticks int) error
}

// Stopper is implemented by worlds that can cancel commands still being executed.
type Stopper interface {
	Stop(ctx context.Context) error
}
