package motion

import (
	"time"

	"voxelnav.ai/internal/geom"
)

// Trace event kinds.
const (
	TraceObserve = "OBSERVE"
	TraceRotate  = "ROTATE"
	TraceMove    = "MOVE"
	TraceArrive  = "ARRIVE"
	TraceStall   = "STALL"
	TraceTimeout = "TIMEOUT"
)

// TraceEvent records one step of the control loop.
type TraceEvent struct {
	Time     time.Time `json:"time"`
	RunID    string    `json:"run_id,omitempty"`
	Agent    string    `json:"agent,omitempty"`
	Kind     string    `json:"kind"`
	Pass     int       `json:"pass"`
	Waypoint int       `json:"waypoint"`

	Position geom.Vec3 `json:"position"`
	Target   geom.Vec3 `json:"target"`
	Distance float64   `json:"distance"`

	OrientationError float64           `json:"orientation_error,omitempty"`
	Direction        RotationDirection `json:"direction,omitempty"`
	Movement         MovementType      `json:"movement,omitempty"`
	Ticks            int               `json:"ticks,omitempty"`
}

type Tracer interface {
	Trace(ev TraceEvent)
}

type TracerFunc func(ev TraceEvent)

func (f TracerFunc) Trace(ev TraceEvent) { f(ev) }
