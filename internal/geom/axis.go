package geom

import (
	"fmt"
	"math"
)

// Component names one coordinate of a vector.
type Component int

const (
	CompX Component = iota
	CompY
	CompZ
)

// AxisDirection is one of the six axis-aligned unit directions of a structure's local grid.
// Names follow the game's grid convention: Forward is -Z and Backward is +Z.
type AxisDirection int

const (
	Up AxisDirection = iota
	Down
	Left
	Right
	Forward
	Backward
)

var axisNames = [...]string{
	Up:       "UP",
	Down:     "DOWN",
	Left:     "LEFT",
	Right:    "RIGHT",
	Forward:  "FORWARD",
	Backward: "BACKWARD",
}

var axisVectors = [...]Vec3i{
	Up:       {Y: 1},
	Down:     {Y: -1},
	Left:     {X: -1},
	Right:    {X: 1},
	Forward:  {Z: -1},
	Backward: {Z: 1},
}

func (a AxisDirection) String() string {
	if a < Up || a > Backward {
		return "UNKNOWN"
	}
	return axisNames[a]
}

// Vec3i returns the unit grid offset of a.
func (a AxisDirection) Vec3i() Vec3i { return axisVectors[a] }

// Vec3 returns the unit vector of a.
func (a AxisDirection) Vec3() Vec3 { return axisVectors[a].Vec3() }

// Component returns the coordinate a runs along.
func (a AxisDirection) Component() Component {
	switch a {
	case Left, Right:
		return CompX
	case Up, Down:
		return CompY
	default:
		return CompZ
	}
}

// Opposite returns the direction pointing the other way.
func (a AxisDirection) Opposite() AxisDirection {
	switch a {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	case Forward:
		return Backward
	default:
		return Forward
	}
}

// HorizontalAxes returns the two components orthogonal to a, in ascending order.
func (a AxisDirection) HorizontalAxes() (Component, Component) {
	switch a.Component() {
	case CompX:
		return CompY, CompZ
	case CompY:
		return CompX, CompZ
	default:
		return CompX, CompY
	}
}

// ParseAxis maps a name produced by String back to its direction.
func ParseAxis(s string) (AxisDirection, bool) {
	for i, n := range axisNames {
		if n == s {
			return AxisDirection(i), true
		}
	}
	return Up, false
}

// ResolveAxis snaps a noisy direction to the closest axis-aligned direction.
//
// The component with the greatest magnitude wins and its sign picks the direction.
// Exact ties prefer y, then x, then z. The zero vector resolves to Up.
func ResolveAxis(v Vec3) AxisDirection {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	switch {
	case ay >= ax && ay >= az:
		if v.Y < 0 {
			return Down
		}
		return Up
	case ax >= az:
		if v.X < 0 {
			return Left
		}
		return Right
	default:
		if v.Z < 0 {
			return Forward
		}
		return Backward
	}
}

func (a AxisDirection) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AxisDirection) UnmarshalText(b []byte) error {
	v, ok := ParseAxis(string(b))
	if !ok {
		return fmt.Errorf("unknown axis direction %q", string(b))
	}
	*a = v
	return nil
}
