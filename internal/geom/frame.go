package geom

import "math"

// Frame is an orientation given by its forward and up vectors.
type Frame struct {
	Forward Vec3
	Up      Vec3
}

// Right is Forward x Up, matching the game's rotation matrix.
func (f Frame) Right() Vec3 { return f.Forward.Cross(f.Up).Normalize() }

func (f Frame) Left() Vec3 { return f.Right().Neg() }

// UnitDistance is the Euclidean distance between the unit vectors of a and b.
//
// It is computed from the clamped dot product so the result stays inside [0, 2]
// even when rounding would push |a-b| a hair above 2.
func UnitDistance(a, b Vec3) float64 {
	d := a.Normalize().Dot(b.Normalize())
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Sqrt(2 - 2*d)
}

// RotateAround rotates v by angle radians around the unit axis n (Rodrigues).
func RotateAround(v, n Vec3, angle float64) Vec3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return v.Scale(c).
		Add(n.Cross(v).Scale(s)).
		Add(n.Scale(n.Dot(v) * (1 - c)))
}
