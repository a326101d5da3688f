package geom

import (
	"math"
	"testing"
)

func TestResolveAxisNoisyGravity(t *testing.T) {
	cases := []struct {
		in   Vec3
		want AxisDirection
	}{
		{Vec3{1.012e-06, 5.182e-05, 0.999}, Backward},
		{Vec3{-1.012e-06, -5.182e-05, -0.999}, Forward},
		{Vec3{-0.2, 0.7, 0.1}, Up},
		{Vec3{-10.2, 5.7, 0}, Left},
		{Vec3{3, -0.1, 2.9}, Right},
		{Vec3{0.1, -4, 0}, Down},
	}
	for _, tc := range cases {
		if got := ResolveAxis(tc.in); got != tc.want {
			t.Fatalf("ResolveAxis(%v)=%s want %s", tc.in, got, tc.want)
		}
	}
}

func TestResolveAxisScaleInvariant(t *testing.T) {
	vs := []Vec3{
		{0.3, -0.9, 0.2},
		{-7, 1, 6.5},
		{0.001, 0.0005, -0.002},
	}
	for _, v := range vs {
		want := ResolveAxis(v)
		for _, k := range []float64{0.01, 1, 3.5, 1e6} {
			if got := ResolveAxis(v.Scale(k)); got != want {
				t.Fatalf("ResolveAxis(%v*%v)=%s want %s", v, k, got, want)
			}
		}
	}
}

func TestResolveAxisTiePriority(t *testing.T) {
	if got := ResolveAxis(Vec3{1, 1, 1}); got != Up {
		t.Fatalf("xyz tie: got %s", got)
	}
	if got := ResolveAxis(Vec3{-2, 0, 2}); got != Left {
		t.Fatalf("xz tie: got %s", got)
	}
	if got := ResolveAxis(Vec3{}); got != Up {
		t.Fatalf("zero vector: got %s", got)
	}
}

func TestAxisRoundTrip(t *testing.T) {
	for a := Up; a <= Backward; a++ {
		got, ok := ParseAxis(a.String())
		if !ok || got != a {
			t.Fatalf("ParseAxis(%q)=%v,%v", a.String(), got, ok)
		}
		if ResolveAxis(a.Vec3()) != a {
			t.Fatalf("ResolveAxis(%v) != %s", a.Vec3(), a)
		}
		if a.Opposite().Opposite() != a {
			t.Fatalf("opposite of opposite of %s", a)
		}
	}
}

func TestFrameRightLeft(t *testing.T) {
	f := Frame{Forward: Vec3{Z: -1}, Up: Vec3{Y: 1}}
	if r := f.Right(); r.Distance(Vec3{X: 1}) > 1e-12 {
		t.Fatalf("right=%v", r)
	}
	if l := f.Left(); l.Distance(Vec3{X: -1}) > 1e-12 {
		t.Fatalf("left=%v", l)
	}
}

func TestUnitDistanceBounds(t *testing.T) {
	a := Vec3{X: 1}
	if d := UnitDistance(a, a.Neg()); d != 2 {
		t.Fatalf("opposite distance=%v", d)
	}
	if d := UnitDistance(a, Vec3{X: 5}); d != 0 {
		t.Fatalf("same direction distance=%v", d)
	}
	if d := UnitDistance(a, Vec3{Y: 1}); math.Abs(d-math.Sqrt2) > 1e-12 {
		t.Fatalf("orthogonal distance=%v", d)
	}
}

func TestRotateAround(t *testing.T) {
	v := RotateAround(Vec3{Z: -1}, Vec3{Y: 1}, math.Pi/2)
	if v.Distance(Vec3{X: -1}) > 1e-12 {
		t.Fatalf("rotated=%v", v)
	}
}
