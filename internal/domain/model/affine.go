package model

import "math"

// Affine is a 2D affine transform. A point (x, y) maps to
//
//	x' = A*x + C*y + TX
//	y' = B*x + D*y + TY
type Affine struct {
	A, B, C, D float64
	TX, TY     float64
}

// Identity is the identity transform.
var Identity = Affine{A: 1, D: 1}

// Rotation returns a rotation about the origin by the given degrees.
// Multiples of 90 produce exact matrices.
func Rotation(degrees int) Affine {
	switch NormalizeRotation(degrees) {
	case 0:
		return Identity
	case 90:
		return Affine{A: 0, B: 1, C: -1, D: 0}
	case 180:
		return Affine{A: -1, B: 0, C: 0, D: -1}
	case 270:
		return Affine{A: 0, B: -1, C: 1, D: 0}
	}
	rad := float64(degrees) * math.Pi / 180
	sin, cos := math.Sincos(rad)
	return Affine{A: cos, B: sin, C: -sin, D: cos}
}

// Scale returns a uniform scale transform.
func Scale(s float64) Affine {
	return Affine{A: s, D: s}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) Affine {
	return Affine{A: 1, D: 1, TX: tx, TY: ty}
}

// Concat returns the transform that applies t first and then next.
func (t Affine) Concat(next Affine) Affine {
	return Affine{
		A:  next.A*t.A + next.C*t.B,
		B:  next.B*t.A + next.D*t.B,
		C:  next.A*t.C + next.C*t.D,
		D:  next.B*t.C + next.D*t.D,
		TX: next.A*t.TX + next.C*t.TY + next.TX,
		TY: next.B*t.TX + next.D*t.TY + next.TY,
	}
}

// Apply maps a point through the transform.
func (t Affine) Apply(x, y float64) (float64, float64) {
	return t.A*x + t.C*y + t.TX, t.B*x + t.D*y + t.TY
}

// Bounds returns the axis-aligned bounding box of the rectangle
// [0,w]×[0,h] after the transform.
func (t Affine) Bounds(w, h float64) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := t.Apply(p[0], p[1])
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	return minX, minY, maxX, maxY
}

// RotationDegrees returns the rotation encoded in the transform, snapped to
// the nearest multiple of 90 in [0, 360).
func (t Affine) RotationDegrees() int {
	deg := math.Atan2(t.B, t.A) * 180 / math.Pi
	return NormalizeRotation(int(math.Round(deg/90)) * 90)
}

// IsIdentity reports whether the transform is the identity.
func (t Affine) IsIdentity() bool {
	return t == Identity
}

// NormalizeRotation maps any angle in degrees into [0, 360).
func NormalizeRotation(degrees int) int {
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	return d
}

// PreferredTransform returns the display transform for a frame of raw size
// w×h carrying the given rotation metadata. The result maps the raw frame
// into the positive quadrant.
func PreferredTransform(rotation, w, h int) Affine {
	switch NormalizeRotation(rotation) {
	case 90:
		return Affine{A: 0, B: 1, C: -1, D: 0, TX: float64(h)}
	case 180:
		return Affine{A: -1, B: 0, C: 0, D: -1, TX: float64(w), TY: float64(h)}
	case 270:
		return Affine{A: 0, B: -1, C: 1, D: 0, TY: float64(w)}
	default:
		return Identity
	}
}
