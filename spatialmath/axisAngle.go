package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// See here for a thorough explanation: https://en.wikipedia.org/wiki/Axis%E2%80%93angle_representation
// An orientation is expressed by an axis, a line from the origin to a point on the unit sphere
// represented by (rx, ry, rz), and a rotation around that axis, theta. These four numbers can be
// used as-is (R4), or converted to R3 where theta is multiplied into the axis components.

// ErrIdentityRotation is returned when decomposing a rotation that is exactly the identity; no
// unique axis exists in that case.
var ErrIdentityRotation = errors.New("identity rotation has no unique axis")

// piBranchTolerance is how small the skew-symmetric part may get before the axis is recovered
// from the diagonal instead.
const piBranchTolerance = 1e-6

// R4AA represents an R4 axis angle.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// NewR4AA creates a zero rotation about the z axis.
func NewR4AA() R4AA {
	return R4AA{Theta: 0, RX: 0, RY: 0, RZ: 1}
}

// Axis returns the (not necessarily unit) axis.
func (r4 R4AA) Axis() r3.Vector {
	return r3.Vector{X: r4.RX, Y: r4.RY, Z: r4.RZ}
}

// ToR3 converts an R4 angle axis to R3.
func (r4 R4AA) ToR3() r3.Vector {
	return r3.Vector{X: r4.RX * r4.Theta, Y: r4.RY * r4.Theta, Z: r4.RZ * r4.Theta}
}

// Vec4 returns the components in [axis_x, axis_y, axis_z, angle] order.
func (r4 R4AA) Vec4() [4]float64 {
	return [4]float64{r4.RX, r4.RY, r4.RZ, r4.Theta}
}

// R4AAFromVec4 is the inverse of Vec4.
func R4AAFromVec4(v [4]float64) R4AA {
	return R4AA{Theta: v[3], RX: v[0], RY: v[1], RZ: v[2]}
}

// Normalized returns a copy whose axis lies on the unit sphere. A zero axis is returned as is.
func (r4 R4AA) Normalized() R4AA {
	norm := r4.Axis().Norm()
	if norm == 0 {
		return r4
	}
	return R4AA{Theta: r4.Theta, RX: r4.RX / norm, RY: r4.RY / norm, RZ: r4.RZ / norm}
}

// RotationMatrix returns the rotation as a matrix, built through the unit quaternion. A zero axis
// or zero angle yields the identity.
func (r4 R4AA) RotationMatrix() RotationMatrix {
	rm, err := QuatToRotationMatrix(r4.ToQuat())
	if err != nil {
		return IdentityRotation()
	}
	return rm
}

// ToQuat converts an R4 axis angle to a unit quaternion. The axis is normalized first.
func (r4 R4AA) ToQuat() quat.Number {
	n := r4.Normalized()
	sinA := math.Sin(n.Theta / 2)
	return quat.Number{Real: math.Cos(n.Theta / 2), Imag: n.RX * sinA, Jmag: n.RY * sinA, Kmag: n.RZ * sinA}
}

// QuatToRotationMatrix scales q to unit length and converts it to a rotation matrix. A zero or
// non-finite quaternion is an error.
func QuatToRotationMatrix(q quat.Number) (RotationMatrix, error) {
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return RotationMatrix{}, errors.Errorf("cannot normalize quaternion %v", q)
	}
	q = quat.Scale(1/norm, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return RotationMatrix{[9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}}, nil
}

// DecomposeAxisAngle extracts the single-axis rotation equivalent to rm, with theta in [0, pi].
// When rm is exactly the identity a zero R4AA and ErrIdentityRotation are returned.
func DecomposeAxisAngle(rm RotationMatrix) (R4AA, error) {
	if rm.IsIdentity() {
		return R4AA{}, ErrIdentityRotation
	}
	skew := r3.Vector{
		X: rm.At(2, 1) - rm.At(1, 2),
		Y: rm.At(0, 2) - rm.At(2, 0),
		Z: rm.At(1, 0) - rm.At(0, 1),
	}
	twoSin := skew.Norm()
	twoCos := rm.Trace() - 1
	theta := math.Atan2(twoSin, twoCos)

	if twoSin > piBranchTolerance {
		axis := skew.Mul(1 / twoSin)
		return R4AA{Theta: theta, RX: axis.X, RY: axis.Y, RZ: axis.Z}, nil
	}
	if twoCos > 0 {
		// Not exactly identity but indistinguishable from it.
		return R4AA{Theta: 0, RX: 1, RY: 0, RZ: 0}, nil
	}

	// theta is pi: R = 2aa^T - I, so the axis comes from the diagonal.
	x := math.Sqrt(math.Max(0, (rm.At(0, 0)+1)/2))
	y := math.Sqrt(math.Max(0, (rm.At(1, 1)+1)/2))
	z := math.Sqrt(math.Max(0, (rm.At(2, 2)+1)/2))
	switch {
	case x >= y && x >= z:
		y = math.Copysign(y, rm.At(0, 1))
		z = math.Copysign(z, rm.At(0, 2))
	case y >= z:
		x = math.Copysign(x, rm.At(0, 1))
		z = math.Copysign(z, rm.At(1, 2))
	default:
		x = math.Copysign(x, rm.At(0, 2))
		y = math.Copysign(y, rm.At(1, 2))
	}
	return R4AA{Theta: math.Pi, RX: x, RY: y, RZ: z}.Normalized(), nil
}
