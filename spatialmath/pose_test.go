package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// represent a 45 degree rotation around the x axis
var (
	th    = math.Pi / 4.
	aa45x = R4AA{th, 1., 0., 0.}
)

func randomishPose(t *testing.T) Pose {
	t.Helper()
	p, err := NewPoseFromAxisAngle(412.5, -120, 833.25, 0.3, -0.8, 0.52, 71)
	test.That(t, err, test.ShouldBeNil)
	return p
}

func TestRotationInverse(t *testing.T) {
	rm := aa45x.RotationMatrix()
	inv, err := rm.Inverse()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, inv.AlmostEqual(rm.Transpose(), 1e-12), test.ShouldBeTrue)
	test.That(t, rm.Mul(inv).AlmostEqual(IdentityRotation(), 1e-12), test.ShouldBeTrue)

	singular, err := NewRotationMatrix([]float64{1, 0, 0, 0, 0, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	_, err = singular.Inverse()
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewRotationMatrix([]float64{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecomposeAxisAngle(t *testing.T) {
	aa, err := DecomposeAxisAngle(aa45x.RotationMatrix())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, aa.Theta, test.ShouldAlmostEqual, th)
	test.That(t, aa.RX, test.ShouldAlmostEqual, 1)
	test.That(t, aa.RY, test.ShouldAlmostEqual, 0)
	test.That(t, aa.RZ, test.ShouldAlmostEqual, 0)

	skewed := R4AA{Theta: 2.1, RX: 1, RY: -2, RZ: 0.5}
	aa, err = DecomposeAxisAngle(skewed.RotationMatrix())
	test.That(t, err, test.ShouldBeNil)
	want := skewed.Normalized()
	test.That(t, aa.Theta, test.ShouldAlmostEqual, want.Theta)
	test.That(t, aa.RX, test.ShouldAlmostEqual, want.RX)
	test.That(t, aa.RY, test.ShouldAlmostEqual, want.RY)
	test.That(t, aa.RZ, test.ShouldAlmostEqual, want.RZ)

	// identity has no axis
	aa, err = DecomposeAxisAngle(IdentityRotation())
	test.That(t, err, test.ShouldEqual, ErrIdentityRotation)
	test.That(t, aa, test.ShouldResemble, R4AA{})
}

func TestDecomposeHalfTurn(t *testing.T) {
	for _, axis := range []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}, {X: 1, Y: 1}, {X: -1, Y: 0, Z: 1}} {
		in := R4AA{Theta: math.Pi, RX: axis.X, RY: axis.Y, RZ: axis.Z}
		aa, err := DecomposeAxisAngle(in.RotationMatrix())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, aa.Theta, test.ShouldAlmostEqual, math.Pi)
		// The axis of a half turn is only defined up to sign; the rotation must round trip.
		test.That(t, aa.RotationMatrix().AlmostEqual(in.RotationMatrix(), 1e-9), test.ShouldBeTrue)
	}
}

func TestQuaternionRotation(t *testing.T) {
	q := aa45x.ToQuat()
	test.That(t, q.Real, test.ShouldAlmostEqual, math.Cos(th/2))
	test.That(t, q.Imag, test.ShouldAlmostEqual, math.Sin(th/2))

	c, s := math.Cos(th), math.Sin(th)
	want, err := NewRotationMatrix([]float64{1, 0, 0, 0, c, -s, 0, s, c})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, aa45x.RotationMatrix().AlmostEqual(want, 1e-12), test.ShouldBeTrue)

	// goal input is not required to be a unit quaternion
	scaled, err := QuatToRotationMatrix(quat.Scale(3, q))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scaled.AlmostEqual(want, 1e-12), test.ShouldBeTrue)

	_, err = QuatToRotationMatrix(quat.Number{})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = QuatToRotationMatrix(quat.Number{Real: math.NaN()})
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, R4AA{Theta: 1.2}.RotationMatrix().IsIdentity(), test.ShouldBeTrue)
	test.That(t, R4AA{RZ: 1}.RotationMatrix().IsIdentity(), test.ShouldBeTrue)
}

func TestPoseMatrix(t *testing.T) {
	p := randomishPose(t)
	m := p.Matrix()
	test.That(t, m.At(3, 3), test.ShouldEqual, 1.)
	test.That(t, m.At(3, 0), test.ShouldEqual, 0.)
	test.That(t, m.At(0, 3), test.ShouldEqual, 412.5)

	back, err := NewPoseFromMatrix(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, p)

	_, err = NewPoseFromMatrix(mat.NewDense(3, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)
	bad := mat.DenseCopyOf(m)
	bad.Set(3, 1, 0.5)
	_, err = NewPoseFromMatrix(bad)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewPoseFromAxisAngle(0, 0, 0, 0, 0, 0, 10)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCompose(t *testing.T) {
	a := NewPose(r3.Vector{X: 100}, R4AA{Theta: math.Pi / 2, RZ: 1}.RotationMatrix())
	b := NewPoseFromPoint(r3.Vector{X: 10})
	c := Compose(a, b)
	test.That(t, c.Point().X, test.ShouldAlmostEqual, 100)
	test.That(t, c.Point().Y, test.ShouldAlmostEqual, 10)
}

func TestPoseErrorRoundTrip(t *testing.T) {
	for _, p := range []Pose{NewZeroPose(), randomishPose(t), NewPose(r3.Vector{Z: -5}, aa45x.RotationMatrix())} {
		ce := PoseError(p, p)
		for _, v := range ce {
			test.That(t, math.Abs(v), test.ShouldBeLessThan, 1e-9)
		}
	}
}

func TestPoseErrorIdentityRotation(t *testing.T) {
	goal := NewPoseFromPoint(r3.Vector{X: 300, Y: -20, Z: 7})
	actual := NewPoseFromPoint(r3.Vector{X: 10, Y: 5, Z: 1})
	ce, identity := PoseErrorDetailed(goal, actual)
	test.That(t, identity, test.ShouldBeTrue)
	// translation is actual - goal
	test.That(t, ce, test.ShouldResemble, CartesianError{-290, 25, -6, 0, 0, 0})
}

func TestPoseErrorRotation(t *testing.T) {
	actual := NewZeroPose()
	goal := NewPose(r3.Vector{}, aa45x.RotationMatrix())
	ce, identity := PoseErrorDetailed(goal, actual)
	test.That(t, identity, test.ShouldBeFalse)
	test.That(t, ce[3], test.ShouldAlmostEqual, 45)
	test.That(t, ce[4], test.ShouldAlmostEqual, 0)
	test.That(t, ce[5], test.ShouldAlmostEqual, 0)
	test.That(t, ce.Rotation().Norm(), test.ShouldAlmostEqual, 45)

	// the relative rotation is expressed in the actual frame
	actual = NewPose(r3.Vector{}, R4AA{Theta: math.Pi / 2, RZ: 1}.RotationMatrix())
	goal = NewPose(r3.Vector{}, actual.Rotation().Mul(aa45x.RotationMatrix()))
	ce = PoseError(goal, actual)
	test.That(t, ce[3], test.ShouldAlmostEqual, 45)
	test.That(t, ce[4], test.ShouldAlmostEqual, 0)
}

func TestVectorMagnitude(t *testing.T) {
	test.That(t, VectorMagnitude([]float64{3, 4}), test.ShouldAlmostEqual, 5)
	test.That(t, VectorMagnitude(nil), test.ShouldEqual, 0.)
	test.That(t, VectorMagnitude(CartesianError{1, 2, 2, 0, 0, 0}.Slice()), test.ShouldAlmostEqual, 3)
}
