package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/armctl/utils"
)

// CartesianError is the 6-D pose error: translation (actual - goal, mm) followed by the relative
// rotation as axis*angle in degrees.
type CartesianError [6]float64

// Translation returns the first three components.
func (ce CartesianError) Translation() r3.Vector {
	return r3.Vector{X: ce[0], Y: ce[1], Z: ce[2]}
}

// Rotation returns the last three components.
func (ce CartesianError) Rotation() r3.Vector {
	return r3.Vector{X: ce[3], Y: ce[4], Z: ce[5]}
}

// Slice returns a copy as a slice.
func (ce CartesianError) Slice() []float64 {
	out := make([]float64, 6)
	copy(out, ce[:])
	return out
}

// RelativeRotation returns inverse(actual.rotation) * goal.rotation. If the general inverse fails
// the transpose is used, which is exact for an orthonormal block.
func RelativeRotation(goal, actual Pose) RotationMatrix {
	inv, err := actual.rot.Inverse()
	if err != nil {
		inv = actual.rot.Transpose()
	}
	return inv.Mul(goal.rot)
}

// ErrorPose embeds the translation difference (actual - goal) into the relative rotation.
func ErrorPose(goal, actual Pose) Pose {
	return Pose{rot: RelativeRotation(goal, actual), pt: actual.pt.Sub(goal.pt)}
}

// PoseError computes the Cartesian error between goal and actual.
func PoseError(goal, actual Pose) CartesianError {
	ce, _ := PoseErrorDetailed(goal, actual)
	return ce
}

// PoseErrorDetailed is PoseError that also reports whether the relative rotation was exactly the
// identity, in which case the rotational components were zeroed.
func PoseErrorDetailed(goal, actual Pose) (CartesianError, bool) {
	var ce CartesianError
	ce[0] = actual.pt.X - goal.pt.X
	ce[1] = actual.pt.Y - goal.pt.Y
	ce[2] = actual.pt.Z - goal.pt.Z

	aa, err := DecomposeAxisAngle(RelativeRotation(goal, actual))
	if err != nil {
		return ce, true
	}
	thetaDeg := utils.RadToDeg(aa.Theta)
	ce[3] = aa.RX * thetaDeg
	ce[4] = aa.RY * thetaDeg
	ce[5] = aa.RZ * thetaDeg
	return ce, false
}

// VectorMagnitude returns the Euclidean norm of v.
func VectorMagnitude(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}
