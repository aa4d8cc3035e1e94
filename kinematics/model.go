// Package kinematics provides the forward kinematics and manipulator Jacobian of a six axis
// serial arm, plus the linear algebra the controller needs on top of the Jacobian.
package kinematics

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/armctl/spatialmath"
)

// Model is a pure function of joint angles. Joint angles are in degrees and lengths in
// millimeters. The Jacobian has three linear rows followed by three angular rows, with columns
// expressed per radian of joint motion.
type Model interface {
	Name() string
	DoF() int
	ForwardKinematics(joints []float64) (spatialmath.Pose, error)
	Jacobian(joints []float64) (*mat.Dense, error)
}
