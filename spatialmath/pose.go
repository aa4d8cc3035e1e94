package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/armctl/utils"
)

// Pose is a 4x4 homogeneous transform: a rotation block, a translation column and the fixed
// bottom row [0 0 0 1]. Lengths are in millimeters.
type Pose struct {
	rot RotationMatrix
	pt  r3.Vector
}

// NewPose builds a pose from a translation and a rotation.
func NewPose(pt r3.Vector, rot RotationMatrix) Pose {
	return Pose{rot: rot, pt: pt}
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{rot: IdentityRotation()}
}

// NewPoseFromPoint returns a pose with identity rotation translated by pt.
func NewPoseFromPoint(pt r3.Vector) Pose {
	return Pose{rot: IdentityRotation(), pt: pt}
}

// NewPoseFromAxisAngle builds a pose from a position in millimeters, a rotation axis and an
// angle in degrees. The axis is normalized; a zero axis with a non-zero angle is an error.
func NewPoseFromAxisAngle(x, y, z, ax, ay, az, thetaDeg float64) (Pose, error) {
	aa := R4AA{Theta: utils.DegToRad(thetaDeg), RX: ax, RY: ay, RZ: az}
	if aa.Axis().Norm() == 0 && thetaDeg != 0 {
		return Pose{}, errors.New("rotation axis must be non-zero")
	}
	return NewPose(r3.Vector{X: x, Y: y, Z: z}, aa.RotationMatrix()), nil
}

// NewPoseFromMatrix reads a 4x4 homogeneous matrix.
func NewPoseFromMatrix(m mat.Matrix) (Pose, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return Pose{}, errors.Errorf("pose matrix must be 4x4, got %dx%d", r, c)
	}
	if m.At(3, 0) != 0 || m.At(3, 1) != 0 || m.At(3, 2) != 0 || m.At(3, 3) != 1 {
		return Pose{}, errors.New("pose matrix bottom row must be [0 0 0 1]")
	}
	var rot RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.mat[i*3+j] = m.At(i, j)
		}
	}
	return NewPose(r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}, rot), nil
}

// Point returns the translation.
func (p Pose) Point() r3.Vector {
	return p.pt
}

// Rotation returns the rotation block.
func (p Pose) Rotation() RotationMatrix {
	return p.rot
}

// At indexes the 4x4 homogeneous form.
func (p Pose) At(row, col int) float64 {
	switch {
	case row == 3:
		if col == 3 {
			return 1
		}
		return 0
	case col == 3:
		return [3]float64{p.pt.X, p.pt.Y, p.pt.Z}[row]
	default:
		return p.rot.At(row, col)
	}
}

// Matrix returns the 4x4 homogeneous form.
func (p Pose) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, p.At(i, j))
		}
	}
	return m
}

// AxisAngle decomposes the rotation block. An exact identity rotation yields the zero R4AA.
func (p Pose) AxisAngle() R4AA {
	aa, err := DecomposeAxisAngle(p.rot)
	if err != nil {
		return R4AA{}
	}
	return aa
}

// Compose returns a * b.
func Compose(a, b Pose) Pose {
	return Pose{rot: a.rot.Mul(b.rot), pt: a.rot.MulVec(b.pt).Add(a.pt)}
}

// PoseAlmostEqual compares translation and rotation within epsilon.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	return a.pt.Sub(b.pt).Norm() <= epsilon && a.rot.AlmostEqual(b.rot, epsilon)
}

func (p Pose) String() string {
	return fmt.Sprintf("{X:%.3f Y:%.3f Z:%.3f R:%v}", p.pt.X, p.pt.Y, p.pt.Z, p.rot)
}
