package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/armctl/spatialmath"
	"go.viam.com/armctl/utils"
)

// DHParam is one row of a standard Denavit-Hartenberg table for a revolute joint.
type DHParam struct {
	A           float64 `json:"a"`
	AlphaDeg    float64 `json:"alpha_deg"`
	D           float64 `json:"d"`
	ThetaOffset float64 `json:"theta_offset_deg"`
}

// DHModel is a serial chain of revolute joints described by a DH table.
type DHModel struct {
	name   string
	params []DHParam
}

// NewDHModel validates and returns a DH model.
func NewDHModel(name string, params []DHParam) (*DHModel, error) {
	if len(params) == 0 {
		return nil, errors.New("DH model needs at least one joint")
	}
	for i, p := range params {
		if !utils.AllFinite(p.A, p.AlphaDeg, p.D, p.ThetaOffset) {
			return nil, errors.Errorf("DH row %d has a non-finite value", i)
		}
	}
	ps := make([]DHParam, len(params))
	copy(ps, params)
	return &DHModel{name: name, params: ps}, nil
}

// Puma560 returns the standard DH model of a Unimation Puma 560 in millimeters, with the tool
// flange 56.25mm past the wrist center.
func Puma560() *DHModel {
	return &DHModel{
		name: "puma560",
		params: []DHParam{
			{A: 0, AlphaDeg: 90, D: 0},
			{A: 431.8, AlphaDeg: 0, D: 0},
			{A: 20.32, AlphaDeg: -90, D: 150.05},
			{A: 0, AlphaDeg: 90, D: 431.8},
			{A: 0, AlphaDeg: -90, D: 0},
			{A: 0, AlphaDeg: 0, D: 56.25},
		},
	}
}

// Name returns the model name.
func (m *DHModel) Name() string {
	return m.name
}

// DoF returns the number of joints.
func (m *DHModel) DoF() int {
	return len(m.params)
}

// linkTransform is Rz(theta) Tz(d) Tx(a) Rx(alpha).
func linkTransform(p DHParam, jointDeg float64) spatialmath.Pose {
	theta := utils.DegToRad(jointDeg + p.ThetaOffset)
	alpha := utils.DegToRad(p.AlphaDeg)
	ct, st := math.Cos(theta), math.Sin(theta)
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	rot := spatialmath.NewRotationMatrixFromRows(
		r3.Vector{X: ct, Y: -st * ca, Z: st * sa},
		r3.Vector{X: st, Y: ct * ca, Z: -ct * sa},
		r3.Vector{X: 0, Y: sa, Z: ca},
	)
	return spatialmath.NewPose(r3.Vector{X: p.A * ct, Y: p.A * st, Z: p.D}, rot)
}

// frames returns the base-to-frame transform of every joint frame, starting with the base.
func (m *DHModel) frames(joints []float64) ([]spatialmath.Pose, error) {
	if len(joints) != len(m.params) {
		return nil, utils.NewIncorrectDoFError(len(joints), len(m.params))
	}
	if !utils.AllFinite(joints...) {
		return nil, errors.New("joint angles must be finite")
	}
	out := make([]spatialmath.Pose, 0, len(m.params)+1)
	cur := spatialmath.NewZeroPose()
	out = append(out, cur)
	for i, p := range m.params {
		cur = spatialmath.Compose(cur, linkTransform(p, joints[i]))
		out = append(out, cur)
	}
	return out, nil
}

// ForwardKinematics returns the pose of the last frame.
func (m *DHModel) ForwardKinematics(joints []float64) (spatialmath.Pose, error) {
	fs, err := m.frames(joints)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	return fs[len(fs)-1], nil
}

// Jacobian returns the 6xN geometric Jacobian in the base frame.
func (m *DHModel) Jacobian(joints []float64) (*mat.Dense, error) {
	fs, err := m.frames(joints)
	if err != nil {
		return nil, err
	}
	n := len(m.params)
	end := fs[n].Point()
	jac := mat.NewDense(6, n, nil)
	for i := 0; i < n; i++ {
		z := fs[i].Rotation().Col(2)
		lin := z.Cross(end.Sub(fs[i].Point()))
		jac.Set(0, i, lin.X)
		jac.Set(1, i, lin.Y)
		jac.Set(2, i, lin.Z)
		jac.Set(3, i, z.X)
		jac.Set(4, i, z.Y)
		jac.Set(5, i, z.Z)
	}
	return jac, nil
}
