package control

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/armctl/spatialmath"
)

const (
	// DefaultLinearStep is the largest translation of one tick, in millimeters.
	DefaultLinearStep = 100.
	// DefaultAngularStep is the largest rotation of one tick, in radians.
	DefaultAngularStep = 0.4
)

// Waypoint is the pose the controller tracks during a single tick, along with the quantities the
// generator used to produce it.
type Waypoint struct {
	Pose                spatialmath.Pose
	TranslationDistance float64
	ErrorAngle          float64
	LinearSteps         int
	AngularSteps        int
	Snapped             bool
}

// TrajectoryGenerator rate limits the motion toward a goal to a fixed linear and angular step per
// tick. It holds no state between calls.
type TrajectoryGenerator struct {
	linearStep  float64
	angularStep float64
}

// NewTrajectoryGenerator returns a generator with the given per tick step limits.
func NewTrajectoryGenerator(linearStep, angularStep float64) (*TrajectoryGenerator, error) {
	if !(linearStep > 0) || math.IsInf(linearStep, 0) {
		return nil, errors.Errorf("linear step must be positive and finite, got %v", linearStep)
	}
	if !(angularStep > 0) || math.IsInf(angularStep, 0) {
		return nil, errors.Errorf("angular step must be positive and finite, got %v", angularStep)
	}
	return &TrajectoryGenerator{linearStep: linearStep, angularStep: angularStep}, nil
}

// axisAngleOf decomposes a rotation, mapping the identity to the zero 4-vector.
func axisAngleOf(rm spatialmath.RotationMatrix) spatialmath.R4AA {
	aa, err := spatialmath.DecomposeAxisAngle(rm)
	if err != nil {
		return spatialmath.R4AA{}
	}
	return aa
}

// Next returns the waypoint for this tick. When both step counts are at most one the goal itself
// is returned. A zero step count on an axis leaves that axis where the actual pose is.
func (tg *TrajectoryGenerator) Next(goal, actual spatialmath.Pose) (Waypoint, error) {
	errPose := spatialmath.ErrorPose(goal, actual)
	errorAngle := axisAngleOf(errPose.Rotation()).Theta
	actualAA := axisAngleOf(actual.Rotation())
	goalAA := axisAngleOf(goal.Rotation())

	delta := goal.Point().Sub(actual.Point())
	distance := delta.Norm()
	if math.IsNaN(distance) || math.IsInf(distance, 0) || math.IsNaN(errorAngle) {
		return Waypoint{}, errors.New("cannot plan a waypoint between non-finite poses")
	}

	wp := Waypoint{
		TranslationDistance: distance,
		ErrorAngle:          errorAngle,
		LinearSteps:         int(math.Floor(distance / tg.linearStep)),
		AngularSteps:        int(math.Floor(errorAngle / tg.angularStep)),
	}
	if wp.LinearSteps <= 1 && wp.AngularSteps <= 1 {
		wp.Pose = goal
		wp.Snapped = true
		return wp, nil
	}

	rot := actual.Rotation()
	if wp.AngularSteps > 0 {
		from, to := actualAA.Vec4(), goalAA.Vec4()
		var next [4]float64
		for i := range next {
			next[i] = from[i] + (to[i]-from[i])/float64(wp.AngularSteps)
		}
		rot = spatialmath.R4AAFromVec4(next).RotationMatrix()
	}

	pt := actual.Point()
	if wp.LinearSteps > 0 {
		pt = pt.Add(delta.Mul(1 / float64(wp.LinearSteps)))
	}
	wp.Pose = spatialmath.NewPose(pt, rot)
	return wp, nil
}
