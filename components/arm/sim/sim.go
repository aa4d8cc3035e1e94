// Package sim implements a velocity controlled arm that integrates commanded joint speeds over the
// passage of time on a clock. With a mock clock it is completely deterministic for testing.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/armctl/components/arm"
	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/utils"
)

// DefaultMaxSpeed is the joint speed limit, in degrees per second, when none is configured.
const DefaultMaxSpeed = 180.

// Config describes a simulated arm.
type Config struct {
	DoF int
	// MaxSpeed is the largest joint speed the arm will honour, in degrees per second.
	MaxSpeed float64
	// JointSpeeds optionally lowers the limit of individual joints, in degrees per second. A zero
	// entry keeps MaxSpeed.
	JointSpeeds []float64
	// SimulateTime spins up a background goroutine that advances the arm on every clock tick of
	// the given period. When zero the owner must call UpdateForTime.
	SimulateTime time.Duration
}

// Arm is a simulated six axis arm. Joint positions are encoder readings relative to home.
type Arm struct {
	clk    clock.Clock
	logger logging.Logger

	mu            sync.Mutex
	speedLimits   []float64
	positions     []float64
	velocities    []float64
	targets       []float64
	accelerations []float64
	velocityMode  bool
	lastUpdated   time.Time

	encoderErr error
	moveErr    error

	timeSimulation utils.StoppableWorkers
}

// NewArm returns a simulated arm resting at home.
func NewArm(conf Config, clk clock.Clock, logger logging.Logger) (*Arm, error) {
	if conf.DoF <= 0 {
		return nil, errors.Errorf("simulated arm needs a positive DoF, got %d", conf.DoF)
	}
	maxSpeed := DefaultMaxSpeed
	if conf.MaxSpeed > 0 {
		maxSpeed = conf.MaxSpeed
	}
	if len(conf.JointSpeeds) != 0 && len(conf.JointSpeeds) != conf.DoF {
		return nil, utils.NewIncorrectDoFError(len(conf.JointSpeeds), conf.DoF)
	}
	limits := make([]float64, conf.DoF)
	for i := range limits {
		limits[i] = maxSpeed
		if i < len(conf.JointSpeeds) {
			s := conf.JointSpeeds[i]
			if !utils.AllFinite(s) || s < 0 {
				return nil, errors.Errorf("joint %d speed limit must be finite and non-negative, got %v", i, s)
			}
			if s > 0 && s < maxSpeed {
				limits[i] = s
			}
		}
	}
	if clk == nil {
		clk = clock.New()
	}
	a := &Arm{
		clk:           clk,
		logger:        logger,
		speedLimits:   limits,
		positions:     make([]float64, conf.DoF),
		velocities:    make([]float64, conf.DoF),
		targets:       make([]float64, conf.DoF),
		accelerations: make([]float64, conf.DoF),
		lastUpdated:   clk.Now(),
	}
	if conf.SimulateTime > 0 {
		a.timeSimulation = utils.NewStoppableWorkerWithTicker(clk, conf.SimulateTime, func(context.Context) {
			a.UpdateForTime(clk.Now())
		})
	}
	return a, nil
}

// DoF returns the number of joints.
func (a *Arm) DoF() int {
	return len(a.positions)
}

// UpdateForTime advances the simulation to now. Each joint velocity approaches its target at no more
// than the reference acceleration (unlimited when zero) and the position integrates the new velocity.
func (a *Arm) UpdateForTime(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateForTime(now)
}

func (a *Arm) updateForTime(now time.Time) {
	dt := now.Sub(a.lastUpdated).Seconds()
	a.lastUpdated = now
	if dt <= 0 {
		return
	}
	for i := range a.positions {
		diff := a.targets[i] - a.velocities[i]
		if acc := a.accelerations[i]; acc > 0 {
			diff, _ = utils.Clamp(diff, acc*dt)
		}
		a.velocities[i] += diff
		a.positions[i] += a.velocities[i] * dt
	}
}

// Encoders returns the joint positions as of the clock's current time.
func (a *Arm) Encoders(ctx context.Context) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.encoderErr != nil {
		return nil, a.encoderErr
	}
	if a.timeSimulation == nil {
		a.updateForTime(a.clk.Now())
	}
	out := make([]float64, len(a.positions))
	copy(out, a.positions)
	return out, nil
}

// SetVelocityMode arms velocity commands.
func (a *Arm) SetVelocityMode(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.velocityMode = true
	return nil
}

// SetRefAccelerations sets the per joint acceleration limit in degrees per second squared.
func (a *Arm) SetRefAccelerations(ctx context.Context, accs []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(accs) != len(a.accelerations) {
		return utils.NewIncorrectDoFError(len(accs), len(a.accelerations))
	}
	for i, acc := range accs {
		if acc < 0 || math.IsNaN(acc) {
			return errors.Errorf("joint %d acceleration must be non-negative, got %v", i, acc)
		}
	}
	copy(a.accelerations, accs)
	return nil
}

// VelocityMove sets the target joint speeds, each clamped to its joint's speed limit.
func (a *Arm) VelocityMove(ctx context.Context, speeds []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.moveErr != nil {
		return a.moveErr
	}
	if !a.velocityMode {
		return arm.ErrNotInVelocityMode
	}
	if len(speeds) != len(a.targets) {
		return utils.NewIncorrectDoFError(len(speeds), len(a.targets))
	}
	if !utils.AllFinite(speeds...) {
		return errors.New("joint speeds must be finite")
	}
	a.updateForTime(a.clk.Now())
	for i, s := range speeds {
		clamped, hit := utils.Clamp(s, a.speedLimits[i])
		if hit {
			a.logger.Debugw("simulated joint speed limited", "joint", i, "requested", s, "max", a.speedLimits[i])
		}
		a.targets[i] = clamped
	}
	return nil
}

// Stop brings every joint to an immediate halt.
func (a *Arm) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateForTime(a.clk.Now())
	for i := range a.targets {
		a.targets[i] = 0
		a.velocities[i] = 0
	}
	return nil
}

// Velocities returns the current joint velocities.
func (a *Arm) Velocities() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.velocities))
	copy(out, a.velocities)
	return out
}

// SetPositions teleports the joints.
func (a *Arm) SetPositions(positions []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(positions) != len(a.positions) {
		return utils.NewIncorrectDoFError(len(positions), len(a.positions))
	}
	copy(a.positions, positions)
	return nil
}

// InjectEncoderError makes every encoder read fail with err until cleared with nil.
func (a *Arm) InjectEncoderError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.encoderErr = err
}

// InjectMoveError makes every velocity move fail with err until cleared with nil.
func (a *Arm) InjectMoveError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moveErr = err
}

// Close stops time simulation if it is running.
func (a *Arm) Close(ctx context.Context) error {
	if a.timeSimulation != nil {
		a.timeSimulation.Stop()
	}
	return nil
}

var _ arm.JointController = (*Arm)(nil)
