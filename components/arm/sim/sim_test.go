package sim

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/armctl/components/arm"
	"go.viam.com/armctl/logging"
)

func newTestArm(t *testing.T, maxSpeed float64) (*Arm, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	a, err := NewArm(Config{DoF: 6, MaxSpeed: maxSpeed}, clk, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return a, clk
}

func TestVelocityIntegration(t *testing.T) {
	ctx := context.Background()
	a, clk := newTestArm(t, 0)

	err := a.VelocityMove(ctx, []float64{10, 0, 0, 0, 0, 0})
	test.That(t, errors.Is(err, arm.ErrNotInVelocityMode), test.ShouldBeTrue)

	test.That(t, a.SetVelocityMode(ctx), test.ShouldBeNil)
	test.That(t, a.VelocityMove(ctx, []float64{10, -20, 0, 0, 0, 1000}), test.ShouldBeNil)
	clk.Add(500 * time.Millisecond)

	enc, err := a.Encoders(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, enc[0], test.ShouldAlmostEqual, 5)
	test.That(t, enc[1], test.ShouldAlmostEqual, -10)
	// clamped to the default max speed
	test.That(t, enc[5], test.ShouldAlmostEqual, DefaultMaxSpeed/2)

	test.That(t, a.Stop(ctx), test.ShouldBeNil)
	clk.Add(time.Second)
	after, err := a.Encoders(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, after, test.ShouldResemble, enc)
}

func TestAccelerationLimit(t *testing.T) {
	ctx := context.Background()
	a, clk := newTestArm(t, 100)
	test.That(t, a.SetVelocityMode(ctx), test.ShouldBeNil)
	test.That(t, a.SetRefAccelerations(ctx, []float64{20, 0, 0, 0, 0, 0}), test.ShouldBeNil)
	test.That(t, a.VelocityMove(ctx, []float64{100, 100, 0, 0, 0, 0}), test.ShouldBeNil)

	clk.Add(time.Second)
	a.UpdateForTime(clk.Now())
	v := a.Velocities()
	test.That(t, v[0], test.ShouldAlmostEqual, 20)
	test.That(t, v[1], test.ShouldAlmostEqual, 100)

	test.That(t, a.SetRefAccelerations(ctx, []float64{1}), test.ShouldNotBeNil)
	test.That(t, a.SetRefAccelerations(ctx, []float64{-1, 0, 0, 0, 0, 0}), test.ShouldNotBeNil)
}

func TestJointSpeedLimits(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	a, err := NewArm(Config{DoF: 6, MaxSpeed: 100, JointSpeeds: []float64{60, 0, 200, 90, 90, 90}}, clk, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.SetVelocityMode(ctx), test.ShouldBeNil)
	test.That(t, a.VelocityMove(ctx, []float64{-500, 500, 500, 50, 0, 0}), test.ShouldBeNil)

	clk.Add(time.Second)
	a.UpdateForTime(clk.Now())
	v := a.Velocities()
	test.That(t, v[0], test.ShouldAlmostEqual, -60)
	// zero keeps the arm wide limit and a larger value cannot raise it
	test.That(t, v[1], test.ShouldAlmostEqual, 100)
	test.That(t, v[2], test.ShouldAlmostEqual, 100)
	test.That(t, v[3], test.ShouldAlmostEqual, 50)

	_, err = NewArm(Config{DoF: 6, JointSpeeds: []float64{60}}, clk, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewArm(Config{DoF: 6, JointSpeeds: []float64{-1, 0, 0, 0, 0, 0}}, clk, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestArm(t, 0)
	test.That(t, a.SetVelocityMode(ctx), test.ShouldBeNil)

	boom := errors.New("encoder cable unplugged")
	a.InjectEncoderError(boom)
	_, err := a.Encoders(ctx)
	test.That(t, err, test.ShouldEqual, boom)
	a.InjectEncoderError(nil)
	_, err = a.Encoders(ctx)
	test.That(t, err, test.ShouldBeNil)

	a.InjectMoveError(boom)
	test.That(t, a.VelocityMove(ctx, make([]float64, 6)), test.ShouldEqual, boom)
	a.InjectMoveError(nil)
	test.That(t, a.VelocityMove(ctx, make([]float64, 6)), test.ShouldBeNil)

	test.That(t, a.VelocityMove(ctx, make([]float64, 5)), test.ShouldNotBeNil)
	test.That(t, a.SetPositions([]float64{1, 2, 3, 4, 5, 6}), test.ShouldBeNil)
	enc, err := a.Encoders(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, enc, test.ShouldResemble, []float64{1, 2, 3, 4, 5, 6})
}

func TestSimulateTime(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	a, err := NewArm(Config{DoF: 6, SimulateTime: 10 * time.Millisecond}, clk, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer a.Close(ctx)

	test.That(t, a.SetVelocityMode(ctx), test.ShouldBeNil)
	test.That(t, a.VelocityMove(ctx, []float64{100, 0, 0, 0, 0, 0}), test.ShouldBeNil)
	for i := 0; i < 10; i++ {
		clk.Add(10 * time.Millisecond)
	}
	test.That(t, a.Close(ctx), test.ShouldBeNil)
	enc, err := a.Encoders(ctx)
	test.That(t, err, test.ShouldBeNil)
	// the background worker may not have seen every tick, but it never runs ahead of the clock
	test.That(t, enc[0], test.ShouldBeGreaterThanOrEqualTo, 0)
	test.That(t, enc[0], test.ShouldBeLessThanOrEqualTo, 10.0001)

	_, err = NewArm(Config{}, clk, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
