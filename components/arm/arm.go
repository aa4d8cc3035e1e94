// Package arm defines the joint level interfaces a six axis arm exposes to the controller.
package arm

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotInVelocityMode is returned by a velocity move issued before velocity mode was armed.
var ErrNotInVelocityMode = errors.New("arm is not in velocity mode")

// EncoderReader reads joint encoders. Readings are in degrees, relative to the home position.
type EncoderReader interface {
	Encoders(ctx context.Context) ([]float64, error)
}

// VelocityController commands joint velocities in degrees per second.
type VelocityController interface {
	SetVelocityMode(ctx context.Context) error
	SetRefAccelerations(ctx context.Context, accs []float64) error
	VelocityMove(ctx context.Context, speeds []float64) error
	// Stop commands zero velocity on every joint.
	Stop(ctx context.Context) error
}

// JointController is everything the control loop needs from an arm.
type JointController interface {
	EncoderReader
	VelocityController
	DoF() int
}
