// Package telemetry records what the control loop did on every tick. None of it is required for
// control; every recorder is an optional diagnostic output.
package telemetry

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"go.viam.com/armctl/spatialmath"
)

// TickRecord is the snapshot of one tick.
type TickRecord struct {
	RunID    string
	Tick     uint64
	Time     time.Time
	DT       float64
	Phase    string
	Degraded bool
	// Reason says why a degraded tick skipped dispatch.
	Reason     string
	Joints     []float64
	Actual     spatialmath.Pose
	Waypoint   spatialmath.Pose
	Goal       spatialmath.Pose
	Error      spatialmath.CartesianError
	Integral   spatialmath.CartesianError
	Correction spatialmath.CartesianError
	Det        float64
	Singular   bool
	Speeds     []float64
	Duration   time.Duration
}

// Recorder persists tick records.
type Recorder interface {
	Record(ctx context.Context, rec TickRecord) error
	Close() error
}

type nopRecorder struct{}

// Nop returns a recorder that drops everything.
func Nop() Recorder {
	return nopRecorder{}
}

func (nopRecorder) Record(context.Context, TickRecord) error { return nil }

func (nopRecorder) Close() error { return nil }

type multiRecorder []Recorder

// Multi fans every record out to each recorder. Errors from all of them are combined.
func Multi(recorders ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return Nop()
	}
	return out
}

func (m multiRecorder) Record(ctx context.Context, rec TickRecord) error {
	var err error
	for _, r := range m {
		err = multierr.Combine(err, r.Record(ctx, rec))
	}
	return err
}

func (m multiRecorder) Close() error {
	var err error
	for _, r := range m {
		err = multierr.Combine(err, r.Close())
	}
	return err
}
