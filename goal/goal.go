// Package goal provides the sources the control loop takes goal poses from, and the single slot
// mailbox that hands a goal from a producer to the loop.
package goal

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/armctl/spatialmath"
)

// ErrSourceExhausted is returned by a source that has no more candidates to offer.
var ErrSourceExhausted = errors.New("goal source has no more candidates")

// Candidate is a proposed goal. The loop keeps asking until a candidate is accepted.
type Candidate struct {
	Pose   spatialmath.Pose
	Accept bool
}

// Source proposes goals during bootstrap. Propose is shown the pose the arm is currently at and
// blocks until a candidate is available or ctx is done.
type Source interface {
	Propose(ctx context.Context, current spatialmath.Pose) (Candidate, error)
}

// Setter takes goals while the loop is running.
type Setter interface {
	SetGoal(pose spatialmath.Pose)
}

// Streamer is a source that can keep delivering goals after bootstrap.
type Streamer interface {
	Stream(ctx context.Context, setter Setter)
}

// PoseReporter is told the arm's pose on every tick.
type PoseReporter interface {
	ReportPose(pose spatialmath.Pose)
}

// Mailbox holds at most one pending goal. A newer goal replaces an unread one.
type Mailbox struct {
	slot atomic.Pointer[spatialmath.Pose]
}

// Put makes pose the pending goal.
func (m *Mailbox) Put(pose spatialmath.Pose) {
	m.slot.Store(&pose)
}

// Take removes and returns the pending goal, if any.
func (m *Mailbox) Take() (spatialmath.Pose, bool) {
	p := m.slot.Swap(nil)
	if p == nil {
		return spatialmath.Pose{}, false
	}
	return *p, true
}

// SetGoal makes the mailbox a Setter.
func (m *Mailbox) SetGoal(pose spatialmath.Pose) {
	m.Put(pose)
}
