package control

import (
	"time"

	"go.viam.com/armctl/spatialmath"
)

// Phase is where the loop is in its lifecycle.
type Phase int

// The loop moves through these phases in order and then stays in SteadyState.
const (
	Uninitialized Phase = iota
	FirstRoundInteractive
	FirstRoundArmed
	SteadyState
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "Uninitialized"
	case FirstRoundInteractive:
		return "FirstRoundInteractive"
	case FirstRoundArmed:
		return "FirstRoundArmed"
	case SteadyState:
		return "SteadyState"
	default:
		return "Unknown"
	}
}

// maxTimingSamples bounds how many tick durations are kept for the teardown summary.
const maxTimingSamples = 1 << 16

// State is everything the loop carries from one tick to the next. Only the loop touches it.
type State struct {
	Phase Phase

	Goal           spatialmath.Pose
	PreviousActual spatialmath.Pose
	PreviousError  spatialmath.CartesianError
	Integrator     Integrator
	PreviousSpeeds []float64
	Caution        bool

	// Ticks counts every tick after initialization, Dispatched those that commanded the arm and
	// Degraded those that skipped dispatch.
	Ticks      uint64
	Dispatched uint64
	Degraded   uint64

	StartTime     time.Time
	LastTick      time.Time
	TotalTickTime time.Duration
	TickDurations []time.Duration
}

func newState(dof int) State {
	return State{
		Phase:          FirstRoundInteractive,
		PreviousSpeeds: make([]float64, dof),
	}
}

func (s *State) addDuration(d time.Duration) {
	s.TotalTickTime += d
	if len(s.TickDurations) >= maxTimingSamples {
		n := copy(s.TickDurations, s.TickDurations[maxTimingSamples/2:])
		s.TickDurations = s.TickDurations[:n]
	}
	s.TickDurations = append(s.TickDurations, d)
}

func (s *State) clone() State {
	out := *s
	out.PreviousSpeeds = append([]float64(nil), s.PreviousSpeeds...)
	out.TickDurations = append([]time.Duration(nil), s.TickDurations...)
	return out
}
