package control

import (
	"math"

	"go.viam.com/armctl/spatialmath"
	"go.viam.com/armctl/utils"
)

// DefaultMinDT is the shortest tick, in seconds, for which the PID produces output.
const DefaultMinDT = 0.007

// Gains holds one proportional, integral and derivative gain per Cartesian error element.
type Gains struct {
	Kp [6]float64
	Ki [6]float64
	Kd [6]float64
}

// PID computes the Cartesian correction for a tick.
type PID struct {
	Gains Gains
	MinDT float64
}

// ComputePID is PID.Compute with the default minimum dt.
func ComputePID(actual, previous, integral spatialmath.CartesianError, dt float64, gains Gains) spatialmath.CartesianError {
	return PID{Gains: gains, MinDT: DefaultMinDT}.Compute(actual, previous, integral, dt)
}

// Compute returns Kp*e + Ki*integral + Kd*(e-previous)/dt per element. If dt is below MinDT the
// whole output is zero.
func (p PID) Compute(actual, previous, integral spatialmath.CartesianError, dt float64) spatialmath.CartesianError {
	var out spatialmath.CartesianError
	if dt < p.MinDT || !(dt > 0) {
		return out
	}
	for i := range out {
		pTerm := p.Gains.Kp[i] * actual[i]
		iTerm := p.Gains.Ki[i] * integral[i]
		dTerm := p.Gains.Kd[i] * (actual[i] - previous[i]) / dt
		out[i] = pTerm + iTerm + dTerm
	}
	return out
}

// Integrator accumulates error*dt every tick. A Limit that is not positive and finite leaves the
// sum unbounded.
type Integrator struct {
	Limit float64
	sum   spatialmath.CartesianError
}

func (in *Integrator) bounded() bool {
	return in.Limit > 0 && !math.IsInf(in.Limit, 1)
}

// Peek returns what the sum would be after adding e*dt, without storing it.
func (in *Integrator) Peek(e spatialmath.CartesianError, dt float64) (spatialmath.CartesianError, bool) {
	next := in.sum
	clamped := false
	for i := range next {
		next[i] += e[i] * dt
		if in.bounded() {
			var hit bool
			next[i], hit = utils.Clamp(next[i], in.Limit)
			clamped = clamped || hit
		}
	}
	return next, clamped
}

// Accumulate adds e*dt and returns the new sum and whether any element hit the limit.
func (in *Integrator) Accumulate(e spatialmath.CartesianError, dt float64) (spatialmath.CartesianError, bool) {
	next, clamped := in.Peek(e, dt)
	in.sum = next
	return next, clamped
}

// Set replaces the sum.
func (in *Integrator) Set(sum spatialmath.CartesianError) {
	in.sum = sum
}

// Value returns the current sum.
func (in *Integrator) Value() spatialmath.CartesianError {
	return in.sum
}

// Reset zeroes the sum.
func (in *Integrator) Reset() {
	in.sum = spatialmath.CartesianError{}
}
