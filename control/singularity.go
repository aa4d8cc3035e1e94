package control

import (
	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/utils"
)

const (
	// DefaultDetThreshold bounds the open interval of Jacobian determinants treated as near singular.
	DefaultDetThreshold = 10000.
	// DefaultCautionSpeed is the joint speed envelope near a singularity.
	DefaultCautionSpeed = 10.
	// DefaultNormalSpeed is the joint speed envelope elsewhere.
	DefaultNormalSpeed = 250.
)

// GuardResult is the outcome of applying the singularity guard to a tick's candidate speeds.
type GuardResult struct {
	Speeds   []float64
	Envelope float64
	Singular bool
	// Clamped lists the joints whose speed was clamped to the envelope.
	Clamped []int
	// Transitioned is set when the caution flag changed on this call.
	Transitioned bool
}

// SingularityGuard switches the joint speed envelope on the Jacobian determinant and freezes the
// command while near a singularity.
type SingularityGuard struct {
	threshold    float64
	cautionSpeed float64
	normalSpeed  float64
	caution      bool
	logger       logging.Logger
}

// NewSingularityGuard returns a guard that starts out of caution mode.
func NewSingularityGuard(threshold, cautionSpeed, normalSpeed float64, logger logging.Logger) *SingularityGuard {
	return &SingularityGuard{
		threshold:    threshold,
		cautionSpeed: cautionSpeed,
		normalSpeed:  normalSpeed,
		logger:       logger,
	}
}

// Evaluate classifies det. Only values strictly inside (-threshold, threshold) are singular.
func (g *SingularityGuard) Evaluate(det float64) (float64, bool) {
	if det < g.threshold && det > -g.threshold {
		return g.cautionSpeed, true
	}
	return g.normalSpeed, false
}

// InCaution reports whether the last applied determinant was near singular.
func (g *SingularityGuard) InCaution() bool {
	return g.caution
}

// Apply returns the speeds to dispatch. When det is near singular every joint repeats its previous
// speed. The envelope clamp is applied either way. Neither input slice is modified.
func (g *SingularityGuard) Apply(candidate, previous []float64, det float64) GuardResult {
	envelope, singular := g.Evaluate(det)
	res := GuardResult{Envelope: envelope, Singular: singular, Transitioned: singular != g.caution}
	if res.Transitioned {
		if singular {
			g.logger.Warnw("near singularity, freezing joint speeds", "det", det, "envelope", envelope)
		} else {
			g.logger.Infow("left singularity", "det", det, "envelope", envelope)
		}
	}
	g.caution = singular

	src := candidate
	if singular {
		src = previous
	}
	res.Speeds = make([]float64, len(candidate))
	for i := range res.Speeds {
		var v float64
		if i < len(src) {
			v = src[i]
		}
		clamped, hit := utils.Clamp(v, envelope)
		if hit {
			res.Clamped = append(res.Clamped, i)
			g.logger.Debugw("clamped joint speed", "joint", i, "requested", v, "envelope", envelope)
		}
		res.Speeds[i] = clamped
	}
	return res
}
