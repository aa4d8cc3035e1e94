package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Clamp bounds v to [-limit, limit] and reports whether it had to.
func Clamp(v, limit float64) (float64, bool) {
	switch {
	case v > limit:
		return limit, true
	case v < -limit:
		return -limit, true
	default:
		return v, false
	}
}

// Float64AlmostEqual compares two floats within epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// AllFinite reports whether no element of vals is NaN or infinite.
func AllFinite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
