package goal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/armctl/spatialmath"
	"go.viam.com/armctl/utils"
)

// PoseFields is the number of values in a textual pose: x y z ax ay az angle_deg.
const PoseFields = 7

// ParsePose reads a position in mm followed by a rotation axis and an angle in degrees.
func ParsePose(fields []string) (spatialmath.Pose, error) {
	if len(fields) != PoseFields {
		return spatialmath.Pose{}, errors.Errorf("expected %d values (x y z ax ay az angle_deg), got %d", PoseFields, len(fields))
	}
	var v [PoseFields]float64
	for i, f := range fields {
		parsed, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return spatialmath.Pose{}, errors.Wrapf(err, "value %d", i)
		}
		v[i] = parsed
	}
	if !utils.AllFinite(v[:]...) {
		return spatialmath.Pose{}, errors.New("pose values must be finite")
	}
	return spatialmath.NewPoseFromAxisAngle(v[0], v[1], v[2], v[3], v[4], v[5], v[6])
}

// ParseLine reads a pose followed by an optional accept word.
func ParseLine(line string) (Candidate, error) {
	fields := strings.Fields(line)
	accept := false
	if len(fields) == PoseFields+1 {
		if !isYes(fields[PoseFields]) {
			return Candidate{}, errors.Errorf("unexpected trailing token %q", fields[PoseFields])
		}
		accept = true
		fields = fields[:PoseFields]
	}
	pose, err := ParsePose(fields)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{Pose: pose, Accept: accept}, nil
}

func isYes(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes", "accept", "ok":
		return true
	default:
		return false
	}
}

// FormatPose renders a pose in the same form ParsePose reads.
func FormatPose(p spatialmath.Pose) string {
	pt := p.Point()
	aa := p.AxisAngle()
	return fmt.Sprintf("%.3f %.3f %.3f %.6f %.6f %.6f %.3f",
		pt.X, pt.Y, pt.Z, aa.RX, aa.RY, aa.RZ, utils.RadToDeg(aa.Theta))
}
