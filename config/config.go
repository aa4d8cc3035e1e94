// Package config defines the on-disk configuration of the arm controller.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/armctl/kinematics"
	"go.viam.com/armctl/spatialmath"
	"go.viam.com/armctl/utils"
)

// NumJoints is the number of joints the controller drives.
const NumJoints = 6

// Defaults applied by Ensure to fields left at zero.
const (
	DefaultPeriodMs       = 15
	DefaultLinearStepMM   = 100.
	DefaultAngularStepRad = 0.4
	DefaultMinDTSeconds   = 0.007
	DefaultDetThreshold   = 10000.
	DefaultCautionSpeed   = 10.
	DefaultNormalSpeed    = 250.
	DefaultBaud           = 115200
	DefaultHTTPAddr       = "localhost:8089"
	DefaultTextLogSizeMB  = 50
	DefaultTextLogBackups = 3
)

// Goal source names.
const (
	GoalSourceConsole = "console"
	GoalSourceSerial  = "serial"
	GoalSourceHTTP    = "http"
	GoalSourceScript  = "script"
)

// Kinematic model names.
const (
	ModelPuma560 = "puma560"
	ModelCustom  = "custom"
)

// Config is the complete controller configuration.
type Config struct {
	ConfigFilePath string `json:"-"`

	PeriodMs    int               `json:"period_ms,omitempty"`
	Debug       bool              `json:"debug,omitempty"`
	Joints      []Joint           `json:"joints"`
	Trajectory  TrajectoryConfig  `json:"trajectory"`
	PID         PIDConfig         `json:"pid"`
	Singularity SingularityConfig `json:"singularity"`
	Kinematics  KinematicsConfig  `json:"kinematics"`
	Goal        GoalConfig        `json:"goal"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
	Sim         SimConfig         `json:"sim"`
}

// Joint is the per joint configuration group. Kp, Ki and Kd of joint i are the gains applied to
// element i of the Cartesian error; Gain scales the velocity of joint i.
type Joint struct {
	Name         string   `json:"name"`
	HomeDeg      *float64 `json:"home_deg"`
	Speed        float64  `json:"speed,omitempty"`
	Acceleration float64  `json:"acceleration,omitempty"`
	Kp           *float64 `json:"kp"`
	Ki           *float64 `json:"ki"`
	Kd           *float64 `json:"kd"`
	Gain         *float64 `json:"gain"`
}

// Validate ensures every required value of the group is present and finite.
func (j *Joint) Validate(path string) error {
	if j.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{{"home_deg", j.HomeDeg}, {"kp", j.Kp}, {"ki", j.Ki}, {"kd", j.Kd}, {"gain", j.Gain}} {
		if f.v == nil {
			return goutils.NewConfigValidationFieldRequiredError(path, f.name)
		}
		if !utils.AllFinite(*f.v) {
			return goutils.NewConfigValidationError(path, errors.Errorf("%s must be finite", f.name))
		}
	}
	if !utils.AllFinite(j.Speed, j.Acceleration) || j.Speed < 0 || j.Acceleration < 0 {
		return goutils.NewConfigValidationError(path, errors.New("speed and acceleration must be finite and non-negative"))
	}
	return nil
}

// TrajectoryConfig holds the per tick motion limits.
type TrajectoryConfig struct {
	LinearStepMM   float64 `json:"linear_step_mm,omitempty"`
	AngularStepRad float64 `json:"angular_step_rad,omitempty"`
}

// PIDConfig holds the PID guards. An IntegralLimit of zero leaves the integral unbounded.
type PIDConfig struct {
	MinDTSeconds  float64 `json:"min_dt_s,omitempty"`
	IntegralLimit float64 `json:"integral_limit,omitempty"`
}

// SingularityConfig holds the singularity guard policy.
type SingularityConfig struct {
	DetThreshold float64 `json:"det_threshold,omitempty"`
	CautionSpeed float64 `json:"caution_speed,omitempty"`
	NormalSpeed  float64 `json:"normal_speed,omitempty"`
}

// KinematicsConfig selects the kinematic model.
type KinematicsConfig struct {
	Model string               `json:"model,omitempty"`
	DH    []kinematics.DHParam `json:"dh,omitempty"`
}

// BuildModel returns the configured model.
func (kc *KinematicsConfig) BuildModel() (kinematics.Model, error) {
	switch kc.Model {
	case "", ModelPuma560:
		return kinematics.Puma560(), nil
	case ModelCustom:
		return kinematics.NewDHModel(ModelCustom, kc.DH)
	default:
		return nil, errors.Errorf("unknown kinematic model %q", kc.Model)
	}
}

// PoseConfig is a goal pose: a position in mm and a rotation of ThetaDeg about (RX, RY, RZ).
type PoseConfig struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	RX       float64 `json:"rx"`
	RY       float64 `json:"ry"`
	RZ       float64 `json:"rz"`
	ThetaDeg float64 `json:"theta_deg"`
}

// Pose converts to a spatialmath pose.
func (pc PoseConfig) Pose() (spatialmath.Pose, error) {
	return spatialmath.NewPoseFromAxisAngle(pc.X, pc.Y, pc.Z, pc.RX, pc.RY, pc.RZ, pc.ThetaDeg)
}

// ScriptedGoal is one entry of a scripted goal sequence.
type ScriptedGoal struct {
	PoseConfig
	Accept bool `json:"accept"`
}

// GoalConfig selects where goals come from.
type GoalConfig struct {
	Source     string         `json:"source,omitempty"`
	SerialPort string         `json:"serial_port,omitempty"`
	Baud       int            `json:"baud,omitempty"`
	HTTPAddr   string         `json:"http_addr,omitempty"`
	Script     []ScriptedGoal `json:"script,omitempty"`
}

// TelemetryConfig selects the optional diagnostic outputs. Empty paths disable the output.
type TelemetryConfig struct {
	SQLitePath     string `json:"sqlite_path,omitempty"`
	TextLogPath    string `json:"text_log_path,omitempty"`
	TextLogSizeMB  int    `json:"text_log_size_mb,omitempty"`
	TextLogBackups int    `json:"text_log_backups,omitempty"`
	PlotPath       string `json:"plot_path,omitempty"`
}

// SimConfig configures the simulated arm.
type SimConfig struct {
	MaxSpeedDegPerSec float64 `json:"max_speed_deg_s,omitempty"`
}

// Ensure fills in defaults and validates the config.
func (c *Config) Ensure() error {
	if c.PeriodMs == 0 {
		c.PeriodMs = DefaultPeriodMs
	}
	if c.Trajectory.LinearStepMM == 0 {
		c.Trajectory.LinearStepMM = DefaultLinearStepMM
	}
	if c.Trajectory.AngularStepRad == 0 {
		c.Trajectory.AngularStepRad = DefaultAngularStepRad
	}
	if c.PID.MinDTSeconds == 0 {
		c.PID.MinDTSeconds = DefaultMinDTSeconds
	}
	if c.Singularity.DetThreshold == 0 {
		c.Singularity.DetThreshold = DefaultDetThreshold
	}
	if c.Singularity.CautionSpeed == 0 {
		c.Singularity.CautionSpeed = DefaultCautionSpeed
	}
	if c.Singularity.NormalSpeed == 0 {
		c.Singularity.NormalSpeed = DefaultNormalSpeed
	}
	if c.Kinematics.Model == "" {
		c.Kinematics.Model = ModelPuma560
	}
	if c.Goal.Source == "" {
		c.Goal.Source = GoalSourceConsole
	}
	if c.Goal.Baud == 0 {
		c.Goal.Baud = DefaultBaud
	}
	if c.Goal.HTTPAddr == "" {
		c.Goal.HTTPAddr = DefaultHTTPAddr
	}
	if c.Telemetry.TextLogSizeMB == 0 {
		c.Telemetry.TextLogSizeMB = DefaultTextLogSizeMB
	}
	if c.Telemetry.TextLogBackups == 0 {
		c.Telemetry.TextLogBackups = DefaultTextLogBackups
	}
	return c.Validate("")
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.PeriodMs <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("period_ms must be positive, got %d", c.PeriodMs))
	}
	if len(c.Joints) != NumJoints {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("expected %d joint groups, got %d", NumJoints, len(c.Joints)))
	}
	for i := range c.Joints {
		if err := c.Joints[i].Validate(joinPath(path, fmt.Sprintf("joints.%d", i))); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"trajectory.linear_step_mm", c.Trajectory.LinearStepMM},
		{"trajectory.angular_step_rad", c.Trajectory.AngularStepRad},
		{"pid.min_dt_s", c.PID.MinDTSeconds},
		{"singularity.det_threshold", c.Singularity.DetThreshold},
		{"singularity.caution_speed", c.Singularity.CautionSpeed},
		{"singularity.normal_speed", c.Singularity.NormalSpeed},
	} {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return goutils.NewConfigValidationError(joinPath(path, f.name), errors.New("must be positive and finite"))
		}
	}
	if c.PID.IntegralLimit < 0 || math.IsNaN(c.PID.IntegralLimit) {
		return goutils.NewConfigValidationError(joinPath(path, "pid.integral_limit"), errors.New("must not be negative"))
	}
	if c.Kinematics.Model == ModelCustom && len(c.Kinematics.DH) != NumJoints {
		return goutils.NewConfigValidationError(joinPath(path, "kinematics.dh"),
			errors.Errorf("custom model needs %d rows, got %d", NumJoints, len(c.Kinematics.DH)))
	}
	if _, err := c.Kinematics.BuildModel(); err != nil {
		return goutils.NewConfigValidationError(joinPath(path, "kinematics"), err)
	}
	return c.Goal.Validate(joinPath(path, "goal"))
}

// Validate ensures the selected goal source has what it needs.
func (gc *GoalConfig) Validate(path string) error {
	switch gc.Source {
	case GoalSourceConsole, GoalSourceHTTP:
	case GoalSourceSerial:
		if gc.SerialPort == "" {
			return goutils.NewConfigValidationFieldRequiredError(path, "serial_port")
		}
	case GoalSourceScript:
		if len(gc.Script) == 0 {
			return goutils.NewConfigValidationFieldRequiredError(path, "script")
		}
		for i, g := range gc.Script {
			if _, err := g.Pose(); err != nil {
				return goutils.NewConfigValidationError(joinPath(path, fmt.Sprintf("script.%d", i)), err)
			}
		}
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown goal source %q", gc.Source))
	}
	return nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

// Period returns the scheduler period.
func (c *Config) Period() time.Duration {
	return time.Duration(c.PeriodMs) * time.Millisecond
}

// HomePosition returns the home angle of every joint, in degrees.
func (c *Config) HomePosition() []float64 {
	out := make([]float64, len(c.Joints))
	for i, j := range c.Joints {
		out[i] = deref(j.HomeDeg)
	}
	return out
}

// PIDGains returns the proportional, integral and derivative gains by Cartesian error element.
func (c *Config) PIDGains() (kp, ki, kd [NumJoints]float64) {
	for i, j := range c.Joints {
		if i >= NumJoints {
			break
		}
		kp[i], ki[i], kd[i] = deref(j.Kp), deref(j.Ki), deref(j.Kd)
	}
	return kp, ki, kd
}

// OutputGains returns the per joint output gain.
func (c *Config) OutputGains() []float64 {
	out := make([]float64, len(c.Joints))
	for i, j := range c.Joints {
		out[i] = deref(j.Gain)
	}
	return out
}

// Speeds returns the per joint default speed, in degrees per second. Zero means no limit of its own.
func (c *Config) Speeds() []float64 {
	out := make([]float64, len(c.Joints))
	for i, j := range c.Joints {
		out[i] = j.Speed
	}
	return out
}

// Accelerations returns the per joint reference acceleration.
func (c *Config) Accelerations() []float64 {
	out := make([]float64, len(c.Joints))
	for i, j := range c.Joints {
		out[i] = j.Acceleration
	}
	return out
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
