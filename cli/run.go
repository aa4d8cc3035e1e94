package cli

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/armctl/components/arm/sim"
	"go.viam.com/armctl/config"
	"go.viam.com/armctl/control"
	"go.viam.com/armctl/goal"
	"go.viam.com/armctl/kinematics"
	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/telemetry"
)

func newLogger(c *cli.Context) logging.Logger {
	if c.Bool(generalFlagDebug) {
		return logging.NewDebugLogger("armctl")
	}
	return logging.NewLogger("armctl")
}

// loadConfig reads the config named by the --config flag and applies the logging options.
func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, func() error, error) {
	cfg, err := config.ReadLocalConfig(c.String(generalFlagConfig), logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	closeLog := func() error { return nil }
	if path := c.String(generalFlagLogFile); path != "" {
		fa := logging.NewFileAppender(path, cfg.Telemetry.TextLogSizeMB, cfg.Telemetry.TextLogBackups)
		logger.AddAppender(fa)
		closeLog = fa.Close
	}
	return cfg, closeLog, nil
}

// RunAction is the corresponding Action for 'run'.
func RunAction(c *cli.Context) (err error) {
	logger := newLogger(c)
	cfg, closeLog, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	ctx := c.Context
	if d := c.Duration(runFlagDuration); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return runLoop(ctx, cfg, c.App.Reader, c.App.Writer, logger)
}

func newRecorder(cfg *config.Config, logger logging.Logger) (telemetry.Recorder, error) {
	var recs []telemetry.Recorder
	if path := cfg.Telemetry.SQLitePath; path != "" {
		rec, err := telemetry.NewSQLiteRecorder(path, cfg.ConfigFilePath, logger)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if path := cfg.Telemetry.TextLogPath; path != "" {
		recs = append(recs, telemetry.NewTextRecorder(path, cfg.Telemetry.TextLogSizeMB, cfg.Telemetry.TextLogBackups))
	}
	return telemetry.Multi(recs...), nil
}

func closeSource(src goal.Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// runLoop wires the simulated arm, the configured goal source and telemetry into a control loop
// and runs it until ctx is done.
func runLoop(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger logging.Logger) (err error) {
	model, err := cfg.Kinematics.BuildModel()
	if err != nil {
		return err
	}
	clk := clock.New()
	simArm, err := sim.NewArm(sim.Config{
		DoF:         config.NumJoints,
		MaxSpeed:    cfg.Sim.MaxSpeedDegPerSec,
		JointSpeeds: cfg.Speeds(),
	}, clk, logger.Sublogger("sim"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, simArm.Close(context.Background()))
	}()

	src, err := goal.NewSourceFromConfig(cfg.Goal, in, out, logger.Sublogger("goal"))
	if err != nil {
		return errors.Wrap(err, "starting goal source")
	}
	rec, err := newRecorder(cfg, logger.Sublogger("telemetry"))
	if err != nil {
		return multierr.Combine(err, closeSource(src))
	}
	loop, err := control.NewLoop(cfg, simArm, model, src, rec, clk, logger.Sublogger("loop"))
	if err != nil {
		return multierr.Combine(err, closeSource(src), rec.Close())
	}
	defer func() {
		err = multierr.Combine(err, loop.Close(context.Background()))
		if path := cfg.Telemetry.PlotPath; path != "" && cfg.Telemetry.SQLitePath != "" {
			n, perr := plotRun(context.Background(), cfg.Telemetry.SQLitePath, loop.RunID(), path)
			if perr != nil {
				logger.Warnw("could not plot run", "error", perr)
				return
			}
			fmt.Fprintf(out, "plotted %d ticks to %s\n", n, path)
		}
	}()

	if err := loop.Initialize(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "run %s: model %s, goal source %s, period %s\n",
		loop.RunID(), model.Name(), cfg.Goal.Source, cfg.Period())
	return loop.Run(ctx)
}

// ValidateAction is the corresponding Action for 'validate'.
func ValidateAction(c *cli.Context) (err error) {
	logger := newLogger(c)
	cfg, closeLog, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	model, err := cfg.Kinematics.BuildModel()
	if err != nil {
		return err
	}
	home := cfg.HomePosition()
	pose, err := model.ForwardKinematics(home)
	if err != nil {
		return err
	}
	jac, err := model.Jacobian(home)
	if err != nil {
		return err
	}
	det, err := kinematics.Determinant(jac)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "config ok: model %s, %d joints, goal source %s, period %s\n",
		model.Name(), len(cfg.Joints), cfg.Goal.Source, cfg.Period())
	fmt.Fprintf(out, "home pose: %s\n", goal.FormatPose(pose))
	fmt.Fprintf(out, "jacobian determinant at home: %.1f\n", det)
	if math.Abs(det) < cfg.Singularity.DetThreshold {
		fmt.Fprintln(out, "warning: home position is near a singularity, the loop will start in caution mode")
	}
	return nil
}
