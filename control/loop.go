package control

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/armctl/components/arm"
	"go.viam.com/armctl/config"
	"go.viam.com/armctl/goal"
	"go.viam.com/armctl/kinematics"
	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/spatialmath"
	"go.viam.com/armctl/telemetry"
	"go.viam.com/armctl/utils"
)

var (
	// ErrNotInitialized is returned by Tick before Initialize.
	ErrNotInitialized = errors.New("control loop is not initialized")
	// ErrClosed is returned by any operation on a closed loop.
	ErrClosed = errors.New("control loop is closed")
)

// TickResult describes what one tick did.
type TickResult struct {
	Phase    Phase
	Tick     uint64
	Time     time.Time
	DT       float64
	Degraded bool
	Reason   string

	Joints     []float64
	Actual     spatialmath.Pose
	Goal       spatialmath.Pose
	Waypoint   Waypoint
	Error      spatialmath.CartesianError
	Integral   spatialmath.CartesianError
	Correction spatialmath.CartesianError
	Det        float64
	Singular   bool
	Speeds     []float64
	Duration   time.Duration
}

// Loop is the Cartesian tracking controller. Every tick it reads the encoders, plans a waypoint
// toward the goal, runs the PID on the pose error and resolves the correction into joint speeds
// through the pseudo-inverse of the Jacobian.
type Loop struct {
	cfg    *config.Config
	arm    arm.JointController
	model  kinematics.Model
	src    goal.Source
	rec    telemetry.Recorder
	clk    clock.Clock
	logger logging.Logger

	traj          *TrajectoryGenerator
	pid           PID
	guard         *SingularityGuard
	home          []float64
	gains         []float64
	accelerations []float64
	runID         string

	mailbox goal.Mailbox

	mu     sync.Mutex
	state  State
	closed bool

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	streams utils.StoppableWorkers

	closeSourceOnce sync.Once
	closeSourceErr  error
}

// NewLoop builds a loop from a validated configuration. Any inconsistency between the config, the
// arm and the kinematic model is reported here so the loop never starts on a bad setup.
func NewLoop(
	cfg *config.Config,
	a arm.JointController,
	model kinematics.Model,
	src goal.Source,
	rec telemetry.Recorder,
	clk clock.Clock,
	logger logging.Logger,
) (*Loop, error) {
	if cfg == nil {
		return nil, errors.New("control loop needs a config")
	}
	if a == nil || model == nil || src == nil {
		return nil, errors.New("control loop needs an arm, a kinematic model and a goal source")
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if a.DoF() != len(cfg.Joints) {
		return nil, errors.Wrap(utils.NewIncorrectDoFError(a.DoF(), len(cfg.Joints)), "arm")
	}
	if model.DoF() != len(cfg.Joints) {
		return nil, errors.Wrap(utils.NewIncorrectDoFError(model.DoF(), len(cfg.Joints)), "kinematic model")
	}
	traj, err := NewTrajectoryGenerator(cfg.Trajectory.LinearStepMM, cfg.Trajectory.AngularStepRad)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = telemetry.Nop()
	}
	if clk == nil {
		clk = clock.New()
	}
	kp, ki, kd := cfg.PIDGains()
	return &Loop{
		cfg:           cfg,
		arm:           a,
		model:         model,
		src:           src,
		rec:           rec,
		clk:           clk,
		logger:        logger,
		traj:          traj,
		pid:           PID{Gains: Gains{Kp: kp, Ki: ki, Kd: kd}, MinDT: cfg.PID.MinDTSeconds},
		guard:         NewSingularityGuard(cfg.Singularity.DetThreshold, cfg.Singularity.CautionSpeed, cfg.Singularity.NormalSpeed, logger.Sublogger("guard")),
		home:          cfg.HomePosition(),
		gains:         cfg.OutputGains(),
		accelerations: cfg.Accelerations(),
		runID:         uuid.NewString(),
	}, nil
}

// RunID identifies this loop's telemetry.
func (l *Loop) RunID() string {
	return l.runID
}

// Initialize arms the arm for velocity control and resets the loop state.
func (l *Loop) Initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.state.Phase != Uninitialized {
		return errors.New("control loop is already initialized")
	}
	if err := l.arm.SetVelocityMode(ctx); err != nil {
		return errors.Wrap(err, "setting velocity mode")
	}
	if err := l.arm.SetRefAccelerations(ctx, l.accelerations); err != nil {
		return errors.Wrap(err, "setting reference accelerations")
	}
	l.state = newState(len(l.home))
	l.state.Integrator.Limit = l.cfg.PID.IntegralLimit
	l.logger.Infow("control loop initialized",
		"run_id", l.runID,
		"model", l.model.Name(),
		"period", l.cfg.Period(),
		"home", l.home,
	)
	return nil
}

// SetGoal replaces the goal. It is safe to call from any goroutine and takes effect at the top of
// the next tick.
func (l *Loop) SetGoal(pose spatialmath.Pose) {
	l.mailbox.Put(pose)
}

// State returns a copy of the loop state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

func (l *Loop) phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Phase
}

// Tick runs the loop body once. Failures inside a tick are reported through a degraded result;
// an error is returned only when the loop cannot tick at all or bootstrap could not get a goal.
func (l *Loop) Tick(ctx context.Context) (TickResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return TickResult{}, ErrClosed
	}
	switch l.state.Phase {
	case Uninitialized:
		return TickResult{}, ErrNotInitialized
	case FirstRoundInteractive:
		return l.bootstrap(ctx)
	case FirstRoundArmed:
		l.logger.Infow("armed",
			"goal", l.state.Goal,
			"actual", l.state.PreviousActual,
			"output_gains", l.gains,
			"kp", l.pid.Gains.Kp,
			"ki", l.pid.Gains.Ki,
			"kd", l.pid.Gains.Kd,
		)
		res := l.steady(ctx, FirstRoundArmed)
		l.state.Phase = SteadyState
		return res, nil
	default:
		return l.steady(ctx, SteadyState), nil
	}
}

func (l *Loop) readActual(ctx context.Context) ([]float64, spatialmath.Pose, error) {
	enc, err := l.arm.Encoders(ctx)
	if err != nil {
		return nil, spatialmath.Pose{}, errors.Wrap(err, "reading encoders")
	}
	if len(enc) != len(l.home) {
		return nil, spatialmath.Pose{}, utils.NewIncorrectDoFError(len(enc), len(l.home))
	}
	joints := make([]float64, len(enc))
	for i := range enc {
		joints[i] = l.home[i] + enc[i]
	}
	if !utils.AllFinite(joints...) {
		return nil, spatialmath.Pose{}, errors.Errorf("non-finite joint angles %v", joints)
	}
	pose, err := l.model.ForwardKinematics(joints)
	if err != nil {
		return joints, spatialmath.Pose{}, errors.Wrap(err, "forward kinematics")
	}
	return joints, pose, nil
}

// bootstrap asks the goal source for candidates until one is accepted.
func (l *Loop) bootstrap(ctx context.Context) (TickResult, error) {
	start := l.clk.Now()
	st := &l.state
	st.Ticks++
	res := TickResult{Phase: FirstRoundInteractive, Tick: st.Ticks, Time: start}

	var cand goal.Candidate
	for {
		joints, actual, err := l.readActual(ctx)
		if err != nil {
			return l.degrade(ctx, res, start, "reading actual pose", err), nil
		}
		res.Joints, res.Actual = joints, actual
		cand, err = l.src.Propose(ctx, actual)
		if err != nil {
			return res, errors.Wrap(err, "acquiring goal")
		}
		if cand.Accept {
			break
		}
		l.logger.Infow("goal not accepted, asking again", "candidate", cand.Pose)
	}

	now := l.clk.Now()
	st.Goal = cand.Pose
	st.PreviousError = spatialmath.CartesianError{}
	st.Integrator.Reset()
	st.PreviousActual = res.Actual
	st.StartTime = now
	st.LastTick = now
	st.Phase = FirstRoundArmed
	l.logger.Infow("goal accepted", "goal", cand.Pose, "actual", res.Actual)

	res.Goal = cand.Pose
	res.Waypoint = Waypoint{Pose: res.Actual}
	return l.finish(ctx, res, start), nil
}

// steady is one tracking tick. Nothing in the loop state changes unless the speeds were
// dispatched, so a degraded tick leaves the next tick to retry from the same state.
func (l *Loop) steady(ctx context.Context, phase Phase) TickResult {
	start := l.clk.Now()
	st := &l.state
	st.Ticks++
	res := TickResult{Phase: phase, Tick: st.Ticks, Time: start}

	if g, ok := l.mailbox.Take(); ok {
		l.logger.Infow("adopting new goal", "goal", g)
		st.Goal = g
	}
	res.Goal = st.Goal

	joints, actual, err := l.readActual(ctx)
	if err != nil {
		return l.degrade(ctx, res, start, "reading actual pose", err)
	}
	res.Joints, res.Actual = joints, actual
	if reporter, ok := l.src.(goal.PoseReporter); ok {
		reporter.ReportPose(actual)
	}

	wp, err := l.traj.Next(st.Goal, actual)
	if err != nil {
		return l.degrade(ctx, res, start, "planning waypoint", err)
	}
	res.Waypoint = wp

	jac, err := l.model.Jacobian(joints)
	if err != nil {
		return l.degrade(ctx, res, start, "computing jacobian", err)
	}
	det, err := kinematics.Determinant(jac)
	if err != nil {
		return l.degrade(ctx, res, start, "computing jacobian determinant", err)
	}
	res.Det = det
	pinv, err := kinematics.PseudoInverse(jac)
	if err != nil {
		return l.degrade(ctx, res, start, "inverting jacobian", err)
	}

	cartErr, identity := spatialmath.PoseErrorDetailed(wp.Pose, actual)
	if identity {
		l.logger.Debugw("relative rotation is identity, rotational error zeroed", "tick", st.Ticks)
	}
	res.Error = cartErr

	dt := start.Sub(st.LastTick).Seconds()
	res.DT = dt
	integral, clamped := st.Integrator.Peek(cartErr, dt)
	if clamped {
		l.logger.Debugw("integral clamped", "limit", st.Integrator.Limit, "integral", integral)
	}
	res.Integral = integral

	correction := l.pid.Compute(cartErr, st.PreviousError, integral, dt)
	res.Correction = correction

	delta, err := kinematics.MulVec(pinv, correction.Slice())
	if err != nil {
		return l.degrade(ctx, res, start, "resolving joint velocities", err)
	}
	candidate := make([]float64, len(delta))
	for i := range delta {
		candidate[i] = l.gains[i] * delta[i]
	}
	if !utils.AllFinite(candidate...) {
		return l.degrade(ctx, res, start, "resolving joint velocities", errors.Errorf("non-finite speeds %v", candidate))
	}

	guarded := l.guard.Apply(candidate, st.PreviousSpeeds, det)
	res.Singular = guarded.Singular
	st.Caution = guarded.Singular

	if err := l.arm.VelocityMove(ctx, guarded.Speeds); err != nil {
		return l.degrade(ctx, res, start, "dispatching velocities", err)
	}
	res.Speeds = guarded.Speeds

	st.PreviousError = cartErr
	st.Integrator.Set(integral)
	st.PreviousSpeeds = guarded.Speeds
	st.PreviousActual = actual
	st.LastTick = start
	st.Dispatched++
	return l.finish(ctx, res, start)
}

func (l *Loop) degrade(ctx context.Context, res TickResult, start time.Time, reason string, err error) TickResult {
	l.state.Degraded++
	res.Degraded = true
	res.Reason = errors.Wrap(err, reason).Error()
	res.Speeds = nil
	l.logger.Warnw("degraded tick, no velocity dispatched", "tick", res.Tick, "reason", res.Reason)
	return l.finish(ctx, res, start)
}

func (l *Loop) finish(ctx context.Context, res TickResult, start time.Time) TickResult {
	res.Duration = l.clk.Since(start)
	l.state.addDuration(res.Duration)
	if err := l.rec.Record(ctx, l.tickRecord(res)); err != nil {
		l.logger.Warnw("failed to record tick", "tick", res.Tick, "error", err)
	}
	return res
}

func (l *Loop) tickRecord(res TickResult) telemetry.TickRecord {
	return telemetry.TickRecord{
		RunID:      l.runID,
		Tick:       res.Tick,
		Time:       res.Time,
		DT:         res.DT,
		Phase:      res.Phase.String(),
		Degraded:   res.Degraded,
		Reason:     res.Reason,
		Joints:     res.Joints,
		Actual:     res.Actual,
		Waypoint:   res.Waypoint.Pose,
		Goal:       res.Goal,
		Error:      res.Error,
		Integral:   res.Integral,
		Correction: res.Correction,
		Det:        res.Det,
		Singular:   res.Singular,
		Speeds:     res.Speeds,
		Duration:   res.Duration,
	}
}

// Run ticks once per configured period until ctx is done or Stop is called. A tick that overruns
// delays the next one. Once bootstrap is over, a source that can stream goals is wired to SetGoal.
func (l *Loop) Run(ctx context.Context) error {
	l.runMu.Lock()
	if l.cancel != nil {
		l.runMu.Unlock()
		return errors.New("control loop is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	l.runMu.Unlock()

	defer func() {
		cancel()
		l.stopStreaming()
		l.runMu.Lock()
		l.cancel, l.done = nil, nil
		l.runMu.Unlock()
		close(done)
	}()

	ticker := l.clk.Ticker(l.cfg.Period())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return nil
		}
		res, err := l.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if res.Phase != FirstRoundInteractive || l.phase() != FirstRoundInteractive {
			l.startStreaming(ctx)
		}
	}
}

func (l *Loop) startStreaming(ctx context.Context) {
	streamer, ok := l.src.(goal.Streamer)
	if !ok {
		return
	}
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.streams != nil {
		return
	}
	l.logger.Debug("streaming goals from source")
	l.streams = utils.NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		streamer.Stream(ctx, l)
	})
}

func (l *Loop) stopStreaming() {
	l.runMu.Lock()
	streams := l.streams
	l.streams = nil
	l.runMu.Unlock()
	if streams == nil {
		return
	}
	// a source blocked on a read only returns once it is closed
	if err := l.closeSource(); err != nil {
		l.logger.Warnw("failed to close goal source", "error", err)
	}
	streams.Stop()
}

func (l *Loop) closeSource() error {
	l.closeSourceOnce.Do(func() {
		if c, ok := l.src.(io.Closer); ok {
			l.closeSourceErr = c.Close()
		}
	})
	return l.closeSourceErr
}

// Stop asks a running loop to exit and waits for the tick in flight to finish.
func (l *Loop) Stop() {
	l.runMu.Lock()
	cancel, done := l.cancel, l.done
	l.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops the loop and the arm, logs timing statistics and releases the goal source and the
// telemetry recorders.
func (l *Loop) Close(ctx context.Context) error {
	l.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var err error
	if l.state.Phase != Uninitialized {
		err = multierr.Combine(err, errors.Wrap(l.arm.Stop(ctx), "stopping arm"))
	}

	summary, serr := telemetry.Summarize(l.state.TickDurations)
	if serr != nil {
		l.logger.Debugw("could not summarize tick timing", "error", serr)
	}
	l.logger.Infow("control loop stopped",
		"run_id", l.runID,
		"ticks", l.state.Ticks,
		"dispatched", l.state.Dispatched,
		"degraded", l.state.Degraded,
		"total_tick_time", l.state.TotalTickTime,
		"mean_tick", summary.Mean,
		"p95_tick", summary.P95,
		"max_tick", summary.Max,
	)

	err = multierr.Combine(
		err,
		errors.Wrap(l.closeSource(), "closing goal source"),
		errors.Wrap(l.rec.Close(), "closing telemetry"),
	)
	return err
}
