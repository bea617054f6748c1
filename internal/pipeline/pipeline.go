// Package pipeline wires the estimation and control core together: raw
// timestamped measurements flow through the control-input time buffer into
// the pose belief, and control ticks map the resulting belief to bounded
// velocity commands.
//
// The core itself is single-threaded and synchronous; Pipeline serializes
// concurrent producers into that single ordered stream with one mutex, as
// the belief's ordering contract requires.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/meridian-robotics/navcore/internal/belief"
	"github.com/meridian-robotics/navcore/internal/config"
	"github.com/meridian-robotics/navcore/internal/control"
	"github.com/meridian-robotics/navcore/internal/monitoring"
	"github.com/meridian-robotics/navcore/internal/stepguard"
	"github.com/meridian-robotics/navcore/internal/timebuf"
	"github.com/meridian-robotics/navcore/internal/units"
)

// Recorder receives belief snapshots and emitted commands for persistence.
// Implementations must tolerate being called on the control path: failures
// are logged by the pipeline and never disturb estimation or control.
type Recorder interface {
	RecordBelief(sessionID string, snap belief.Snapshot) error
	RecordCommand(sessionID string, t units.Seconds, cmd belief.ControlInput, mode control.Mode) error
}

// Counters tallies accepted and rejected events for the observability
// surface. Monotonically increasing for the life of the pipeline.
type Counters struct {
	PositionAccepted   uint64 `json:"position_accepted"`
	HeadingAccepted    uint64 `json:"heading_accepted"`
	StaleRejected      uint64 `json:"stale_rejected"`
	OutOfOrderRejected uint64 `json:"out_of_order_rejected"`
	ControlUnavailable uint64 `json:"control_unavailable"`
	TicksAccepted      uint64 `json:"ticks_accepted"`
	TicksRejected      uint64 `json:"ticks_rejected"`
}

// Status is the read-only view for watchdogs, logging, and the HTTP API.
type Status struct {
	SessionID            string
	Belief               belief.Snapshot
	Mode                 control.Mode
	LastCommand          belief.ControlInput
	LastCommandTimestamp units.Seconds
	Counters             Counters
}

// Pipeline owns the belief, the controller, the fixed-step guard, and the
// control-input history. One instance per robot.
type Pipeline struct {
	mu sync.Mutex

	sessionID string
	cfg       *config.TuningConfig

	bel      *belief.Belief
	ctrl     *control.Controller
	guard    stepguard.Guard
	controls *timebuf.Buffer[belief.ControlInput]

	// Newest commanded input; prediction source for control ticks ahead
	// of the buffer's covered span.
	lastControl belief.ControlInput

	posNoise belief.PositionNoise
	yawNoise float64

	counters Counters
	rec      Recorder
}

// lerpControl interpolates command components independently; both are
// unbounded scalars, so plain linear interpolation is correct.
func lerpControl(a, b belief.ControlInput, alpha float64) belief.ControlInput {
	return belief.ControlInput{
		Linear:  timebuf.LerpMetersPerSecond(a.Linear, b.Linear, alpha),
		Angular: timebuf.LerpRadiansPerSecond(a.Angular, b.Angular, alpha),
	}
}

// New assembles a pipeline from tuning. The belief starts uninitialized;
// call Start with a prior before feeding measurements.
func New(cfg *config.TuningConfig) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	bel, err := belief.New(belief.Options{
		ProcessNoise: belief.ProcessNoise{
			X:   cfg.GetProcessNoiseX(),
			Y:   cfg.GetProcessNoiseY(),
			Yaw: cfg.GetProcessNoiseYaw(),
		},
		TimeTolerance:     units.Seconds(cfg.GetTimeToleranceSec()),
		DivergenceCeiling: cfg.GetDivergenceCeiling(),
	})
	if err != nil {
		return nil, err
	}

	ctrl, err := control.New(controlConfigFromTuning(cfg))
	if err != nil {
		return nil, err
	}

	guard, err := stepguard.New(
		units.Seconds(cfg.GetControlPeriodSec()),
		units.Seconds(cfg.GetPeriodToleranceSec()),
	)
	if err != nil {
		return nil, err
	}

	pv := cfg.GetPositionNoise()
	return &Pipeline{
		sessionID: uuid.NewString(),
		cfg:       cfg,
		bel:       bel,
		ctrl:      ctrl,
		guard:     guard,
		controls: timebuf.New[belief.ControlInput](
			cfg.GetBufferCapacity(),
			units.Seconds(cfg.GetBufferToleranceSec()),
			lerpControl,
		),
		posNoise: belief.PositionNoise{XX: pv, YY: pv},
		yawNoise: cfg.GetHeadingNoise(),
	}, nil
}

// controlConfigFromTuning derives controller config from a TuningConfig.
func controlConfigFromTuning(cfg *config.TuningConfig) control.Config {
	return control.Config{
		Kp:                    cfg.GetKp(),
		Ki:                    cfg.GetKi(),
		Kd:                    cfg.GetKd(),
		IntegralLimit:         cfg.GetIntegralLimit(),
		ApproachGain:          cfg.GetApproachGain(),
		MaxLinear:             units.MetersPerSecond(cfg.GetMaxLinearMps()),
		MaxAngular:            units.RadiansPerSecond(cfg.GetMaxAngularRps()),
		LinearSlewPerSec:      cfg.GetLinearSlewPerSec(),
		AngularSlewPerSec:     cfg.GetAngularSlewPerSec(),
		GoalPositionTolerance: units.Meters(cfg.GetGoalPositionTolM()),
		GoalHeadingTolerance:  units.Radians(cfg.GetGoalHeadingTolRad()),
		FailSafe:              control.FailSafe(cfg.GetFailSafe()),
	}
}

// SessionID returns the run's unique identifier.
func (p *Pipeline) SessionID() string { return p.sessionID }

// SetRecorder attaches a persistence sink. Pass nil to detach.
func (p *Pipeline) SetRecorder(rec Recorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec = rec
}

// Start installs the prior belief. priorVar is the diagonal of the prior
// covariance over (x, y, yaw).
func (p *Pipeline) Start(prior belief.Pose, priorVar [3]float64, t0 units.Seconds) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cov := mat.NewDense(3, 3, nil)
	for i, v := range priorVar {
		cov.Set(i, i, v)
	}
	if p.bel.Initialized() {
		return p.bel.Reset(prior, cov, t0)
	}
	return p.bel.Initialize(prior, cov, t0)
}

// ObserveControl records a commanded (or wheel-odometry observed) body
// velocity. These samples are the interpolation source when a delayed
// measurement needs the belief predicted up to its timestamp.
func (p *Pipeline) ObserveControl(u belief.ControlInput, t units.Seconds) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !u.IsFinite() || !t.IsFinite() {
		return fmt.Errorf("pipeline: control observation: %w", units.ErrNonFinite)
	}

	err := p.controls.Push(timebuf.Sample[belief.ControlInput]{Value: u, Timestamp: t})
	if err != nil {
		p.counters.OutOfOrderRejected++
		return err
	}
	if latest, ok := p.controls.Latest(); ok && latest == t {
		p.lastControl = u
	}
	return nil
}

// ObservePosition aligns the belief with the measurement time and folds in
// an (x, y) observation. A measurement the belief has already moved past
// (beyond tolerance) is reported and dropped, never applied out of order.
func (p *Pipeline) ObservePosition(z belief.PositionMeasurement) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.predictTo(z.Timestamp); err != nil {
		return err
	}
	if err := p.bel.CorrectPosition(z, p.posNoise); err != nil {
		p.classifyCorrectionError(err)
		return err
	}
	p.counters.PositionAccepted++
	p.recordBelief()
	return nil
}

// ObserveHeading aligns the belief with the measurement time and folds in
// a yaw observation.
func (p *Pipeline) ObserveHeading(z belief.HeadingMeasurement) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.predictTo(z.Timestamp); err != nil {
		return err
	}
	if err := p.bel.CorrectHeading(z, p.yawNoise); err != nil {
		p.classifyCorrectionError(err)
		return err
	}
	p.counters.HeadingAccepted++
	p.recordBelief()
	return nil
}

// predictTo advances the belief to t using the interpolated control input.
// A no-op when the belief is already at or past t (the correction's own
// staleness check decides whether that is acceptable).
func (p *Pipeline) predictTo(t units.Seconds) error {
	if !p.bel.Initialized() {
		return belief.ErrNotInitialized
	}
	if t <= p.bel.Timestamp() {
		return nil
	}

	u, err := p.controls.Interpolate(t)
	if err != nil {
		// No bracketing control history. Fail closed: report, leave the
		// belief where it is, and let the staleness check reject the
		// correction if the gap matters.
		p.counters.ControlUnavailable++
		return fmt.Errorf("pipeline: predict to %.6f: %w", t.Float(), err)
	}
	return p.bel.Predict(u, t)
}

func (p *Pipeline) classifyCorrectionError(err error) {
	if errors.Is(err, belief.ErrStaleMeasurement) {
		p.counters.StaleRejected++
	}
}

// Tick runs one control cycle at time t: predict with the newest commanded
// input, then map the belief to a bounded command. The returned command is
// always safe to actuate even when err is non-nil (fail-safe policy).
//
// The guard is consulted before the estimator, not just inside the
// controller: an interval longer than the expected step is never integrated
// into the belief mean. Intervals shorter than the step are fine (a
// measurement may already have advanced the belief past the last tick);
// the belief then catches up from wherever the last correction left it.
func (p *Pipeline) Tick(t units.Seconds) (belief.ControlInput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var tickErr error
	if p.bel.Initialized() && !p.bel.Diverged() && t > p.bel.Timestamp() {
		dt := t.Sub(p.bel.Timestamp())
		if err := p.guard.Check(dt); err != nil && dt > p.guard.Expected {
			tickErr = err
		} else if err := p.bel.Predict(p.lastControl, t); err != nil {
			tickErr = err
		}
	}

	cmd, err := p.ctrl.Update(p.bel.Snapshot(), t, p.guard)
	if err != nil {
		p.counters.TicksRejected++
		if tickErr == nil {
			tickErr = err
		}
	} else {
		p.counters.TicksAccepted++
	}

	p.recordCommand(t, cmd)
	return cmd, tickErr
}

// SetGoal assigns a navigation goal and begins tracking.
func (p *Pipeline) SetGoal(goal belief.Pose) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctrl.SetGoal(goal)
}

// ClearGoal cancels tracking.
func (p *Pipeline) ClearGoal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctrl.ClearGoal()
}

// Status returns a consistent read-only view of the whole core.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Status{
		SessionID:            p.sessionID,
		Belief:               p.bel.Snapshot(),
		Mode:                 p.ctrl.Mode(),
		LastCommand:          p.ctrl.LastCommand(),
		LastCommandTimestamp: p.ctrl.LastCommandTimestamp(),
		Counters:             p.counters,
	}
}

// Config returns the active tuning.
func (p *Pipeline) Config() *config.TuningConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Reconfigure rebuilds the core components from new tuning, equivalent to
// reinitializing each affected component. The belief's current state is
// carried into the rebuilt filter as its prior; the controller and buffers
// start fresh.
func (p *Pipeline) Reconfigure(cfg *config.TuningConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cfg == nil {
		return fmt.Errorf("pipeline: nil tuning config")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	next, err := New(cfg)
	if err != nil {
		return err
	}

	if snap := p.bel.Snapshot(); snap.Initialized {
		cov := mat.NewDense(3, 3, nil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				cov.Set(i, j, snap.Covariance[i*3+j])
			}
		}
		if err := next.bel.Initialize(snap.Pose, cov, snap.Timestamp); err != nil {
			return fmt.Errorf("pipeline: carry belief across reconfigure: %w", err)
		}
	}

	// Keep identity and persistence across the reconfigure; everything
	// else is replaced.
	p.cfg = cfg
	p.bel = next.bel
	p.ctrl = next.ctrl
	p.guard = next.guard
	p.controls = next.controls
	p.posNoise = next.posNoise
	p.yawNoise = next.yawNoise
	p.lastControl = belief.ControlInput{}

	monitoring.Logf("pipeline %s reconfigured", p.sessionID)
	return nil
}

func (p *Pipeline) recordBelief() {
	if p.rec == nil {
		return
	}
	if err := p.rec.RecordBelief(p.sessionID, p.bel.Snapshot()); err != nil {
		monitoring.Logf("pipeline %s: record belief: %v", p.sessionID, err)
	}
}

func (p *Pipeline) recordCommand(t units.Seconds, cmd belief.ControlInput) {
	if p.rec == nil {
		return
	}
	if err := p.rec.RecordCommand(p.sessionID, t, cmd, p.ctrl.Mode()); err != nil {
		monitoring.Logf("pipeline %s: record command: %v", p.sessionID, err)
	}
}
