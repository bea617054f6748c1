// Package control implements a bounded go-to-goal controller for a
// differential-drive base. A PID loop on heading error steers the robot
// toward the goal bearing while a saturated proportional term drives it
// forward; every emitted command passes output saturation and slew-rate
// limiting before it leaves the package.
package control

import (
	"errors"
	"fmt"
	"math"

	"github.com/meridian-robotics/navcore/internal/belief"
	"github.com/meridian-robotics/navcore/internal/stepguard"
	"github.com/meridian-robotics/navcore/internal/units"
)

// Mode is the controller lifecycle state.
type Mode string

const (
	// ModeIdle means no goal is assigned; the controller emits zero.
	ModeIdle Mode = "idle"
	// ModeTracking means a goal is assigned and the PID state is live.
	ModeTracking Mode = "tracking"
)

// FailSafe selects the degraded response when an update cannot be trusted.
type FailSafe string

const (
	// FailSafeHold repeats the previous safe command.
	FailSafeHold FailSafe = "hold"
	// FailSafeZero commands zero velocity.
	FailSafeZero FailSafe = "zero"
)

var (
	// ErrTimeBackward is returned when an update timestamp precedes the
	// previous update beyond the guard tolerance. State is held.
	ErrTimeBackward = errors.New("control: update time moved backward")

	// ErrBeliefDiverged is returned when the supplied belief snapshot
	// carries the diverged flag; the fail-safe command is emitted.
	ErrBeliefDiverged = errors.New("control: belief diverged, fail-safe command emitted")

	// ErrBeliefUninitialized is returned when the snapshot has no prior.
	ErrBeliefUninitialized = errors.New("control: belief not initialized")
)

// Config holds controller gains and limits. All values are fixed at
// construction.
type Config struct {
	Kp float64
	Ki float64
	Kd float64

	// IntegralLimit clamps the accumulated heading error (anti-windup).
	IntegralLimit float64

	// ApproachGain maps distance-to-goal to forward speed.
	ApproachGain float64

	MaxLinear  units.MetersPerSecond
	MaxAngular units.RadiansPerSecond

	// Slew limits bound the change per second of each output.
	LinearSlewPerSec  float64
	AngularSlewPerSec float64

	GoalPositionTolerance units.Meters
	GoalHeadingTolerance  units.Radians

	FailSafe FailSafe
}

// DefaultConfig returns production-default controller parameters.
func DefaultConfig() Config {
	return Config{
		Kp:                    1.8,
		Ki:                    0.05,
		Kd:                    0.2,
		IntegralLimit:         1.0,
		ApproachGain:          0.8,
		MaxLinear:             0.5,
		MaxAngular:            1.5,
		LinearSlewPerSec:      1.0,
		AngularSlewPerSec:     4.0,
		GoalPositionTolerance: 0.05,
		GoalHeadingTolerance:  0.1,
		FailSafe:              FailSafeHold,
	}
}

// Validate checks gains and limits for out-of-domain values.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"kp": c.Kp, "ki": c.Ki, "kd": c.Kd,
		"integral_limit":     c.IntegralLimit,
		"approach_gain":      c.ApproachGain,
		"linear_slew_per_s":  c.LinearSlewPerSec,
		"angular_slew_per_s": c.AngularSlewPerSec,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("control: %s must be finite and non-negative, got %v", name, v)
		}
	}
	if c.MaxLinear <= 0 || c.MaxAngular <= 0 {
		return fmt.Errorf("control: saturation limits must be positive, got linear=%v angular=%v",
			c.MaxLinear, c.MaxAngular)
	}
	if c.FailSafe != FailSafeHold && c.FailSafe != FailSafeZero {
		return fmt.Errorf("control: unknown fail-safe policy %q", c.FailSafe)
	}
	return nil
}

// Controller is a stateful go-to-goal controller. The PID state record is
// owned exclusively by this instance and reset only on goal transitions or
// explicit Reset. Not safe for concurrent use.
type Controller struct {
	cfg  Config
	mode Mode
	goal belief.Pose

	// PID state
	integral  float64
	prevError float64
	hasPrev   bool

	lastUpdate    units.Seconds
	hasUpdate     bool
	lastCommand   belief.ControlInput
	lastCommandAt units.Seconds
}

// New creates an idle controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, mode: ModeIdle}, nil
}

// SetGoal assigns a goal pose and transitions to Tracking. PID state is
// reset so history from a previous goal cannot leak into this one.
func (c *Controller) SetGoal(goal belief.Pose) error {
	if !goal.IsFinite() {
		return fmt.Errorf("control: goal pose: %w", units.ErrNonFinite)
	}
	c.goal = belief.Pose{X: goal.X, Y: goal.Y, Yaw: goal.Yaw.Wrap()}
	c.mode = ModeTracking
	c.resetState()
	return nil
}

// ClearGoal cancels tracking and returns to Idle with a zero command.
func (c *Controller) ClearGoal() {
	c.mode = ModeIdle
	c.resetState()
	c.lastCommand = belief.ControlInput{}
}

// Reset clears all controller state and returns to Idle.
func (c *Controller) Reset() {
	c.ClearGoal()
	c.hasUpdate = false
	c.lastCommandAt = 0
}

func (c *Controller) resetState() {
	c.integral = 0
	c.prevError = 0
	c.hasPrev = false
}

// Mode returns the current lifecycle state.
func (c *Controller) Mode() Mode { return c.mode }

// Goal returns the active goal. Meaningful only while Tracking.
func (c *Controller) Goal() belief.Pose { return c.goal }

// LastCommand returns the most recently emitted command.
func (c *Controller) LastCommand() belief.ControlInput { return c.lastCommand }

// LastCommandTimestamp returns when the last command was emitted. External
// watchdogs derive command age from this.
func (c *Controller) LastCommandTimestamp() units.Seconds { return c.lastCommandAt }

// LastCommandAge returns now minus the last command timestamp.
func (c *Controller) LastCommandAge(now units.Seconds) units.Seconds {
	return now.Sub(c.lastCommandAt)
}

// Update maps (belief snapshot, goal, elapsed time) to a bounded command.
//
// Anomalous intervals flagged by the guard are never integrated over: the
// configured fail-safe command is emitted instead and the PID state is left
// untouched. The returned error classifies what happened; the returned
// command is always safe to actuate.
func (c *Controller) Update(snap belief.Snapshot, t units.Seconds, guard stepguard.Guard) (belief.ControlInput, error) {
	if !t.IsFinite() {
		// A garbage timestamp must not be recorded as the last command
		// time or the command-age watchdog reads NaN forever after.
		if c.cfg.FailSafe == FailSafeZero {
			c.lastCommand = belief.ControlInput{}
		}
		return c.lastCommand, fmt.Errorf("control: update time: %w", units.ErrNonFinite)
	}
	if c.mode == ModeIdle {
		c.emit(belief.ControlInput{}, t)
		return c.lastCommand, nil
	}
	if !snap.Initialized {
		return c.failSafe(t), ErrBeliefUninitialized
	}
	if snap.Diverged {
		return c.failSafe(t), ErrBeliefDiverged
	}

	if c.hasUpdate && t < c.lastUpdate {
		return c.lastCommand, fmt.Errorf("%w: t=%.6f previous=%.6f",
			ErrTimeBackward, t.Float(), c.lastUpdate.Float())
	}

	if !c.hasUpdate {
		// First tick after goal assignment: no interval to integrate yet.
		c.lastUpdate = t
		c.hasUpdate = true
		c.emit(belief.ControlInput{}, t)
		return c.lastCommand, nil
	}

	dt := t.Sub(c.lastUpdate)
	if err := guard.Check(dt); err != nil {
		// Corrupted interval: apply the degradation policy without
		// touching the integrator or error history.
		c.lastUpdate = t
		return c.failSafe(t), err
	}
	c.lastUpdate = t

	dx := c.goal.X.Sub(snap.Pose.X)
	dy := c.goal.Y.Sub(snap.Pose.Y)
	distance := units.Hypot(dx, dy)
	headingErr := units.AngularDistance(snap.Pose.Yaw, units.Bearing(dx, dy)).Float()

	if c.goalReached(distance, snap.Pose.Yaw) {
		c.mode = ModeIdle
		c.resetState()
		c.emit(belief.ControlInput{}, t)
		return c.lastCommand, nil
	}

	// PID on heading error. Derivative uses the stored previous error, not
	// a re-differentiated raw signal, to limit derivative kick.
	dts := dt.Float()
	c.integral = clamp(c.integral+headingErr*dts, c.cfg.IntegralLimit)
	var derivative float64
	if c.hasPrev && dts > 0 {
		derivative = (headingErr - c.prevError) / dts
	}
	c.prevError = headingErr
	c.hasPrev = true

	angularRaw := c.cfg.Kp*headingErr + c.cfg.Ki*c.integral + c.cfg.Kd*derivative

	// Forward speed proportional to distance, gated by alignment: no
	// forward drive while pointing away from the goal.
	linearRaw := c.cfg.ApproachGain * distance.Float()
	if align := math.Cos(headingErr); align > 0 {
		linearRaw *= align
	} else {
		linearRaw = 0
	}

	cmd := belief.ControlInput{
		Linear:  units.MetersPerSecond(clamp(linearRaw, c.cfg.MaxLinear.Float())),
		Angular: units.RadiansPerSecond(clamp(angularRaw, c.cfg.MaxAngular.Float())),
	}
	cmd = c.slewLimit(cmd, dt)

	c.emit(cmd, t)
	return cmd, nil
}

func (c *Controller) goalReached(distance units.Meters, yaw units.Radians) bool {
	if distance > c.cfg.GoalPositionTolerance {
		return false
	}
	if c.cfg.GoalHeadingTolerance <= 0 {
		return true
	}
	residual := units.AngularDistance(yaw, c.goal.Yaw)
	return math.Abs(residual.Float()) <= c.cfg.GoalHeadingTolerance.Float()
}

// slewLimit bounds the change relative to the previously emitted command.
func (c *Controller) slewLimit(cmd belief.ControlInput, dt units.Seconds) belief.ControlInput {
	maxDLin := c.cfg.LinearSlewPerSec * dt.Float()
	maxDAng := c.cfg.AngularSlewPerSec * dt.Float()

	lin := clampDelta(c.lastCommand.Linear.Float(), cmd.Linear.Float(), maxDLin)
	ang := clampDelta(c.lastCommand.Angular.Float(), cmd.Angular.Float(), maxDAng)

	return belief.ControlInput{
		Linear:  units.MetersPerSecond(lin),
		Angular: units.RadiansPerSecond(ang),
	}
}

func (c *Controller) failSafe(t units.Seconds) belief.ControlInput {
	if c.cfg.FailSafe == FailSafeZero {
		c.emit(belief.ControlInput{}, t)
	} else {
		c.emit(c.lastCommand, t)
	}
	return c.lastCommand
}

func (c *Controller) emit(cmd belief.ControlInput, t units.Seconds) {
	c.lastCommand = cmd
	c.lastCommandAt = t
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func clampDelta(prev, next, maxDelta float64) float64 {
	if maxDelta <= 0 {
		return prev
	}
	delta := next - prev
	if delta > maxDelta {
		return prev + maxDelta
	}
	if delta < -maxDelta {
		return prev - maxDelta
	}
	return next
}
