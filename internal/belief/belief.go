// Package belief owns the robot's estimated pose and its uncertainty.
//
// The belief is an extended Kalman filter over (x, y, yaw) with explicit
// prediction/correction separation: Predict advances the mean through the
// unicycle motion model and grows covariance, Correct folds in a sensor
// observation and shrinks it. These two calls are the only mutators.
package belief

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/meridian-robotics/navcore/internal/units"
)

var (
	// ErrNotInitialized is returned by mutators called before Initialize.
	ErrNotInitialized = errors.New("belief: not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize; callers
	// that want a new prior must call Reset to signal intent.
	ErrAlreadyInitialized = errors.New("belief: already initialized, use Reset")

	// ErrTimeBackward is returned when a predict timestamp precedes the
	// belief's current timestamp beyond tolerance. The call is a no-op.
	ErrTimeBackward = errors.New("belief: time moved backward beyond tolerance")

	// ErrStaleMeasurement is returned when a correction's timestamp
	// precedes the belief's current timestamp beyond tolerance.
	ErrStaleMeasurement = errors.New("belief: measurement older than belief beyond tolerance")

	// ErrDiverged is returned by mutators while the divergence flag is
	// set. Only Reset clears it.
	ErrDiverged = errors.New("belief: filter diverged, reset required")

	// ErrSingularInnovation is returned when the innovation covariance is
	// too close to singular to invert safely.
	ErrSingularInnovation = errors.New("belief: singular innovation covariance")
)

// minInnovationDeterminant is the floor below which the innovation
// covariance is treated as singular and the correction rejected.
const minInnovationDeterminant = 1e-9

// Pose is a planar position and heading in the fixed world frame.
// Yaw is canonical, (-pi, pi].
type Pose struct {
	X   units.Meters
	Y   units.Meters
	Yaw units.Radians
}

// IsFinite reports whether all pose components are finite.
func (p Pose) IsFinite() bool {
	return p.X.IsFinite() && p.Y.IsFinite() && p.Yaw.IsFinite()
}

// ControlInput is the commanded (or observed) body motion used for
// prediction and emitted by the controller.
type ControlInput struct {
	Linear  units.MetersPerSecond
	Angular units.RadiansPerSecond
}

// IsFinite reports whether both command components are finite.
func (u ControlInput) IsFinite() bool {
	return u.Linear.IsFinite() && u.Angular.IsFinite()
}

// PositionMeasurement is an observed world-frame (x, y) with its
// measurement-time stamp.
type PositionMeasurement struct {
	X         units.Meters
	Y         units.Meters
	Timestamp units.Seconds
}

// HeadingMeasurement is an observed yaw with its measurement-time stamp.
type HeadingMeasurement struct {
	Yaw       units.Radians
	Timestamp units.Seconds
}

// ProcessNoise is the per-second covariance growth along each state axis.
type ProcessNoise struct {
	X   float64
	Y   float64
	Yaw float64
}

// Options configures a Belief instance. All fields are fixed at
// construction; reconfiguration means building a new instance.
type Options struct {
	// ProcessNoise grows the covariance diagonal per second of prediction.
	ProcessNoise ProcessNoise

	// TimeTolerance is how far a timestamp may lag the belief before
	// Predict reports ErrTimeBackward / Correct reports ErrStaleMeasurement.
	TimeTolerance units.Seconds

	// DivergenceCeiling caps any covariance diagonal entry; exceeding it
	// sets the sticky diverged flag.
	DivergenceCeiling float64
}

// Validate checks the options for non-finite or out-of-domain values.
func (o Options) Validate() error {
	for _, v := range []float64{o.ProcessNoise.X, o.ProcessNoise.Y, o.ProcessNoise.Yaw, o.DivergenceCeiling} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("belief: noise/ceiling values must be finite and non-negative, got %v", v)
		}
	}
	if !o.TimeTolerance.IsFinite() || o.TimeTolerance < 0 {
		return fmt.Errorf("belief: time tolerance must be finite and non-negative, got %v", o.TimeTolerance)
	}
	if o.DivergenceCeiling == 0 {
		return fmt.Errorf("belief: divergence ceiling must be set")
	}
	return nil
}

// Belief is the single owned source of truth for where the robot thinks it
// is. Not safe for concurrent use; callers serialize access.
type Belief struct {
	opts Options

	initialized bool
	diverged    bool

	pose Pose
	cov  *mat.Dense // 3x3 over (x, y, yaw)
	t    units.Seconds

	// Scratch space so the steady-state update path does not allocate.
	scratchA *mat.Dense // 3x3
	scratchB *mat.Dense // 3x3
	scratchF *mat.Dense // 3x3, Jacobian / (I-KH)
}

// New creates an uninitialized Belief. Mutators fail until Initialize.
func New(opts Options) (*Belief, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Belief{
		opts:     opts,
		cov:      mat.NewDense(3, 3, nil),
		scratchA: mat.NewDense(3, 3, nil),
		scratchB: mat.NewDense(3, 3, nil),
		scratchF: mat.NewDense(3, 3, nil),
	}, nil
}

// Initialize installs the caller-supplied prior. Allowed exactly once per
// logical run; later priors go through Reset.
func (b *Belief) Initialize(prior Pose, priorCov *mat.Dense, t0 units.Seconds) error {
	if b.initialized {
		return ErrAlreadyInitialized
	}
	return b.install(prior, priorCov, t0)
}

// Reset reinstalls a prior, clearing the divergence flag. The belief stays
// Initialized; there is no path back to Uninitialized.
func (b *Belief) Reset(prior Pose, priorCov *mat.Dense, t0 units.Seconds) error {
	if !b.initialized {
		return ErrNotInitialized
	}
	return b.install(prior, priorCov, t0)
}

func (b *Belief) install(prior Pose, priorCov *mat.Dense, t0 units.Seconds) error {
	if !prior.IsFinite() || !t0.IsFinite() {
		return fmt.Errorf("belief: prior pose/timestamp: %w", units.ErrNonFinite)
	}
	if r, c := priorCov.Dims(); r != 3 || c != 3 {
		return fmt.Errorf("belief: prior covariance must be 3x3, got %dx%d", r, c)
	}
	for i := 0; i < 3; i++ {
		d := priorCov.At(i, i)
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return fmt.Errorf("belief: prior covariance diagonal [%d]=%v must be finite and non-negative", i, d)
		}
	}

	b.pose = Pose{X: prior.X, Y: prior.Y, Yaw: prior.Yaw.Wrap()}
	b.cov.Copy(priorCov)
	symmetrize(b.cov)
	b.t = t0
	b.initialized = true
	b.diverged = false
	return nil
}

// Snapshot is the read-only view of the belief handed to the controller,
// the API, and the run log. Covariance is row-major (x, y, yaw).
type Snapshot struct {
	Pose        Pose
	Covariance  [9]float64
	Timestamp   units.Seconds
	Diverged    bool
	Initialized bool
}

// Snapshot returns a deep copy of the current belief state.
func (b *Belief) Snapshot() Snapshot {
	s := Snapshot{
		Pose:        b.pose,
		Timestamp:   b.t,
		Diverged:    b.diverged,
		Initialized: b.initialized,
	}
	if b.initialized {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				s.Covariance[i*3+j] = b.cov.At(i, j)
			}
		}
	}
	return s
}

// Diverged reports the sticky divergence flag.
func (b *Belief) Diverged() bool { return b.diverged }

// Initialized reports whether a prior has been installed.
func (b *Belief) Initialized() bool { return b.initialized }

// Timestamp returns the belief's current monotonic timestamp.
func (b *Belief) Timestamp() units.Seconds { return b.t }

// symmetrize forces P = (P + P^T)/2 and clamps negative diagonal entries,
// guarding the PSD invariant against floating-point drift.
func symmetrize(p *mat.Dense) {
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			v := (p.At(i, j) + p.At(j, i)) / 2
			p.Set(i, j, v)
			p.Set(j, i, v)
		}
		if p.At(i, i) < 0 {
			p.Set(i, i, 0)
		}
	}
}

// checkDivergence sets the sticky flag when any variance exceeds the
// configured ceiling.
func (b *Belief) checkDivergence() {
	for i := 0; i < 3; i++ {
		if b.cov.At(i, i) > b.opts.DivergenceCeiling {
			b.diverged = true
			return
		}
	}
}
