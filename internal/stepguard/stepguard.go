// Package stepguard classifies elapsed control intervals. Scheduling jitter
// or time-base faults show up as intervals far from the expected period;
// both the estimator and controller call sites use the guard to decide
// between proceeding and invoking their degradation policy.
package stepguard

import (
	"errors"
	"fmt"

	"github.com/meridian-robotics/navcore/internal/units"
)

// ErrStepRejected is returned by Check for an anomalous interval.
var ErrStepRejected = errors.New("stepguard: interval outside tolerance")

// Guard holds the expected fixed-step period and its tolerance.
// Pure and stateless: the same dt always classifies the same way.
type Guard struct {
	Expected  units.Seconds
	Tolerance units.Seconds
}

// New validates the period and tolerance and returns a Guard.
func New(expected, tolerance units.Seconds) (Guard, error) {
	if !expected.IsFinite() || !tolerance.IsFinite() {
		return Guard{}, fmt.Errorf("stepguard: expected=%v tolerance=%v: %w",
			expected, tolerance, units.ErrNonFinite)
	}
	if expected <= 0 {
		return Guard{}, fmt.Errorf("stepguard: expected period must be positive, got %v", expected)
	}
	if tolerance < 0 {
		return Guard{}, fmt.Errorf("stepguard: tolerance must be non-negative, got %v", tolerance)
	}
	return Guard{Expected: expected, Tolerance: tolerance}, nil
}

// Acceptable reports whether dt is within tolerance of the expected period.
func (g Guard) Acceptable(dt units.Seconds) bool {
	return (dt - g.Expected).Abs() <= g.Tolerance
}

// Check returns ErrStepRejected (wrapped with the observed interval) when
// dt is anomalous, nil otherwise.
func (g Guard) Check(dt units.Seconds) error {
	if g.Acceptable(dt) {
		return nil
	}
	return fmt.Errorf("%w: dt=%.6fs expected=%.6fs±%.6fs",
		ErrStepRejected, dt.Float(), g.Expected.Float(), g.Tolerance.Float())
}
