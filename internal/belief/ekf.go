package belief

import (
	"fmt"
	"math"

	"github.com/meridian-robotics/navcore/internal/units"
)

// Predict advances the belief to time t using the unicycle motion model:
//
//	x' = x + v*cos(yaw)*dt
//	y' = y + v*sin(yaw)*dt
//	yaw' = wrap(yaw + w*dt)
//
// Covariance is propagated through the motion Jacobian and grown by the
// configured process noise. Time must not run backward: t older than the
// belief beyond tolerance is rejected and the state untouched.
func (b *Belief) Predict(u ControlInput, t units.Seconds) error {
	if !b.initialized {
		return ErrNotInitialized
	}
	if b.diverged {
		return ErrDiverged
	}
	if !u.IsFinite() || !t.IsFinite() {
		return fmt.Errorf("belief: predict input: %w", units.ErrNonFinite)
	}

	dt := t.Sub(b.t)
	if dt < -b.opts.TimeTolerance {
		return fmt.Errorf("%w: predict t=%.6f behind belief t=%.6f",
			ErrTimeBackward, t.Float(), b.t.Float())
	}
	if dt < 0 {
		dt = 0
	}

	v := u.Linear.Float()
	yaw := b.pose.Yaw.Float()
	dts := dt.Float()

	sin, cos := math.Sincos(yaw)

	b.pose.X += u.Linear.DistanceOver(dt).Scale(cos)
	b.pose.Y += u.Linear.DistanceOver(dt).Scale(sin)
	b.pose.Yaw = b.pose.Yaw.Add(u.Angular.AngleOver(dt)).Wrap()

	// Jacobian of the motion model with respect to the state.
	f := b.scratchF
	f.SetRow(0, []float64{1, 0, -v * sin * dts})
	f.SetRow(1, []float64{0, 1, v * cos * dts})
	f.SetRow(2, []float64{0, 0, 1})

	// P = F P F^T + Q*dt
	b.scratchA.Mul(f, b.cov)
	b.scratchB.Mul(b.scratchA, f.T())
	b.cov.Copy(b.scratchB)
	b.cov.Set(0, 0, b.cov.At(0, 0)+b.opts.ProcessNoise.X*dts)
	b.cov.Set(1, 1, b.cov.At(1, 1)+b.opts.ProcessNoise.Y*dts)
	b.cov.Set(2, 2, b.cov.At(2, 2)+b.opts.ProcessNoise.Yaw*dts)
	symmetrize(b.cov)

	b.t = t
	b.checkDivergence()
	return nil
}

// PositionNoise is the 2x2 measurement noise for a position observation.
type PositionNoise struct {
	XX float64
	XY float64
	YY float64
}

// CorrectPosition folds an (x, y) observation into the belief. Callers
// must Predict up to the measurement timestamp first; a measurement behind
// the belief beyond tolerance is rejected unapplied.
func (b *Belief) CorrectPosition(z PositionMeasurement, r PositionNoise) error {
	if !b.initialized {
		return ErrNotInitialized
	}
	if b.diverged {
		return ErrDiverged
	}
	if !z.X.IsFinite() || !z.Y.IsFinite() || !z.Timestamp.IsFinite() {
		return fmt.Errorf("belief: position measurement: %w", units.ErrNonFinite)
	}
	if lag := b.t.Sub(z.Timestamp); lag > b.opts.TimeTolerance {
		return fmt.Errorf("%w: measurement t=%.6f, belief t=%.6f",
			ErrStaleMeasurement, z.Timestamp.Float(), b.t.Float())
	}

	// Innovation: h is the identity on (x, y).
	yX := z.X.Sub(b.pose.X).Float()
	yY := z.Y.Sub(b.pose.Y).Float()

	// S = H P H^T + R, the (x, y) block of P plus noise.
	s00 := b.cov.At(0, 0) + r.XX
	s01 := b.cov.At(0, 1) + r.XY
	s10 := b.cov.At(1, 0) + r.XY
	s11 := b.cov.At(1, 1) + r.YY

	det := s00*s11 - s01*s10
	if det < minInnovationDeterminant {
		return fmt.Errorf("%w: det(S)=%v", ErrSingularInnovation, det)
	}
	inv00 := s11 / det
	inv01 := -s01 / det
	inv10 := -s10 / det
	inv11 := s00 / det

	// K = P H^T S^-1, 3x2.
	var k [6]float64
	for i := 0; i < 3; i++ {
		k[i*2+0] = b.cov.At(i, 0)*inv00 + b.cov.At(i, 1)*inv10
		k[i*2+1] = b.cov.At(i, 0)*inv01 + b.cov.At(i, 1)*inv11
	}

	b.pose.X += units.Meters(k[0]*yX + k[1]*yY)
	b.pose.Y += units.Meters(k[2]*yX + k[3]*yY)
	b.pose.Yaw = b.pose.Yaw.Add(units.Radians(k[4]*yX + k[5]*yY)).Wrap()

	b.josephUpdate2(k, r)
	b.checkDivergence()
	return nil
}

// CorrectHeading folds a yaw observation into the belief. The innovation is
// wrapped to the shortest arc before use so a measurement of -3.1 against a
// belief of +3.1 nudges across the boundary rather than spinning the long
// way round.
func (b *Belief) CorrectHeading(z HeadingMeasurement, yawNoise float64) error {
	if !b.initialized {
		return ErrNotInitialized
	}
	if b.diverged {
		return ErrDiverged
	}
	if !z.Yaw.IsFinite() || !z.Timestamp.IsFinite() ||
		math.IsNaN(yawNoise) || math.IsInf(yawNoise, 0) {
		return fmt.Errorf("belief: heading measurement: %w", units.ErrNonFinite)
	}
	if lag := b.t.Sub(z.Timestamp); lag > b.opts.TimeTolerance {
		return fmt.Errorf("%w: measurement t=%.6f, belief t=%.6f",
			ErrStaleMeasurement, z.Timestamp.Float(), b.t.Float())
	}

	innovation := units.AngularDistance(b.pose.Yaw, z.Yaw).Float()

	s := b.cov.At(2, 2) + yawNoise
	if s < minInnovationDeterminant {
		return fmt.Errorf("%w: S=%v", ErrSingularInnovation, s)
	}

	// K = P H^T / S with H = [0 0 1], 3x1.
	k0 := b.cov.At(0, 2) / s
	k1 := b.cov.At(1, 2) / s
	k2 := b.cov.At(2, 2) / s

	b.pose.X += units.Meters(k0 * innovation)
	b.pose.Y += units.Meters(k1 * innovation)
	b.pose.Yaw = b.pose.Yaw.Add(units.Radians(k2 * innovation)).Wrap()

	b.josephUpdate1([3]float64{k0, k1, k2}, yawNoise)
	b.checkDivergence()
	return nil
}

// josephUpdate2 applies P = (I-KH) P (I-KH)^T + K R K^T for the position
// measurement (H = [I2 0]). The Joseph form keeps P positive semi-definite
// under floating-point error where the short form (I-KH)P does not.
func (b *Belief) josephUpdate2(k [6]float64, r PositionNoise) {
	// I - K H: columns 0 and 1 of each row subtract the gain, column 2 is
	// untouched by H.
	ikh := b.scratchF
	ikh.SetRow(0, []float64{1 - k[0], -k[1], 0})
	ikh.SetRow(1, []float64{-k[2], 1 - k[3], 0})
	ikh.SetRow(2, []float64{-k[4], -k[5], 1})

	b.scratchA.Mul(ikh, b.cov)
	b.scratchB.Mul(b.scratchA, ikh.T())

	// K R K^T term.
	for i := 0; i < 3; i++ {
		riX := k[i*2+0]*r.XX + k[i*2+1]*r.XY
		riY := k[i*2+0]*r.XY + k[i*2+1]*r.YY
		for j := 0; j < 3; j++ {
			b.scratchB.Set(i, j, b.scratchB.At(i, j)+riX*k[j*2+0]+riY*k[j*2+1])
		}
	}

	b.cov.Copy(b.scratchB)
	symmetrize(b.cov)
}

// josephUpdate1 is the scalar-measurement Joseph update (H = [0 0 1]).
func (b *Belief) josephUpdate1(k [3]float64, r float64) {
	ikh := b.scratchF
	ikh.SetRow(0, []float64{1, 0, -k[0]})
	ikh.SetRow(1, []float64{0, 1, -k[1]})
	ikh.SetRow(2, []float64{0, 0, 1 - k[2]})

	b.scratchA.Mul(ikh, b.cov)
	b.scratchB.Mul(b.scratchA, ikh.T())

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b.scratchB.Set(i, j, b.scratchB.At(i, j)+k[i]*r*k[j])
		}
	}

	b.cov.Copy(b.scratchB)
	symmetrize(b.cov)
}
