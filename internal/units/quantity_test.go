package units

import (
	"errors"
	"math"
	"testing"
)

func TestCheckedConstructorsRejectNonFinite(t *testing.T) {
	bad := []float64{math.NaN(), math.Inf(1), math.Inf(-1)}

	for _, v := range bad {
		if _, err := NewSeconds(v); !errors.Is(err, ErrNonFinite) {
			t.Errorf("NewSeconds(%v) error = %v, want ErrNonFinite", v, err)
		}
		if _, err := NewMeters(v); !errors.Is(err, ErrNonFinite) {
			t.Errorf("NewMeters(%v) error = %v, want ErrNonFinite", v, err)
		}
		if _, err := NewRadians(v); !errors.Is(err, ErrNonFinite) {
			t.Errorf("NewRadians(%v) error = %v, want ErrNonFinite", v, err)
		}
		if _, err := NewMetersPerSecond(v); !errors.Is(err, ErrNonFinite) {
			t.Errorf("NewMetersPerSecond(%v) error = %v, want ErrNonFinite", v, err)
		}
		if _, err := NewRadiansPerSecond(v); !errors.Is(err, ErrNonFinite) {
			t.Errorf("NewRadiansPerSecond(%v) error = %v, want ErrNonFinite", v, err)
		}
	}

	if s, err := NewSeconds(1.5); err != nil || s != 1.5 {
		t.Errorf("NewSeconds(1.5) = %v, %v; want 1.5, nil", s, err)
	}
}

func TestWrapCanonicalRange(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi, math.Pi},
		{2 * math.Pi, 0},
		{-2 * math.Pi, 0},
		{math.Pi / 2, math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi / 2, math.Pi / 2},
	}

	for _, tc := range cases {
		got := Radians(tc.in).Wrap()
		if math.Abs(float64(got)-tc.want) > 1e-12 {
			t.Errorf("Wrap(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWrapIdempotentAndInRange(t *testing.T) {
	for theta := -50.0; theta <= 50.0; theta += 0.37 {
		once := Radians(theta).Wrap()
		twice := once.Wrap()

		if float64(once) <= -math.Pi || float64(once) > math.Pi {
			t.Errorf("Wrap(%v) = %v outside (-pi, pi]", theta, once)
		}
		if once != twice {
			t.Errorf("Wrap not idempotent at %v: %v != %v", theta, once, twice)
		}
	}
}

func TestAngularDistanceShortestArc(t *testing.T) {
	// Crossing the +/- pi boundary must take the short way round.
	a := Radians(3.0)
	b := Radians(-3.0)
	d := AngularDistance(a, b)

	want := 2*math.Pi - 6.0
	if math.Abs(float64(d)-want) > 1e-12 {
		t.Errorf("AngularDistance(3, -3) = %v, want %v", d, want)
	}

	if d := AngularDistance(0.5, 1.0); math.Abs(float64(d)-0.5) > 1e-12 {
		t.Errorf("AngularDistance(0.5, 1.0) = %v, want 0.5", d)
	}
}

func TestNamedConversions(t *testing.T) {
	if d := MetersPerSecond(2.0).DistanceOver(Seconds(3.0)); d != 6.0 {
		t.Errorf("DistanceOver = %v, want 6.0", d)
	}
	if a := RadiansPerSecond(0.5).AngleOver(Seconds(4.0)); a != 2.0 {
		t.Errorf("AngleOver = %v, want 2.0", a)
	}
	if v := Meters(10.0).RateOver(Seconds(4.0)); v != 2.5 {
		t.Errorf("RateOver = %v, want 2.5", v)
	}
}

func TestBearingAndHypot(t *testing.T) {
	if b := Bearing(Meters(0), Meters(1)); math.Abs(float64(b)-math.Pi/2) > 1e-12 {
		t.Errorf("Bearing(0,1) = %v, want pi/2", b)
	}
	if h := Hypot(Meters(3), Meters(4)); h != 5.0 {
		t.Errorf("Hypot(3,4) = %v, want 5", h)
	}
}

func TestConvertSpeed(t *testing.T) {
	if got := ConvertSpeed(MetersPerSecond(10), MPH); math.Abs(got-22.3694) > 1e-9 {
		t.Errorf("ConvertSpeed mph = %v, want 22.3694", got)
	}
	if got := ConvertSpeed(MetersPerSecond(10), KPH); got != 36.0 {
		t.Errorf("ConvertSpeed kph = %v, want 36", got)
	}
	if got := ConvertSpeed(MetersPerSecond(10), MPS); got != 10.0 {
		t.Errorf("ConvertSpeed mps = %v, want 10", got)
	}
	if !IsValid(MPH) || IsValid("furlongs") {
		t.Error("IsValid misclassified units")
	}
}
