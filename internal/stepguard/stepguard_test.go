package stepguard

import (
	"errors"
	"math"
	"testing"

	"github.com/meridian-robotics/navcore/internal/units"
)

func TestAcceptable(t *testing.T) {
	g, err := New(0.01, 0.002)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		dt   units.Seconds
		want bool
	}{
		{0.0105, true},
		{0.02, false},
		{0.01, true},
		{0.008, true},
		{0.012, true},
		{0.0079, false},
		{0.0121, false},
		{0, false},
		{-0.01, false},
	}

	for _, tc := range cases {
		if got := g.Acceptable(tc.dt); got != tc.want {
			t.Errorf("Acceptable(%v) = %v, want %v", tc.dt, got, tc.want)
		}
	}
}

func TestCheckWrapsSentinel(t *testing.T) {
	g, _ := New(0.01, 0.002)

	if err := g.Check(0.0105); err != nil {
		t.Errorf("Check(0.0105) = %v, want nil", err)
	}
	if err := g.Check(0.02); !errors.Is(err, ErrStepRejected) {
		t.Errorf("Check(0.02) = %v, want ErrStepRejected", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(0, 0.001); err == nil {
		t.Error("New accepted zero expected period")
	}
	if _, err := New(-0.01, 0.001); err == nil {
		t.Error("New accepted negative expected period")
	}
	if _, err := New(0.01, -0.001); err == nil {
		t.Error("New accepted negative tolerance")
	}
	if _, err := New(units.Seconds(math.NaN()), 0.001); !errors.Is(err, units.ErrNonFinite) {
		t.Error("New accepted NaN expected period")
	}
}
