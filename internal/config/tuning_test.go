package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.ProcessNoiseX == nil || *cfg.ProcessNoiseX != 0.01 {
		t.Errorf("Expected ProcessNoiseX 0.01, got %v", cfg.ProcessNoiseX)
	}
	if cfg.Kp == nil || *cfg.Kp != 1.8 {
		t.Errorf("Expected Kp 1.8, got %v", cfg.Kp)
	}
	if cfg.FailSafe == nil || *cfg.FailSafe != "hold" {
		t.Errorf("Expected FailSafe 'hold', got %v", cfg.FailSafe)
	}
	if cfg.BufferCapacity == nil || *cfg.BufferCapacity != 200 {
		t.Errorf("Expected BufferCapacity 200, got %v", cfg.BufferCapacity)
	}

	// Test getter methods
	if cfg.GetControlPeriodSec() != 0.1 {
		t.Errorf("GetControlPeriodSec() = %f, want 0.1", cfg.GetControlPeriodSec())
	}
	if cfg.GetDivergenceCeiling() != 50.0 {
		t.Errorf("GetDivergenceCeiling() = %f, want 50.0", cfg.GetDivergenceCeiling())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestGettersSupplyDefaultsForEmptyConfig(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetKp() != 1.8 {
		t.Errorf("GetKp() = %f, want 1.8", cfg.GetKp())
	}
	if cfg.GetMaxLinearMps() != 0.5 {
		t.Errorf("GetMaxLinearMps() = %f, want 0.5", cfg.GetMaxLinearMps())
	}
	if cfg.GetBufferCapacity() != 200 {
		t.Errorf("GetBufferCapacity() = %d, want 200", cfg.GetBufferCapacity())
	}
	if cfg.GetFailSafe() != "hold" {
		t.Errorf("GetFailSafe() = %q, want hold", cfg.GetFailSafe())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Partial config: unspecified fields fall back to defaults.
	testJSON := `{
  "process_noise_x": 0.02,
  "kp": 2.5,
  "fail_safe": "zero",
  "buffer_capacity": 50
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetProcessNoiseX() != 0.02 {
		t.Errorf("GetProcessNoiseX() = %f, want 0.02", cfg.GetProcessNoiseX())
	}
	if cfg.GetKp() != 2.5 {
		t.Errorf("GetKp() = %f, want 2.5", cfg.GetKp())
	}
	if cfg.GetFailSafe() != "zero" {
		t.Errorf("GetFailSafe() = %q, want zero", cfg.GetFailSafe())
	}
	if cfg.GetBufferCapacity() != 50 {
		t.Errorf("GetBufferCapacity() = %d, want 50", cfg.GetBufferCapacity())
	}
	// Unspecified field keeps its default.
	if cfg.GetKi() != 0.05 {
		t.Errorf("GetKi() = %f, want default 0.05", cfg.GetKi())
	}
}

func TestLoadTuningConfigRejectsBadFiles(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(tmpDir, "config.yaml")
		os.WriteFile(path, []byte("{}"), 0644)
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for non-json extension")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadTuningConfig(filepath.Join(tmpDir, "nope.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(tmpDir, "bad.json")
		os.WriteFile(path, []byte("{not json"), 0644)
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  *TuningConfig
		ok   bool
	}{
		{"empty is valid", EmptyTuningConfig(), true},
		{"negative noise", &TuningConfig{ProcessNoiseX: ptrFloat64(-0.1)}, false},
		{"zero period", &TuningConfig{ControlPeriodSec: ptrFloat64(0)}, false},
		{"zero saturation", &TuningConfig{MaxLinearMps: ptrFloat64(0)}, false},
		{"tiny buffer", &TuningConfig{BufferCapacity: ptrInt(1)}, false},
		{"bad fail-safe", &TuningConfig{FailSafe: ptrString("explode")}, false},
		{"valid overrides", &TuningConfig{Kp: ptrFloat64(3.0), FailSafe: ptrString("zero")}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tc.ok && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := DefaultTuningConfig()
	patch := &TuningConfig{Kp: ptrFloat64(9.9), FailSafe: ptrString("zero")}

	merged := base.Merge(patch)

	if merged.GetKp() != 9.9 {
		t.Errorf("merged Kp = %f, want 9.9", merged.GetKp())
	}
	if merged.GetFailSafe() != "zero" {
		t.Errorf("merged FailSafe = %q, want zero", merged.GetFailSafe())
	}
	// Untouched fields survive.
	if merged.GetKi() != 0.05 {
		t.Errorf("merged Ki = %f, want 0.05", merged.GetKi())
	}
	// Base is unchanged.
	if base.GetKp() != 1.8 {
		t.Errorf("base Kp mutated to %f", base.GetKp())
	}
}

func TestMergeNilAndEmptyOverlay(t *testing.T) {
	base := DefaultTuningConfig()

	if diff := cmp.Diff(base, base.Merge(nil)); diff != "" {
		t.Errorf("Merge(nil) changed config (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(base, base.Merge(EmptyTuningConfig())); diff != "" {
		t.Errorf("Merge(empty) changed config (-want +got):\n%s", diff)
	}
}

func TestMergeDoesNotMutateReceiver(t *testing.T) {
	base := DefaultTuningConfig()
	badKp := -5.0
	merged := base.Merge(&TuningConfig{Kp: &badKp})

	if merged.GetKp() != -5.0 {
		t.Errorf("merged GetKp() = %f, want -5.0", merged.GetKp())
	}
	if err := merged.Validate(); err == nil {
		t.Error("expected merged config with negative kp to fail validation")
	}
	// The rejected overlay must leave the base untouched: its pointees are
	// the live tuning the pipeline keeps serving.
	if base.GetKp() != 1.8 {
		t.Errorf("base GetKp() = %f after Merge, want 1.8", base.GetKp())
	}
	if diff := cmp.Diff(DefaultTuningConfig(), base); diff != "" {
		t.Errorf("base config mutated by Merge (-want +got):\n%s", diff)
	}
}
