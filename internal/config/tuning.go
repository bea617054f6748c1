package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for estimation and control
// tuning. The schema matches the /api/nav/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates. All
// fields are optional pointers; Get* methods supply defaults for anything
// the file omits, so partial configs are safe.
type TuningConfig struct {
	// Estimator params
	ProcessNoiseX     *float64 `json:"process_noise_x,omitempty"`
	ProcessNoiseY     *float64 `json:"process_noise_y,omitempty"`
	ProcessNoiseYaw   *float64 `json:"process_noise_yaw,omitempty"`
	PositionNoise     *float64 `json:"position_noise,omitempty"`
	HeadingNoise      *float64 `json:"heading_noise,omitempty"`
	TimeToleranceSec  *float64 `json:"time_tolerance_sec,omitempty"`
	DivergenceCeiling *float64 `json:"divergence_ceiling,omitempty"`

	// Controller params
	Kp                *float64 `json:"kp,omitempty"`
	Ki                *float64 `json:"ki,omitempty"`
	Kd                *float64 `json:"kd,omitempty"`
	IntegralLimit     *float64 `json:"integral_limit,omitempty"`
	ApproachGain      *float64 `json:"approach_gain,omitempty"`
	MaxLinearMps      *float64 `json:"max_linear_mps,omitempty"`
	MaxAngularRps     *float64 `json:"max_angular_rps,omitempty"`
	LinearSlewPerSec  *float64 `json:"linear_slew_per_sec,omitempty"`
	AngularSlewPerSec *float64 `json:"angular_slew_per_sec,omitempty"`
	GoalPositionTolM  *float64 `json:"goal_position_tol_m,omitempty"`
	GoalHeadingTolRad *float64 `json:"goal_heading_tol_rad,omitempty"`
	FailSafe          *string  `json:"fail_safe,omitempty"` // "hold" or "zero"

	// Fixed-step guard params
	ControlPeriodSec   *float64 `json:"control_period_sec,omitempty"`
	PeriodToleranceSec *float64 `json:"period_tolerance_sec,omitempty"`

	// Time buffer params
	BufferCapacity     *int     `json:"buffer_capacity,omitempty"`
	BufferToleranceSec *float64 `json:"buffer_tolerance_sec,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultTuningConfig returns a config with every field populated with the
// production default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		ProcessNoiseX:     ptrFloat64(0.01),
		ProcessNoiseY:     ptrFloat64(0.01),
		ProcessNoiseYaw:   ptrFloat64(0.005),
		PositionNoise:     ptrFloat64(0.05),
		HeadingNoise:      ptrFloat64(0.02),
		TimeToleranceSec:  ptrFloat64(0.005),
		DivergenceCeiling: ptrFloat64(50.0),

		Kp:                ptrFloat64(1.8),
		Ki:                ptrFloat64(0.05),
		Kd:                ptrFloat64(0.2),
		IntegralLimit:     ptrFloat64(1.0),
		ApproachGain:      ptrFloat64(0.8),
		MaxLinearMps:      ptrFloat64(0.5),
		MaxAngularRps:     ptrFloat64(1.5),
		LinearSlewPerSec:  ptrFloat64(1.0),
		AngularSlewPerSec: ptrFloat64(4.0),
		GoalPositionTolM:  ptrFloat64(0.05),
		GoalHeadingTolRad: ptrFloat64(0.1),
		FailSafe:          ptrString("hold"),

		ControlPeriodSec:   ptrFloat64(0.1),
		PeriodToleranceSec: ptrFloat64(0.02),

		BufferCapacity:     ptrInt(200),
		BufferToleranceSec: ptrFloat64(0.05),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file fall back to defaults
// through the Get* methods, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	nonNegative := map[string]*float64{
		"process_noise_x":      c.ProcessNoiseX,
		"process_noise_y":      c.ProcessNoiseY,
		"process_noise_yaw":    c.ProcessNoiseYaw,
		"position_noise":       c.PositionNoise,
		"heading_noise":        c.HeadingNoise,
		"time_tolerance_sec":   c.TimeToleranceSec,
		"integral_limit":       c.IntegralLimit,
		"kp":                   c.Kp,
		"ki":                   c.Ki,
		"kd":                   c.Kd,
		"approach_gain":        c.ApproachGain,
		"linear_slew_per_sec":  c.LinearSlewPerSec,
		"angular_slew_per_sec": c.AngularSlewPerSec,
		"goal_position_tol_m":  c.GoalPositionTolM,
		"goal_heading_tol_rad": c.GoalHeadingTolRad,
		"period_tolerance_sec": c.PeriodToleranceSec,
		"buffer_tolerance_sec": c.BufferToleranceSec,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	positive := map[string]*float64{
		"divergence_ceiling": c.DivergenceCeiling,
		"max_linear_mps":     c.MaxLinearMps,
		"max_angular_rps":    c.MaxAngularRps,
		"control_period_sec": c.ControlPeriodSec,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	if c.BufferCapacity != nil && *c.BufferCapacity < 2 {
		return fmt.Errorf("buffer_capacity must be at least 2, got %d", *c.BufferCapacity)
	}

	if c.FailSafe != nil && *c.FailSafe != "hold" && *c.FailSafe != "zero" {
		return fmt.Errorf("fail_safe must be \"hold\" or \"zero\", got %q", *c.FailSafe)
	}

	return nil
}

// GetProcessNoiseX returns the process_noise_x value or the default.
func (c *TuningConfig) GetProcessNoiseX() float64 {
	if c.ProcessNoiseX == nil {
		return 0.01
	}
	return *c.ProcessNoiseX
}

// GetProcessNoiseY returns the process_noise_y value or the default.
func (c *TuningConfig) GetProcessNoiseY() float64 {
	if c.ProcessNoiseY == nil {
		return 0.01
	}
	return *c.ProcessNoiseY
}

// GetProcessNoiseYaw returns the process_noise_yaw value or the default.
func (c *TuningConfig) GetProcessNoiseYaw() float64 {
	if c.ProcessNoiseYaw == nil {
		return 0.005
	}
	return *c.ProcessNoiseYaw
}

// GetPositionNoise returns the position_noise value or the default.
func (c *TuningConfig) GetPositionNoise() float64 {
	if c.PositionNoise == nil {
		return 0.05
	}
	return *c.PositionNoise
}

// GetHeadingNoise returns the heading_noise value or the default.
func (c *TuningConfig) GetHeadingNoise() float64 {
	if c.HeadingNoise == nil {
		return 0.02
	}
	return *c.HeadingNoise
}

// GetTimeToleranceSec returns the time_tolerance_sec value or the default.
func (c *TuningConfig) GetTimeToleranceSec() float64 {
	if c.TimeToleranceSec == nil {
		return 0.005
	}
	return *c.TimeToleranceSec
}

// GetDivergenceCeiling returns the divergence_ceiling value or the default.
func (c *TuningConfig) GetDivergenceCeiling() float64 {
	if c.DivergenceCeiling == nil {
		return 50.0
	}
	return *c.DivergenceCeiling
}

// GetKp returns the kp value or the default.
func (c *TuningConfig) GetKp() float64 {
	if c.Kp == nil {
		return 1.8
	}
	return *c.Kp
}

// GetKi returns the ki value or the default.
func (c *TuningConfig) GetKi() float64 {
	if c.Ki == nil {
		return 0.05
	}
	return *c.Ki
}

// GetKd returns the kd value or the default.
func (c *TuningConfig) GetKd() float64 {
	if c.Kd == nil {
		return 0.2
	}
	return *c.Kd
}

// GetIntegralLimit returns the integral_limit value or the default.
func (c *TuningConfig) GetIntegralLimit() float64 {
	if c.IntegralLimit == nil {
		return 1.0
	}
	return *c.IntegralLimit
}

// GetApproachGain returns the approach_gain value or the default.
func (c *TuningConfig) GetApproachGain() float64 {
	if c.ApproachGain == nil {
		return 0.8
	}
	return *c.ApproachGain
}

// GetMaxLinearMps returns the max_linear_mps value or the default.
func (c *TuningConfig) GetMaxLinearMps() float64 {
	if c.MaxLinearMps == nil {
		return 0.5
	}
	return *c.MaxLinearMps
}

// GetMaxAngularRps returns the max_angular_rps value or the default.
func (c *TuningConfig) GetMaxAngularRps() float64 {
	if c.MaxAngularRps == nil {
		return 1.5
	}
	return *c.MaxAngularRps
}

// GetLinearSlewPerSec returns the linear_slew_per_sec value or the default.
func (c *TuningConfig) GetLinearSlewPerSec() float64 {
	if c.LinearSlewPerSec == nil {
		return 1.0
	}
	return *c.LinearSlewPerSec
}

// GetAngularSlewPerSec returns the angular_slew_per_sec value or the default.
func (c *TuningConfig) GetAngularSlewPerSec() float64 {
	if c.AngularSlewPerSec == nil {
		return 4.0
	}
	return *c.AngularSlewPerSec
}

// GetGoalPositionTolM returns the goal_position_tol_m value or the default.
func (c *TuningConfig) GetGoalPositionTolM() float64 {
	if c.GoalPositionTolM == nil {
		return 0.05
	}
	return *c.GoalPositionTolM
}

// GetGoalHeadingTolRad returns the goal_heading_tol_rad value or the default.
func (c *TuningConfig) GetGoalHeadingTolRad() float64 {
	if c.GoalHeadingTolRad == nil {
		return 0.1
	}
	return *c.GoalHeadingTolRad
}

// GetFailSafe returns the fail_safe value or the default.
func (c *TuningConfig) GetFailSafe() string {
	if c.FailSafe == nil {
		return "hold"
	}
	return *c.FailSafe
}

// GetControlPeriodSec returns the control_period_sec value or the default.
func (c *TuningConfig) GetControlPeriodSec() float64 {
	if c.ControlPeriodSec == nil {
		return 0.1
	}
	return *c.ControlPeriodSec
}

// GetPeriodToleranceSec returns the period_tolerance_sec value or the default.
func (c *TuningConfig) GetPeriodToleranceSec() float64 {
	if c.PeriodToleranceSec == nil {
		return 0.02
	}
	return *c.PeriodToleranceSec
}

// GetBufferCapacity returns the buffer_capacity value or the default.
func (c *TuningConfig) GetBufferCapacity() int {
	if c.BufferCapacity == nil {
		return 200
	}
	return *c.BufferCapacity
}

// GetBufferToleranceSec returns the buffer_tolerance_sec value or the default.
func (c *TuningConfig) GetBufferToleranceSec() float64 {
	if c.BufferToleranceSec == nil {
		return 0.05
	}
	return *c.BufferToleranceSec
}

// Merge overlays the non-nil fields of other onto a deep copy of c. Used by
// the params endpoint to apply partial runtime updates. The receiver is never
// modified, so a rejected update cannot leave values behind in the live
// config.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	merged := EmptyTuningConfig()
	if base, err := json.Marshal(c); err == nil {
		// Round-tripping allocates fresh pointers for every set field; a
		// plain struct copy would share pointees with the receiver.
		_ = json.Unmarshal(base, merged)
	}
	if other == nil {
		return merged
	}

	data, err := json.Marshal(other)
	if err != nil {
		return merged
	}
	// Unmarshal over the copy: only fields present in other overwrite.
	_ = json.Unmarshal(data, merged)
	return merged
}
