// Package config loads the verifier's numeric settings and model
// descriptions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultSettingsPath is the path to the checked-in settings defaults file.
const DefaultSettingsPath = "config/settings.defaults.json"

// Settings holds the numeric configuration. Oracle fields are consumed only
// by the continuous reachability oracle; the remaining fields tune the
// discrete engine. Nil fields fall back to the defaults returned by the
// Get* methods, so partial files are safe.
type Settings struct {
	// Oracle params
	Order               *int     `json:"order,omitempty"`
	CutoffThreshold     *float64 `json:"cutoff_threshold,omitempty"`
	RemainderEstimation *float64 `json:"remainder_estimation,omitempty"`

	// Engine params
	Epsilon           *float64 `json:"epsilon,omitempty"`
	CoverageTolerance *float64 `json:"coverage_tolerance,omitempty"`
	Workers           *int     `json:"workers,omitempty"`
	ProgressInterval  *string  `json:"progress_interval,omitempty"` // duration string like "250ms"
}

// EmptySettings returns Settings with every field unset.
func EmptySettings() *Settings {
	return &Settings{}
}

// LoadSettings loads Settings from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSettings(path string) (*Settings, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("settings file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat settings file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("settings file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	s := EmptySettings()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// Validate checks the values that are set.
func (s *Settings) Validate() error {
	if s.Order != nil && *s.Order < 1 {
		return fmt.Errorf("order must be at least 1, got %d", *s.Order)
	}
	if s.CutoffThreshold != nil && *s.CutoffThreshold < 0 {
		return fmt.Errorf("cutoff_threshold must be non-negative, got %g", *s.CutoffThreshold)
	}
	if s.RemainderEstimation != nil && !(*s.RemainderEstimation > 0) {
		return fmt.Errorf("remainder_estimation must be positive, got %g", *s.RemainderEstimation)
	}
	if s.Epsilon != nil && !(*s.Epsilon > 0) {
		return fmt.Errorf("epsilon must be positive, got %g", *s.Epsilon)
	}
	if s.CoverageTolerance != nil && !(*s.CoverageTolerance > 0) {
		return fmt.Errorf("coverage_tolerance must be positive, got %g", *s.CoverageTolerance)
	}
	if s.Workers != nil && *s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *s.Workers)
	}
	if s.ProgressInterval != nil && *s.ProgressInterval != "" {
		if _, err := time.ParseDuration(*s.ProgressInterval); err != nil {
			return fmt.Errorf("invalid progress_interval '%s': %w", *s.ProgressInterval, err)
		}
	}
	return nil
}

// GetOrder returns the Taylor truncation order or the default.
func (s *Settings) GetOrder() int {
	if s.Order == nil {
		return 6
	}
	return *s.Order
}

// GetCutoffThreshold returns the coefficient cutoff or the default.
func (s *Settings) GetCutoffThreshold() float64 {
	if s.CutoffThreshold == nil {
		return 1e-10
	}
	return *s.CutoffThreshold
}

// GetRemainderEstimation returns the per-step remainder bound or the default.
func (s *Settings) GetRemainderEstimation() float64 {
	if s.RemainderEstimation == nil {
		return 0.01
	}
	return *s.RemainderEstimation
}

// GetEpsilon returns the overlap tolerance or the default.
func (s *Settings) GetEpsilon() float64 {
	if s.Epsilon == nil {
		return 1e-10
	}
	return *s.Epsilon
}

// GetCoverageTolerance returns the relative volume tolerance or the default.
func (s *Settings) GetCoverageTolerance() float64 {
	if s.CoverageTolerance == nil {
		return 1e-6
	}
	return *s.CoverageTolerance
}

// GetWorkers returns the oracle worker count. Zero or unset means one worker
// per CPU.
func (s *Settings) GetWorkers() int {
	if s.Workers == nil || *s.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return *s.Workers
}

// GetProgressInterval parses and returns ProgressInterval.
func (s *Settings) GetProgressInterval() time.Duration {
	if s.ProgressInterval == nil || *s.ProgressInterval == "" {
		return 250 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*s.ProgressInterval)
	if err != nil {
		return 250 * time.Millisecond // default on parse error
	}
	return d
}
