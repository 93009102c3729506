package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/mkverify/internal/grid"
)

// ErrMalformedModel wraps every model loading and validation failure.
var ErrMalformedModel = errors.New("malformed model")

// Model describes the plant, controller timing and verification problem.
//
//	x' = A x + B u,  u = Gain x  sampled once per period
//
// The safe region is [-SafeDistance, SafeDistance]^n split into Divisions
// cells per dimension. At most Misses deadlines may be missed in any Window
// consecutive periods.
type Model struct {
	Name         string      `yaml:"name"`
	State        []string    `yaml:"state"`
	Inputs       []string    `yaml:"inputs"`
	SafeDistance float64     `yaml:"safe_distance"`
	Divisions    int         `yaml:"divisions"`
	Period       float64     `yaml:"period"`
	StepSize     float64     `yaml:"step_size"`
	Misses       int         `yaml:"misses"`
	Window       int         `yaml:"window"`
	Dynamics     Dynamics    `yaml:"dynamics"`
	Control      Control     `yaml:"control"`
	Initial      [][]float64 `yaml:"initial"`
}

// Dynamics holds the plant matrices, row-major.
type Dynamics struct {
	A [][]float64 `yaml:"a"`
	B [][]float64 `yaml:"b"`
}

// Control holds the feedback gain, one row per input.
type Control struct {
	Gain [][]float64 `yaml:"gain"`
}

// LoadModel reads and validates a YAML model description. Unknown keys are
// rejected.
func LoadModel(path string) (*Model, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: model file must have .yaml or .yml extension, got %q", ErrMalformedModel, ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	m, err := ParseModel(data)
	if err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(cleanPath), ext)
	}
	return m, nil
}

// ParseModel decodes and validates a YAML model description.
func ParseModel(data []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Model
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedModel, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedModel, err)
	}
	return &m, nil
}

// Dims returns the state dimension.
func (m *Model) Dims() int { return len(m.State) }

// Validate checks that every required field is present and consistent.
func (m *Model) Validate() error {
	n := len(m.State)
	p := len(m.Inputs)
	if n == 0 {
		return errors.New("state must name at least one variable")
	}
	if err := checkNames("state", m.State, m.Inputs); err != nil {
		return err
	}
	if !(m.SafeDistance > 0) || math.IsInf(m.SafeDistance, 0) {
		return fmt.Errorf("safe_distance must be positive, got %g", m.SafeDistance)
	}
	if m.Divisions < 1 {
		return fmt.Errorf("divisions must be at least 1, got %d", m.Divisions)
	}
	if !(m.Period > 0) {
		return fmt.Errorf("period must be positive, got %g", m.Period)
	}
	if !(m.StepSize > 0) || m.StepSize > m.Period {
		return fmt.Errorf("step_size must be in (0, period], got %g", m.StepSize)
	}
	if m.Window < 1 {
		return fmt.Errorf("window must be at least 1, got %d", m.Window)
	}
	if m.Misses < 0 || m.Misses > m.Window {
		return fmt.Errorf("misses must be in [0, window], got %d", m.Misses)
	}
	if err := checkMatrix("dynamics.a", m.Dynamics.A, n, n); err != nil {
		return err
	}
	if p > 0 {
		if err := checkMatrix("dynamics.b", m.Dynamics.B, n, p); err != nil {
			return err
		}
		if err := checkMatrix("control.gain", m.Control.Gain, p, n); err != nil {
			return err
		}
	} else if len(m.Dynamics.B) > 0 || len(m.Control.Gain) > 0 {
		return errors.New("dynamics.b and control.gain require at least one input")
	}
	if len(m.Initial) != n {
		return fmt.Errorf("initial must have %d intervals, got %d", n, len(m.Initial))
	}
	for i, iv := range m.Initial {
		if len(iv) != 2 {
			return fmt.Errorf("initial[%d] must be [lo, hi], got %d values", i, len(iv))
		}
		if !(iv[1] > iv[0]) || math.IsInf(iv[0], 0) || math.IsInf(iv[1], 0) {
			return fmt.Errorf("initial[%d] must have lo < hi, got %v", i, iv)
		}
	}
	return nil
}

// InitialRegion returns the declared initial states as a box.
func (m *Model) InitialRegion() grid.Box {
	b := make(grid.Box, len(m.Initial))
	for i, iv := range m.Initial {
		b[i] = grid.Interval{Lo: iv[0], Hi: iv[1]}
	}
	return b
}

func checkNames(field string, state, inputs []string) error {
	seen := make(map[string]bool, len(state)+len(inputs))
	for _, name := range append(append([]string{}, state...), inputs...) {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%s: variable names must not be empty", field)
		}
		if seen[name] {
			return fmt.Errorf("%s: duplicate variable %q", field, name)
		}
		seen[name] = true
	}
	return nil
}

func checkMatrix(field string, rows [][]float64, r, c int) error {
	if len(rows) != r {
		return fmt.Errorf("%s must have %d rows, got %d", field, r, len(rows))
	}
	for i, row := range rows {
		if len(row) != c {
			return fmt.Errorf("%s row %d must have %d columns, got %d", field, i, c, len(row))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s row %d has a non-finite entry", field, i)
			}
		}
	}
	return nil
}
