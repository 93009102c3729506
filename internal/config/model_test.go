package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mkverify/internal/grid"
)

const validModel = `
state: [x]
inputs: [u]
safe_distance: 2
divisions: 4
period: 0.1
step_size: 0.05
misses: 1
window: 2
dynamics:
  a: [[-1]]
  b: [[1]]
control:
  gain: [[-0.5]]
initial:
  - [-0.5, 0.5]
`

func TestLoadModel_Testdata(t *testing.T) {
	t.Parallel()
	m, err := LoadModel(filepath.Join("testdata", "stable2d.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "stable2d", m.Name)
	assert.Equal(t, 2, m.Dims())
	assert.Equal(t, []string{"u"}, m.Inputs)
	assert.Equal(t, 20, m.Divisions)
	assert.Equal(t, 1, m.Misses)
	assert.Equal(t, 3, m.Window)
	assert.Equal(t, [][]float64{{-1, 0.5}, {0, -2}}, m.Dynamics.A)
	assert.Equal(t, [][]float64{{-0.5, -1}}, m.Control.Gain)
	assert.Equal(t, grid.Box{{Lo: -0.5, Hi: 0.5}, {Lo: -0.5, Hi: 0.5}}, m.InitialRegion())
}

func TestLoadModel_NameFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plant.yml")
	require.NoError(t, os.WriteFile(path, []byte(validModel), 0644))
	m, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, "plant", m.Name)
}

func TestLoadModel_Extension(t *testing.T) {
	t.Parallel()
	_, err := LoadModel("model.json")
	assert.ErrorIs(t, err, ErrMalformedModel)

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformedModel))
}

func TestParseModel_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		edit    func(string) string
		wantErr string
	}{
		{"unknown key", func(s string) string { return s + "colour: red\n" }, "colour"},
		{"not yaml", func(string) string { return "state: [" }, "malformed"},
		{"no state", func(s string) string { return strings.Replace(s, "state: [x]", "state: []", 1) }, "at least one variable"},
		{"duplicate name", func(s string) string { return strings.Replace(s, "inputs: [u]", "inputs: [x]", 1) }, "duplicate"},
		{"safe distance", func(s string) string { return strings.Replace(s, "safe_distance: 2", "safe_distance: 0", 1) }, "safe_distance"},
		{"divisions", func(s string) string { return strings.Replace(s, "divisions: 4", "divisions: 0", 1) }, "divisions"},
		{"period", func(s string) string { return strings.Replace(s, "period: 0.1", "period: -1", 1) }, "period"},
		{"step too large", func(s string) string { return strings.Replace(s, "step_size: 0.05", "step_size: 0.5", 1) }, "step_size"},
		{"window", func(s string) string { return strings.Replace(s, "window: 2", "window: 0", 1) }, "window"},
		{"misses beyond window", func(s string) string { return strings.Replace(s, "misses: 1", "misses: 3", 1) }, "misses"},
		{"A shape", func(s string) string { return strings.Replace(s, "a: [[-1]]", "a: [[-1, 0]]", 1) }, "dynamics.a"},
		{"B shape", func(s string) string { return strings.Replace(s, "b: [[1]]", "b: [[1, 2]]", 1) }, "dynamics.b"},
		{"gain shape", func(s string) string { return strings.Replace(s, "gain: [[-0.5]]", "gain: []", 1) }, "control.gain"},
		{"initial count", func(s string) string { return strings.Replace(s, "  - [-0.5, 0.5]\n", "", 1) }, "initial must have"},
		{"initial order", func(s string) string { return strings.Replace(s, "[-0.5, 0.5]", "[0.5, -0.5]", 1) }, "lo < hi"},
		{"initial arity", func(s string) string { return strings.Replace(s, "[-0.5, 0.5]", "[0.5]", 1) }, "[lo, hi]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModel([]byte(tt.edit(validModel)))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedModel)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseModel_NoInputs(t *testing.T) {
	t.Parallel()
	src := `
state: [x]
safe_distance: 1
divisions: 2
period: 1
step_size: 0.5
misses: 0
window: 1
dynamics:
  a: [[-1]]
initial:
  - [-0.1, 0.1]
`
	m, err := ParseModel([]byte(src))
	require.NoError(t, err)
	assert.Empty(t, m.Inputs)

	_, err = ParseModel([]byte(src + "control:\n  gain: [[1]]\n"))
	assert.ErrorIs(t, err, ErrMalformedModel)
}
